package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/evidentia-hq/evidentia/internal/cache"
	"github.com/evidentia-hq/evidentia/internal/evidence"
	"github.com/evidentia-hq/evidentia/internal/stage"
)

type runnerCall struct {
	name   evidence.StageName
	bundle evidence.Bundle
}

type fakeRunner struct {
	mu       sync.Mutex
	calls    []runnerCall
	outcomes map[evidence.StageName]stage.Outcome
	errs     map[evidence.StageName]error
	block    chan struct{} // when set, Run waits here before returning
}

func (f *fakeRunner) Run(ctx context.Context, spec stage.Spec, b evidence.Bundle) (stage.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runnerCall{name: spec.Name, bundle: b})
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if err, ok := f.errs[spec.Name]; ok && err != nil {
		return stage.Outcome{}, err
	}
	if out, ok := f.outcomes[spec.Name]; ok {
		return out, nil
	}
	return stage.Outcome{Text: "notes for " + string(spec.Name)}, nil
}

func (f *fakeRunner) callCount(name evidence.StageName) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

func (f *fakeRunner) lastBundle(t *testing.T, name evidence.StageName) evidence.Bundle {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].name == name {
			return f.calls[i].bundle
		}
	}
	t.Fatalf("no call recorded for stage %s", name)
	return evidence.Bundle{}
}

type memStore struct {
	mu      sync.Mutex
	records map[string]cache.Record
	puts    int
	deletes int
}

func newMemStore() *memStore { return &memStore{records: map[string]cache.Record{}} }

func (m *memStore) key(p string, s evidence.StageName) string { return p + "|" + string(s) }

func (m *memStore) Get(_ context.Context, p string, s evidence.StageName) (*cache.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[m.key(p, s)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) Put(_ context.Context, p string, s evidence.StageName, rec cache.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[m.key(p, s)] = rec
	m.puts++
	return nil
}

func (m *memStore) Exists(_ context.Context, p string, s evidence.StageName) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[m.key(p, s)]
	return ok, nil
}

func (m *memStore) Delete(_ context.Context, p string, s evidence.StageName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, m.key(p, s))
	m.deletes++
	return nil
}

func claimsOutcome(t *testing.T, claims ...evidence.Claim) stage.Outcome {
	t.Helper()
	raw, err := json.Marshal(evidence.ClaimsBrief{Claims: claims})
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return stage.Outcome{Text: "claims notes", Structured: raw}
}

func triggerInput() TriggerInput {
	return TriggerInput{
		Paper: &evidence.PaperMetadata{
			Title:      "Photocatalytic Water Splitting With Doped Titania",
			DOI:        "10.1000/src",
			AuthorsRaw: "A. Researcher; B. Scholar",
		},
		ExtractedText: "full extracted text",
	}
}

func TestTriggerClaimsRequiresExtractedText(t *testing.T) {
	runner := &fakeRunner{}
	c := NewCoordinator(runner, nil, nil)
	_, err := c.Trigger(context.Background(), "p1", evidence.StageClaims, TriggerInput{
		Paper: &evidence.PaperMetadata{Title: "T"},
	})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := runner.callCount(evidence.StageClaims); n != 0 {
		t.Fatalf("runner called %d times, want 0", n)
	}
}

func TestTriggerEnforcesDependencies(t *testing.T) {
	runner := &fakeRunner{}
	c := NewCoordinator(runner, nil, nil)
	_, err := c.Trigger(context.Background(), "p1", evidence.StageSimilarPapers, triggerInput())
	if !IsValidation(err) {
		t.Fatalf("expected validation error before claims ran, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("dependency failure must not reach the runner, got %d calls", len(runner.calls))
	}
}

func TestTriggerCachesSuccess(t *testing.T) {
	runner := &fakeRunner{outcomes: map[evidence.StageName]stage.Outcome{
		evidence.StageClaims: claimsOutcome(t, evidence.Claim{ID: "C1", ClaimText: "x"}),
	}}
	c := NewCoordinator(runner, nil, nil)
	ctx := context.Background()

	first, err := c.Trigger(ctx, "p1", evidence.StageClaims, triggerInput())
	if err != nil || first == nil || first.Status != StatusSuccess {
		t.Fatalf("first trigger: %+v, %v", first, err)
	}
	second, err := c.Trigger(ctx, "p1", evidence.StageClaims, triggerInput())
	if err != nil || second == nil || second.Status != StatusSuccess {
		t.Fatalf("second trigger: %+v, %v", second, err)
	}
	if n := runner.callCount(evidence.StageClaims); n != 1 {
		t.Fatalf("runner called %d times for a cached stage, want 1", n)
	}
	if second.Text != first.Text {
		t.Fatalf("cached text diverged: %q vs %q", second.Text, first.Text)
	}
}

func TestTriggerWhileInFlightIsNoOp(t *testing.T) {
	block := make(chan struct{})
	runner := &fakeRunner{
		block: block,
		outcomes: map[evidence.StageName]stage.Outcome{
			evidence.StageClaims: claimsOutcome(t, evidence.Claim{ID: "C1", ClaimText: "x"}),
		},
	}
	c := NewCoordinator(runner, nil, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Trigger(ctx, "p1", evidence.StageClaims, triggerInput()); err != nil {
			t.Errorf("background trigger: %v", err)
		}
	}()

	// Wait for the first trigger to reach the runner.
	deadline := time.Now().Add(2 * time.Second)
	for runner.callCount(evidence.StageClaims) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first trigger never reached the runner")
		}
		time.Sleep(time.Millisecond)
	}

	res, err := c.Trigger(ctx, "p1", evidence.StageClaims, triggerInput())
	if err != nil || res != nil {
		t.Fatalf("duplicate trigger should return (nil, nil), got %+v, %v", res, err)
	}
	close(block)
	<-done
	if n := runner.callCount(evidence.StageClaims); n != 1 {
		t.Fatalf("runner called %d times, want 1", n)
	}
}

func TestTriggerPersistsSuccess(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{outcomes: map[evidence.StageName]stage.Outcome{
		evidence.StageClaims: claimsOutcome(t, evidence.Claim{ID: "C1", ClaimText: "x"}),
	}}
	c := NewCoordinator(runner, store, nil)

	if _, err := c.Trigger(context.Background(), "uploads/p1.pdf", evidence.StageClaims, triggerInput()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	c.WaitPersist()

	rec, err := store.Get(context.Background(), "uploads/p1.pdf", evidence.StageClaims)
	if err != nil || rec == nil {
		t.Fatalf("persisted record missing: %+v, %v", rec, err)
	}
	if rec.Text != "claims notes" {
		t.Fatalf("persisted text = %q", rec.Text)
	}
}

func TestTriggerErrorIsRecordedNotPersisted(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{errs: map[evidence.StageName]error{
		evidence.StageClaims: errors.New("model unavailable"),
	}}
	c := NewCoordinator(runner, store, nil)

	_, err := c.Trigger(context.Background(), "p1", evidence.StageClaims, triggerInput())
	if err == nil {
		t.Fatal("expected stage error")
	}
	res := c.Result("p1", evidence.StageClaims)
	if res == nil || res.Status != StatusError || res.Error == "" {
		t.Fatalf("error state not recorded: %+v", res)
	}
	c.WaitPersist()
	if store.puts != 0 {
		t.Fatalf("failures must not be persisted, got %d puts", store.puts)
	}
}

func TestActivatePaperLoadsCache(t *testing.T) {
	store := newMemStore()
	raw, _ := json.Marshal(evidence.ClaimsBrief{Claims: []evidence.Claim{{ID: "C1", ClaimText: "x"}}})
	store.Put(context.Background(), "p1", evidence.StageClaims, cache.Record{Text: "cached claims", Structured: raw})

	runner := &fakeRunner{}
	c := NewCoordinator(runner, store, nil)
	statuses := c.ActivatePaper(context.Background(), "p1", triggerInput())

	if statuses[evidence.StageClaims] != StatusSuccess {
		t.Fatalf("claims status = %v", statuses[evidence.StageClaims])
	}
	if _, ok := statuses[evidence.StagePatents]; ok {
		t.Fatalf("absent stage reported a status: %v", statuses[evidence.StagePatents])
	}
	res := c.Result("p1", evidence.StageClaims)
	if res == nil || !res.FromCache || res.Text != "cached claims" {
		t.Fatalf("cache load mismatch: %+v", res)
	}
	// Re-triggering the loaded stage must not call the model.
	got, err := c.Trigger(context.Background(), "p1", evidence.StageClaims, triggerInput())
	if err != nil || got == nil || got.Text != "cached claims" {
		t.Fatalf("trigger after activate: %+v, %v", got, err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("runner called %d times for a cached paper, want 0", len(runner.calls))
	}
}

func TestRetryClearsErrorAndReruns(t *testing.T) {
	store := newMemStore()
	runner := &fakeRunner{errs: map[evidence.StageName]error{
		evidence.StageClaims: errors.New("flaky"),
	}}
	c := NewCoordinator(runner, store, nil)
	ctx := context.Background()

	if _, err := c.Trigger(ctx, "p1", evidence.StageClaims, triggerInput()); err == nil {
		t.Fatal("expected first trigger to fail")
	}

	runner.mu.Lock()
	runner.errs = nil
	runner.outcomes = map[evidence.StageName]stage.Outcome{
		evidence.StageClaims: claimsOutcome(t, evidence.Claim{ID: "C1", ClaimText: "x"}),
	}
	runner.mu.Unlock()

	res, err := c.Retry(ctx, "p1", evidence.StageClaims, triggerInput())
	if err != nil || res == nil || res.Status != StatusSuccess {
		t.Fatalf("retry: %+v, %v", res, err)
	}
	if store.deletes != 1 {
		t.Fatalf("retry issued %d cache deletes, want 1", store.deletes)
	}
	if n := runner.callCount(evidence.StageClaims); n != 2 {
		t.Fatalf("runner called %d times across fail+retry, want 2", n)
	}
}

func TestResearchGroupsBundleCarriesWorklist(t *testing.T) {
	similar := evidence.SimilarPapersPayload{Papers: []evidence.SimilarPaperEntry{
		{Identifier: "10.1000/a", Title: "Paper A", Authors: "X. One, Y. Two"},
		{Identifier: "10.1000/src", Title: "Photocatalytic Water Splitting With Doped Titania"},
		{Identifier: "10.1000/b", Title: "Paper B", Authors: "Z. Three"},
	}}
	rawSimilar, _ := json.Marshal(similar)
	runner := &fakeRunner{outcomes: map[evidence.StageName]stage.Outcome{
		evidence.StageClaims:        claimsOutcome(t, evidence.Claim{ID: "C1", ClaimText: "x"}),
		evidence.StageSimilarPapers: {Text: "similar notes", Structured: rawSimilar},
	}}
	c := NewCoordinator(runner, nil, nil)
	ctx := context.Background()
	in := triggerInput()

	for _, name := range []evidence.StageName{evidence.StageClaims, evidence.StageSimilarPapers, evidence.StageResearchGroups} {
		if _, err := c.Trigger(ctx, "p1", name, in); err != nil {
			t.Fatalf("trigger %s: %v", name, err)
		}
	}

	b := runner.lastBundle(t, evidence.StageResearchGroups)
	// Source paper + A + B; the entry matching the source DOI is excluded.
	if b.ExpectedPaperCount != 3 || len(b.ContactPapers) != 3 {
		t.Fatalf("worklist = %d papers (expected count %d), want 3", len(b.ContactPapers), b.ExpectedPaperCount)
	}
	if b.ContactPapers[0].Identifier != "10.1000/src" {
		t.Fatalf("source paper must lead the worklist, got %q", b.ContactPapers[0].Identifier)
	}
}

func TestContactsWorklistFromGroupsPayload(t *testing.T) {
	groups := evidence.ResearchGroupsPayload{Papers: []evidence.ResearchGroupPaperEntry{
		{
			Title:      "Paper A",
			Identifier: "10.1000/a",
			Groups: []evidence.Group{
				{Name: "Lab One", Researchers: []evidence.Researcher{{Name: "X. One"}, {Name: "Y. Two"}}},
				{Name: "Lab Two", Researchers: []evidence.Researcher{{Name: "X. One"}}},
			},
		},
	}}
	rawGroups, _ := json.Marshal(groups)
	runner := &fakeRunner{outcomes: map[evidence.StageName]stage.Outcome{
		evidence.StageClaims:         claimsOutcome(t, evidence.Claim{ID: "C1", ClaimText: "x"}),
		evidence.StageSimilarPapers:  {Text: "similar notes"},
		evidence.StageResearchGroups: {Text: "groups notes", Structured: rawGroups},
	}}
	c := NewCoordinator(runner, nil, nil)
	ctx := context.Background()
	in := triggerInput()

	order := []evidence.StageName{
		evidence.StageClaims,
		evidence.StageSimilarPapers,
		evidence.StageResearchGroups,
		evidence.StageResearchGroupContacts,
	}
	for _, name := range order {
		if _, err := c.Trigger(ctx, "p1", name, in); err != nil {
			t.Fatalf("trigger %s: %v", name, err)
		}
	}

	b := runner.lastBundle(t, evidence.StageResearchGroupContacts)
	if len(b.ContactPapers) != 1 || b.ExpectedPaperCount != 1 {
		t.Fatalf("contacts worklist = %+v", b.ContactPapers)
	}
	got := fmt.Sprintf("%v", b.ContactPapers[0].Authors)
	if got != "[X. One Y. Two]" {
		t.Fatalf("researcher names not deduplicated across groups: %s", got)
	}
}

func TestContactsWorklistCapsResearchersPerPaper(t *testing.T) {
	groups := evidence.ResearchGroupsPayload{Papers: []evidence.ResearchGroupPaperEntry{
		{
			Title: "Paper A",
			Groups: []evidence.Group{
				{Name: "Big Lab", Researchers: []evidence.Researcher{
					{Name: "R. One"}, {Name: "R. Two"}, {Name: "R. Three"},
					{Name: "R. Four"}, {Name: "R. Five"},
				}},
			},
		},
	}}
	rawGroups, _ := json.Marshal(groups)
	runner := &fakeRunner{outcomes: map[evidence.StageName]stage.Outcome{
		evidence.StageClaims:         claimsOutcome(t, evidence.Claim{ID: "C1", ClaimText: "x"}),
		evidence.StageSimilarPapers:  {Text: "similar notes"},
		evidence.StageResearchGroups: {Text: "groups notes", Structured: rawGroups},
	}}
	c := NewCoordinator(runner, nil, nil)
	ctx := context.Background()
	in := triggerInput()

	order := []evidence.StageName{
		evidence.StageClaims,
		evidence.StageSimilarPapers,
		evidence.StageResearchGroups,
		evidence.StageResearchGroupContacts,
	}
	for _, name := range order {
		if _, err := c.Trigger(ctx, "p1", name, in); err != nil {
			t.Fatalf("trigger %s: %v", name, err)
		}
	}

	b := runner.lastBundle(t, evidence.StageResearchGroupContacts)
	if len(b.ContactPapers) != 1 {
		t.Fatalf("worklist = %+v", b.ContactPapers)
	}
	if got := b.ContactPapers[0].Authors; len(got) != 3 {
		t.Fatalf("researchers per paper = %d (%v), want 3", len(got), got)
	}
}

func TestThesesRequiresStructuredContacts(t *testing.T) {
	groups := evidence.ResearchGroupsPayload{Papers: []evidence.ResearchGroupPaperEntry{
		{Title: "Paper A", Groups: []evidence.Group{{Name: "Lab", Researchers: []evidence.Researcher{{Name: "X"}}}}},
	}}
	rawGroups, _ := json.Marshal(groups)
	runner := &fakeRunner{outcomes: map[evidence.StageName]stage.Outcome{
		evidence.StageClaims:                claimsOutcome(t, evidence.Claim{ID: "C1", ClaimText: "x"}),
		evidence.StageSimilarPapers:         {Text: "similar notes"},
		evidence.StageResearchGroups:        {Text: "groups notes", Structured: rawGroups},
		evidence.StageResearchGroupContacts: {Text: "contacts degraded to text"},
	}}
	c := NewCoordinator(runner, nil, nil)
	ctx := context.Background()
	in := triggerInput()

	order := []evidence.StageName{
		evidence.StageClaims,
		evidence.StageSimilarPapers,
		evidence.StageResearchGroups,
		evidence.StageResearchGroupContacts,
	}
	for _, name := range order {
		if _, err := c.Trigger(ctx, "p1", name, in); err != nil {
			t.Fatalf("trigger %s: %v", name, err)
		}
	}

	_, err := c.Trigger(ctx, "p1", evidence.StageResearcherTheses, in)
	if !IsValidation(err) {
		t.Fatalf("expected validation error without structured contacts, got %v", err)
	}
}
