// Package pipeline sequences stages per paper, enforcing the dependency
// graph and at-most-one in-flight execution per (paper, stage).
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/evidentia-hq/evidentia/internal/cache"
	"github.com/evidentia-hq/evidentia/internal/evidence"
	"github.com/evidentia-hq/evidentia/internal/stage"
)

// Status is the lifecycle of one (paper, stage) result. A result is
// created loading, becomes success or error exactly once, and is
// immutable thereafter except for explicit user-triggered retry.
type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type StageResult struct {
	Status     Status          `json:"status"`
	Text       string          `json:"text,omitempty"`
	Structured json.RawMessage `json:"structured,omitempty"`
	Error      string          `json:"error,omitempty"`
	FromCache  bool            `json:"fromCache,omitempty"`
}

// Runner is the stage-execution surface; satisfied by *stage.Executor.
type Runner interface {
	Run(ctx context.Context, spec stage.Spec, b evidence.Bundle) (stage.Outcome, error)
}

// TriggerInput carries the caller-supplied evidence a trigger may attach
// to the paper: metadata and, for the claims stage, the extracted text.
type TriggerInput struct {
	Paper         *evidence.PaperMetadata
	ExtractedText string
}

type paperState struct {
	meta          evidence.PaperMetadata
	extractedText string
	results       map[evidence.StageName]*StageResult
}

type Coordinator struct {
	runner     Runner
	store      cache.Store
	logger     *zap.Logger
	persistTTL time.Duration

	mu     sync.Mutex
	papers map[string]*paperState

	// persistWG lets tests wait for fire-and-forget writes.
	persistWG sync.WaitGroup
}

func NewCoordinator(runner Runner, store cache.Store, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		runner:     runner,
		store:      store,
		logger:     logger,
		persistTTL: 15 * time.Second,
		papers:     make(map[string]*paperState),
	}
}

func (c *Coordinator) paper(paperID string) *paperState {
	ps, ok := c.papers[paperID]
	if !ok {
		ps = &paperState{results: make(map[evidence.StageName]*StageResult)}
		c.papers[paperID] = ps
	}
	return ps
}

// Result returns a copy of the current result for (paper, stage), or nil.
func (c *Coordinator) Result(paperID string, name evidence.StageName) *StageResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.papers[paperID]
	if !ok {
		return nil
	}
	res, ok := ps.results[name]
	if !ok {
		return nil
	}
	copied := *res
	return &copied
}

// Snapshot returns copies of every known stage result for a paper.
func (c *Coordinator) Snapshot(paperID string) map[evidence.StageName]StageResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[evidence.StageName]StageResult)
	if ps, ok := c.papers[paperID]; ok {
		for name, res := range ps.results {
			out[name] = *res
		}
	}
	return out
}

// Trigger runs one stage for one paper. Returns (nil, nil) when the stage
// is already in flight; returns the cached result without any model call
// when it already succeeded. Missing or structurally incomplete upstream
// data is a *ValidationError.
func (c *Coordinator) Trigger(ctx context.Context, paperID string, name evidence.StageName, input TriggerInput) (*StageResult, error) {
	if !name.Valid() {
		return nil, validationErrorf("unknown stage %q", name)
	}
	spec, err := stage.For(name)
	if err != nil {
		return nil, validationErrorf("unknown stage %q", name)
	}

	c.mu.Lock()
	ps := c.paper(paperID)
	if input.Paper != nil {
		ps.meta = *input.Paper
	}
	if input.ExtractedText != "" {
		ps.extractedText = input.ExtractedText
	}

	if cur, ok := ps.results[name]; ok {
		switch cur.Status {
		case StatusLoading:
			// Duplicate trigger while in flight: short-circuit, no call.
			c.mu.Unlock()
			c.logger.Info("stage_duplicate_trigger_ignored",
				zap.String("paper_id", paperID), zap.String("stage", string(name)))
			return nil, nil
		case StatusSuccess:
			copied := *cur
			c.mu.Unlock()
			return &copied, nil
		}
		// Previous error: fall through and re-run.
	}

	bundle, verr := c.buildBundleLocked(ps, name)
	if verr != nil {
		c.mu.Unlock()
		return nil, verr
	}
	// Mark in-flight before any suspension point.
	ps.results[name] = &StageResult{Status: StatusLoading}
	c.mu.Unlock()

	out, runErr := c.runner.Run(ctx, spec, bundle)

	c.mu.Lock()
	if runErr != nil {
		ps.results[name] = &StageResult{Status: StatusError, Error: runErr.Error()}
		c.mu.Unlock()
		return nil, runErr
	}
	res := &StageResult{Status: StatusSuccess, Text: out.Text, Structured: out.Structured}
	ps.results[name] = res
	copied := *res
	c.mu.Unlock()

	c.persistAsync(paperID, name, cache.Record{Text: out.Text, Structured: out.Structured})
	return &copied, nil
}

// persistAsync writes a successful result to the cache store without
// blocking the reported success. A write failure is logged only.
func (c *Coordinator) persistAsync(paperID string, name evidence.StageName, rec cache.Record) {
	if c.store == nil {
		return
	}
	c.persistWG.Add(1)
	go func() {
		defer c.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.persistTTL)
		defer cancel()
		if err := c.store.Put(ctx, paperID, name, rec); err != nil {
			c.logger.Warn("stage_result_persist_failed",
				zap.String("paper_id", paperID), zap.String("stage", string(name)), zap.Error(err))
		}
	}()
}

// WaitPersist blocks until pending cache writes finish. Test hook.
func (c *Coordinator) WaitPersist() { c.persistWG.Wait() }

// ActivatePaper loads cached results for every stage of a previously
// processed paper. While a load is pending the stage is marked loading,
// so a concurrent trigger cannot treat it as absent and start a
// redundant computation.
func (c *Coordinator) ActivatePaper(ctx context.Context, paperID string, input TriggerInput) map[evidence.StageName]Status {
	c.mu.Lock()
	ps := c.paper(paperID)
	if input.Paper != nil {
		ps.meta = *input.Paper
	}
	if input.ExtractedText != "" {
		ps.extractedText = input.ExtractedText
	}
	var toLoad []evidence.StageName
	for _, name := range evidence.AllStages {
		if _, ok := ps.results[name]; ok {
			continue
		}
		ps.results[name] = &StageResult{Status: StatusLoading}
		toLoad = append(toLoad, name)
	}
	c.mu.Unlock()

	for _, name := range toLoad {
		var rec *cache.Record
		var err error
		if c.store != nil {
			rec, err = c.store.Get(ctx, paperID, name)
		}
		c.mu.Lock()
		if err != nil {
			c.logger.Warn("stage_cache_load_failed",
				zap.String("paper_id", paperID), zap.String("stage", string(name)), zap.Error(err))
			delete(ps.results, name)
		} else if rec == nil {
			delete(ps.results, name)
		} else {
			ps.results[name] = &StageResult{
				Status:     StatusSuccess,
				Text:       rec.Text,
				Structured: rec.Structured,
				FromCache:  true,
			}
		}
		c.mu.Unlock()
	}

	statuses := make(map[evidence.StageName]Status)
	c.mu.Lock()
	for name, res := range ps.results {
		statuses[name] = res.Status
	}
	c.mu.Unlock()
	return statuses
}

// Retry clears cached failure state for (paper, stage) and re-enters the
// normal trigger path. A retry while the stage is in flight is a no-op.
func (c *Coordinator) Retry(ctx context.Context, paperID string, name evidence.StageName, input TriggerInput) (*StageResult, error) {
	if !name.Valid() {
		return nil, validationErrorf("unknown stage %q", name)
	}
	c.mu.Lock()
	ps := c.paper(paperID)
	if cur, ok := ps.results[name]; ok {
		if cur.Status == StatusLoading {
			c.mu.Unlock()
			return nil, nil
		}
		delete(ps.results, name)
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(ctx, paperID, name); err != nil {
			c.logger.Warn("stage_cache_clear_failed",
				zap.String("paper_id", paperID), zap.String("stage", string(name)), zap.Error(err))
		}
	}
	return c.Trigger(ctx, paperID, name, input)
}
