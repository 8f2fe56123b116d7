package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/evidentia-hq/evidentia/internal/evidence"
	"github.com/evidentia-hq/evidentia/internal/modelclient"
	"github.com/evidentia-hq/evidentia/internal/pipeline"
)

type fakePipeline struct {
	triggerResult *pipeline.StageResult
	triggerErr    error
	retried       []evidence.StageName
	triggered     []evidence.StageName
	activated     []string
	statuses      map[evidence.StageName]pipeline.Status
	snapshot      map[evidence.StageName]pipeline.StageResult
}

func (f *fakePipeline) Trigger(_ context.Context, _ string, name evidence.StageName, _ pipeline.TriggerInput) (*pipeline.StageResult, error) {
	f.triggered = append(f.triggered, name)
	return f.triggerResult, f.triggerErr
}

func (f *fakePipeline) Retry(_ context.Context, _ string, name evidence.StageName, _ pipeline.TriggerInput) (*pipeline.StageResult, error) {
	f.retried = append(f.retried, name)
	return f.triggerResult, f.triggerErr
}

func (f *fakePipeline) ActivatePaper(_ context.Context, paperID string, _ pipeline.TriggerInput) map[evidence.StageName]pipeline.Status {
	f.activated = append(f.activated, paperID)
	return f.statuses
}

func (f *fakePipeline) Snapshot(string) map[evidence.StageName]pipeline.StageResult {
	return f.snapshot
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestStageTriggerSuccess(t *testing.T) {
	pipe := &fakePipeline{triggerResult: &pipeline.StageResult{Status: pipeline.StatusSuccess, Text: "notes"}}
	h := NewServer(pipe, nil)

	rec := postJSON(t, h, "/v1/stages/claims", `{"paper_id":"uploads/p1.pdf","extracted_text":"body"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeEnvelope(t, rec)
	if out["stage"] != "claims" || out["ok"] != true {
		t.Fatalf("envelope = %v", out)
	}
	if len(pipe.triggered) != 1 || pipe.triggered[0] != evidence.StageClaims {
		t.Fatalf("triggered = %v", pipe.triggered)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestStageTriggerMissingPaperID(t *testing.T) {
	pipe := &fakePipeline{}
	h := NewServer(pipe, nil)

	rec := postJSON(t, h, "/v1/stages/claims", `{"extracted_text":"body"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(pipe.triggered) != 0 {
		t.Fatalf("invalid request reached the pipeline: %v", pipe.triggered)
	}
}

func TestStageTriggerInFlightReturnsAccepted(t *testing.T) {
	pipe := &fakePipeline{} // Trigger returns (nil, nil)
	h := NewServer(pipe, nil)

	rec := postJSON(t, h, "/v1/stages/patents", `{"paper_id":"p1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeEnvelope(t, rec)
	if out["status"] != "loading" {
		t.Fatalf("envelope = %v", out)
	}
}

func TestStageErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		tag  string
	}{
		{"validation", &pipeline.ValidationError{Message: "claims first"}, http.StatusBadRequest, "validation"},
		{"configuration", &modelclient.Error{Kind: modelclient.KindConfig, Message: "missing key"}, http.StatusInternalServerError, "configuration"},
		{"timeout", &modelclient.Error{Kind: modelclient.KindTimeout, Message: "model call timed out"}, http.StatusBadGateway, "timeout"},
		{"upstream", &modelclient.Error{Kind: modelclient.KindUpstream, Message: "503"}, http.StatusBadGateway, "upstream"},
		{"truncated", &modelclient.Error{Kind: modelclient.KindTruncated, Message: "cut off"}, http.StatusBadGateway, "truncated"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pipe := &fakePipeline{triggerErr: tc.err}
			h := NewServer(pipe, nil)
			rec := postJSON(t, h, "/v1/stages/similar-papers", `{"paper_id":"p1"}`)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			out := decodeEnvelope(t, rec)
			errObj, _ := out["error"].(map[string]any)
			if errObj["code"] != tc.tag {
				t.Fatalf("error code = %v, want %s", errObj["code"], tc.tag)
			}
		})
	}
}

func TestRetryRouteUsesRetryPath(t *testing.T) {
	pipe := &fakePipeline{triggerResult: &pipeline.StageResult{Status: pipeline.StatusSuccess}}
	h := NewServer(pipe, nil)

	rec := postJSON(t, h, "/v1/stages/patents/retry", `{"paper_id":"p1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(pipe.retried) != 1 || pipe.retried[0] != evidence.StagePatents {
		t.Fatalf("retried = %v, triggered = %v", pipe.retried, pipe.triggered)
	}
}

func TestActivateReturnsStatuses(t *testing.T) {
	pipe := &fakePipeline{statuses: map[evidence.StageName]pipeline.Status{
		evidence.StageClaims:  pipeline.StatusSuccess,
		evidence.StagePatents: pipeline.StatusError,
	}}
	h := NewServer(pipe, nil)

	rec := postJSON(t, h, "/v1/papers/activate", `{"paper_id":"p1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeEnvelope(t, rec)
	stages, _ := out["stages"].(map[string]any)
	if stages["claims"] != "success" || stages["patents"] != "error" {
		t.Fatalf("stages = %v", stages)
	}
	if len(pipe.activated) != 1 || pipe.activated[0] != "p1" {
		t.Fatalf("activated = %v", pipe.activated)
	}
}

func TestResultsRequiresPaperID(t *testing.T) {
	h := NewServer(&fakePipeline{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/papers/results", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewServer(&fakePipeline{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/stages/claims", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := NewServer(&fakePipeline{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReportRendersCompletedStages(t *testing.T) {
	rawClaims, _ := json.Marshal(evidence.ClaimsBrief{Claims: []evidence.Claim{
		{ID: "C1", ClaimText: "Method Y improves efficiency"},
	}})
	rawPatents, _ := json.Marshal(evidence.PatentsPayload{Patents: []evidence.PatentEntry{
		{PatentNumber: "US1234567B2", Title: "Widget", URL: "https://patents.google.com/patent/US1234567B2"},
	}})
	pipe := &fakePipeline{snapshot: map[evidence.StageName]pipeline.StageResult{
		evidence.StageClaims:  {Status: pipeline.StatusSuccess, Text: "notes", Structured: rawClaims},
		evidence.StagePatents: {Status: pipeline.StatusSuccess, Text: "notes", Structured: rawPatents},
	}}
	h := NewServer(pipe, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/papers/report?paper_id=p1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Method Y improves efficiency") {
		t.Fatalf("claim text missing from report: %s", body)
	}
	if !strings.Contains(body, "patents.google.com/patent/US1234567B2") {
		t.Fatalf("patent link missing from report")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("content type = %s", ct)
	}
}
