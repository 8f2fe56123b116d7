// Package stage runs the two-phase discovery→cleanup protocol for one
// pipeline stage invocation.
package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/evidentia-hq/evidentia/internal/evidence"
	"github.com/evidentia-hq/evidentia/internal/modelclient"
	"github.com/evidentia-hq/evidentia/internal/prompt"
)

// Caller is the model client surface the executor needs. Satisfied by
// *modelclient.Client and by test fakes.
type Caller interface {
	Generate(ctx context.Context, req modelclient.Request) (string, error)
	ModelName() string
}

// Outcome is one stage invocation's result: the raw discovery text plus
// the structured payload when cleanup parsed. Structured is nil when a
// tolerant stage degraded to text only.
type Outcome struct {
	Text       string          `json:"text"`
	Structured json.RawMessage `json:"structured,omitempty"`
}

// Spec describes how one stage runs. Tolerant stages degrade to text-only
// results on cleanup parse failure; strict stages fail.
type Spec struct {
	Name       evidence.StageName
	WebSearch  bool
	StrictJSON bool

	Discovery func(evidence.Bundle) string
	Cleanup   func(evidence.Bundle, string) string

	// BatchDiscovery replaces Discovery for batched stages: discovery runs
	// once per batch of contact papers, sequentially, and the joined output
	// feeds a single cleanup call.
	BatchDiscovery func(b evidence.Bundle, batch []evidence.ContactPaper, batchNum, batchCount int) string
	BatchSize      int

	// Validate applies post-parse invariants. It may rewrite the payload
	// (filtering bad entries) and only errors when the violation makes the
	// result meaningless.
	Validate func(raw json.RawMessage, b evidence.Bundle, logger *zap.Logger) (json.RawMessage, error)
}

type Executor struct {
	caller Caller
	logger *zap.Logger
}

func NewExecutor(caller Caller, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{caller: caller, logger: logger}
}

var tracer = otel.Tracer("evidentia/stage")

// Run executes discovery then cleanup for one stage. Discovery failures
// propagate immediately; cleanup behavior depends on the stage's
// strictness.
func (e *Executor) Run(ctx context.Context, spec Spec, b evidence.Bundle) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "stage."+string(spec.Name))
	defer span.End()
	span.SetAttributes(attribute.Bool("web_search", spec.WebSearch))

	started := time.Now()
	var discoveryText string
	if spec.BatchDiscovery != nil {
		text, err := e.runBatches(ctx, spec, b)
		if err != nil {
			return Outcome{}, err
		}
		discoveryText = text
	} else {
		e.logger.Info("stage_discovery_start", zap.String("stage", string(spec.Name)))
		text, err := e.caller.Generate(ctx, modelclient.Request{Prompt: spec.Discovery(b), WebSearch: spec.WebSearch})
		if err != nil {
			e.logger.Warn("stage_discovery_error",
				zap.String("stage", string(spec.Name)),
				zap.Int64("elapsed_ms", time.Since(started).Milliseconds()),
				zap.Error(err))
			return Outcome{}, fmt.Errorf("%s discovery failed: %w", spec.Name, err)
		}
		discoveryText = text
	}

	out, err := e.cleanup(ctx, spec, b, discoveryText)
	if err != nil {
		return Outcome{}, err
	}
	e.logger.Info("stage_complete",
		zap.String("stage", string(spec.Name)),
		zap.Bool("structured", out.Structured != nil),
		zap.Int64("elapsed_ms", time.Since(started).Milliseconds()))
	return out, nil
}

// runBatches executes discovery sequentially per batch and joins the
// outputs. Batch N+1 never starts before batch N resolves.
func (e *Executor) runBatches(ctx context.Context, spec Spec, b evidence.Bundle) (string, error) {
	size := spec.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := SplitPapers(b.ContactPapers, size)
	if len(batches) == 0 {
		return "", fmt.Errorf("%s discovery failed: no papers to process", spec.Name)
	}
	parts := make([]string, 0, len(batches))
	for i, batch := range batches {
		e.logger.Info("stage_batch_discovery_start",
			zap.String("stage", string(spec.Name)),
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("papers", len(batch)))
		batchPrompt := spec.BatchDiscovery(b, batch, i+1, len(batches))
		text, err := e.caller.Generate(ctx, modelclient.Request{Prompt: batchPrompt, WebSearch: spec.WebSearch})
		if err != nil {
			return "", fmt.Errorf("%s discovery failed (batch %d of %d): %w", spec.Name, i+1, len(batches), err)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, prompt.BatchSeparator), nil
}

func (e *Executor) cleanup(ctx context.Context, spec Spec, b evidence.Bundle, discoveryText string) (Outcome, error) {
	// Transport failures (timeouts, upstream errors) propagate for every
	// stage; only a malformed-JSON cleanup may degrade, and only on
	// tolerant stages. A degraded success gets cached, so a transient
	// error must stay retryable instead of freezing a text-only result.
	raw, err := e.caller.Generate(ctx, modelclient.Request{Prompt: spec.Cleanup(b, discoveryText)})
	if err != nil {
		return Outcome{}, fmt.Errorf("%s cleanup failed: %w", spec.Name, err)
	}

	clean := evidence.SanitizeText(stripCodeFences(raw))
	var structured json.RawMessage
	if err := json.Unmarshal([]byte(clean), &structured); err != nil {
		if spec.StrictJSON {
			return Outcome{}, fmt.Errorf("%s cleanup returned malformed or truncated JSON: %w", spec.Name, err)
		}
		e.logger.Warn("stage_cleanup_parse_degraded", zap.String("stage", string(spec.Name)), zap.Error(err))
		return Outcome{Text: discoveryText}, nil
	}

	if spec.Validate != nil {
		structured, err = spec.Validate(structured, b, e.logger.With(zap.String("stage", string(spec.Name))))
		if err != nil {
			return Outcome{}, fmt.Errorf("%s validation failed: %w", spec.Name, err)
		}
	}
	return Outcome{Text: discoveryText, Structured: structured}, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
