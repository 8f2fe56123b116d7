// Package cache persists stage results keyed by (paper storage path,
// stage name). The pipeline only needs get/put/exists; persistence
// failures never contradict an in-memory success already reported.
package cache

import (
	"context"
	"encoding/json"

	"github.com/evidentia-hq/evidentia/internal/evidence"
)

// Record is the persisted form of one stage result.
type Record struct {
	Text       string          `json:"text"`
	Structured json.RawMessage `json:"structured,omitempty"`
}

// Store is the persistence surface the coordinator depends on. Get
// returns (nil, nil) when no record exists.
type Store interface {
	Get(ctx context.Context, paperPath string, stage evidence.StageName) (*Record, error)
	Put(ctx context.Context, paperPath string, stage evidence.StageName, rec Record) error
	Exists(ctx context.Context, paperPath string, stage evidence.StageName) (bool, error)
	// Delete clears a persisted result; used by user-triggered retry.
	Delete(ctx context.Context, paperPath string, stage evidence.StageName) error
}
