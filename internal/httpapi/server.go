// Package httpapi exposes the pipeline over HTTP: one POST endpoint per
// stage, paper activation, retry, and a rendered evidence report.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evidentia-hq/evidentia/internal/evidence"
	"github.com/evidentia-hq/evidentia/internal/modelclient"
	"github.com/evidentia-hq/evidentia/internal/pipeline"
)

// Pipeline is the coordinator surface the server needs. Satisfied by
// *pipeline.Coordinator and by test fakes.
type Pipeline interface {
	Trigger(ctx context.Context, paperID string, name evidence.StageName, input pipeline.TriggerInput) (*pipeline.StageResult, error)
	Retry(ctx context.Context, paperID string, name evidence.StageName, input pipeline.TriggerInput) (*pipeline.StageResult, error)
	ActivatePaper(ctx context.Context, paperID string, input pipeline.TriggerInput) map[evidence.StageName]pipeline.Status
	Snapshot(paperID string) map[evidence.StageName]pipeline.StageResult
}

type Server struct {
	pipe     Pipeline
	logger   *zap.Logger
	validate *validator.Validate
}

func NewServer(pipe Pipeline, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipe:     pipe,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	mux := http.NewServeMux()
	for _, name := range evidence.AllStages {
		name := name
		mux.HandleFunc("/v1/stages/"+string(name), s.handleStage(name, false))
		mux.HandleFunc("/v1/stages/"+string(name)+"/retry", s.handleStage(name, true))
	}
	mux.HandleFunc("/v1/papers/activate", s.handleActivate)
	mux.HandleFunc("/v1/papers/results", s.handleResults)
	mux.HandleFunc("/v1/papers/report", s.handleReport)
	mux.HandleFunc("/v1/health", s.handleHealth)
	return s.withRecovery(mux)
}

// withRecovery tags every request with an id and converts panics into 500s.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler_panic",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"ok": false,
					"error": map[string]any{
						"code":    "internal",
						"message": "internal server error",
					},
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeStageError maps the error taxonomy onto HTTP statuses: caller-input
// problems are 400, configuration 500, everything that went wrong against
// the model API 502. Timeouts and truncation share the 502 status and are
// told apart by the error code.
func writeStageError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	code := "upstream"
	switch {
	case pipeline.IsValidation(err):
		status, code = http.StatusBadRequest, "validation"
	case modelclient.KindOf(err) == modelclient.KindConfig:
		status, code = http.StatusInternalServerError, "configuration"
	case modelclient.IsTimeout(err):
		code = "timeout"
	case modelclient.KindOf(err) == modelclient.KindTruncated:
		code = "truncated"
	}
	writeJSON(w, status, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":    code,
			"message": err.Error(),
		},
	})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// stageRequest is the body every stage trigger accepts. Metadata and
// extracted text are attached to the paper on first sight; later triggers
// may send just the paper id.
type stageRequest struct {
	PaperID       string `json:"paper_id" validate:"required"`
	Title         string `json:"title"`
	DOI           string `json:"doi"`
	AuthorsRaw    string `json:"authors"`
	Abstract      string `json:"abstract"`
	ExtractedText string `json:"extracted_text"`
}

func (s *Server) decodeStageRequest(r *http.Request) (*stageRequest, error) {
	if r.Body == nil {
		return nil, errors.New("request body required")
	}
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	var req stageRequest
	if err := json.Unmarshal(blob, &req); err != nil {
		return nil, err
	}
	req.PaperID = strings.TrimSpace(req.PaperID)
	if err := s.validate.Struct(&req); err != nil {
		return nil, errors.New("paper_id is required")
	}
	return &req, nil
}

func (req *stageRequest) triggerInput() pipeline.TriggerInput {
	in := pipeline.TriggerInput{ExtractedText: req.ExtractedText}
	if req.Title != "" || req.DOI != "" || req.AuthorsRaw != "" || req.Abstract != "" {
		in.Paper = &evidence.PaperMetadata{
			Title:      req.Title,
			DOI:        req.DOI,
			AuthorsRaw: req.AuthorsRaw,
			Abstract:   req.Abstract,
		}
	}
	return in
}

func (s *Server) handleStage(name evidence.StageName, retry bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !methodOnly(w, r, http.MethodPost) {
			return
		}
		req, err := s.decodeStageRequest(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"ok": false,
				"error": map[string]any{
					"code":    "validation",
					"message": err.Error(),
				},
			})
			return
		}

		run := s.pipe.Trigger
		if retry {
			run = s.pipe.Retry
		}
		res, err := run(r.Context(), req.PaperID, name, req.triggerInput())
		if err != nil {
			writeStageError(w, err)
			return
		}
		if res == nil {
			// Already in flight: acknowledged, no second computation.
			writeJSON(w, http.StatusAccepted, map[string]any{
				"ok":       true,
				"paper_id": req.PaperID,
				"stage":    string(name),
				"status":   string(pipeline.StatusLoading),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       true,
			"paper_id": req.PaperID,
			"stage":    string(name),
			"result":   res,
		})
	}
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	req, err := s.decodeStageRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false,
			"error": map[string]any{
				"code":    "validation",
				"message": err.Error(),
			},
		})
		return
	}
	statuses := s.pipe.ActivatePaper(r.Context(), req.PaperID, req.triggerInput())
	out := map[string]string{}
	for name, status := range statuses {
		out[string(name)] = string(status)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"paper_id": req.PaperID,
		"stages":   out,
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	paperID := strings.TrimSpace(r.URL.Query().Get("paper_id"))
	if paperID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"ok": false,
			"error": map[string]any{
				"code":    "validation",
				"message": "paper_id is required",
			},
		})
		return
	}
	snapshot := s.pipe.Snapshot(paperID)
	out := map[string]pipeline.StageResult{}
	for name, res := range snapshot {
		out[string(name)] = res
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"paper_id": paperID,
		"stages":   out,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "healthy"})
}
