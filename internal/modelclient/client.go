// Package modelclient wraps the remote text-generation API: one call in,
// normalized plain text out. Retry policy belongs to the caller.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint        = "https://api.openai.com/v1/responses"
	DefaultModel           = "gpt-5"
	DefaultReasoningEffort = "medium"
	DefaultTimeout         = 600 * time.Second
	DefaultMaxOutputTokens = 8192
)

// TruncationNotice is appended when the API reports an incomplete response
// that still carried partial text.
const TruncationNotice = "\n\n[Note: response was truncated before completion]"

type Config struct {
	APIKey          string
	Endpoint        string
	Model           string
	ReasoningEffort string
	Timeout         time.Duration
	HTTPClient      *http.Client
}

type Client struct {
	apiKey          string
	endpoint        string
	model           string
	reasoningEffort string
	timeout         time.Duration
	http            *http.Client
}

// New builds a client. A missing API key is a hard configuration error,
// surfaced before any network call is made.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &Error{Kind: KindConfig, Message: "model API key not configured"}
	}
	c := &Client{
		apiKey:          cfg.APIKey,
		endpoint:        cfg.Endpoint,
		model:           cfg.Model,
		reasoningEffort: cfg.ReasoningEffort,
		timeout:         cfg.Timeout,
		http:            cfg.HTTPClient,
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.reasoningEffort == "" {
		c.reasoningEffort = DefaultReasoningEffort
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.http == nil {
		// Per-call deadlines come from the request context.
		c.http = &http.Client{}
	}
	return c, nil
}

func (c *Client) ModelName() string { return c.model }

type Request struct {
	Prompt          string
	MaxOutputTokens int
	WebSearch       bool
	Timeout         time.Duration
}

type apiRequest struct {
	Model           string       `json:"model"`
	Reasoning       apiReasoning `json:"reasoning"`
	Input           string       `json:"input"`
	MaxOutputTokens int          `json:"max_output_tokens"`
	Tools           []apiTool    `json:"tools,omitempty"`
}

type apiReasoning struct {
	Effort string `json:"effort"`
}

type apiTool struct {
	Type string `json:"type"`
}

type apiContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiOutputItem struct {
	Type    string           `json:"type"`
	Content []apiContentItem `json:"content"`
}

// apiResponse covers both observed response shapes: a flat output_text
// field, or a nested output array of message items.
type apiResponse struct {
	Status            string `json:"status"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	OutputText string          `json:"output_text"`
	Output     []apiOutputItem `json:"output"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate issues one model call and returns trimmed non-empty text.
// An incomplete response with partial text succeeds with a visible
// truncation notice appended; an incomplete response with no text fails
// with KindTruncated.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := apiRequest{
		Model:           c.model,
		Reasoning:       apiReasoning{Effort: c.reasoningEffort},
		Input:           req.Prompt,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if body.MaxOutputTokens <= 0 {
		body.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if req.WebSearch {
		body.Tools = []apiTool{{Type: "web_search"}}
	}
	blob, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Kind: KindConfig, Message: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(blob))
	if err != nil {
		return "", &Error{Kind: KindConfig, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return "", &Error{Kind: KindTimeout, Message: fmt.Sprintf("model call timed out after %s", timeout)}
		}
		return "", &Error{Kind: KindUpstream, Message: "model call failed", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindUpstream, Message: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Kind: KindUpstream, Message: upstreamMessage(resp.StatusCode, payload)}
	}

	var parsed apiResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", &Error{Kind: KindUpstream, Message: "decode response", Err: err}
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", &Error{Kind: KindUpstream, Message: parsed.Error.Message}
	}

	text := strings.TrimSpace(extractText(parsed))
	if parsed.Status == "incomplete" {
		if text != "" {
			return text + TruncationNotice, nil
		}
		return "", &Error{Kind: KindTruncated, Message: incompleteMessage(parsed)}
	}
	if text == "" {
		return "", &Error{Kind: KindEmptyResponse, Message: "model returned no usable text"}
	}
	return text, nil
}

// extractText prefers the flat output_text field, falling back to
// concatenating the text fragments inside nested message items.
func extractText(resp apiResponse) string {
	if resp.OutputText != "" {
		return resp.OutputText
	}
	var sb strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" && item.Type != "" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" || c.Type == "text" {
				sb.WriteString(c.Text)
			}
		}
	}
	return sb.String()
}

func incompleteMessage(resp apiResponse) string {
	if resp.IncompleteDetails != nil && resp.IncompleteDetails.Reason == "max_output_tokens" {
		return "response truncated: hit token limit before producing text"
	}
	return "response truncated: model ended early without producing text"
}

func upstreamMessage(status int, payload []byte) string {
	var envelope struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return fmt.Sprintf("model API error (HTTP %d): %s", status, envelope.Error.Message)
	}
	return fmt.Sprintf("model API error (HTTP %d)", status)
}
