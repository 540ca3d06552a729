package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"resume-insights/internal/common"
)

// Enricher is the model-backed collaborator the pipeline depends on. Every
// method returns schema-validated JSON ready to store as a stage output.
type Enricher interface {
	// ParseResume structures the raw resume text.
	ParseResume(ctx context.Context, rawText string) (json.RawMessage, error)
	// DetectBias screens the raw resume text for potential hiring biases.
	DetectBias(ctx context.Context, rawText string) (json.RawMessage, error)
	// Anonymize redacts PII from the parsed resume.
	Anonymize(ctx context.Context, parsed json.RawMessage) (json.RawMessage, error)
	// EstimateSalary produces a compensation range from the parsed resume.
	EstimateSalary(ctx context.Context, parsed json.RawMessage) (json.RawMessage, error)
	// SuggestCareerPath proposes next roles and skills to acquire.
	SuggestCareerPath(ctx context.Context, parsed json.RawMessage) (json.RawMessage, error)
}

// Client talks to an OpenAI-compatible chat/completions endpoint.
type Client struct {
	cfg  common.LLMConfig
	http *http.Client
	log  *slog.Logger
}

var _ Enricher = (*Client)(nil)

// NewClient builds a Client from config. A zero timeout defaults to 45s.
func NewClient(cfg common.LLMConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}

func (c *Client) ParseResume(ctx context.Context, rawText string) (json.RawMessage, error) {
	system, user := buildParsePrompt(rawText)
	return c.complete(ctx, "parse", system, user, BuildParseJSONSchema())
}

func (c *Client) DetectBias(ctx context.Context, rawText string) (json.RawMessage, error) {
	system, user := buildBiasPrompt(rawText)
	return c.complete(ctx, "bias", system, user, BuildBiasJSONSchema())
}

func (c *Client) Anonymize(ctx context.Context, parsed json.RawMessage) (json.RawMessage, error) {
	system, user := buildAnonymizePrompt(parsed)
	return c.complete(ctx, "anonymize", system, user, BuildParseJSONSchema())
}

func (c *Client) EstimateSalary(ctx context.Context, parsed json.RawMessage) (json.RawMessage, error) {
	system, user := buildSalaryPrompt(parsed)
	return c.complete(ctx, "salary", system, user, BuildSalaryJSONSchema())
}

func (c *Client) SuggestCareerPath(ctx context.Context, parsed json.RawMessage) (json.RawMessage, error) {
	system, user := buildCareerPrompt(parsed)
	return c.complete(ctx, "career", system, user, BuildCareerJSONSchema())
}

// complete sends one chat/completions call constrained by schema and returns
// the validated JSON content of the first choice.
func (c *Client) complete(ctx context.Context, op, system, user string, schema map[string]any) (json.RawMessage, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.request",
		"req_id", rid,
		"job_id", common.JobIDFromContext(ctx),
		"op", op,
		"model", c.cfg.Model,
		"user_len", len(user),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": user + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("llm.http_error",
			"req_id", rid, "op", op, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", common.ErrInvalidResponseShape, err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", common.ErrInvalidResponseShape)
	}

	content := []byte(StripCodeFences(cc.Choices[0].Message.Content))
	if err := ValidateJSONAgainstSchema(schema, content); err != nil {
		c.log.Error("llm.schema_validation_failed",
			"req_id", rid, "op", op, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidResponseShape, err)
	}

	c.log.Info("llm.ok",
		"req_id", rid,
		"op", op,
		"bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("llm.response_body_close_error", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status 429: %s", common.ErrRateLimited, truncate(raw, 256))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("llm status %d: %s", resp.StatusCode, truncate(raw, 256))
	}
	return raw, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", common.ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", common.ErrTimeout, err)
	}
	return fmt.Errorf("llm transport: %w", err)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
