package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"resume-insights/internal/common"
)

func chatResponse(content string) string {
	body := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(common.LLMConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}, nil)
}

func TestParseResumeValidResponse(t *testing.T) {
	t.Parallel()
	payload := `{"personalInfo":{"name":{"full":"Jane Doe"},"contact":{"email":"jane@example.com"}},"summary":{"text":"Engineer","careerLevel":"Senior"}}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(chatResponse(payload)))
	})

	out, err := c.ParseResume(context.Background(), "Jane Doe, Senior Engineer")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("output not json: %v", err)
	}
	if _, ok := m["personalInfo"]; !ok {
		t.Error("personalInfo missing from output")
	}
}

func TestParseResumeStripsCodeFences(t *testing.T) {
	t.Parallel()
	fenced := "```json\n{\"personalInfo\":{\"name\":{\"full\":\"Jane\"}}}\n```"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse(fenced)))
	})

	out, err := c.ParseResume(context.Background(), "text")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out[0] != '{' {
		t.Errorf("fence not stripped: %s", out)
	}
}

func TestCompleteErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "429 is rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "slow down", http.StatusTooManyRequests)
			},
			want: common.ErrRateLimited,
		},
		{
			name: "schema violation is invalid shape",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatResponse(`{"biasDetected":"not a bool","findings":[]}`)))
			},
			want: common.ErrInvalidResponseShape,
		},
		{
			name: "missing choices is invalid shape",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices":[]}`))
			},
			want: common.ErrInvalidResponseShape,
		},
		{
			name: "non-json body is invalid shape",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>gateway</html>"))
			},
			want: common.ErrInvalidResponseShape,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, tc.handler)
			_, err := c.DetectBias(context.Background(), "resume text")
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCompleteServerErrorIsRetryable(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	_, err := c.EstimateSalary(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if common.Permanent(err) {
		t.Errorf("5xx classified permanent: %v", err)
	}
}

func TestCompleteTimeout(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.SuggestCareerPath(ctx, json.RawMessage(`{}`))
	if !errors.Is(err, common.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestStripCodeFences(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := StripCodeFences(tc.in); got != tc.want {
				t.Errorf("StripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	t.Parallel()
	schema := BuildSalaryJSONSchema()

	valid := []byte(`{"min":90000,"max":120000,"currency":"USD","comments":"mid-level"}`)
	if err := ValidateJSONAgainstSchema(schema, valid); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}

	invalid := []byte(`{"min":"cheap","currency":"USD"}`)
	if err := ValidateJSONAgainstSchema(schema, invalid); err == nil {
		t.Error("invalid payload accepted")
	}
}
