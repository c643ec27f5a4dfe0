package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/models"
)

func chatServer(t *testing.T, status int, content string, check func(*http.Request, chatRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if check != nil {
			check(r, req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			io.WriteString(w, content)
			return
		}
		resp := map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
			"usage":   map[string]any{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestExtractor_Extract(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"items":[{"title":"Acme Pendant","price":"$49","reviews":12,"error":false}]}`,
		func(r *http.Request, req chatRequest) {
			if got := r.Header.Get("Authorization"); got != "Bearer gsk-test" {
				t.Errorf("Authorization = %q", got)
			}
			if req.Model != "deepseek-r1-distill-llama-70b" {
				t.Errorf("model = %q", req.Model)
			}
			if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
				t.Error("json_object response format not requested")
			}
			if len(req.Messages) != 2 || !strings.Contains(req.Messages[0].Content, `"reviews"`) {
				t.Errorf("system prompt should carry the schema: %+v", req.Messages)
			}
			if !strings.Contains(req.Messages[0].Content, "Extract all objects") {
				t.Error("system prompt should carry the instruction")
			}
			if req.Messages[1].Content != "page content" {
				t.Errorf("user message = %q", req.Messages[1].Content)
			}
		})
	defer srv.Close()

	e := NewExtractor(NewClient(nil), Params{APIKey: "gsk-test", Model: "deepseek-r1-distill-llama-70b", BaseURL: srv.URL + "/"})
	ext, err := e.Extract(context.Background(), "page content", crawl.DefaultSchema(), crawl.DefaultInstruction)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Usage == nil || ext.Usage.TotalTokens != 150 {
		t.Errorf("usage = %+v", ext.Usage)
	}

	records, err := crawl.ParseCandidates(ext.Data)
	if err != nil {
		t.Fatalf("ParseCandidates: %v", err)
	}
	if len(records) != 1 || records[0].Text("title") != "Acme Pendant" {
		t.Errorf("records = %v", records)
	}
}

func TestExtractor_Preconditions(t *testing.T) {
	e := NewExtractor(NewClient(nil), Params{BaseURL: "http://127.0.0.1:0"})
	_, err := e.Extract(context.Background(), "x", crawl.DefaultSchema(), "")
	var ce *models.CrawlError
	if !errors.As(err, &ce) || ce.Code != models.ErrCodeLLMAuthFailure {
		t.Errorf("missing key: err = %v", err)
	}

	e = NewExtractor(NewClient(nil), Params{APIKey: "k", BaseURL: "http://127.0.0.1:0"})
	if _, err := e.Extract(context.Background(), "  \n", crawl.DefaultSchema(), ""); !errors.Is(err, crawl.ErrEmptyExtraction) {
		t.Errorf("blank content: err = %v", err)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Invalid API Key"}}`, models.ErrCodeLLMAuthFailure},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, models.ErrCodeLLMRateLimited},
		{"server error", http.StatusInternalServerError, `oops`, models.ErrCodeLLMFailure},
		{"invalid json content", http.StatusOK, `not json at all`, models.ErrCodeLLMFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.body, nil)
			defer srv.Close()

			_, err := NewClient(nil).Complete(context.Background(), "sys", "user", Params{APIKey: "k", BaseURL: srv.URL})
			var ce *models.CrawlError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want CrawlError", err)
			}
			if ce.Code != tt.code {
				t.Errorf("code = %s, want %s", ce.Code, tt.code)
			}
		})
	}
}

func TestCleanCompletion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"items":[]}`, `{"items":[]}`},
		{"think block", "<think>\nlet me look at the tiles\n</think>\n{\"items\":[]}", `{"items":[]}`},
		{"fenced", "```json\n{\"items\":[]}\n```", `{"items":[]}`},
		{"fenced no lang", "```\n[1]\n```", `[1]`},
		{"whitespace", "  {}  ", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanCompletion(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
