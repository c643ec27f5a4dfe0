package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// maxListedRecords caps how many records a tool result prints.
const maxListedRecords = 50

// crawlResponse mirrors the listcrawl API job creation response.
type crawlResponse struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	Error  *apiError `json:"error"`
}

// crawlStatusResponse mirrors the listcrawl API job status response.
type crawlStatusResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	BaseURL    string `json:"base_url"`
	Pages      int    `json:"pages"`
	Records    int    `json:"records"`
	StopReason string `json:"stop_reason"`
	Failures   int    `json:"failures"`
	Incomplete int    `json:"incomplete"`
	Duplicates int    `json:"duplicates"`
	Usage      struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Results []json.RawMessage `json:"results"`
	Error   *apiError         `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func main() {
	apiURL := os.Getenv("LISTCRAWL_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("LISTCRAWL_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "LISTCRAWL_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"listcrawl",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	c := &apiClient{baseURL: strings.TrimRight(apiURL, "/"), apiKey: apiKey, http: &http.Client{Timeout: 60 * time.Second}}

	crawlTool := mcp.NewTool("crawl_listings",
		mcp.WithDescription("Crawl a paginated product listing page by page, extract structured records with an LLM, drop incomplete and duplicate records, and return them. Blocks until the crawl finishes."),
		mcp.WithString("base_url",
			mcp.Description("Listing URL; the page number is added as a query parameter. Defaults to the server's configured target."),
		),
		mcp.WithString("css_selector",
			mcp.Description("CSS selector (comma groups allowed) for the regions holding record data"),
		),
		mcp.WithArray("required_keys",
			mcp.Description("Fields every record must carry (default: title, price, reviews)"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum number of pages to request (1 to 500)"),
		),
		mcp.WithNumber("max_empty_pages",
			mcp.Description("Stop after this many pages in a row yield no records (at least 1)"),
		),
		mcp.WithString("no_results_marker",
			mcp.Description("Text that marks the end of the listing (default: 'No Results Found')"),
		),
	)
	s.AddTool(crawlTool, handleCrawlListings(c))

	statusTool := mcp.NewTool("crawl_status",
		mcp.WithDescription("Report the progress of a crawl job started through the listcrawl API."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Crawl job id"),
		),
	)
	s.AddTool(statusTool, handleCrawlStatus(c))

	exportTool := mcp.NewTool("export_csv",
		mcp.WithDescription("Return a finished crawl job's records as CSV with a leading brand column."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Crawl job id"),
		),
	)
	s.AddTool(exportTool, handleExportCSV(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiClient talks to a listcrawl server.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func (c *apiClient) status(ctx context.Context, id string, withResults bool) (*crawlStatusResponse, error) {
	path := "/api/v1/crawl/" + id
	if withResults {
		path += "?results=true"
	}
	code, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var st crawlStatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("parse status (HTTP %d): %w", code, err)
	}
	if code != http.StatusOK {
		return nil, apiFailure(code, st.Error)
	}
	return &st, nil
}

// waitForJob polls until the job leaves the queued and processing states
// or ctx ends.
func (c *apiClient) waitForJob(ctx context.Context, id string) (*crawlStatusResponse, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			st, err := c.status(ctx, id, true)
			if err != nil {
				return nil, err
			}
			if st.Status != "queued" && st.Status != "processing" {
				return st, nil
			}
		}
	}
}

func apiFailure(code int, e *apiError) error {
	if e == nil {
		return fmt.Errorf("API returned HTTP %d", code)
	}
	return fmt.Errorf("[%s] %s", e.Code, e.Message)
}

func handleCrawlListings(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := map[string]any{}
		for _, key := range []string{"base_url", "css_selector", "no_results_marker"} {
			if v := request.GetString(key, ""); v != "" {
				payload[key] = v
			}
		}
		if keys := request.GetStringSlice("required_keys", nil); len(keys) > 0 {
			payload["required_keys"] = keys
		}
		args := request.GetArguments()
		for _, key := range []string{"max_pages", "max_empty_pages"} {
			if v, ok := args[key]; ok {
				payload[key] = v
			}
		}

		code, body, err := c.do(ctx, http.MethodPost, "/api/v1/crawl", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("crawl request failed: %v", err)), nil
		}
		var created crawlResponse
		if err := json.Unmarshal(body, &created); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse crawl response: %v", err)), nil
		}
		if created.ID == "" {
			return mcp.NewToolResultError(fmt.Sprintf("crawl job creation failed: %v", apiFailure(code, created.Error))), nil
		}

		st, err := c.waitForJob(ctx, created.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling crawl job %s failed: %v", created.ID, err)), nil
		}
		return mcp.NewToolResultText(formatStatus(st)), nil
	}
}

func handleCrawlStatus(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		st, err := c.status(ctx, id, false)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatStatus(st)), nil
	}
}

func handleExportCSV(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		code, body, err := c.do(ctx, http.MethodGet, "/api/v1/crawl/"+id+"/export?format=csv", nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if code != http.StatusOK {
			var e struct {
				Error *apiError `json:"error"`
			}
			_ = json.Unmarshal(body, &e)
			return mcp.NewToolResultError(apiFailure(code, e.Error).Error()), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// formatStatus renders a job summary followed by up to maxListedRecords
// records, one JSON object per line.
func formatStatus(st *crawlStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Crawl %s: %s\n", st.ID, st.Status)
	fmt.Fprintf(&sb, "Listing: %s\n", st.BaseURL)
	fmt.Fprintf(&sb, "Pages: %d, records: %d, stop reason: %s\n", st.Pages, st.Records, st.StopReason)
	fmt.Fprintf(&sb, "Skipped: %d incomplete, %d duplicate; failed pages: %d; tokens: %d\n",
		st.Incomplete, st.Duplicates, st.Failures, st.Usage.TotalTokens)
	if st.Error != nil {
		fmt.Fprintf(&sb, "Error: [%s] %s\n", st.Error.Code, st.Error.Message)
	}

	if len(st.Results) > 0 {
		sb.WriteString("\n")
		for i, r := range st.Results {
			if i == maxListedRecords {
				fmt.Fprintf(&sb, "... %d more (use export_csv for the full set)\n", len(st.Results)-i)
				break
			}
			sb.Write(r)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
