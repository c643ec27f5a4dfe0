package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
)

// fakePage scripts one page's behaviour for fakeFetcher.
type fakePage struct {
	empty   bool
	err     error
	payload string
}

// fakeFetcher serves scripted pages keyed by page number. Pages not in
// the script return an extraction error.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[int]fakePage
	calls    []string // "empty:N" / "extract:N"
	sessions map[string]struct{}
	onEmpty  func(page int)
}

func newFakeFetcher(pages map[int]fakePage) *fakeFetcher {
	return &fakeFetcher{pages: pages, sessions: make(map[string]struct{})}
}

func pageOf(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return -1
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil {
		return -1
	}
	return n
}

func (f *fakeFetcher) FetchRaw(_ context.Context, pageURL, sessionID string) (*RawPage, error) {
	return &RawPage{URL: pageURL, HTML: "<html></html>"}, nil
}

func (f *fakeFetcher) LooksEmpty(_ context.Context, pageURL, sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := pageOf(pageURL)
	f.calls = append(f.calls, fmt.Sprintf("empty:%d", n))
	f.sessions[sessionID] = struct{}{}
	if f.onEmpty != nil {
		f.onEmpty(n)
	}
	return f.pages[n].empty
}

func (f *fakeFetcher) FetchAndExtract(_ context.Context, req ExtractRequest) (*Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := pageOf(req.URL)
	f.calls = append(f.calls, fmt.Sprintf("extract:%d", n))
	f.sessions[req.SessionID] = struct{}{}
	p, ok := f.pages[n]
	if !ok {
		return nil, errors.New("page not scripted")
	}
	if p.err != nil {
		return nil, p.err
	}
	return &Extraction{
		Data:  json.RawMessage(p.payload),
		Usage: &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (f *fakeFetcher) extractCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) > 8 && c[:8] == "extract:" {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTarget() Target {
	return Target{
		BaseURL:      "https://shop.example.com/search/products?q=ceiling+lights",
		Selector:     ".tile",
		RequiredKeys: []string{"title", "price", "reviews"},
	}
}

func titles(records []*Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Text("title")
	}
	return out
}
