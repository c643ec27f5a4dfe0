package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubEngine struct {
	name   string
	result *FetchResult
	err    error

	mu     sync.Mutex
	calls  int
	closed []string
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Fetch(_ context.Context, req *FetchRequest) (*FetchResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.result != nil {
		r := *s.result
		r.EngineName = s.name
		return &r, s.err
	}
	return nil, s.err
}

func (s *stubEngine) CloseSession(id string) {
	s.mu.Lock()
	s.closed = append(s.closed, id)
	s.mu.Unlock()
}

func TestDispatcher_EscalatesOnFailure(t *testing.T) {
	httpEng := &stubEngine{name: "http", err: errors.New("403")}
	rodEng := &stubEngine{name: "rod", result: &FetchResult{HTML: "<p>ok</p>"}}
	mem := NewDomainMemory(time.Hour, time.Hour)
	defer mem.Stop()

	d := NewDispatcher([]Engine{httpEng, rodEng}, mem)
	res, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://shop.example.com/a"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.EngineName != "rod" {
		t.Errorf("engine = %s, want rod", res.EngineName)
	}
	if got := mem.Get("shop.example.com"); got != "rod" {
		t.Errorf("memory = %q, want rod", got)
	}

	// Second call goes straight to the remembered engine.
	if _, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://shop.example.com/b"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if httpEng.calls != 1 || rodEng.calls != 2 {
		t.Errorf("calls http=%d rod=%d, want 1/2", httpEng.calls, rodEng.calls)
	}
}

func TestDispatcher_ForgetsFailedMemory(t *testing.T) {
	httpEng := &stubEngine{name: "http", result: &FetchResult{HTML: "ok"}}
	rodEng := &stubEngine{name: "rod", err: errors.New("crashed")}
	mem := NewDomainMemory(time.Hour, time.Hour)
	defer mem.Stop()
	mem.Set("shop.example.com", "rod")

	d := NewDispatcher([]Engine{httpEng, rodEng}, mem)
	res, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://shop.example.com/"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.EngineName != "http" {
		t.Errorf("engine = %s, want http", res.EngineName)
	}
	if got := mem.Get("shop.example.com"); got != "http" {
		t.Errorf("memory = %q, want http", got)
	}
}

func TestDispatcher_ShellFallback(t *testing.T) {
	httpEng := &stubEngine{name: "http", result: &FetchResult{HTML: "<div id=root></div>"}, err: ErrNeedsBrowser}
	rodEng := &stubEngine{name: "rod", err: errors.New("no browser")}

	d := NewDispatcher([]Engine{httpEng, rodEng}, nil)
	res, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://shop.example.com/"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.EngineName != "http" {
		t.Errorf("shell result should be used as fallback, got %s", res.EngineName)
	}
}

func TestDispatcher_AllFail(t *testing.T) {
	want := errors.New("last")
	d := NewDispatcher([]Engine{
		&stubEngine{name: "http", err: errors.New("first")},
		&stubEngine{name: "rod", err: want},
	}, nil)

	_, err := d.Dispatch(context.Background(), &FetchRequest{URL: "https://shop.example.com/"})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want last engine error", err)
	}

	empty := NewDispatcher(nil, nil)
	if _, err := empty.Dispatch(context.Background(), &FetchRequest{URL: "https://x"}); err == nil {
		t.Error("dispatcher with no engines should fail")
	}
}

func TestDispatcher_CanceledContext(t *testing.T) {
	eng := &stubEngine{name: "http", result: &FetchResult{}}
	d := NewDispatcher([]Engine{eng}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Dispatch(ctx, &FetchRequest{URL: "https://shop.example.com/"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if eng.calls != 0 {
		t.Error("no engine should run after cancellation")
	}
}

func TestDispatcher_CloseSession(t *testing.T) {
	a := &stubEngine{name: "http"}
	b := &stubEngine{name: "rod"}
	d := NewDispatcher([]Engine{a, b}, nil)
	d.CloseSession("s1")

	if !reflect.DeepEqual(a.closed, []string{"s1"}) || !reflect.DeepEqual(b.closed, []string{"s1"}) {
		t.Errorf("closed = %v / %v", a.closed, b.closed)
	}
	if got := d.Engines(); !reflect.DeepEqual(got, []string{"http", "rod"}) {
		t.Errorf("engines = %v", got)
	}
}

func TestDomainMemory_Expiry(t *testing.T) {
	mem := NewDomainMemory(time.Millisecond, time.Hour)
	defer mem.Stop()
	mem.Set("a.example.com", "rod")
	time.Sleep(5 * time.Millisecond)

	if got := mem.Get("a.example.com"); got != "" {
		t.Errorf("expired entry returned %q", got)
	}

	mem.Set("b.example.com", "http")
	mem.prune(time.Now().Add(time.Hour))
	if _, ok := mem.store.Load("b.example.com"); ok {
		t.Error("prune should drop expired entries")
	}
	mem.Stop()
}

func TestDomainMemory_Nil(t *testing.T) {
	var mem *DomainMemory
	mem.Set("x", "rod")
	mem.Delete("x")
	mem.Stop()
	if mem.Get("x") != "" {
		t.Error("nil memory should remember nothing")
	}
}

func longBody(n int) string {
	return strings.Repeat("Acme Pendant Light $49.00 ", n)
}

func TestHTTPEngine_Fetch(t *testing.T) {
	var (
		mu      sync.Mutex
		headers []http.Header
		cookies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Clone())
		if c, err := r.Cookie("sid"); err == nil {
			cookies = append(cookies, c.Value)
		} else {
			cookies = append(cookies, "")
		}
		mu.Unlock()

		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title> Lights </title></head><body><main>%s</main></body></html>", longBody(20))
	}))
	defer srv.Close()

	e := NewHTTPEngine("")
	req := &FetchRequest{URL: srv.URL + "/search?page=0", SessionID: "s1", NoCache: true}

	res, err := e.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Title != "Lights" || res.StatusCode != 200 || res.EngineName != "http" {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, err := e.Fetch(context.Background(), req); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	// A different session starts with an empty jar.
	other := *req
	other.SessionID = "s2"
	if _, err := e.Fetch(context.Background(), &other); err != nil {
		t.Fatalf("other session Fetch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := headers[0].Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
	if got := headers[0].Get("Pragma"); got != "no-cache" {
		t.Errorf("Pragma = %q, want no-cache", got)
	}
	if want := []string{"", "abc", ""}; !reflect.DeepEqual(cookies, want) {
		t.Errorf("cookies = %v, want %v", cookies, want)
	}

	e.CloseSession("s1")
	if _, ok := e.jars["s1"]; ok {
		t.Error("CloseSession should drop the jar")
	}
}

func TestHTTPEngine_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{}`)
		case "/shell":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><div id="root"></div></body></html>`)
		default:
			http.Error(w, "nope", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	e := NewHTTPEngine("")
	ctx := context.Background()

	if _, err := e.Fetch(ctx, &FetchRequest{URL: srv.URL + "/json"}); err == nil {
		t.Error("non-html response should fail")
	}
	if _, err := e.Fetch(ctx, &FetchRequest{URL: srv.URL + "/blocked"}); err == nil {
		t.Error("403 should fail")
	}

	res, err := e.Fetch(ctx, &FetchRequest{URL: srv.URL + "/shell"})
	if !errors.Is(err, ErrNeedsBrowser) || res == nil {
		t.Errorf("shell page: res=%v err=%v, want result with ErrNeedsBrowser", res, err)
	}

	_, err = e.Fetch(ctx, &FetchRequest{URL: srv.URL, Actions: []Action{{Type: ActionScroll}}})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("actions: err = %v, want ErrUnsupported", err)
	}
}

func TestNeedsBrowser(t *testing.T) {
	rich := "<html><body><main>" + longBody(20) + "</main></body></html>"
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"rendered page", rich, false},
		{"tiny body", "<html><body><p>hi</p></body></html>", true},
		{"empty app root", "<html><body>" + longBody(20) + `<div id="app"></div></body></html>`, true},
		{"noscript warning", "<html><body>" + longBody(20) + "<noscript>Please enable JavaScript to continue</noscript></body></html>", true},
		{"text only in script", "<html><body><script>" + longBody(20) + "</script></body></html>", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsBrowser([]byte(tt.body)); got != tt.want {
				t.Errorf("needsBrowser = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRodEngine(t *testing.T) {
	var closed string
	e := NewRodEngine(func(_ context.Context, req *FetchRequest) (*FetchResult, error) {
		if req.URL == "bad" {
			return nil, errors.New("navigation failed")
		}
		return &FetchResult{HTML: "<p>x</p>"}, nil
	}, func(id string) { closed = id })

	res, err := e.Fetch(context.Background(), &FetchRequest{URL: "https://shop.example.com/"})
	if err != nil || res.EngineName != "rod" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if _, err := e.Fetch(context.Background(), &FetchRequest{URL: "bad"}); err == nil || !strings.HasPrefix(err.Error(), "rod: ") {
		t.Errorf("err = %v, want rod-prefixed error", err)
	}
	e.CloseSession("s9")
	if closed != "s9" {
		t.Errorf("closed = %q", closed)
	}
	if _, err := NewRodEngine(nil, nil).Fetch(context.Background(), &FetchRequest{}); err == nil {
		t.Error("unconfigured engine should fail")
	}
}
