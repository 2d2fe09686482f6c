package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeCreds is an in-memory CredentialStore for dispatcher tests.
type fakeCreds struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func (f *fakeCreds) Access() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access
}

func (f *fakeCreds) RefreshToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

func (f *fakeCreds) SetTokens(access, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if access != "" {
		f.access = access
	}
	if refresh != "" {
		f.refresh = refresh
	}
	return nil
}

func (f *fakeCreds) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = ""
	f.refresh = ""
	return nil
}

func TestIsAuthPath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/auth/login", true},
		{"/auth/register", true},
		{"/auth/refresh", true},
		{"http://127.0.0.1:8000/auth/refresh", true},
		{"/auth/logout", false},
		{"/conversations", false},
		{"/chat", false},
		{"/me", false},
	}
	for _, tc := range cases {
		if got := isAuthPath(tc.path); got != tc.want {
			t.Errorf("isAuthPath(%q): got %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestAuthPathNeverGetsBearerOrReplay(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("auth path received Authorization header %q", got)
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := &fakeCreds{access: "acc", refresh: "ref"}
	c := NewClient(srv.URL, creds)

	_, err := c.Login(context.Background(), "alice", "pw")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", apiErr.Status)
	}
	// A 401 on an auth path must not trigger refresh or a replay.
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("requests: got %d, want 1", n)
	}
}

func TestBearerInjectedForNonAuthPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer acc" {
			t.Errorf("Authorization: got %q, want %q", got, "Bearer acc")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeCreds{access: "acc"})
	if _, err := c.Conversations(context.Background()); err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
}

func TestCallerSuppliedAuthorizationPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer custom" {
			t.Errorf("Authorization: got %q, want %q", got, "Bearer custom")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeCreds{access: "acc"})
	header := http.Header{}
	header.Set("Authorization", "Bearer custom")
	if _, err := c.do(context.Background(), http.MethodGet, "/conversations", header, nil); err != nil {
		t.Fatalf("do failed: %v", err)
	}
}

func TestRefreshAndReplayOn401(t *testing.T) {
	var convoHits, refreshHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshHits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh"}`))
	})
	mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&convoHits, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"c1","title":"hello"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	creds := &fakeCreds{access: "stale", refresh: "ref"}
	c := NewClient(srv.URL, creds)

	convos, err := c.Conversations(context.Background())
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(convos) != 1 || convos[0].ID != "c1" {
		t.Errorf("unexpected conversations: %+v", convos)
	}
	if n := atomic.LoadInt32(&convoHits); n != 2 {
		t.Errorf("conversation requests: got %d, want 2 (original + one replay)", n)
	}
	if n := atomic.LoadInt32(&refreshHits); n != 1 {
		t.Errorf("refresh requests: got %d, want 1", n)
	}
	if creds.Access() != "fresh" {
		t.Errorf("access token: got %q, want %q", creds.Access(), "fresh")
	}
	// Refresh must not rotate the refresh token.
	if creds.RefreshToken() != "ref" {
		t.Errorf("refresh token: got %q, want %q", creds.RefreshToken(), "ref")
	}
}

func TestRejectedRefreshSurfacesOriginal401(t *testing.T) {
	var convoHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&convoHits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, &fakeCreds{access: "stale", refresh: "ref"})

	_, err := c.Conversations(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", apiErr.Status)
	}
	if n := atomic.LoadInt32(&convoHits); n != 1 {
		t.Errorf("conversation requests: got %d, want 1 (no replay)", n)
	}
}

func TestMissingRefreshTokenSkipsRefreshCall(t *testing.T) {
	var refreshHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshHits, 1)
	})
	mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, &fakeCreds{access: "stale"})

	_, err := c.Conversations(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 *APIError, got %v", err)
	}
	if n := atomic.LoadInt32(&refreshHits); n != 0 {
		t.Errorf("refresh requests without a refresh token: got %d, want 0", n)
	}
}

func TestConcurrentRefreshShareOneFlight(t *testing.T) {
	var refreshHits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshHits, 1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &fakeCreds{refresh: "ref"})

	const callers = 8
	results := make(chan bool, callers)
	var started sync.WaitGroup
	started.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			started.Done()
			results <- c.RefreshAccess(context.Background())
		}()
	}
	started.Wait()
	// Give every goroutine a chance to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		if ok := <-results; !ok {
			t.Errorf("RefreshAccess returned false")
		}
	}
	if n := atomic.LoadInt32(&refreshHits); n != 1 {
		t.Errorf("refresh requests: got %d, want 1 shared flight", n)
	}
}

func TestTimeoutSurfacesAsTransportFailure(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-blocked:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(blocked)

	c := NewClient(srv.URL, &fakeCreds{})
	c.Timeout = 50 * time.Millisecond

	_, err := c.Conversations(context.Background())
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("timeout should be a transport failure, got protocol failure %v", apiErr)
	}
}

func TestResponsePayloadParsing(t *testing.T) {
	jsonHeader := http.Header{}
	jsonHeader.Set("Content-Type", "application/json; charset=utf-8")
	textHeader := http.Header{}
	textHeader.Set("Content-Type", "text/plain")

	cases := []struct {
		name string
		resp Response
		want any
	}{
		{"json object", Response{Header: jsonHeader, Body: []byte(`{"detail":"no"}`)}, map[string]any{"detail": "no"}},
		{"plain text", Response{Header: textHeader, Body: []byte("boom")}, "boom"},
		{"empty body", Response{Header: jsonHeader, Body: nil}, nil},
		{"malformed json", Response{Header: jsonHeader, Body: []byte(`{oops`)}, nil},
	}
	for _, tc := range cases {
		got := tc.resp.Payload()
		switch want := tc.want.(type) {
		case map[string]any:
			gotMap, ok := got.(map[string]any)
			if !ok || gotMap["detail"] != want["detail"] {
				t.Errorf("%s: got %v, want %v", tc.name, got, want)
			}
		default:
			if got != tc.want {
				t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
			}
		}
	}
}

func TestAPIErrorMessage(t *testing.T) {
	e := &APIError{Status: 422, Payload: map[string]any{"detail": "question required"}}
	if got := e.Error(); got != "HTTP 422: question required" {
		t.Errorf("Error: got %q", got)
	}

	e = &APIError{Status: 500, Payload: nil}
	if got := e.Error(); got != "HTTP 500" {
		t.Errorf("Error: got %q", got)
	}
}
