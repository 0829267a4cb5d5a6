package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUserMessageTable(t *testing.T) {
	cases := []struct {
		status int
		server string
		text   string
		want   string
	}{
		{400, "", "Bad Request", "Invalid request. Please check your input."},
		{400, "Email taken", "Bad Request", "Email taken"},
		{401, "", "Unauthorized", "Invalid credentials or session expired."},
		{403, "", "Forbidden", "Access forbidden. Your account may be locked."},
		{403, "Locked", "Forbidden", "Locked"},
		{404, "gone", "Not Found", "The requested resource was not found."},
		{429, "slow down", "Too Many Requests", "Too many requests. Please try again later."},
		{500, "boom", "Internal Server Error", "Server error. Please try again later."},
		{503, "", "Service Unavailable", "Service temporarily unavailable. Please try again later."},
		{418, "", "I'm a teapot", "Error: I'm a teapot"},
		{418, "short and stout", "I'm a teapot", "short and stout"},
	}
	for _, tc := range cases {
		if got := UserMessage(tc.status, tc.server, tc.text); got != tc.want {
			t.Fatalf("UserMessage(%d, %q) = %q, want %q", tc.status, tc.server, got, tc.want)
		}
	}
}

func TestNormalizeBuildsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderRetryAfterSeconds, "45")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"path":"/auth/login","error":"Forbidden","message":"Account locked","status":403,"lockedUntil":"2030-01-02T03:04:05Z"}`)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &NormalizeTransport{}}
	_, err := client.Get(srv.URL + "/auth/login")
	se, ok := AsStatusError(err)
	if !ok {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != 403 || se.StatusText != "Forbidden" || se.Body.Path != "/auth/login" {
		t.Fatalf("unexpected status error: %+v", se)
	}
	if se.UserMessage != "Account locked" {
		t.Fatalf("unexpected message %q", se.UserMessage)
	}
	until, ok := se.LockedUntil()
	if !ok || !until.Equal(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected lockedUntil %v ok=%v", until, ok)
	}
	if d, ok := se.RetryAfter(); !ok || d != 45*time.Second {
		t.Fatalf("unexpected retry after %v ok=%v", d, ok)
	}
}

func TestNormalizePassesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &NormalizeTransport{}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestNormalizeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := &http.Client{Transport: &NormalizeTransport{}}
	_, err := client.Get(url)
	se, ok := AsStatusError(err)
	if !ok || se.Status != 0 {
		t.Fatalf("expected status 0 StatusError, got %v", err)
	}
	if !strings.HasPrefix(se.UserMessage, "Error: ") || se.Unwrap() == nil {
		t.Fatalf("expected wrapped cause, got %+v", se)
	}
}

func TestNormalizeKeepsContextCause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1/", nil)
	_, err := (&NormalizeTransport{}).RoundTrip(req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestRetryAfterFallbacks(t *testing.T) {
	cases := []struct {
		name   string
		header http.Header
		want   time.Duration
		ok     bool
	}{
		{"none", http.Header{}, 0, false},
		{"custom header", http.Header{HeaderRetryAfterSeconds: {"12"}}, 12 * time.Second, true},
		{"standard header", http.Header{"Retry-After": {"30"}}, 30 * time.Second, true},
		{"garbage", http.Header{HeaderRetryAfterSeconds: {"soon"}}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			se := &StatusError{Header: tc.header}
			got, ok := se.RetryAfter()
			if ok != tc.ok || got != tc.want {
				t.Fatalf("RetryAfter = %v,%v want %v,%v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestRetryAfterAtMeasuresHTTPDateFromNow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	se := &StatusError{Header: http.Header{"Retry-After": {now.Add(2 * time.Minute).Format(http.TimeFormat)}}}

	if d, ok := se.RetryAfterAt(now); !ok || d != 2*time.Minute {
		t.Fatalf("RetryAfterAt = %v,%v want 2m,true", d, ok)
	}
	if d, ok := se.RetryAfterAt(now.Add(5 * time.Minute)); !ok || d != 0 {
		t.Fatalf("past date = %v,%v want 0,true", d, ok)
	}
}

func TestNormalizeLetsRedirectsThrough(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "landed")
	})
	mux.HandleFunc("/cached", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := &http.Client{Transport: &NormalizeTransport{}}
	resp, err := client.Get(srv.URL + "/a")
	if err != nil {
		t.Fatalf("redirect not followed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "landed" || resp.Request.URL.Path != "/b" {
		t.Fatalf("unexpected redirect result %d %q %s", resp.StatusCode, body, resp.Request.URL.Path)
	}

	resp, err = client.Get(srv.URL + "/cached")
	if err != nil {
		t.Fatalf("304 became an error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestLockedUntilFormats(t *testing.T) {
	local := &StatusError{Body: ErrorResponse{LockedUntil: "2030-05-06T07:08:09"}}
	got, ok := local.LockedUntil()
	if !ok || !got.Equal(time.Date(2030, 5, 6, 7, 8, 9, 0, time.Local)) {
		t.Fatalf("unexpected local timestamp %v ok=%v", got, ok)
	}
	if _, ok := (&StatusError{Body: ErrorResponse{LockedUntil: "tomorrow"}}).LockedUntil(); ok {
		t.Fatalf("garbage timestamp should not parse")
	}
	if _, ok := (&StatusError{}).LockedUntil(); ok {
		t.Fatalf("missing timestamp should not parse")
	}
}
