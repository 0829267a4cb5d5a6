package authtest

import (
	"net/http/httptest"
	"testing"
)

// Server is a Backend on an httptest listener.
type Server struct {
	*Backend
	HTTP *httptest.Server
}

// URL is the base URL clients should target.
func (s *Server) URL() string {
	return s.HTTP.URL
}

// NewServer starts a Backend and registers cleanup on tb.
func NewServer(tb testing.TB, cfg Config) *Server {
	tb.Helper()
	b, err := New(cfg)
	if err != nil {
		tb.Fatalf("authtest: %v", err)
	}
	srv := httptest.NewServer(b)
	tb.Cleanup(func() {
		srv.Close()
		_ = b.Close()
	})
	return &Server{Backend: b, HTTP: srv}
}
