package goSession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/authtest"
	"github.com/MrEthical07/goSession/token"
)

const (
	testUser     = "jdoe"
	testPassword = "secret1"
)

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(_ context.Context, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func (n *recordingNavigator) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.paths) == 0 {
		return ""
	}
	return n.paths[len(n.paths)-1]
}

type testEnv struct {
	srv     *authtest.Server
	user    authapi.User
	client  *Client
	storage *token.MemoryStorage
	nav     *recordingNavigator
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.Inactivity.Enabled = false
	return cfg
}

// newTestEnv builds a client against a fresh fake backend. mutate may adjust
// the builder before Build.
func newTestEnv(t *testing.T, mutate func(*Builder)) *testEnv {
	t.Helper()
	srv := authtest.NewServer(t, authtest.Config{})
	u := srv.MustAddUser(testUser, "jdoe@example.com", testPassword, "John Doe")
	env := &testEnv{
		srv:     srv,
		user:    u,
		storage: token.NewMemoryStorage(),
		nav:     &recordingNavigator{},
	}
	env.client = env.build(t, mutate)
	return env
}

func (e *testEnv) build(t *testing.T, mutate func(*Builder)) *Client {
	t.Helper()
	b := New().
		WithConfig(testConfig(e.srv.URL())).
		WithStorage(e.storage).
		WithNavigator(e.nav)
	if mutate != nil {
		mutate(b)
	}
	c, err := b.Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func (e *testEnv) login(t *testing.T) *TokenResponse {
	t.Helper()
	tok, err := e.client.Login(context.Background(), testUser, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return tok
}

func (e *testEnv) storedRefresh(t *testing.T) string {
	t.Helper()
	v, _, err := e.storage.Get(context.Background(), token.DefaultRefreshKey)
	if err != nil {
		t.Fatalf("storage get: %v", err)
	}
	return v
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
