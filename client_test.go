package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/authtest"
	"github.com/MrEthical07/goSession/token"
)

func getJSON(t *testing.T, c *Client, url string, out any) error {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := c.HTTPClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func TestLoginStoresRefreshTokenOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.login(t)

	if !env.client.IsAuth() {
		t.Fatalf("expected authenticated after login")
	}
	snap := env.storage.Snapshot()
	if len(snap) != 1 || snap[token.DefaultRefreshKey] != tok.RefreshToken {
		t.Fatalf("expected only the refresh token under its key, got %v", snap)
	}
	for k, v := range snap {
		if v == tok.AccessToken {
			t.Fatalf("access token persisted under %q", k)
		}
	}
	if exp, ok := env.client.AccessTokenExpiry(); !ok || exp.IsZero() {
		t.Fatalf("expected access token expiry to be readable")
	}
	if got := env.client.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected one login success, got %d", got)
	}
}

func TestLoginFailureKeepsStoredTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	_ = env.storage.Set(ctx, token.DefaultRefreshKey, "previous")

	tests := []struct {
		name    string
		failure *authtest.Failure
		check   func(error) bool
		metric  MetricID
	}{
		{name: "bad password", check: IsCredentialRejected, metric: MetricLoginFailure},
		{name: "rate limited", failure: &authtest.Failure{Status: http.StatusTooManyRequests}, check: IsRateLimited, metric: MetricLoginRateLimited},
		{name: "locked", failure: &authtest.Failure{Status: http.StatusForbidden}, check: IsAccountLocked, metric: MetricLoginLocked},
		{name: "server error", failure: &authtest.Failure{Status: http.StatusInternalServerError}, check: IsTransient, metric: MetricLoginFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := env.client.Metrics().Value(tc.metric)
			if tc.failure != nil {
				env.srv.FailNext(authapi.PathLogin, *tc.failure)
			}
			_, err := env.client.Login(ctx, testUser, "wrong-pass")
			if err == nil || !tc.check(err) {
				t.Fatalf("unexpected error classification: %v", err)
			}
			var he *HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("expected *HTTPError, got %T", err)
			}
			if env.client.IsAuth() {
				t.Fatalf("expected unauthenticated after failed login")
			}
			if got := env.storedRefresh(t); got != "previous" {
				t.Fatalf("stored refresh token changed to %q", got)
			}
			if got := env.client.Metrics().Value(tc.metric); got != before+1 {
				t.Fatalf("expected metric %d to increment", tc.metric)
			}
		})
	}
}

func TestCheckInitialAuthenticationRecoversFromRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.login(t)

	// A new process: refresh token in storage, no access token in memory.
	restarted := env.build(t, nil)
	if restarted.IsAuth() {
		t.Fatalf("new client must start unauthenticated")
	}
	if err := restarted.CheckInitialAuthentication(context.Background()); err != nil {
		t.Fatalf("check initial authentication: %v", err)
	}
	if !restarted.IsAuth() {
		t.Fatalf("expected recovered session")
	}
	u := restarted.CurrentUser()
	if u == nil || u.ID != env.user.ID {
		t.Fatalf("expected profile loaded, got %+v", u)
	}
	if got := env.storedRefresh(t); got == "" || got == tok.RefreshToken {
		t.Fatalf("expected rotated refresh token to be stored, got %q", got)
	}
	if got := restarted.MetricsSnapshot().Counters[MetricSessionRecovered]; got != 1 {
		t.Fatalf("expected session recovered metric, got %d", got)
	}
}

func TestCheckInitialAuthenticationFailedRefreshClearsState(t *testing.T) {
	env := newTestEnv(t, nil)
	_ = env.storage.Set(context.Background(), token.DefaultRefreshKey, "not-a-valid-token")

	err := env.client.CheckInitialAuthentication(context.Background())
	if !IsCredentialRejected(err) {
		t.Fatalf("expected rejected refresh, got %v", err)
	}
	if env.client.IsAuth() || env.client.CurrentUser() != nil {
		t.Fatalf("expected unauthenticated without profile")
	}
	if len(env.storage.Snapshot()) != 0 {
		t.Fatalf("expected no stored tokens, got %v", env.storage.Snapshot())
	}
}

func TestCheckInitialAuthenticationCancelledKeepsStoredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)
	restarted := env.build(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := restarted.CheckInitialAuthentication(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled or recovery, got %v", err)
	}
	if env.storedRefresh(t) == "" {
		t.Fatal("a cancelled start must not wipe the stored refresh token")
	}
	if env.nav.Last() == DefaultLoginPath {
		t.Fatal("a cancelled start must not navigate to login")
	}
}

func TestCheckInitialAuthenticationWithBothTokensLoadsProfileInBackground(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)
	if env.client.CurrentUser() != nil {
		t.Fatalf("login must not load the profile")
	}

	if err := env.client.CheckInitialAuthentication(context.Background()); err != nil {
		t.Fatalf("check initial authentication: %v", err)
	}
	if !env.client.IsAuth() {
		t.Fatalf("expected authenticated immediately")
	}
	eventually(t, "background profile load", func() bool { return env.client.CurrentUser() != nil })
	if env.srv.Calls(authapi.PathRefresh) != 0 {
		t.Fatalf("expected no refresh when both tokens are present")
	}
}

func TestCheckInitialAuthenticationWithoutTokensStaysLoggedOut(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.client.CheckInitialAuthentication(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.client.IsAuth() {
		t.Fatalf("expected unauthenticated")
	}
	if env.srv.Calls(authapi.PathRefresh)+env.srv.Calls(authapi.PathMe) != 0 {
		t.Fatalf("expected no backend calls")
	}
}

func TestExpiredAccessTokenRefreshesOnceAndRetries(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)
	env.srv.ExpireAccessTokens()

	var echo authtest.EchoResponse
	if err := getJSON(t, env.client, env.srv.URL()+"/api/items", &echo); err != nil {
		t.Fatalf("request after expiry: %v", err)
	}
	if echo.UserID != env.user.ID {
		t.Fatalf("unexpected echo %+v", echo)
	}
	if got := env.srv.Calls(authapi.PathRefresh); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	if got := env.srv.Calls("/api/items"); got != 2 {
		t.Fatalf("expected original request plus one retry, got %d", got)
	}
}

func TestSecondUnauthorizedIsPropagated(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)
	env.srv.FailNext("/api/items", authtest.Failure{Status: http.StatusUnauthorized})
	env.srv.FailNext("/api/items", authtest.Failure{Status: http.StatusUnauthorized})

	err := getJSON(t, env.client, env.srv.URL()+"/api/items", nil)
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusUnauthorized {
		t.Fatalf("expected propagated 401, got %v", err)
	}
	if got := env.srv.Calls(authapi.PathRefresh); got != 1 {
		t.Fatalf("expected a single refresh attempt, got %d", got)
	}
	if got := env.srv.Calls("/api/items"); got != 2 {
		t.Fatalf("expected no further retry, got %d calls", got)
	}
}

func TestRetryReplaysRequestBody(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)
	env.srv.ExpireAccessTokens()

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL()+"/api/items", bytes.NewReader([]byte(`{"name":"widget"}`)))
	resp, err := env.client.HTTPClient().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var echo authtest.EchoResponse
	if err := json.NewDecoder(resp.Body).Decode(&echo); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(echo.Body) != `{"name":"widget"}` {
		t.Fatalf("expected replayed body, got %s", echo.Body)
	}
}

func TestFailedSilentRefreshForcesLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)
	env.srv.ExpireAccessTokens()
	if err := env.srv.RevokeSessions(context.Background(), env.user.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	err := getJSON(t, env.client, env.srv.URL()+"/api/items", nil)
	if !IsCredentialRejected(err) {
		t.Fatalf("expected refresh rejection to surface, got %v", err)
	}
	if env.client.IsAuth() || len(env.storage.Snapshot()) != 0 {
		t.Fatalf("expected local session cleared")
	}
	if env.nav.Last() != DefaultLoginPath {
		t.Fatalf("expected navigation to login, got %v", env.nav.Paths())
	}
	if got := env.client.MetricsSnapshot().Counters[MetricRefreshFailure]; got != 1 {
		t.Fatalf("expected one refresh failure, got %d", got)
	}
}

func TestProactiveRefreshBeforeExpiry(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) {
		cfg := testConfig(b.config.API.BaseURL)
		// Longer than the backend's 15m access TTL, so every token is "near expiry".
		cfg.Token.ExpirationBuffer = 20 * time.Minute
		b.WithConfig(cfg)
	})
	env.login(t)

	if err := getJSON(t, env.client, env.srv.URL()+"/api/items", nil); err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := env.srv.Calls(authapi.PathRefresh); got != 1 {
		t.Fatalf("expected refresh before send, got %d", got)
	}
	if got := env.srv.Calls("/api/items"); got != 1 {
		t.Fatalf("expected no 401 round trip, got %d calls", got)
	}
}

func TestRefreshTokenWithoutStoredTokenLogsOut(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.client.RefreshToken(context.Background())
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if env.nav.Last() != DefaultLoginPath {
		t.Fatalf("expected navigation to login")
	}
	if env.srv.Calls(authapi.PathRefresh) != 0 {
		t.Fatalf("expected no refresh request")
	}
}

func TestRefreshTokenRotatesPair(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.login(t)

	next, err := env.client.RefreshToken(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == first.RefreshToken || env.storedRefresh(t) != next.RefreshToken {
		t.Fatalf("expected stored refresh token to rotate")
	}
	if snap := env.client.MetricsSnapshot(); snap.Counters[MetricRefreshSuccess] != 1 || snap.Histograms[MetricRefreshLatency] == nil {
		t.Fatalf("expected refresh success and latency, got %+v", snap)
	}
}

func TestLogoutClearsStateRegardlessOfServer(t *testing.T) {
	tests := []struct {
		name     string
		all      bool
		fail     bool
		sentinel error
	}{
		{name: "logout ok", all: false},
		{name: "logout server error", all: false, fail: true, sentinel: ErrLogoutFailed},
		{name: "logout-all ok", all: true},
		{name: "logout-all server error", all: true, fail: true, sentinel: ErrLogoutAllFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.login(t)
			if _, err := env.client.LoadCurrentUser(context.Background()); err != nil {
				t.Fatalf("load user: %v", err)
			}

			path := authapi.PathLogout
			if tc.all {
				path = authapi.PathLogoutAll
			}
			if tc.fail {
				env.srv.FailNext(path, authtest.Failure{Status: http.StatusInternalServerError})
			}

			var err error
			if tc.all {
				err = env.client.LogoutAll(context.Background())
			} else {
				err = env.client.Logout(context.Background())
			}
			if tc.fail {
				if !errors.Is(err, tc.sentinel) || StatusOf(err) != http.StatusInternalServerError {
					t.Fatalf("expected wrapped server failure, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected logout error: %v", err)
			}

			if env.client.IsAuth() || env.client.CurrentUser() != nil {
				t.Fatalf("expected session state cleared")
			}
			if len(env.storage.Snapshot()) != 0 {
				t.Fatalf("expected storage cleared, got %v", env.storage.Snapshot())
			}
			if env.nav.Last() != DefaultLoginPath {
				t.Fatalf("expected navigation to login, got %v", env.nav.Paths())
			}
			if env.srv.Calls(path) != 1 || env.srv.Calls(authapi.PathRefresh) != 0 {
				t.Fatalf("expected one logout call and no refresh")
			}
		})
	}
}

func TestLogoutWithUnreachableServerStillClears(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)
	env.srv.HTTP.Close()

	err := env.client.Logout(context.Background())
	if !errors.Is(err, ErrLogoutFailed) || !IsTransient(err) {
		t.Fatalf("expected transient logout failure, got %v", err)
	}
	if env.client.IsAuth() || env.nav.Last() != DefaultLoginPath {
		t.Fatalf("expected local logout")
	}
}

func TestLoadCurrentUserFailureKeepsAuthenticatedFlag(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)
	env.srv.FailNext(authapi.PathMe, authtest.Failure{Status: http.StatusInternalServerError})

	if _, err := env.client.LoadCurrentUser(context.Background()); StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
	if !env.client.IsAuth() || env.client.CurrentUser() != nil {
		t.Fatalf("expected authenticated without profile")
	}
}

func TestObservablesNotifyOnTransitions(t *testing.T) {
	env := newTestEnv(t, nil)
	var seen []bool
	cancel := env.client.Authenticated().Subscribe(func(v bool) { seen = append(seen, v) })
	defer cancel()

	env.login(t)
	_ = env.client.Logout(context.Background())

	if len(seen) < 2 || !seen[0] || seen[len(seen)-1] {
		t.Fatalf("expected true then false, got %v", seen)
	}
}

func TestClosedClientRejectsCalls(t *testing.T) {
	env := newTestEnv(t, nil)
	env.client.Close()
	env.client.Close()

	if _, err := env.client.Login(context.Background(), testUser, testPassword); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
	if err := env.client.Logout(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected wrapped ErrClientClosed, got %v", err)
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New()
	c, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}

	bad := DefaultConfig()
	bad.API.BaseURL = "not a url"
	if _, err := New().WithConfig(bad).Build(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
