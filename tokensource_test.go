package goSession

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/authapi"
	"golang.org/x/oauth2"
)

func TestTokenSourceReturnsSessionAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.login(t)

	got, err := env.client.TokenSource(context.Background()).Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if got.AccessToken != tok.AccessToken || got.TokenType != "Bearer" {
		t.Fatalf("unexpected token %+v", got)
	}
	if got.RefreshToken != "" {
		t.Fatal("refresh token must not leave the client")
	}
	if got.Expiry.IsZero() || !got.Valid() {
		t.Fatalf("expected a valid token with expiry, got %+v", got)
	}
	if env.srv.Calls(authapi.PathRefresh) != 0 {
		t.Fatal("expected no refresh for a fresh token")
	}
}

func TestTokenSourceDrivesOAuth2Client(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	hc := oauth2.NewClient(context.Background(), env.client.TokenSource(context.Background()))
	resp, err := hc.Get(env.srv.URL() + "/api/items")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestTokenSourceRefreshesInsideBuffer(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) {
		cfg := testConfig(b.config.API.BaseURL)
		cfg.Token.ExpirationBuffer = 20 * time.Minute
		b.WithConfig(cfg)
	})
	first := env.login(t)

	got, err := env.client.TokenSource(context.Background()).Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if env.srv.Calls(authapi.PathRefresh) != 1 {
		t.Fatalf("expected one refresh, got %d", env.srv.Calls(authapi.PathRefresh))
	}
	if got.AccessToken == first.AccessToken {
		t.Fatal("expected a renewed access token")
	}
}

func TestTokenSourceWithoutSession(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.client.TokenSource(context.Background()).Token(); !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}

	env.client.Close()
	if _, err := env.client.TokenSource(context.Background()).Token(); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}
