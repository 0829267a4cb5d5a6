package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/jwt"
	"golang.org/x/oauth2"
)

// TokenSource adapts the session to [oauth2.TokenSource] so libraries that
// accept one (oauth2.NewClient, generated API clients) share the session's
// access token. The refresh token never leaves the client.
//
// Token returns the current access token, renewing it through
// [Client.RefreshToken] when it is absent or inside the configured expiry
// buffer. A failed renewal logs out like any other failed refresh.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	if ctx == nil {
		ctx = context.Background()
	}
	return &sessionTokenSource{client: c, ctx: ctx}
}

type sessionTokenSource struct {
	client *Client
	ctx    context.Context
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	c := s.client
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	access := c.tokens.Access()
	exp, hasExp := jwt.ExpiresAt(access)
	stale := access == "" ||
		(hasExp && c.cfg.Token.ExpirationBuffer > 0 && !c.clock.Now().Add(c.cfg.Token.ExpirationBuffer).Before(exp))
	if stale {
		tok, err := c.RefreshToken(s.ctx)
		if err != nil {
			return nil, err
		}
		access = tok.AccessToken
		exp, hasExp = jwt.ExpiresAt(access)
	}
	out := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if hasExp {
		out.Expiry = exp
	}
	return out, nil
}
