package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"go.uber.org/zap"
)

// AuthEndpoints never carry a bearer token and never trigger a refresh.
var AuthEndpoints = []string{"/auth/login", "/auth/refresh", "/auth/register"}

// ErrBodyNotReplayable is returned when a 401 retry needs a request body that
// cannot be recreated.
var ErrBodyNotReplayable = errors.New("request body cannot be replayed")

// TokenSource supplies the current access token.
type TokenSource interface {
	Access() string
}

// Refresher renews the access token and ends the session when renewal fails.
type Refresher interface {
	RefreshAccess(ctx context.Context) (string, error)
	ForceLogout(ctx context.Context)
}

type skipRefreshKey struct{}

// SkipRefresh marks ctx so a 401 is surfaced instead of refreshed.
func SkipRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRefreshKey{}, true)
}

func skipsRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(skipRefreshKey{}).(bool)
	return v
}

// IsAuthEndpoint reports whether path addresses one of AuthEndpoints or a
// sub-path of one. Matching is by whole path segments.
func IsAuthEndpoint(path string) bool {
	path = strings.TrimRight(path, "/") + "/"
	for _, ep := range AuthEndpoints {
		if strings.Contains(path, ep+"/") {
			return true
		}
	}
	return false
}

// BearerTransport attaches the access token and retries once after a refresh
// on 401. ExpiryBuffer > 0 additionally refreshes before sending when the
// token's exp falls within the buffer.
type BearerTransport struct {
	Base         http.RoundTripper
	Tokens       TokenSource
	Refresher    Refresher
	ExpiryBuffer time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if IsAuthEndpoint(req.URL.Path) {
		return base(t.Base).RoundTrip(req)
	}

	ctx := req.Context()
	canRefresh := t.Refresher != nil && !skipsRefresh(ctx)
	token := t.access()

	if canRefresh && t.ExpiryBuffer > 0 && token != "" && jwt.ExpiresWithin(token, t.now(), t.ExpiryBuffer) {
		logger(t.Logger).Debug("access token near expiry, refreshing before send")
		fresh, err := t.Refresher.RefreshAccess(ctx)
		if err != nil {
			closeBody(req)
			if !IsContextError(err) {
				t.Refresher.ForceLogout(ctx)
			}
			return nil, err
		}
		token = fresh
	}

	resp, err := t.send(req, token)
	if !canRefresh || !unauthorized(resp, err) {
		return resp, err
	}
	if resp != nil {
		drain(resp)
	}

	// Another request may have refreshed while this one was in flight.
	fresh := t.access()
	if fresh == "" || fresh == token {
		logger(t.Logger).Debug("access token rejected, refreshing",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
		)
		var rerr error
		fresh, rerr = t.Refresher.RefreshAccess(ctx)
		if rerr != nil {
			// The caller gave up; the session itself is still valid.
			if IsContextError(rerr) {
				return nil, rerr
			}
			logger(t.Logger).Warn("refresh after 401 failed, ending session", zap.Error(rerr))
			t.Refresher.ForceLogout(ctx)
			return nil, rerr
		}
	}

	retry, err := replay(req)
	if err != nil {
		return nil, err
	}
	return t.send(retry, fresh)
}

func (t *BearerTransport) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return base(t.Base).RoundTrip(out)
}

func (t *BearerTransport) access() string {
	if t.Tokens == nil {
		return ""
	}
	return t.Tokens.Access()
}

func (t *BearerTransport) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Chain returns bearer wrapping normalize wrapping base. The arguments are
// copied, so the caller's values are left untouched.
func Chain(rt http.RoundTripper, bearer BearerTransport, normalize NormalizeTransport) http.RoundTripper {
	normalize.Base = rt
	bearer.Base = &normalize
	return &bearer
}

func unauthorized(resp *http.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusUnauthorized {
		return true
	}
	return err != nil && StatusOf(err) == http.StatusUnauthorized
}

func replay(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, ErrBodyNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, errors.Join(ErrBodyNotReplayable, err)
	}
	out.Body = body
	return out, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
