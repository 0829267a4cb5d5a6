package goSession

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/inactivity"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/observable"
	"github.com/MrEthical07/goSession/token"
	"github.com/MrEthical07/goSession/transport"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const refreshFlight = "refresh"

// Client is the session controller. It is the only writer of the
// authenticated flag and the current user.
type Client struct {
	cfg        Config
	logger     *zap.Logger
	clock      clockwork.Clock
	navigator  Navigator
	tokens     *token.Store
	api        *authapi.Client
	http       *http.Client
	source     inactivity.Source
	monitor    *inactivity.Monitor
	metrics    *Metrics
	audit      *internalaudit.Dispatcher
	redisScope string

	authenticated *observable.Value[bool]
	user          *observable.Value[*User]

	refreshGroup singleflight.Group

	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	closed           atomic.Bool
	closeOnce        sync.Once
	stopInactivityCh func()
}

/*
====================================
LIFECYCLE
====================================
*/

// CheckInitialAuthentication restores a session from stored tokens:
//
//   - refresh token only: silent refresh, then the profile is loaded. A
//     failed refresh clears all state and is returned; a failed profile load
//     is logged only. If ctx ends first the stored token is kept.
//   - both tokens: authenticated immediately; the profile loads in the
//     background.
//   - otherwise the client stays unauthenticated.
func (c *Client) CheckInitialAuthentication(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	refresh, err := c.tokens.Refresh(ctx)
	if err != nil {
		c.logger.Warn("reading stored refresh token failed", zap.Error(err))
		c.clearAuthState(ctx)
		return err
	}
	access := c.tokens.Access()

	switch {
	case refresh != "" && access == "":
		c.logger.Debug("recovering session from stored refresh token")
		c.metrics.Inc(MetricSilentRefresh)
		if _, err := c.RefreshToken(ctx); err != nil {
			// A caller that gave up leaves the stored token for the next start.
			if !transport.IsContextError(err) {
				c.clearAuthState(ctx)
			}
			return err
		}
		c.metrics.Inc(MetricSessionRecovered)
		c.emitAudit(ctx, AuditSessionRecovered, true, nil, "")
		if _, err := c.LoadCurrentUser(ctx); err != nil {
			c.logger.Warn("profile load after session recovery failed", zap.Error(err))
		}
		return nil

	case refresh != "" && access != "":
		c.setAuthenticated(true)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if _, err := c.LoadCurrentUser(c.ctx); err != nil {
				c.logger.Warn("background profile load failed", zap.Error(err))
			}
		}()
		return nil

	default:
		return nil
	}
}

// Login exchanges credentials for tokens. On failure the client is marked
// unauthenticated, stored tokens are left untouched and the backend error is
// returned as *HTTPError.
func (c *Client) Login(ctx context.Context, identifier, password string) (*TokenResponse, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	tok, err := c.api.Login(ctx, authapi.LoginRequest{Identifier: identifier, Password: password})
	if err != nil {
		c.authenticated.Set(false)
		switch StatusOf(err) {
		case http.StatusTooManyRequests:
			c.metrics.Inc(MetricLoginRateLimited)
		case http.StatusForbidden:
			c.metrics.Inc(MetricLoginLocked)
		default:
			c.metrics.Inc(MetricLoginFailure)
		}
		c.emitAudit(ctx, AuditLogin, false, err, identifier)
		c.logger.Info("login failed", zap.Int("status", StatusOf(err)))
		return nil, err
	}

	c.storeTokens(ctx, tok)
	c.setAuthenticated(true)
	c.metrics.Inc(MetricLoginSuccess)
	c.emitAudit(ctx, AuditLogin, true, nil, identifier)
	c.logger.Info("login succeeded")
	return tok, nil
}

// RefreshToken renews both tokens. Without a stored refresh token it logs
// out and returns ErrNoRefreshToken; a rejected refresh also logs out and
// returns the backend error. Concurrent calls share one request, which runs
// detached from any single caller: a caller whose ctx ends gets ctx.Err()
// while the shared refresh carries on for the others.
func (c *Client) RefreshToken(ctx context.Context) (*TokenResponse, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ch := c.refreshGroup.DoChan(refreshFlight, func() (interface{}, error) {
		flightCtx, cancel := c.flightContext(ctx)
		defer cancel()
		return c.refresh(flightCtx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.Inc(MetricRefreshCoalesced)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*TokenResponse), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// flightContext keeps ctx's values but not its cancellation. The flight is
// bounded by API.Timeout and by Close.
func (c *Client) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	var (
		flightCtx context.Context
		cancel    context.CancelFunc
	)
	if c.cfg.API.Timeout > 0 {
		flightCtx, cancel = context.WithTimeout(detached, c.cfg.API.Timeout)
	} else {
		flightCtx, cancel = context.WithCancel(detached)
	}
	stop := context.AfterFunc(c.ctx, cancel)
	return flightCtx, func() {
		stop()
		cancel()
	}
}

func (c *Client) refresh(ctx context.Context) (*TokenResponse, error) {
	refresh, err := c.tokens.Refresh(ctx)
	if err != nil {
		c.logger.Warn("reading refresh token failed", zap.Error(err))
	}
	if refresh == "" {
		c.metrics.Inc(MetricRefreshFailure)
		c.emitAudit(ctx, AuditRefresh, false, ErrNoRefreshToken, "")
		if lerr := c.Logout(ctx); lerr != nil {
			c.logger.Debug("logout after missing refresh token reported", zap.Error(lerr))
		}
		return nil, ErrNoRefreshToken
	}

	start := c.clock.Now()
	tok, err := c.api.Refresh(ctx, refresh)
	c.metrics.Observe(MetricRefreshLatency, c.clock.Since(start))
	if err != nil && (transport.IsContextError(err) || ctx.Err() != nil) {
		// Interrupted, not rejected: the stored refresh token is still good.
		c.metrics.Inc(MetricRefreshFailure)
		c.logger.Info("token refresh interrupted", zap.Error(err))
		return nil, err
	}
	if err != nil {
		c.metrics.Inc(MetricRefreshFailure)
		c.emitAudit(ctx, AuditRefresh, false, err, "")
		c.logger.Info("token refresh rejected", zap.Int("status", StatusOf(err)))
		if lerr := c.Logout(ctx); lerr != nil {
			c.logger.Debug("logout after failed refresh reported", zap.Error(lerr))
		}
		return nil, err
	}

	c.storeTokens(ctx, tok)
	c.setAuthenticated(true)
	c.metrics.Inc(MetricRefreshSuccess)
	c.emitAudit(ctx, AuditRefresh, true, nil, "")
	c.logger.Debug("token refreshed")
	return tok, nil
}

// LoadCurrentUser fetches the profile. Failure clears the current user but
// leaves the authenticated flag alone.
func (c *Client) LoadCurrentUser(ctx context.Context) (*User, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	u, err := c.api.Me(ctx)
	if err != nil {
		c.user.Set(nil)
		c.metrics.Inc(MetricProfileFailure)
		c.emitAudit(ctx, AuditProfileLoad, false, err, "")
		return nil, err
	}
	c.user.Set(u)
	return u, nil
}

// Logout revokes the session server-side on a best-effort basis, then
// always clears local state and navigates to the login route. A server
// failure is returned wrapped in ErrLogoutFailed.
func (c *Client) Logout(ctx context.Context) error {
	return c.logout(ctx, false)
}

// LogoutAll is Logout for every session of the user. A server failure is
// returned wrapped in ErrLogoutAllFailed.
func (c *Client) LogoutAll(ctx context.Context) error {
	return c.logout(ctx, true)
}

func (c *Client) logout(ctx context.Context, all bool) error {
	metric, event, sentinel := MetricLogout, AuditLogout, ErrLogoutFailed
	if all {
		metric, event, sentinel = MetricLogoutAll, AuditLogoutAll, ErrLogoutAllFailed
	}

	var serverErr error
	if c.closed.Load() {
		serverErr = ErrClientClosed
	} else {
		// A 401 here must not loop back into refresh.
		callCtx := transport.SkipRefresh(ctx)
		if all {
			_, serverErr = c.api.LogoutAll(callCtx)
		} else {
			_, serverErr = c.api.Logout(callCtx)
		}
	}

	c.emitAudit(ctx, event, serverErr == nil, serverErr, "")
	c.clearAuthState(ctx)
	c.navigator.Navigate(ctx, c.cfg.Routes.LoginPath)
	c.metrics.Inc(metric)

	if serverErr != nil {
		c.metrics.Inc(MetricLogoutServerFailure)
		c.logger.Warn("server-side logout failed, local session cleared",
			zap.Bool("all", all),
			zap.Error(serverErr),
		)
		return fmt.Errorf("%w: %w", sentinel, serverErr)
	}
	c.logger.Info("logged out", zap.Bool("all", all))
	return nil
}

// Close stops inactivity monitoring, waits for background work and flushes
// the audit dispatcher. The session state itself is left as is.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		if c.stopInactivityCh != nil {
			c.stopInactivityCh()
		}
		c.monitor.Close()
		c.wg.Wait()
		c.audit.Close()
	})
}

/*
====================================
STATE
====================================
*/

// IsAuth is a snapshot of the authenticated flag.
func (c *Client) IsAuth() bool {
	return c.authenticated.Get()
}

// CurrentUser is a snapshot of the loaded profile, nil when unknown.
func (c *Client) CurrentUser() *User {
	return c.user.Get()
}

// Authenticated exposes the authenticated flag. Callers should only Get or
// Subscribe.
func (c *Client) Authenticated() *observable.Value[bool] {
	return c.authenticated
}

// User exposes the current profile. Callers should only Get or Subscribe.
func (c *Client) User() *observable.Value[*User] {
	return c.user
}

// HTTPClient returns the intercepted client for application requests.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// API returns the backend contract client used by the session.
func (c *Client) API() *authapi.Client {
	return c.api
}

// Activity returns the source the inactivity monitor listens to.
func (c *Client) Activity() inactivity.Source {
	return c.source
}

// InactivityState reports whether idle monitoring is active.
func (c *Client) InactivityState() inactivity.State {
	return c.monitor.State()
}

// AccessTokenExpiry reads the exp claim of the current access token.
func (c *Client) AccessTokenExpiry() (time.Time, bool) {
	return jwt.ExpiresAt(c.tokens.Access())
}

// RedisScope is the scope ID of Redis-backed storage, "" otherwise. Persist
// it to resume the session from another process.
func (c *Client) RedisScope() string {
	return c.redisScope
}

func (c *Client) Config() Config {
	return cloneConfig(c.cfg)
}

func (c *Client) Metrics() *Metrics {
	return c.metrics
}

func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped counts events lost to a full audit buffer.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

/*
====================================
INTERNALS
====================================
*/

func (c *Client) storeTokens(ctx context.Context, tok *TokenResponse) {
	c.tokens.SetAccess(tok.AccessToken)
	if err := c.tokens.SetRefresh(ctx, tok.RefreshToken); err != nil {
		c.logger.Warn("persisting refresh token failed, session will not survive expiry", zap.Error(err))
	}
}

func (c *Client) setAuthenticated(v bool) {
	c.authenticated.Set(v)
	if v && c.cfg.Inactivity.Enabled && !c.closed.Load() && c.monitor.State() == inactivity.Stopped {
		c.monitor.StartWatching()
	}
}

func (c *Client) clearAuthState(ctx context.Context) {
	c.monitor.StopWatching()
	if err := c.tokens.Clear(ctx); err != nil {
		c.logger.Warn("clearing stored refresh token failed", zap.Error(err))
	}
	c.authenticated.Set(false)
	c.user.Set(nil)
}

func (c *Client) startInactivityListener() {
	ch, cancel := c.monitor.Subscribe()
	c.stopInactivityCh = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for range ch {
			c.onInactive()
		}
	}()
}

func (c *Client) onInactive() {
	if !c.IsAuth() {
		return
	}
	c.logger.Info("logging out after inactivity", zap.Duration("timeout", c.cfg.Inactivity.Timeout))
	c.metrics.Inc(MetricInactivityLogout)
	c.emitAudit(c.ctx, AuditInactivityLogout, true, nil, "")
	if err := c.Logout(c.ctx); err != nil && !errors.Is(err, ErrClientClosed) {
		c.logger.Debug("inactivity logout reported", zap.Error(err))
	}
}

func (c *Client) emitAudit(ctx context.Context, eventType string, success bool, err error, identifier string) {
	if c.audit == nil {
		return
	}
	e := internalaudit.NewEvent(eventType, c.clock.Now())
	e.Success = success
	e.Identifier = identifier
	if u := c.user.Get(); u != nil {
		e.UserID = strconv.FormatInt(u.ID, 10)
	}
	if err != nil {
		e.Error = err.Error()
		e.Status = StatusOf(err)
	}
	c.audit.Emit(ctx, e)
}

// sessionRefresher adapts Client to transport.Refresher.
type sessionRefresher struct {
	c *Client
}

func (r sessionRefresher) RefreshAccess(ctx context.Context) (string, error) {
	tok, err := r.c.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// ForceLogout is a no-op when the failed refresh already ended the session.
func (r sessionRefresher) ForceLogout(ctx context.Context) {
	if !r.c.IsAuth() && r.c.tokens.Access() == "" {
		return
	}
	if err := r.c.Logout(ctx); err != nil {
		r.c.logger.Debug("forced logout reported", zap.Error(err))
	}
}
