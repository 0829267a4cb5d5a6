package authtest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/sessions"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/transport"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	msgInvalidCredentials = "Invalid username or password"
	msgTooManyAttempts    = "Too many login attempts. Please try again later."
	msgAccountLocked      = "Account is locked due to too many failed login attempts"
	msgAccountInactive    = "Account is not active"
	msgInvalidRefresh     = "Invalid or expired refresh token"
	msgRefreshReuse       = "Refresh token reuse detected"
	msgUnauthorized       = "Full authentication is required to access this resource"

	maxBody = 1 << 16
)

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName,omitempty"`
}

// EchoResponse is returned by every /api/ path.
type EchoResponse struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	UserID int64           `json:"userId"`
	Body   json.RawMessage `json:"body,omitempty"`
}

func (b *Backend) routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc(authapi.PathLogin, b.handleLogin).Methods(http.MethodPost)
	router.HandleFunc(authapi.PathRefresh, b.handleRefresh).Methods(http.MethodPost)
	router.HandleFunc(authapi.PathRegister, b.handleRegister).Methods(http.MethodPost)
	router.HandleFunc(authapi.PathMe, b.authenticated(b.handleMe)).Methods(http.MethodGet)
	router.HandleFunc(authapi.PathLogout, b.authenticated(b.handleLogout)).Methods(http.MethodPost)
	router.HandleFunc(authapi.PathLogoutAll, b.authenticated(b.handleLogoutAll)).Methods(http.MethodPost)
	router.PathPrefix("/api/").HandlerFunc(b.authenticated(b.handleEcho))

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.writeError(w, r, http.StatusNotFound, "No handler for "+r.URL.Path, time.Time{})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.writeError(w, r, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed", time.Time{})
	})
	return b.scripted(router)
}

// scripted counts calls and serves queued failures before routing.
func (b *Backend) scripted(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[r.URL.Path]++
		var f *Failure
		if q := b.failures[r.URL.Path]; len(q) > 0 {
			f = &q[0]
			b.failures[r.URL.Path] = q[1:]
		}
		b.mu.Unlock()

		if f == nil {
			next.ServeHTTP(w, r)
			return
		}
		if f.RetryAfter > 0 {
			w.Header().Set(transport.HeaderRetryAfterSeconds, strconv.Itoa(ceilSeconds(f.RetryAfter)))
		}
		b.writeError(w, r, f.Status, f.Message, f.LockedUntil)
	})
}

/* ==================================
   ========== LOGIN =================
   ================================== */

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req authapi.LoginRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		b.writeError(w, r, http.StatusBadRequest, "Identifier and password are required", time.Time{})
		return
	}
	ctx := r.Context()
	ip := clientIP(r)

	retry, err := b.limiter.CheckLogin(ctx, req.Identifier, ip)
	if err != nil {
		if retry > 0 {
			w.Header().Set(transport.HeaderRetryAfterSeconds, strconv.Itoa(ceilSeconds(retry)))
			b.writeError(w, r, http.StatusTooManyRequests, msgTooManyAttempts, time.Time{})
			return
		}
		b.internalError(w, r, err)
		return
	}
	if err := b.limiter.RecordAttempt(ctx, req.Identifier, ip); err != nil {
		b.internalError(w, r, err)
		return
	}

	rec, ok := b.lookup(req.Identifier)
	if !ok {
		b.writeError(w, r, http.StatusUnauthorized, msgInvalidCredentials, time.Time{})
		return
	}
	uid := idString(rec.user.ID)

	if until, locked, err := b.lockout.LockedUntil(ctx, uid); err != nil {
		b.internalError(w, r, err)
		return
	} else if locked {
		b.writeError(w, r, http.StatusForbidden, msgAccountLocked, until)
		return
	}

	match, err := b.hasher.Verify(req.Password, rec.hash)
	if err != nil {
		b.internalError(w, r, err)
		return
	}
	if !match {
		until, locked, err := b.lockout.RecordFailure(ctx, uid)
		if err != nil {
			b.internalError(w, r, err)
			return
		}
		if locked {
			b.logger.Info("account locked", zap.Int64("user_id", rec.user.ID), zap.Time("until", until))
			b.writeError(w, r, http.StatusForbidden, msgAccountLocked, until)
			return
		}
		b.writeError(w, r, http.StatusUnauthorized, msgInvalidCredentials, time.Time{})
		return
	}

	switch rec.user.Status {
	case authapi.StatusLocked:
		b.writeError(w, r, http.StatusForbidden, msgAccountLocked, time.Time{})
		return
	case authapi.StatusInactive:
		b.writeError(w, r, http.StatusForbidden, msgAccountInactive, time.Time{})
		return
	}

	_ = b.limiter.ResetLogin(ctx, req.Identifier, ip)
	_ = b.lockout.Reset(ctx, uid)
	b.maybeRehash(rec.user.ID, req.Password)
	user := b.touchLogin(rec.user.ID)

	resp, err := b.newSession(r, user)
	if err != nil {
		b.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) lookup(identifier string) (userRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.byName[normalize(identifier)]
	if !ok {
		return userRecord{}, false
	}
	return *b.users[id], true
}

func (b *Backend) maybeRehash(userID int64, password string) {
	b.mu.Lock()
	rec := b.users[userID]
	stale := rec.hash
	b.mu.Unlock()

	upgrade, err := b.hasher.NeedsUpgrade(stale)
	if err != nil || !upgrade {
		return
	}
	hash, err := b.hasher.Hash(password)
	if err != nil {
		b.logger.Warn("rehash failed", zap.Error(err))
		return
	}
	b.mu.Lock()
	rec.hash = hash
	b.mu.Unlock()
}

func (b *Backend) touchLogin(userID int64) authapi.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.users[userID]
	rec.user.LastLoginAt = b.cfg.Now().UTC().Format(time.RFC3339)
	return rec.user
}

/* ==================================
   ========== TOKENS ================
   ================================== */

func (b *Backend) newSession(r *http.Request, user authapi.User) (*authapi.TokenResponse, error) {
	sid, err := sessions.NewSessionID()
	if err != nil {
		return nil, err
	}
	secret, err := sessions.NewSecret()
	if err != nil {
		return nil, err
	}
	if err := b.sessions.Save(r.Context(), &sessions.Session{
		ID:          sid,
		UserID:      user.ID,
		RefreshHash: secret.Hash(),
		CreatedAt:   b.cfg.Now(),
	}); err != nil {
		return nil, err
	}
	return b.tokenPair(user, sid, secret)
}

func (b *Backend) tokenPair(user authapi.User, sid string, secret sessions.Secret) (*authapi.TokenResponse, error) {
	access, err := b.issueAccess(user, sid)
	if err != nil {
		return nil, err
	}
	refresh, err := sessions.EncodeRefreshToken(sid, secret)
	if err != nil {
		return nil, err
	}
	return &authapi.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(b.tokens.TTL() / time.Second),
	}, nil
}

func (b *Backend) issueAccess(user authapi.User, sid string) (string, error) {
	tok, err := b.tokens.CreateAccess(user.ID, user.Username, sid)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.issued[tok] = struct{}{}
	b.mu.Unlock()
	return tok, nil
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authapi.RefreshTokenRequest
	if err := decodeBody(r, &req); err != nil || req.RefreshToken == "" {
		b.writeError(w, r, http.StatusBadRequest, "Refresh token is required", time.Time{})
		return
	}
	ctx := r.Context()

	sid, presented, err := sessions.DecodeRefreshToken(req.RefreshToken)
	if err != nil {
		b.writeError(w, r, http.StatusUnauthorized, msgInvalidRefresh, time.Time{})
		return
	}
	next, err := sessions.NewSecret()
	if err != nil {
		b.internalError(w, r, err)
		return
	}

	uid, err := b.sessions.Rotate(ctx, sid, presented.Hash(), next.Hash())
	switch {
	case errors.Is(err, sessions.ErrRefreshHashMismatch):
		// A rotated-out token came back: end the whole family.
		b.logger.Warn("refresh token reuse", zap.String("session_id", sid))
		if rec, ok := b.sessionOwner(ctx, sid); ok {
			_ = b.sessions.Delete(ctx, rec, sid)
		}
		b.writeError(w, r, http.StatusUnauthorized, msgRefreshReuse, time.Time{})
		return
	case errors.Is(err, sessions.ErrSessionNotFound):
		b.writeError(w, r, http.StatusUnauthorized, msgInvalidRefresh, time.Time{})
		return
	case err != nil:
		b.internalError(w, r, err)
		return
	}

	user, ok := b.User(uid)
	if !ok || user.Status != authapi.StatusActive {
		_ = b.sessions.Delete(ctx, uid, sid)
		b.writeError(w, r, http.StatusUnauthorized, msgInvalidRefresh, time.Time{})
		return
	}
	resp, err := b.tokenPair(user, sid, next)
	if err != nil {
		b.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// sessionOwner finds the user of a session by scanning the user index.
func (b *Backend) sessionOwner(ctx context.Context, sid string) (int64, bool) {
	b.mu.Lock()
	ids := make([]int64, 0, len(b.users))
	for id := range b.users {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		sids, err := b.sessions.ActiveSessionIDs(ctx, id)
		if err != nil {
			continue
		}
		for _, s := range sids {
			if s == sid {
				return id, true
			}
		}
	}
	return 0, false
}

/* ==================================
   ========== ACCOUNT ===============
   ================================== */

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(r, &req); err != nil || len(strings.TrimSpace(req.Username)) < 3 || !strings.Contains(req.Email, "@") {
		b.writeError(w, r, http.StatusBadRequest, "Username and a valid email are required", time.Time{})
		return
	}
	user, err := b.AddUser(strings.TrimSpace(req.Username), strings.TrimSpace(req.Email), req.Password, req.FullName)
	if err != nil {
		b.writeError(w, r, http.StatusBadRequest, err.Error(), time.Time{})
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type principal struct {
	claims *jwt.AccessClaims
}

type authedHandler func(http.ResponseWriter, *http.Request, principal)

// authenticated verifies the bearer token and that its session is live.
func (b *Backend) authenticated(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			b.writeError(w, r, http.StatusUnauthorized, msgUnauthorized, time.Time{})
			return
		}

		b.mu.Lock()
		_, revoked := b.revoked[raw]
		b.mu.Unlock()
		if revoked {
			b.writeError(w, r, http.StatusUnauthorized, "Access token expired", time.Time{})
			return
		}

		claims, err := b.tokens.ParseAccess(raw)
		if err != nil {
			b.writeError(w, r, http.StatusUnauthorized, "Access token expired", time.Time{})
			return
		}
		if claims.SessionID != "" {
			live, err := b.sessions.Exists(r.Context(), claims.SessionID)
			if err != nil {
				b.internalError(w, r, err)
				return
			}
			if !live {
				b.writeError(w, r, http.StatusUnauthorized, "Session revoked", time.Time{})
				return
			}
		}
		next(w, r, principal{claims: claims})
	}
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request, p principal) {
	user, ok := b.User(p.claims.UserID)
	if !ok {
		b.writeError(w, r, http.StatusNotFound, "User not found", time.Time{})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request, p principal) {
	if p.claims.SessionID != "" {
		if err := b.sessions.Delete(r.Context(), p.claims.UserID, p.claims.SessionID); err != nil {
			b.internalError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, authapi.MessageResponse{Message: "Logged out successfully"})
}

func (b *Backend) handleLogoutAll(w http.ResponseWriter, r *http.Request, p principal) {
	n, err := b.sessions.DeleteAllForUser(r.Context(), p.claims.UserID)
	if err != nil {
		b.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authapi.MessageResponse{
		Message: "Logged out from " + strconv.Itoa(n) + " session(s)",
	})
}

func (b *Backend) handleEcho(w http.ResponseWriter, r *http.Request, p principal) {
	resp := EchoResponse{Method: r.Method, Path: r.URL.Path, UserID: p.claims.UserID}
	if r.Body != nil {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			b.writeError(w, r, http.StatusBadRequest, "Unreadable body", time.Time{})
			return
		}
		if len(raw) > 0 {
			if json.Valid(raw) {
				resp.Body = raw
			} else {
				resp.Body, _ = json.Marshal(string(raw))
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

/* ==================================
   ========== HELPERS ===============
   ================================== */

func (b *Backend) writeError(w http.ResponseWriter, r *http.Request, status int, message string, lockedUntil time.Time) {
	body := transport.ErrorResponse{
		Path:      r.URL.Path,
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: b.cfg.Now().UTC().Format(time.RFC3339),
		Status:    status,
	}
	if !lockedUntil.IsZero() {
		body.LockedUntil = lockedUntil.UTC().Format(time.RFC3339)
	}
	writeJSON(w, status, body)
}

func (b *Backend) internalError(w http.ResponseWriter, r *http.Request, err error) {
	b.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	b.writeError(w, r, http.StatusInternalServerError, "Internal server error", time.Time{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	return dec.Decode(v)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
