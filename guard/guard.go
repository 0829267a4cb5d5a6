package guard

import (
	"net/http"
	"net/url"
	"strings"

	goSession "github.com/MrEthical07/goSession"
)

// Authenticator reports whether a session is active. *goSession.Client
// satisfies it.
type Authenticator interface {
	IsAuth() bool
}

// Config names the login route and its return-path query parameter.
type Config struct {
	LoginPath   string
	ReturnParam string
}

// ConfigFromRoutes derives a guard config from the session's routes.
func ConfigFromRoutes(r goSession.RoutesConfig) Config {
	return Config{LoginPath: r.LoginPath, ReturnParam: r.ReturnParam}
}

func (c Config) withDefaults() Config {
	if c.LoginPath == "" {
		c.LoginPath = goSession.DefaultLoginPath
	}
	if c.ReturnParam == "" {
		c.ReturnParam = goSession.DefaultReturnParam
	}
	return c
}

// Decision is the outcome of a guard check. Redirect is set only when
// Allowed is false.
type Decision struct {
	Allowed  bool
	Redirect string
}

// Check allows navigation to target when auth is authenticated. Otherwise it
// returns the login path with target attached under the return parameter. A
// nil auth is treated as unauthenticated.
func Check(auth Authenticator, target string, cfg Config) Decision {
	if auth != nil && auth.IsAuth() {
		return Decision{Allowed: true}
	}

	cfg = cfg.withDefaults()
	q := url.Values{}
	if target != "" {
		q.Set(cfg.ReturnParam, target)
	}

	redirect := cfg.LoginPath
	if enc := q.Encode(); enc != "" {
		redirect += "?" + enc
	}
	return Decision{Redirect: redirect}
}

// Require returns middleware that serves next only for authenticated
// sessions and answers 302 Found towards the login route otherwise.
func Require(auth Authenticator, cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := Check(auth, r.URL.RequestURI(), cfg)
			if !d.Allowed {
				http.Redirect(w, r, d.Redirect, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SafeReturnPath returns raw when it is a same-origin absolute path and
// fallback otherwise. Scheme-relative ("//host") and backslash forms are
// rejected.
func SafeReturnPath(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return fallback
	}
	if strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
		return fallback
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return raw
}

// ReturnPath extracts the return parameter from a login URL's query and
// sanitises it with SafeReturnPath.
func ReturnPath(query url.Values, cfg Config, fallback string) string {
	cfg = cfg.withDefaults()
	return SafeReturnPath(query.Get(cfg.ReturnParam), fallback)
}
