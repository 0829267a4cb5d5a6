package dashboard

import (
	"context"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"go.uber.org/zap"
)

// Initials returns the badge text for u: the first two letters of the
// username, else of the email, else a single letter. A nil user gives "??".
func Initials(u *goSession.User) string {
	if u == nil {
		return "??"
	}
	if r := []rune(u.Username); len(r) >= 2 {
		return strings.ToUpper(string(r[:2]))
	}
	if r := []rune(u.Email); len(r) >= 2 {
		return strings.ToUpper(string(r[:2]))
	}
	if r := []rune(u.Username); len(r) == 1 {
		return strings.ToUpper(string(r))
	}
	return "?"
}

// SessionClient is the slice of *goSession.Client the page drives.
type SessionClient interface {
	CurrentUser() *goSession.User
	RefreshToken(ctx context.Context) (*goSession.TokenResponse, error)
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
}

type Page struct {
	client    SessionClient
	nav       goSession.Navigator
	loginPath string
	logger    *zap.Logger
}

// New returns a page bound to client. Empty loginPath defaults to the
// session's login route; a nil logger discards output.
func New(client SessionClient, nav goSession.Navigator, loginPath string, logger *zap.Logger) *Page {
	if nav == nil {
		nav = goSession.NavigatorFunc(func(context.Context, string) {})
	}
	if loginPath == "" {
		loginPath = goSession.DefaultLoginPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Page{client: client, nav: nav, loginPath: loginPath, logger: logger.Named("dashboard")}
}

// View is what the page renders.
type View struct {
	User     *goSession.User
	Initials string
}

func (p *Page) View() View {
	u := p.client.CurrentUser()
	return View{User: u, Initials: Initials(u)}
}

// Refresh renews the session. On failure the user is sent to login and the
// error is returned.
func (p *Page) Refresh(ctx context.Context) error {
	if _, err := p.client.RefreshToken(ctx); err != nil {
		p.logger.Warn("session refresh failed", zap.Error(err))
		p.nav.Navigate(ctx, p.loginPath)
		return err
	}
	return nil
}

// Logout ends this session and always navigates to login.
func (p *Page) Logout(ctx context.Context) error {
	err := p.client.Logout(ctx)
	if err != nil {
		p.logger.Warn("logout failed", zap.Error(err))
	}
	p.nav.Navigate(ctx, p.loginPath)
	return err
}

// LogoutAll ends every session of the user and always navigates to login.
func (p *Page) LogoutAll(ctx context.Context) error {
	err := p.client.LogoutAll(ctx)
	if err != nil {
		p.logger.Warn("logout-all failed", zap.Error(err))
	}
	p.nav.Navigate(ctx, p.loginPath)
	return err
}
