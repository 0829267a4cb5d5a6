package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/dashboard"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/inactivity"
	"github.com/MrEthical07/goSession/loginpage"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/transport"
	"go.uber.org/zap"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  login <identifier> <password>
  me
  refresh
  logout
  logout-all
  status
  get <path>
  metrics
  otel
  quit`

// printNavigator reports route changes on the terminal.
type printNavigator struct {
	mu  sync.Mutex
	out io.Writer
}

func (n *printNavigator) Navigate(_ context.Context, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "-> %s\n", path)
}

type shell struct {
	client   *goSession.Client
	bus      *inactivity.Bus
	login    *loginpage.Controller
	page     *dashboard.Page
	guard    guard.Config
	exporter *prometheus.PrometheusExporter
	otel     *otelView
	out      io.Writer
	logger   *zap.Logger
}

// newShell builds the command loop. ov may be nil when OpenTelemetry export
// is off.
func newShell(client *goSession.Client, bus *inactivity.Bus, nav goSession.Navigator, exporter *prometheus.PrometheusExporter, ov *otelView, out io.Writer, logger *zap.Logger) *shell {
	routes := client.Config().Routes
	return &shell{
		client: client,
		bus:    bus,
		login: loginpage.New(client, loginpage.Config{
			Navigator:   nav,
			HomePath:    routes.HomePath,
			LoadProfile: true,
			Logger:      logger,
		}),
		page:     dashboard.New(client, nav, routes.LoginPath, logger),
		guard:    guard.ConfigFromRoutes(routes),
		exporter: exporter,
		otel:     ov,
		out:      out,
		logger:   logger,
	}
}

func (s *shell) Close() {
	s.login.Close()
}

// run reads commands until EOF, quit, or ctx is done.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(s.out, "type 'help' for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			s.bus.Dispatch(inactivity.KeyDown)
			if err := s.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintf(s.out, "error: %s\n", describe(err))
			}
		}
	}
}

func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "help":
		fmt.Fprintln(s.out, helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "login":
		if len(args) != 2 {
			return errors.New("usage: login <identifier> <password>")
		}
		return s.doLogin(ctx, args[0], args[1])
	case "me":
		u, err := s.client.LoadCurrentUser(ctx)
		if err != nil {
			return err
		}
		return s.printJSON(struct {
			*goSession.User
			Initials string `json:"initials"`
		}{u, dashboard.Initials(u)})
	case "refresh":
		if err := s.page.Refresh(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "session refreshed")
		return nil
	case "logout":
		return s.page.Logout(ctx)
	case "logout-all":
		return s.page.LogoutAll(ctx)
	case "status":
		s.printStatus()
		return nil
	case "get":
		if len(args) != 1 {
			return errors.New("usage: get <path>")
		}
		return s.get(ctx, args[0])
	case "metrics":
		fmt.Fprint(s.out, s.exporter.Render())
		return nil
	case "otel":
		if s.otel == nil {
			return errors.New("OpenTelemetry export is off; start with -otel")
		}
		text, err := s.otel.Render(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(s.out, text)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (s *shell) doLogin(ctx context.Context, identifier, password string) error {
	out, err := s.login.SubmitForm(ctx, identifier, password)
	st := s.login.State()
	switch out {
	case loginpage.OutcomeSuccess:
		fmt.Fprintln(s.out, "logged in")
		return nil
	case loginpage.OutcomeIgnored:
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "rate limited, retry in %ds\n", st.RateLimitSeconds)
		return nil
	case loginpage.OutcomeInvalidForm:
		return err
	}

	fmt.Fprintln(s.out, st.ErrorMessage)
	switch {
	case st.Lock != nil:
		fmt.Fprintf(s.out, "account locked for %d more minute(s)\n", st.Lock.MinutesRemaining())
	case st.RateLimited:
		fmt.Fprintf(s.out, "retry in %ds\n", st.RateLimitSeconds)
	case st.FailedAttempts > 0:
		fmt.Fprintf(s.out, "failed attempts: %d\n", st.FailedAttempts)
	}
	return nil
}

func (s *shell) printStatus() {
	fmt.Fprintf(s.out, "authenticated: %v\n", s.client.IsAuth())
	if u := s.client.CurrentUser(); u != nil {
		fmt.Fprintf(s.out, "user: %s [%s]\n", u.Username, dashboard.Initials(u))
	}
	if exp, ok := s.client.AccessTokenExpiry(); ok {
		fmt.Fprintf(s.out, "access token expires: %s\n", exp.Format(time.RFC3339))
	}
	fmt.Fprintf(s.out, "inactivity: %s\n", s.client.InactivityState())
	if st := s.login.State(); st.RateLimited {
		fmt.Fprintf(s.out, "login blocked for %ds\n", st.RateLimitSeconds)
	}
}

func (s *shell) get(ctx context.Context, path string) error {
	if d := guard.Check(s.client, path, s.guard); !d.Allowed {
		fmt.Fprintf(s.out, "not authenticated -> %s\n", d.Redirect)
		return nil
	}

	url := strings.TrimRight(s.client.Config().API.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.HTTPClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d %s\n%s\n", resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body)))
	return nil
}

func (s *shell) printJSON(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe prefers the backend's user-facing message.
func describe(err error) string {
	if se, ok := transport.AsStatusError(err); ok {
		return se.Error()
	}
	return err.Error()
}
