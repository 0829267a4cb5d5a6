package loginpage

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/observable"
	"github.com/MrEthical07/goSession/transport"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// DefaultRetryAfter applies when a 429 carries no retry hint.
	DefaultRetryAfter = 60 * time.Second
	countdownTick     = time.Second
)

const (
	MsgInvalidCredentials = "Invalid username or password"
	MsgAccountLocked      = "Account locked. Please contact support"
	MsgTooManyAttempts    = "Too many login attempts. Please try again later"
	MsgServerError        = "Server error. Please try again later"
	MsgUnexpected         = "An unexpected error occurred. Please try again"
)

var ErrControllerClosed = errors.New("login controller closed")

// SessionClient is the slice of *goSession.Client the controller uses.
type SessionClient interface {
	Login(ctx context.Context, identifier, password string) (*goSession.TokenResponse, error)
	LoadCurrentUser(ctx context.Context) (*goSession.User, error)
}

// Outcome classifies a submission.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeSuccess
	OutcomeInvalidForm
	OutcomeInvalidCredentials
	OutcomeLocked
	OutcomeRateLimited
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidForm:
		return "invalid_form"
	case OutcomeInvalidCredentials:
		return "invalid_credentials"
	case OutcomeLocked:
		return "locked"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "error"
	}
}

// Config wires a Controller. Zero fields take defaults.
type Config struct {
	Navigator goSession.Navigator
	// HomePath is the post-login target when ReturnPath is empty or unsafe.
	HomePath string
	// ReturnPath is the destination the guard recorded, if any.
	ReturnPath string

	DefaultRetryAfter time.Duration
	LockRecompute     time.Duration
	// LoadProfile fetches the current user after a successful login.
	LoadProfile bool

	Clock  clockwork.Clock
	Logger *zap.Logger
}

// State is a snapshot of the login screen.
type State struct {
	Loading          bool
	ErrorMessage     string
	FailedAttempts   int
	RateLimited      bool
	RateLimitSeconds int
	Lock             *LockDialog
}

// Controller implements the login screen's failure handling. It is safe for
// concurrent use; overlapping submissions are ignored.
type Controller struct {
	client SessionClient
	cfg    Config
	clock  clockwork.Clock
	logger *zap.Logger

	loading   *observable.Value[bool]
	message   *observable.Value[string]
	failed    *observable.Value[int]
	countdown *observable.Value[int]
	dialog    *observable.Value[*LockDialog]

	rep *repeater

	mu           sync.Mutex
	submitting   bool
	rateDeadline time.Time
	closed       bool
}

// New returns a controller submitting through client.
func New(client SessionClient, cfg Config) *Controller {
	if cfg.Navigator == nil {
		cfg.Navigator = goSession.NavigatorFunc(func(context.Context, string) {})
	}
	if cfg.HomePath == "" {
		cfg.HomePath = goSession.DefaultHomePath
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = DefaultRetryAfter
	}
	if cfg.LockRecompute <= 0 {
		cfg.LockRecompute = DefaultLockRecompute
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Controller{
		client:    client,
		cfg:       cfg,
		clock:     cfg.Clock,
		logger:    cfg.Logger.Named("loginpage"),
		loading:   observable.NewValue(false),
		message:   observable.NewValue(""),
		failed:    observable.NewValue(0),
		countdown: observable.NewValue(0),
		dialog:    observable.NewValue[*LockDialog](nil),
		rep:       newRepeater(cfg.Clock),
	}
}

/*
====================================
SUBMIT
====================================
*/

// SubmitForm validates the form fields before submitting.
func (c *Controller) SubmitForm(ctx context.Context, identifier, password string) (Outcome, error) {
	if err := ValidateForm(identifier, password); err != nil {
		return OutcomeInvalidForm, err
	}
	return c.Submit(ctx, identifier, password)
}

// Submit logs in with the given credentials. While a rate-limit countdown
// runs, or another submission is in flight, the call is ignored and returns
// OutcomeIgnored with a nil error. Backend failures return the classified
// outcome together with the login error.
func (c *Controller) Submit(ctx context.Context, identifier, password string) (Outcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return OutcomeIgnored, ErrControllerClosed
	}
	if c.submitting || c.rateLimitedLocked() {
		c.mu.Unlock()
		return OutcomeIgnored, nil
	}
	c.submitting = true
	c.mu.Unlock()

	c.loading.Set(true)
	c.message.Set("")
	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
		c.loading.Set(false)
	}()

	if _, err := c.client.Login(ctx, identifier, password); err != nil {
		return c.handleFailure(err), err
	}

	c.failed.Set(0)
	if c.cfg.LoadProfile {
		if _, err := c.client.LoadCurrentUser(ctx); err != nil {
			c.logger.Warn("profile load after login failed", zap.Error(err))
		}
	}
	c.cfg.Navigator.Navigate(ctx, guard.SafeReturnPath(c.cfg.ReturnPath, c.cfg.HomePath))
	return OutcomeSuccess, nil
}

func (c *Controller) handleFailure(err error) Outcome {
	status := goSession.StatusOf(err)
	c.logger.Info("login rejected", zap.Int("status", status))

	switch status {
	case http.StatusUnauthorized:
		c.failed.Set(c.failed.Get() + 1)
		c.message.Set(MsgInvalidCredentials)
		return OutcomeInvalidCredentials

	case http.StatusForbidden:
		c.message.Set(MsgAccountLocked)
		if se, ok := transport.AsStatusError(err); ok {
			if until, ok := se.LockedUntil(); ok {
				c.failed.Set(0)
				c.showLock(until)
			}
		}
		return OutcomeLocked

	case http.StatusTooManyRequests:
		c.message.Set(MsgTooManyAttempts)
		wait := c.cfg.DefaultRetryAfter
		if se, ok := transport.AsStatusError(err); ok {
			if d, ok := se.RetryAfterAt(c.clock.Now()); ok {
				wait = d
			}
		}
		c.startCountdown(wait)
		return OutcomeRateLimited

	case http.StatusInternalServerError:
		c.message.Set(MsgServerError)
		return OutcomeError

	default:
		c.message.Set(MsgUnexpected)
		return OutcomeError
	}
}

/*
====================================
RATE LIMIT COUNTDOWN
====================================
*/

func (c *Controller) rateLimitedLocked() bool {
	return !c.rateDeadline.IsZero() && c.clock.Now().Before(c.rateDeadline)
}

func secondsUntil(now, deadline time.Time) int {
	diff := deadline.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int((diff + time.Second - 1) / time.Second)
}

// startCountdown replaces any running countdown with one of length wait.
func (c *Controller) startCountdown(wait time.Duration) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.rateDeadline = c.clock.Now().Add(wait)
	secs := secondsUntil(c.clock.Now(), c.rateDeadline)
	if secs == 0 {
		c.rateDeadline = time.Time{}
	}
	c.mu.Unlock()

	c.countdown.Set(secs)
	if secs == 0 {
		c.rep.stop()
		return
	}
	c.rep.start(countdownTick, c.tickCountdown)
}

func (c *Controller) tickCountdown() bool {
	c.mu.Lock()
	secs := secondsUntil(c.clock.Now(), c.rateDeadline)
	if secs == 0 {
		c.rateDeadline = time.Time{}
	}
	c.mu.Unlock()

	c.countdown.Set(secs)
	return secs > 0
}

/*
====================================
LOCK DIALOG
====================================
*/

func (c *Controller) showLock(until time.Time) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if prev := c.dialog.Get(); prev != nil {
		prev.Close()
	}
	d := OpenLockDialog(c.clock, until, c.cfg.LockRecompute, c.lockClosed)
	if d.IsOpen() {
		c.dialog.Set(d)
	}
}

func (c *Controller) lockClosed(d *LockDialog) {
	if c.dialog.Get() == d {
		c.dialog.Set(nil)
	}
}

/*
====================================
STATE
====================================
*/

// State returns a snapshot of the screen.
func (c *Controller) State() State {
	secs := c.countdown.Get()
	return State{
		Loading:          c.loading.Get(),
		ErrorMessage:     c.message.Get(),
		FailedAttempts:   c.failed.Get(),
		RateLimited:      secs > 0,
		RateLimitSeconds: secs,
		Lock:             c.dialog.Get(),
	}
}

func (c *Controller) Loading() *observable.Value[bool]       { return c.loading }
func (c *Controller) ErrorMessage() *observable.Value[string] { return c.message }
func (c *Controller) FailedAttempts() *observable.Value[int]  { return c.failed }

// RateLimitCountdown holds the seconds left on the rate-limit cooldown, 0
// when submission is allowed.
func (c *Controller) RateLimitCountdown() *observable.Value[int] { return c.countdown }

// LockDialog holds the open lock dialog, nil when none is shown.
func (c *Controller) LockDialog() *observable.Value[*LockDialog] { return c.dialog }

// Close stops the countdown and closes any open lock dialog. Later
// submissions return ErrControllerClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.rateDeadline = time.Time{}
	c.mu.Unlock()

	c.rep.stop()
	if d := c.dialog.Get(); d != nil {
		d.Close()
	}
}
