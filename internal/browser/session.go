package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/cartpilot/cartpilot/internal/observability"
	"github.com/cartpilot/cartpilot/pkg/config"
)

// SessionState tracks the controller lifecycle. At most one active
// session exists per process; the workflow never touches the page
// except through this controller.
type SessionState string

const (
	StateUninitialized  SessionState = "uninitialized"
	StateAuthenticating SessionState = "authenticating"
	StateReady          SessionState = "ready"
	StateClosed         SessionState = "closed"
)

var ErrNotReady = errors.New("browser session is not ready")

// Session owns the single live browser page: launch, authenticate or
// resume, item operations, checkout, shutdown.
type Session struct {
	mu    sync.Mutex
	state SessionState

	cfg      config.BrowserConfig
	shopping config.ShoppingConfig

	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc

	locator *Locator
	shopper *Shopper
}

func NewSession(cfg config.BrowserConfig, shopping config.ShoppingConfig) *Session {
	loc := NewLocator()
	return &Session{
		state:    StateUninitialized,
		cfg:      cfg,
		shopping: shopping,
		locator:  loc,
		shopper:  NewShopper(loc, shopping),
	}
}

// SetEvents attaches the structured event logger so locator
// resolutions are reported against the given run. Call before Start.
func (s *Session) SetEvents(events *observability.Logger, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locator.Events = events
	s.locator.RunID = runID
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches a visible browser, restores any saved session and, if
// the page still shows a signed-out state, opens a bounded window for a
// human to sign in and pick a delivery region before the session is
// persisted and marked Ready. Navigation faults degrade to the
// manual-login path rather than aborting.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return fmt.Errorf("cannot start session in state %s", s.state)
	}
	s.state = StateAuthenticating

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", false),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	s.browserCtx, s.browserCancel = chromedp.NewContext(s.allocCtx)

	if err := chromedp.Run(s.browserCtx); err != nil {
		s.teardownLocked()
		s.state = StateClosed
		return fmt.Errorf("failed to launch browser: %v", err)
	}

	if err := restoreCookies(s.browserCtx, s.cfg.SessionFile); err != nil {
		log.Printf("No saved session restored: %v", err)
	} else {
		log.Printf("Saved session restored from %s", s.cfg.SessionFile)
	}

	navCtx, cancel := context.WithTimeout(s.browserCtx, 30*time.Second)
	err := chromedp.Run(navCtx, chromedp.Navigate(s.cfg.StorefrontURL))
	cancel()
	if err != nil {
		// Treat a navigation fault as "authentication likely
		// required"; the manual window below is the recovery path.
		log.Printf("Storefront navigation failed (%v), assuming login required", err)
	}

	if s.signedOut() {
		log.Printf("ACTION REQUIRED: sign in manually and confirm your delivery ZIP (waiting up to %ds)", s.cfg.LoginWaitSeconds)
		s.awaitLogin(time.Duration(s.cfg.LoginWaitSeconds) * time.Second)
	} else {
		log.Printf("Already signed in, skipping manual login window")
	}

	if err := saveCookies(s.browserCtx, s.cfg.SessionFile); err != nil {
		log.Printf("Warning: failed to persist session: %v", err)
	}

	s.state = StateReady
	return nil
}

// signedOut checks the account indicator in the page header. Any fault
// reading it is treated as signed out.
func (s *Session) signedOut() bool {
	checkCtx, cancel := context.WithTimeout(s.browserCtx, 5*time.Second)
	defer cancel()

	var out bool
	script := `(function() {
		var el = document.querySelector("#nav-link-accountList-nav-line-1");
		if (!el) return true;
		return el.textContent.indexOf("Sign in") !== -1;
	})()`
	if err := chromedp.Run(checkCtx, chromedp.Evaluate(script, &out)); err != nil {
		return true
	}
	return out
}

// awaitLogin polls the account indicator until the human signs in or
// the window elapses. Either way the session proceeds; a still-signed-
// out session simply fails item adds later.
func (s *Session) awaitLogin(window time.Duration) {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		time.Sleep(3 * time.Second)
		if !s.signedOut() {
			log.Printf("Sign-in detected")
			return
		}
	}
	log.Printf("Login window elapsed, continuing")
}

func (s *Session) ready() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, s.state)
	}
	return s.browserCtx, nil
}

// AddItem searches for one item and adds the first result to the cart.
// All page-level faults are normalized into the returned outcome.
func (s *Session) AddItem(ctx context.Context, name string) AddOutcome {
	tab, err := s.ready()
	if err != nil {
		return AddOutcome{Status: AddTransientError, Reason: err.Error()}
	}
	opCtx, cancel := context.WithTimeout(tab, 60*time.Second)
	defer cancel()
	return s.shopper.AddItem(opCtx, name)
}

// GetOptions searches for an item and returns the leading result cards
// without adding anything.
func (s *Session) GetOptions(ctx context.Context, name string) ([]Option, error) {
	tab, err := s.ready()
	if err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(tab, 60*time.Second)
	defer cancel()
	return s.shopper.GetOptions(opCtx, name)
}

// SelectOption adds the result card at the given index from the most
// recent search.
func (s *Session) SelectOption(ctx context.Context, index int) error {
	tab, err := s.ready()
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(tab, 60*time.Second)
	defer cancel()
	return s.shopper.SelectOption(opCtx, index)
}

// Checkout navigates to the cart and clicks the first usable checkout
// trigger. It never places the final order; the workflow's approval
// gate owns that decision.
func (s *Session) Checkout(ctx context.Context) error {
	tab, err := s.ready()
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(tab, 60*time.Second)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Navigate(s.cfg.CartURL)); err != nil {
		return fmt.Errorf("failed to open cart: %v", err)
	}

	handle, desc, ok := s.awaitCheckoutTrigger(opCtx, 10*time.Second)
	if !ok {
		return fmt.Errorf("no checkout trigger found: %w", ErrNotFound)
	}
	if err := chromedp.Run(opCtx, chromedp.Click(handle, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("checkout click failed: %v", err)
	}
	log.Printf("Checkout trigger clicked: %s", desc)
	return nil
}

// awaitCheckoutTrigger polls the cart page until one of the trigger
// variants becomes locatable or the window elapses. The cart page
// renders its buttons late, so absence on the first pass is normal.
func (s *Session) awaitCheckoutTrigger(ctx context.Context, window time.Duration) (handle, desc string, ok bool) {
	deadline := time.Now().Add(window)
	for {
		for _, trigger := range CheckoutTriggers {
			h, err := s.locator.Locate(ctx, "", trigger)
			if err != nil {
				continue
			}
			return h, trigger.Desc, true
		}
		if !time.Now().Before(deadline) {
			return "", "", false
		}
		time.Sleep(250 * time.Millisecond)
	}
}

// Close persists the session and releases the browser. Closing an
// already-closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed || s.state == StateUninitialized {
		s.state = StateClosed
		return nil
	}

	if err := saveCookies(s.browserCtx, s.cfg.SessionFile); err != nil {
		log.Printf("Warning: failed to persist session on close: %v", err)
	}

	s.teardownLocked()
	s.state = StateClosed
	return nil
}

func (s *Session) teardownLocked() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.allocCtx = nil
}
