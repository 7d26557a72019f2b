package browser

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cartpilot/cartpilot/pkg/config"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return NewSession(config.BrowserConfig{
		SessionFile:      filepath.Join(t.TempDir(), "session.json"),
		LoginWaitSeconds: 1,
	}, config.ShoppingConfig{
		ResultsTimeoutSeconds: 1,
		SettleDelaySeconds:    1,
		MaxOptions:            3,
	})
}

func TestSessionStartsUninitialized(t *testing.T) {
	s := newTestSession(t)
	if s.State() != StateUninitialized {
		t.Errorf("Expected %s, got %s", StateUninitialized, s.State())
	}
}

func TestOperationsRequireReadySession(t *testing.T) {
	s := newTestSession(t)

	out := s.AddItem(context.Background(), "milk")
	if out.Status != AddTransientError {
		t.Errorf("Expected %s outcome before Start, got %s", AddTransientError, out.Status)
	}

	if _, err := s.GetOptions(context.Background(), "milk"); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
	if err := s.SelectOption(context.Background(), 0); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
	if err := s.Checkout(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

func TestCheckoutTriggerPollGivesUpAtDeadline(t *testing.T) {
	// The trigger poll must bound itself by its window rather than
	// wait a fixed delay; with no page it comes back empty-handed.
	s := newTestSession(t)

	start := time.Now()
	_, _, ok := s.awaitCheckoutTrigger(context.Background(), 500*time.Millisecond)
	if ok {
		t.Fatal("Expected no checkout trigger without a page")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Poll overran its window: %v", elapsed)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestSession(t)

	if err := s.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("Expected %s, got %s", StateClosed, s.State())
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second close must be a no-op, got %v", err)
	}
}

func TestStartAfterCloseFails(t *testing.T) {
	s := newTestSession(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("Expected Start to fail on a closed session")
	}
}
