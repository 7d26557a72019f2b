package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cartpilot/cartpilot/internal/observability"
)

func TestStrategyOrderPrefersRoles(t *testing.T) {
	// The robustness ranking is part of the contract: accessible role
	// first, stable attribute next, legacy tag last.
	strats := AddToCartButton.Strategies
	if len(strats) != 4 {
		t.Fatalf("Expected 4 fallback strategies, got %d", len(strats))
	}
	if strats[0].Kind != KindRole || strats[0].Exact {
		t.Errorf("First strategy should be fuzzy role match, got %+v", strats[0])
	}
	if strats[1].Kind != KindRole || !strats[1].Exact {
		t.Errorf("Second strategy should be exact role match, got %+v", strats[1])
	}
	if strats[2].Kind != KindCSS || !strings.HasPrefix(strats[2].Selector, "button") {
		t.Errorf("Third strategy should be the stable button attribute, got %+v", strats[2])
	}
	if strats[3].Kind != KindCSS || !strings.HasPrefix(strats[3].Selector, "input") {
		t.Errorf("Fourth strategy should be the legacy input tag, got %+v", strats[3])
	}
}

func TestBuildLocateScript(t *testing.T) {
	script, err := buildLocateScript(`div[data-cartpilot-handle="cp-1"]`,
		Strategy{Kind: KindRole, Role: "button", Name: "add to cart"}, "cp-2")
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		`"div[data-cartpilot-handle=\"cp-1\"]"`,
		`"kind":"role"`,
		`"role":"button"`,
		`"name":"add to cart"`,
		`"cp-2"`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("Script missing %s", want)
		}
	}
}

func TestBuildLocateScriptOmitsEmptyFields(t *testing.T) {
	script, err := buildLocateScript("", Strategy{Kind: KindCSS, Selector: "input#q"}, "cp-1")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(script, `"role"`) {
		t.Error("CSS strategy should not carry a role field")
	}
	if !strings.Contains(script, `"selector":"input#q"`) {
		t.Error("Script missing selector field")
	}
}

func TestLocateWithoutPageReturnsNotFound(t *testing.T) {
	// With no page attached every strategy evaluation faults, which
	// counts as a miss; the caller sees ErrNotFound, never a panic or
	// a raw page error.
	loc := NewLocator()
	handle, err := loc.Locate(context.Background(), "", AddToCartButton)
	if handle != "" {
		t.Errorf("Expected empty handle, got %q", handle)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), AddToCartButton.Desc) {
		t.Errorf("Error should name the target, got %v", err)
	}
}

func TestLocateReportsMissToEventLogger(t *testing.T) {
	loc := NewLocator()
	loc.Events = observability.NewLogger()
	loc.RunID = "run-loc"

	if _, err := loc.Locate(context.Background(), "", SearchBox); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound with event logging attached, got %v", err)
	}
}

func TestCheckoutTriggerOrder(t *testing.T) {
	if len(CheckoutTriggers) != 3 {
		t.Fatalf("Expected 3 checkout triggers, got %d", len(CheckoutTriggers))
	}
	if CheckoutTriggers[0].Strategies[0].Kind != KindRole {
		t.Error("First checkout trigger should be role-based")
	}
	if CheckoutTriggers[1].Strategies[0].Kind != KindCSS {
		t.Error("Second checkout trigger should be the attribute fallback")
	}
}
