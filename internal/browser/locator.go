package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/cartpilot/cartpilot/internal/observability"
)

// The target page is third-party and changes its markup without notice,
// so every semantic target carries an ordered fallback chain: the most
// robust signal (accessible role + label) is tried first, raw selectors
// last. Absence is a normal outcome, never an error from the page.

var (
	ErrNotFound = errors.New("element not found")
	ErrHidden   = errors.New("element found but hidden")
)

type StrategyKind string

const (
	// KindRole matches by accessible role plus label text
	// (aria-label, placeholder, value or visible text).
	KindRole StrategyKind = "role"
	// KindCSS matches a raw selector, used for stable attributes and
	// legacy tag fallbacks.
	KindCSS StrategyKind = "css"
)

// Strategy is one declarative entry in a fallback chain.
type Strategy struct {
	Kind     StrategyKind `json:"kind"`
	Role     string       `json:"role,omitempty"`
	Name     string       `json:"name,omitempty"`
	Exact    bool         `json:"exact,omitempty"`
	Selector string       `json:"selector,omitempty"`
}

// Target is a semantic description of a UI element, independent of the
// page's concrete markup.
type Target struct {
	Desc       string
	Strategies []Strategy
}

// Semantic targets for the storefront. Adding or reordering a strategy
// here changes every call site at once.
var (
	SearchBox = Target{
		Desc: "search box",
		Strategies: []Strategy{
			{Kind: KindRole, Role: "searchbox", Name: "search"},
			{Kind: KindCSS, Selector: `input#twotabsearchtextbox`},
			{Kind: KindCSS, Selector: `input[name="field-keywords"]`},
		},
	}

	AddToCartButton = Target{
		Desc: "add to cart button",
		Strategies: []Strategy{
			{Kind: KindRole, Role: "button", Name: "add to cart"},
			{Kind: KindRole, Role: "button", Name: "add", Exact: true},
			{Kind: KindCSS, Selector: `button[name="submit.addToCart"]`},
			{Kind: KindCSS, Selector: `input[name="submit.addToCart"]`},
		},
	}

	ResultCard = Target{
		Desc: "search result card",
		Strategies: []Strategy{
			{Kind: KindCSS, Selector: `div[data-component-type="s-search-result"]`},
		},
	}
)

// CheckoutTriggers are tried in order on the cart page; role-based
// first, then the attribute fallbacks the site has shipped over time.
var CheckoutTriggers = []Target{
	{Desc: "fresh checkout button", Strategies: []Strategy{
		{Kind: KindRole, Role: "button", Name: "check out fresh cart"},
	}},
	{Desc: "fresh checkout input", Strategies: []Strategy{
		{Kind: KindCSS, Selector: `input[name="proceedToALMCheckout-QW1hem9uIEZyZXNo"]`},
	}},
	{Desc: "generic checkout button", Strategies: []Strategy{
		{Kind: KindRole, Role: "button", Name: "proceed to checkout"},
	}},
}

// locateScript runs in the page. It evaluates one strategy inside an
// optional scope, tags the first match with a handle attribute and
// reports match count and visibility.
const locateScript = `(function(scopeSel, strat, token) {
	var scope = scopeSel ? document.querySelector(scopeSel) : document;
	if (!scope) return {matches: 0};

	var els = [];
	if (strat.kind === "css") {
		els = Array.prototype.slice.call(scope.querySelectorAll(strat.selector));
	} else {
		var base = 'button, input[type="submit"], input[type="button"], [role="' + strat.role + '"]';
		if (strat.role === "searchbox") {
			base = 'input[type="text"], input[type="search"], [role="searchbox"]';
		}
		var want = (strat.name || "").toLowerCase();
		els = Array.prototype.slice.call(scope.querySelectorAll(base)).filter(function(el) {
			if (!want) return true;
			var label = (el.getAttribute("aria-label") || el.getAttribute("placeholder") ||
				el.value || el.textContent || "").trim().toLowerCase();
			return strat.exact ? label === want : label.indexOf(want) !== -1;
		});
	}
	if (els.length === 0) return {matches: 0};

	var el = els[0];
	var visible = !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
	if (!visible) return {matches: els.length, hidden: true};

	el.setAttribute("data-cartpilot-handle", token);
	return {matches: els.length, handle: '[data-cartpilot-handle="' + token + '"]'};
})(%s, %s, %s)`

type locateResult struct {
	Matches int    `json:"matches"`
	Hidden  bool   `json:"hidden"`
	Handle  string `json:"handle"`
}

// Locator resolves semantic targets to clickable selector handles.
// Events and RunID are optional; when set, every resolution emits a
// locator event naming the target and the strategy that decided it.
type Locator struct {
	seq    int
	Events *observability.Logger
	RunID  string
}

func NewLocator() *Locator {
	return &Locator{}
}

// Locate tries the target's strategies in order and returns a selector
// for the first strategy that matches. A match that exists but is not
// visible yields ErrHidden so callers can decide to scroll or wait; no
// match under any strategy yields ErrNotFound.
func (l *Locator) Locate(ctx context.Context, scopeSel string, t Target) (string, error) {
	for i, strat := range t.Strategies {
		res, err := l.eval(ctx, scopeSel, strat)
		if err != nil {
			// Evaluation faults (navigation mid-flight, detached
			// frame) count as a miss for this strategy.
			continue
		}
		if res.Matches == 0 {
			continue
		}
		if res.Hidden {
			l.logOutcome(t.Desc, fmt.Sprintf("hidden via strategy %d (%s)", i+1, strat.Kind))
			return "", fmt.Errorf("%s: %w", t.Desc, ErrHidden)
		}
		l.logOutcome(t.Desc, fmt.Sprintf("hit via strategy %d (%s)", i+1, strat.Kind))
		return res.Handle, nil
	}
	l.logOutcome(t.Desc, "miss")
	return "", fmt.Errorf("%s: %w", t.Desc, ErrNotFound)
}

func (l *Locator) logOutcome(target, outcome string) {
	if l.Events == nil {
		return
	}
	l.Events.LogLocator(l.RunID, target, outcome)
}

func (l *Locator) eval(ctx context.Context, scopeSel string, strat Strategy) (locateResult, error) {
	l.seq++
	token := fmt.Sprintf("cp-%d", l.seq)

	script, err := buildLocateScript(scopeSel, strat, token)
	if err != nil {
		return locateResult{}, err
	}

	var res locateResult
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return locateResult{}, err
	}
	return res, nil
}

func buildLocateScript(scopeSel string, strat Strategy, token string) (string, error) {
	scopeArg, err := json.Marshal(scopeSel)
	if err != nil {
		return "", err
	}
	stratArg, err := json.Marshal(strat)
	if err != nil {
		return "", err
	}
	tokenArg, err := json.Marshal(token)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(locateScript, scopeArg, stratArg, tokenArg), nil
}
