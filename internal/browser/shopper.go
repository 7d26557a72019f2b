package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/cartpilot/cartpilot/pkg/config"
)

// AddStatus is the three-way outcome of an add attempt. Lower-level
// faults never escape past the Shopper boundary; they are folded into
// one of these.
type AddStatus string

const (
	AddAdded          AddStatus = "added"
	AddNotFound       AddStatus = "not_found"
	AddTransientError AddStatus = "error"
)

type AddOutcome struct {
	Status AddStatus
	Price  float64
	Reason string
}

// Option is one candidate result card from a search.
type Option struct {
	Index    int     `json:"index"`
	Title    string  `json:"title"`
	PriceStr string  `json:"price_str"`
	Price    float64 `json:"-"`
}

// Shopper drives one page through search, result selection and
// add-to-cart for a single requested item.
type Shopper struct {
	loc *Locator
	cfg config.ShoppingConfig
}

func NewShopper(loc *Locator, cfg config.ShoppingConfig) *Shopper {
	return &Shopper{loc: loc, cfg: cfg}
}

// AddItem searches for the item and clicks the add-to-cart control on
// the first result card only, to avoid sponsored or unrelated results.
// A missing price parses to zero rather than failing the add.
func (sh *Shopper) AddItem(ctx context.Context, name string) AddOutcome {
	log.Printf("Searching for: %s", name)

	if err := sh.search(ctx, name); err != nil {
		return AddOutcome{Status: AddTransientError, Reason: err.Error()}
	}
	sh.waitForResults(ctx)

	card, err := sh.loc.Locate(ctx, "", ResultCard)
	if err != nil {
		return AddOutcome{Status: AddNotFound, Reason: "no results"}
	}

	price := sh.cardPrice(ctx, card)

	btn, err := sh.loc.Locate(ctx, card, AddToCartButton)
	if err != nil {
		reason := "add control missing"
		if errors.Is(err, ErrHidden) {
			reason = "add control hidden"
		}
		return AddOutcome{Status: AddNotFound, Reason: reason}
	}

	if err := chromedp.Run(ctx, chromedp.Click(btn, chromedp.ByQuery)); err != nil {
		return AddOutcome{Status: AddTransientError, Reason: fmt.Sprintf("click failed: %v", err)}
	}

	// Let the cart UI settle before the next operation starts.
	time.Sleep(time.Duration(sh.cfg.SettleDelaySeconds) * time.Second)
	return AddOutcome{Status: AddAdded, Price: price}
}

// GetOptions searches for the item and returns up to MaxOptions leading
// result cards with their titles and prices.
func (sh *Shopper) GetOptions(ctx context.Context, name string) ([]Option, error) {
	if err := sh.search(ctx, name); err != nil {
		return nil, err
	}
	sh.waitForResults(ctx)

	script := fmt.Sprintf(`(function(max) {
		var cards = document.querySelectorAll('div[data-component-type="s-search-result"]');
		var out = [];
		for (var i = 0; i < cards.length && i < max; i++) {
			var title = cards[i].querySelector("h2");
			var price = cards[i].querySelector(".a-price .a-offscreen");
			out.push({
				index: i,
				title: title ? title.textContent.trim() : "",
				price_str: price ? price.textContent.trim() : ""
			});
		}
		return out;
	})(%d)`, sh.cfg.MaxOptions)

	var opts []Option
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &opts)); err != nil {
		return nil, fmt.Errorf("failed to read result cards: %v", err)
	}
	for i := range opts {
		opts[i].Price = parsePrice(opts[i].PriceStr)
	}
	return opts, nil
}

// SelectOption adds the result card at the given index from the most
// recent search.
func (sh *Shopper) SelectOption(ctx context.Context, index int) error {
	indexArg, _ := json.Marshal(index)
	script := fmt.Sprintf(`(function(i) {
		var cards = document.querySelectorAll('div[data-component-type="s-search-result"]');
		if (i >= cards.length) return "";
		cards[i].setAttribute("data-cartpilot-card", "selected");
		cards[i].scrollIntoView();
		return '[data-cartpilot-card="selected"]';
	})(%s)`, indexArg)

	var card string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &card)); err != nil {
		return fmt.Errorf("failed to scope result card: %v", err)
	}
	if card == "" {
		return fmt.Errorf("result card %d: %w", index, ErrNotFound)
	}

	btn, err := sh.loc.Locate(ctx, card, AddToCartButton)
	if err != nil {
		return err
	}
	if err := chromedp.Run(ctx, chromedp.Click(btn, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click failed: %v", err)
	}
	time.Sleep(time.Duration(sh.cfg.SettleDelaySeconds) * time.Second)
	return nil
}

// search clears the search field, types the query and submits it.
func (sh *Shopper) search(ctx context.Context, query string) error {
	box, err := sh.loc.Locate(ctx, "", SearchBox)
	if err != nil {
		return fmt.Errorf("search box unavailable: %v", err)
	}
	return chromedp.Run(ctx,
		chromedp.SetValue(box, "", chromedp.ByQuery),
		chromedp.SendKeys(box, query, chromedp.ByQuery),
		chromedp.SendKeys(box, kb.Enter, chromedp.ByQuery),
	)
}

// waitForResults polls for the results container up to the configured
// timeout. A timeout is not fatal; the caller proceeds with whatever
// the page shows.
func (sh *Shopper) waitForResults(ctx context.Context) {
	deadline := time.Now().Add(time.Duration(sh.cfg.ResultsTimeoutSeconds) * time.Second)
	script := `document.querySelectorAll('div[data-component-type="s-search-result"]').length`

	for time.Now().Before(deadline) {
		var count int
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &count)); err == nil && count > 0 {
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	log.Printf("Search results did not appear in time, proceeding anyway")
}

// cardPrice reads the price text from one result card; absence or a
// parse failure yields zero.
func (sh *Shopper) cardPrice(ctx context.Context, cardSel string) float64 {
	scopeArg, _ := json.Marshal(cardSel)
	script := fmt.Sprintf(`(function(sel) {
		var card = document.querySelector(sel);
		if (!card) return "";
		var el = card.querySelector(".a-price .a-offscreen");
		return el ? el.textContent.trim() : "";
	})(%s)`, scopeArg)

	var text string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &text)); err != nil {
		return 0
	}
	return parsePrice(text)
}

// parsePrice converts a displayed price like "$12.49" to a number.
// Anything unparseable is worth zero, not an error.
func parsePrice(text string) float64 {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}
