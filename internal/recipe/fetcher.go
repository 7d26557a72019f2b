package recipe

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Fetcher pulls down the recipe links a meal plan mentions so the
// extraction step can pick up ingredients from the linked pages too.
type Fetcher struct {
	UserAgent  string
	Client     *http.Client
	MaxPerPlan int
	MaxChars   int
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Client:     &http.Client{Timeout: 30 * time.Second},
		MaxPerPlan: 4,
		MaxChars:   8000,
	}
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractURLs returns the distinct http(s) links found in the text,
// with trailing punctuation stripped.
func ExtractURLs(text string) []string {
	raw := urlPattern.FindAllString(text, -1)
	seen := make(map[string]bool)
	var urls []string
	for _, u := range raw {
		u = strings.TrimRight(u, ".,;:)]}")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// FetchText downloads one page and returns its readable content as
// clean, sanitized text.
func (f *Fetcher) FetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %v", err)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %v", err)
	}

	// Sanitize output (remove any remaining HTML tags or scripts)
	p := bluemonday.StrictPolicy()
	content := p.Sanitize(article.TextContent)

	if len(content) > f.MaxChars {
		content = content[:f.MaxChars] + "\n... (content truncated) ..."
	}

	out := fmt.Sprintf("RECIPE: %s\n%s", article.Title, content)
	return out, nil
}

// FetchAll fetches up to MaxPerPlan links from the plan text and
// concatenates their readable content. Individual fetch failures are
// skipped; the plan itself is always enough to extract from.
func (f *Fetcher) FetchAll(ctx context.Context, planText string) string {
	urls := ExtractURLs(planText)
	if len(urls) > f.MaxPerPlan {
		urls = urls[:f.MaxPerPlan]
	}

	var parts []string
	for _, u := range urls {
		text, err := f.FetchText(ctx, u)
		if err != nil {
			log.Printf("Skipping recipe link %s: %v", u, err)
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}
