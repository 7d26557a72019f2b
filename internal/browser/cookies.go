package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// The session file is an opaque cookie snapshot: written after a
// successful login and on clean shutdown, read on startup. Its absence
// just means a fresh-login flow.

type savedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
}

func saveCookies(browserCtx context.Context, path string) error {
	if browserCtx == nil {
		return fmt.Errorf("no live browser context")
	}

	opCtx, cancel := context.WithTimeout(browserCtx, 10*time.Second)
	defer cancel()

	var cookies []*network.Cookie
	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to read cookies: %v", err)
	}

	saved := make([]savedCookie, 0, len(cookies))
	for _, c := range cookies {
		saved = append(saved, savedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func restoreCookies(browserCtx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("corrupt session file: %v", err)
	}

	opCtx, cancel := context.WithTimeout(browserCtx, 10*time.Second)
	defer cancel()

	return chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range saved {
			p := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.Expires > 0 {
				exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				p = p.WithExpires(&exp)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %s: %v", c.Name, err)
			}
		}
		return nil
	}))
}
