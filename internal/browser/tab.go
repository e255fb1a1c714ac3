package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page with the page-level lookups the exporter needs:
// navigation, title and breadcrumb resolution, listing-view scrolling,
// and the service's metadata probes. One Tab is reused for the whole run.
type Tab struct {
	page *rod.Page
	sess *Session
}

// OpenTab creates a stealth tab and navigates it to the URL.
func (s *Session) OpenTab(ctx context.Context, pageURL string) (*Tab, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{page: page, sess: s}
	if pageURL != "" {
		if err := t.Navigate(ctx, pageURL); err != nil {
			page.Close()
			return nil, err
		}
	}
	return t, nil
}

// Page exposes the underlying Rod page for flow-specific interaction.
func (t *Tab) Page() *rod.Page { return t.page }

// Navigate loads pageURL and waits for the load event, bounded by a
// 30 second ceiling.
func (t *Tab) Navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := t.page.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := t.page.Context(navCtx).WaitLoad(); err != nil {
		t.sess.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return nil
}

// HTML serialises the current DOM as outer HTML.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Title returns the document title.
func (t *Tab) Title(ctx context.Context) (string, error) {
	res, err := t.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", fmt.Errorf("browser: get title: %w", err)
	}
	return res.Value.Str(), nil
}

// Heading returns the on-page main heading text, or "" when the markup
// does not expose one. Preferred over Title, which carries the service
// branding suffix.
func (t *Tab) Heading(ctx context.Context) (string, error) {
	res, err := t.page.Context(ctx).Eval(`() => {
		const el = document.querySelector('#title-text')
			|| document.querySelector('h1[data-testid="title-text"]')
			|| document.querySelector('h1');
		return el ? el.textContent.trim() : "";
	}`)
	if err != nil {
		return "", fmt.Errorf("browser: get heading: %w", err)
	}
	return res.Value.Str(), nil
}

// Breadcrumbs returns the ancestor-page trail shown for the current page,
// outermost first. Empty for root-level pages.
func (t *Tab) Breadcrumbs(ctx context.Context) ([]string, error) {
	res, err := t.page.Context(ctx).Eval(`() => {
		const sel = ['#breadcrumbs li a', 'nav[aria-label="Breadcrumbs"] a',
			'ol[data-testid="breadcrumbs"] a'];
		for (const s of sel) {
			const els = document.querySelectorAll(s);
			if (els.length > 0) {
				return Array.from(els).map(e => e.textContent.trim());
			}
		}
		return [];
	}`)
	if err != nil {
		return nil, fmt.Errorf("browser: get breadcrumbs: %w", err)
	}

	var trail []string
	for _, v := range res.Value.Arr() {
		if s := strings.TrimSpace(v.Str()); s != "" {
			trail = append(trail, s)
		}
	}
	return trail, nil
}

// RemoteUser returns the logged-in username the service exposes via page
// metadata, or "" for an anonymous session.
func (t *Tab) RemoteUser(ctx context.Context) (string, error) {
	res, err := t.page.Context(ctx).Eval(`() => {
		const m = document.querySelector('meta[name="ajs-remote-user"]');
		if (m && m.content) return m.content;
		if (window.AJS && AJS.params && AJS.params.remoteUser) return AJS.params.remoteUser;
		return "";
	}`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// ProbeSpaceKey resolves the space key from a live page: the page meta
// attribute first, then the host-global runtime variable.
func (t *Tab) ProbeSpaceKey(ctx context.Context, pageURL string) (string, error) {
	if err := t.Navigate(ctx, pageURL); err != nil {
		return "", err
	}
	res, err := t.page.Context(ctx).Eval(`() => {
		const m = document.querySelector('meta[name="ajs-space-key"]');
		if (m && m.content) return m.content;
		if (window.AJS && AJS.params && AJS.params.spaceKey) return AJS.params.spaceKey;
		return "";
	}`)
	if err != nil {
		return "", fmt.Errorf("browser: probe space key: %w", err)
	}
	return res.Value.Str(), nil
}

// SpaceName reads the space display name from the page header.
func (t *Tab) SpaceName(ctx context.Context) (string, error) {
	res, err := t.page.Context(ctx).Eval(`() => {
		const el = document.querySelector('.space-logo .space-name')
			|| document.querySelector('[data-testid="space-name"]')
			|| document.querySelector('meta[name="ajs-space-name"]');
		if (!el) return "";
		return el.content ? el.content : el.textContent.trim();
	}`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// ScrollToBottom scrolls to the document bottom and returns the resulting
// height, letting the listing view append further entries.
func (t *Tab) ScrollToBottom(ctx context.Context) (int, error) {
	res, err := t.page.Context(ctx).Eval(`() => {
		window.scrollTo(0, document.body.scrollHeight);
		return document.body.scrollHeight;
	}`)
	if err != nil {
		return 0, fmt.Errorf("browser: scroll: %w", err)
	}
	// Give lazily loaded entries a beat to render.
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}
	return res.Value.Int(), nil
}

// ClickLoadMore activates a "load more" control if one is visible.
func (t *Tab) ClickLoadMore(ctx context.Context) (bool, error) {
	res, err := t.page.Context(ctx).Eval(`() => {
		const sel = ['button[data-testid="load-more"]', 'a.load-more',
			'button[aria-label="Show more pages"]'];
		for (const s of sel) {
			const el = document.querySelector(s);
			if (el && el.offsetParent !== null) { el.click(); return true; }
		}
		return false;
	}`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// Screenshot captures the current viewport as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	return t.page.Context(ctx).Screenshot(false, nil)
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.page != nil {
		return t.page.Close()
	}
	return nil
}
