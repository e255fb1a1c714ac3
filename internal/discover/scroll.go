package discover

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

// ScrollPager is the browser surface the scroll strategy needs. The
// concrete implementation lives in internal/browser; keeping it behind an
// interface lets the filtering and termination logic run in tests without
// Chrome.
type ScrollPager interface {
	// Navigate opens the given URL and waits for the initial load.
	Navigate(ctx context.Context, pageURL string) error
	// ScrollToBottom scrolls the view to the current bottom and returns
	// the resulting document height.
	ScrollToBottom(ctx context.Context) (int, error)
	// ClickLoadMore activates a "load more" control if one is present.
	// Returns false when no such control exists.
	ClickLoadMore(ctx context.Context) (bool, error)
	// HTML returns the current serialized DOM.
	HTML(ctx context.Context) (string, error)
	// SpaceName reads the space display name from the page header, or ""
	// when the markup does not expose one.
	SpaceName(ctx context.Context) (string, error)
}

// Scroll discovers pages by walking the space's page listing view:
// scroll until the height stabilises and no "load more" control remains,
// then scrape the anchors. It trades completeness guarantees for not
// depending on the listing API at all.
type Scroll struct {
	Origin string
	Space  string
	Pager  ScrollPager

	// MaxScrolls bounds the loop so a broken infinite-scroll UI cannot
	// hang the run. Zero means 50.
	MaxScrolls int

	Prober KeyProber
	Logger *slog.Logger
}

// Discover implements Discoverer.
func (s *Scroll) Discover(ctx context.Context) (*Result, error) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	maxScrolls := s.MaxScrolls
	if maxScrolls <= 0 {
		maxScrolls = 50
	}

	key, err := ResolveKey(ctx, s.Space, s.Prober)
	if err != nil {
		return nil, err
	}

	listURL := s.Origin + "/spaces/" + key + "/pages"
	if err := s.Pager.Navigate(ctx, listURL); err != nil {
		return nil, fmt.Errorf("discover: open listing view: %w", err)
	}

	prevHeight := -1
	for i := 0; i < maxScrolls; i++ {
		h, err := s.Pager.ScrollToBottom(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover: scroll: %w", err)
		}

		clicked, err := s.Pager.ClickLoadMore(ctx)
		if err != nil {
			log.Debug("discover: load-more click failed", "error", err)
		}

		if h == prevHeight && !clicked {
			break
		}
		prevHeight = h
	}

	src, err := s.Pager.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover: read listing DOM: %w", err)
	}

	pages, err := ExtractPageLinks(src, s.Origin, key)
	if err != nil {
		return nil, fmt.Errorf("discover: parse listing: %w", err)
	}

	name, err := s.Pager.SpaceName(ctx)
	if err != nil || name == "" {
		name = key
	}

	log.Info("discover: listing scraped", "key", key, "pages", len(pages))
	return &Result{
		Space: Space{Name: name, Key: key},
		Pages: pages,
	}, nil
}

// ExtractPageLinks scrapes anchors out of a listing view DOM and keeps
// those that point at page-detail URLs for the given space. Edit links
// and links carrying query parameters are dropped; results are
// deduplicated by URL in document order.
func ExtractPageLinks(src, origin, key string) ([]PageRecord, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}

	var pages []PageRecord
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if isPageLink(href, key) {
				title := strings.TrimSpace(text(n))
				if title == "" {
					title = href
				}
				pages = append(pages, PageRecord{
					Title: title,
					URL:   NormalizeLink(origin, href),
					ID:    PageIDFromURL(href),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return Dedupe(pages), nil
}

// isPageLink reports whether href targets a page-detail view of the space.
func isPageLink(href, key string) bool {
	if href == "" || strings.Contains(href, "?") || strings.Contains(href, "#") {
		return false
	}
	if strings.Contains(href, "/edit") {
		return false
	}
	if strings.Contains(href, "/display/"+key+"/") {
		return true
	}
	if strings.Contains(href, "/spaces/"+key+"/pages/") {
		return true
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(text(c))
	}
	return b.String()
}
