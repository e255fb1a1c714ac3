package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// API lists a space's pages through the content listing REST endpoint
// with limit/start pagination. The HTTP client must carry the
// authenticated session cookies.
type API struct {
	// Origin is the service origin including context path, e.g.
	// "https://wiki.example.com" or "https://x.example.net/wiki".
	Origin string

	// Space is the space reference from configuration (URL or key).
	Space string

	// Client performs the listing requests.
	Client *http.Client

	// PageSize is the listing page size. Zero means 50.
	PageSize int

	// Prober resolves the space key from a live page when the reference
	// URL does not carry it. Optional.
	Prober KeyProber

	Logger *slog.Logger
}

// listingPage mirrors the fields we consume from a content listing response.
type listingPage struct {
	Results []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Links struct {
			WebUI string `json:"webui"`
		} `json:"_links"`
	} `json:"results"`
	Size int `json:"size"`
}

// spaceInfo mirrors the space metadata response.
type spaceInfo struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Discover enumerates all pages of the space. Authentication failures are
// reported as ErrAuthentication; any other non-success response aborts
// with a DiscoveryError.
func (a *API) Discover(ctx context.Context) (*Result, error) {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}
	pageSize := a.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	key, err := ResolveKey(ctx, a.Space, a.Prober)
	if err != nil {
		return nil, err
	}

	name := a.spaceName(ctx, key)
	log.Info("discover: space resolved", "key", key, "name", name)

	var pages []PageRecord
	for start := 0; ; start += pageSize {
		target := fmt.Sprintf("%s/rest/api/space/%s/content/page?limit=%d&start=%d",
			a.Origin, key, pageSize, start)

		var lp listingPage
		if err := a.getJSON(ctx, target, &lp); err != nil {
			return nil, err
		}

		for _, r := range lp.Results {
			pageURL := NormalizeLink(a.Origin, r.Links.WebUI)
			id, _ := strconv.ParseInt(r.ID, 10, 64)
			if id == 0 {
				id = PageIDFromURL(pageURL)
			}
			pages = append(pages, PageRecord{Title: r.Title, URL: pageURL, ID: id})
		}

		log.Debug("discover: listing page fetched",
			"start", start, "count", len(lp.Results))

		// A short or empty page is the natural end of the listing.
		if len(lp.Results) < pageSize {
			break
		}
	}

	pages = Dedupe(pages)
	log.Info("discover: space enumerated", "key", key, "pages", len(pages))

	return &Result{
		Space: Space{Name: name, Key: key},
		Pages: pages,
	}, nil
}

// spaceName looks up the human-readable space name. Best-effort: a space
// without a resolvable display name is still exportable under its key.
func (a *API) spaceName(ctx context.Context, key string) string {
	var info spaceInfo
	target := a.Origin + "/rest/api/space/" + key
	if err := a.getJSON(ctx, target, &info); err != nil || info.Name == "" {
		return key
	}
	return info.Name
}

func (a *API) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("discover: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("discover: %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d on %s)", ErrAuthentication, resp.StatusCode, target)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &DiscoveryError{URL: target, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("discover: read %s: %w", target, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("discover: decode %s: %w", target, err)
	}
	return nil
}
