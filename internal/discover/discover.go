// Package discover enumerates all pages of a wiki space as (title, url)
// records. Two interchangeable strategies exist: API pagination over the
// space content listing, and scroll-and-scrape over the space's page
// listing view. The service's markup shifts between releases, so both are
// kept behind one interface and selected by configuration.
package discover

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// PageRecord identifies one page of a space. URL is the stable identifier
// used as the history key. ID is the numeric page id where obtainable
// (zero otherwise); it enables the direct export endpoint.
type PageRecord struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	ID    int64  `json:"id,omitempty"`
}

// Space is the resolved space metadata. Key is required for the listing
// API; Name is cosmetic and may be approximated by the key.
type Space struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Result is a completed discovery: the space plus its deduplicated pages
// in listing order.
type Result struct {
	Space Space
	Pages []PageRecord
}

// Discoverer enumerates the pages of the configured space.
type Discoverer interface {
	Discover(ctx context.Context) (*Result, error)
}

// ErrAuthentication signals an invalid or expired session. Retrying will
// not help; the operator must refresh the session first.
var ErrAuthentication = errors.New("spacedump: authentication failed, session needs renewal")

// ErrSpaceKeyResolution signals that no space key could be derived from
// the space reference. Without a key no pages can be listed.
var ErrSpaceKeyResolution = errors.New("spacedump: could not resolve space key")

// DiscoveryError is a fatal non-auth listing failure carrying the failing
// request's target and status.
type DiscoveryError struct {
	URL    string
	Status int
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("spacedump: discovery request %s failed with status %d", e.URL, e.Status)
}

// KeyProber resolves a space key from a live page when the reference URL
// alone is not enough: a page-provided meta attribute first, then the
// host-global runtime variable the service exposes.
type KeyProber interface {
	ProbeSpaceKey(ctx context.Context, pageURL string) (string, error)
}

// bareKeyRe matches a space reference that is already a key.
var bareKeyRe = regexp.MustCompile(`^~?[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ResolveKey derives the space key from the space reference. Precedence:
// URL path segment, page metadata via the prober, bare key. Failing all
// of these is fatal.
func ResolveKey(ctx context.Context, ref string, prober KeyProber) (string, error) {
	if strings.Contains(ref, "://") {
		if key := keyFromPath(ref); key != "" {
			return key, nil
		}
		if prober != nil {
			key, err := prober.ProbeSpaceKey(ctx, ref)
			if err == nil && key != "" {
				return key, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrSpaceKeyResolution, ref)
	}
	if bareKeyRe.MatchString(ref) {
		return ref, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSpaceKeyResolution, ref)
}

// keyFromPath extracts the key from /spaces/{KEY}/... or /display/{KEY}/...
func keyFromPath(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segs {
		if (seg == "spaces" || seg == "display") && i+1 < len(segs) {
			return segs[i+1]
		}
	}
	return ""
}

// Origin derives the service origin (scheme, host, and the service's
// context path if present) from a reference URL.
func Origin(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("spacedump: reference %q is not an absolute URL", ref)
	}
	origin := u.Scheme + "://" + u.Host
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) > 0 && segs[0] == "wiki" {
		origin += "/wiki"
	}
	return origin, nil
}

// NormalizeLink resolves a listing link against the origin, stripping a
// duplicated context-path prefix (the API returns links that already
// include "/wiki" on deployments whose origin carries it too).
func NormalizeLink(origin, link string) string {
	if strings.Contains(link, "://") {
		return link
	}
	origin = strings.TrimRight(origin, "/")
	if i := strings.Index(origin, "://"); i >= 0 {
		if j := strings.Index(origin[i+3:], "/"); j >= 0 {
			prefix := origin[i+3+j:] // context path, e.g. /wiki
			if prefix != "" && strings.HasPrefix(link, prefix+"/") {
				link = strings.TrimPrefix(link, prefix)
			}
		}
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return origin + link
}

// Dedupe removes records sharing a URL, keeping first occurrence order.
func Dedupe(pages []PageRecord) []PageRecord {
	seen := make(map[string]bool, len(pages))
	out := pages[:0:0]
	for _, p := range pages {
		if seen[p.URL] {
			continue
		}
		seen[p.URL] = true
		out = append(out, p)
	}
	return out
}

// pageIDRe extracts the numeric page id embedded in cloud-style page URLs.
var pageIDRe = regexp.MustCompile(`/pages/(\d+)`)

// PageIDFromURL returns the numeric page id embedded in a page URL, or 0.
func PageIDFromURL(pageURL string) int64 {
	m := pageIDRe.FindStringSubmatch(pageURL)
	if m == nil {
		return 0
	}
	var id int64
	for _, c := range m[1] {
		id = id*10 + int64(c-'0')
	}
	return id
}
