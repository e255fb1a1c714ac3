// Package pathing derives filesystem placement from page metadata: title
// sanitisation and breadcrumb-based directory nesting.
package pathing

import (
	"path/filepath"
	"strings"
)

// Sanitize lowercases s and replaces every character outside [a-z0-9]
// with underscore, yielding a safe path segment.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// StripBranding removes the service-branding suffix the document title
// carries ("Some Page - Confluence"). The on-page heading is preferred as
// a title source; this handles the fallback.
func StripBranding(title string) string {
	t := strings.TrimSpace(title)
	for _, suffix := range []string{" - Confluence", " – Confluence"} {
		if strings.HasSuffix(t, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(t, suffix))
		}
	}
	return t
}

// BreadcrumbDir converts a breadcrumb trail into a relative directory.
// The first entry is the space root and is dropped; remaining entries are
// sanitised and joined. An empty or single-entry trail yields "." so the
// page lands directly in the destination directory.
func BreadcrumbDir(trail []string) string {
	if len(trail) <= 1 {
		return "."
	}
	segs := make([]string, 0, len(trail)-1)
	for _, t := range trail[1:] {
		seg := Sanitize(t)
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	if len(segs) == 0 {
		return "."
	}
	return filepath.Join(segs...)
}
