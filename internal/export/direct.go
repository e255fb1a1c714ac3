package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// NewDirectFetch builds the direct-endpoint fast path: a single
// authenticated GET against the service's PDF export action. The UI
// click-through remains the canonical flow; this endpoint is faster but
// unverified across service releases, so callers must gate it behind
// config.Export.Direct and fall back on any failure.
func NewDirectFetch(client *http.Client, origin string) DirectFetch {
	return func(ctx context.Context, pageID int64) ([]byte, error) {
		target := fmt.Sprintf("%s/spaces/flyingpdf/pdfpageexport.action?pageId=%d", origin, pageID)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("direct export %s: status %d", target, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "pdf") {
			// The endpoint served a progress page instead of the PDF.
			return nil, fmt.Errorf("direct export %s: unexpected content type %q", target, ct)
		}

		return io.ReadAll(resp.Body)
	}
}
