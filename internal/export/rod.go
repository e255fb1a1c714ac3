package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/spacedump/internal/browser"
	"github.com/hazyhaar/spacedump/internal/pathing"
)

// perSelectorBudget bounds each locator in a chain. Kept short: the whole
// chain must fit inside the step's UI-action timeout, and a selector that
// does not resolve quickly will not resolve at all.
const perSelectorBudget = 2 * time.Second

// PageDriver is the Rod implementation of Driver, operating the shared
// tab. It owns the tab for the duration of a run and leaves it in a
// navigable state between pages.
type PageDriver struct {
	sess *browser.Session
	tab  *browser.Tab
}

// NewPageDriver wraps the session's tab as an export driver.
func NewPageDriver(sess *browser.Session, tab *browser.Tab) *PageDriver {
	return &PageDriver{sess: sess, tab: tab}
}

func (d *PageDriver) Navigate(ctx context.Context, pageURL string) error {
	return d.tab.Navigate(ctx, pageURL)
}

// Title prefers the on-page heading; the document title carries the
// service branding suffix and is only a fallback.
func (d *PageDriver) Title(ctx context.Context) (string, error) {
	if h, err := d.tab.Heading(ctx); err == nil && h != "" {
		return h, nil
	}
	t, err := d.tab.Title(ctx)
	if err != nil {
		return "", err
	}
	return pathing.StripBranding(t), nil
}

func (d *PageDriver) Breadcrumbs(ctx context.Context) ([]string, error) {
	return d.tab.Breadcrumbs(ctx)
}

func (d *PageDriver) OpenActionsMenu(ctx context.Context) error {
	return d.clickChain(ctx, "actions menu", actionsMenuChain)
}

func (d *PageDriver) OpenExportSubmenu(ctx context.Context) error {
	return d.clickChain(ctx, "export submenu", exportSubmenuChain)
}

func (d *PageDriver) TriggerPDFExport(ctx context.Context) error {
	return d.clickChain(ctx, "export to pdf", pdfActionChain)
}

// AwaitProcessing polls for the download-ready signal until the caller's
// (generation-scale) deadline expires. The signal may appear either as a
// ready link or as a confirmation control; both live in downloadReadyChain.
func (d *PageDriver) AwaitProcessing(ctx context.Context) error {
	for {
		if _, err := d.find(ctx, downloadReadyChain); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// CaptureDownload arms the download listener before clicking the ready
// control: the service may begin streaming the moment the control is
// activated, and an unarmed listener would lose the event.
func (d *PageDriver) CaptureDownload(ctx context.Context) ([]byte, string, error) {
	tmpDir, err := os.MkdirTemp("", "spacedump-dl-*")
	if err != nil {
		return nil, "", fmt.Errorf("%w: temp dir: %v", ErrFilesystem, err)
	}
	defer os.RemoveAll(tmpDir)

	wait := d.sess.Browser().Context(ctx).WaitDownload(tmpDir)

	el, err := d.find(ctx, downloadReadyChain)
	if err != nil {
		return nil, "", err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, "", fmt.Errorf("click download control: %w", err)
	}

	info := wait()
	if info == nil {
		return nil, "", context.DeadlineExceeded
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, info.GUID))
	if err != nil {
		return nil, "", fmt.Errorf("read captured download: %w", err)
	}
	return data, info.SuggestedFilename, nil
}

func (d *PageDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.tab.Screenshot(ctx)
}

// clickChain resolves the first matching locator and clicks it.
func (d *PageDriver) clickChain(ctx context.Context, step string, chain []locator) error {
	el, err := d.find(ctx, chain)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUINotFound, step)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("%w: %s not visible", ErrUINotFound, step)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", step, err)
	}
	return nil
}

// find tries each locator of the chain in order within a short budget and
// returns the first that resolves.
func (d *PageDriver) find(ctx context.Context, chain []locator) (*rod.Element, error) {
	page := d.tab.Page().Context(ctx)
	for _, l := range chain {
		var el *rod.Element
		var err error
		if l.re == "" {
			el, err = page.Timeout(perSelectorBudget).Element(l.css)
		} else {
			el, err = page.Timeout(perSelectorBudget).ElementR(l.css, l.re)
		}
		if err == nil && el != nil {
			return el, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrUINotFound
}
