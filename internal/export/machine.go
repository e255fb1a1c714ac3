// Package export drives the per-page export-to-PDF workflow: navigate to
// the page, walk the service's menu chain, wait out server-side PDF
// generation, capture the download, and persist the artifact. The remote
// flow is multi-step and failure-prone, so the whole sequence is modeled
// as explicit states with bounded retry around them.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/spacedump/internal/config"
	"github.com/hazyhaar/spacedump/internal/discover"
	"github.com/hazyhaar/spacedump/internal/pathing"
)

// Per-page failure kinds. All of them are caught at the machine boundary
// and, on retry exhaustion, recorded in the Outcome rather than
// propagated; a page failure never aborts the run.
var (
	// ErrUINotFound means every selector for one of the export controls
	// timed out: the remote UI no longer matches the expected control set.
	ErrUINotFound = errors.New("spacedump: export control not found in page UI")

	// ErrProcessingTimeout means server-side PDF generation did not
	// signal readiness within the configured ceiling.
	ErrProcessingTimeout = errors.New("spacedump: PDF generation timed out")

	// ErrDownloadTimeout means the download did not complete after the
	// ready control was activated.
	ErrDownloadTimeout = errors.New("spacedump: download capture timed out")

	// ErrBadArtifact means the captured bytes are not a well-formed PDF,
	// typically a truncated stream. Retryable.
	ErrBadArtifact = errors.New("spacedump: captured artifact is not a valid PDF")

	// ErrFilesystem means writing the artifact failed. Fatal for the
	// page: retrying the remote flow will not fix the local disk.
	ErrFilesystem = errors.New("spacedump: artifact write failed")
)

// Outcome is the machine's per-page result.
type Outcome struct {
	Success  bool
	Path     string
	Skipped  bool
	Attempts int
	Err      error
}

// Driver performs the UI-level steps of the export flow on the shared
// tab. The Rod implementation is PageDriver; tests substitute fakes.
type Driver interface {
	Navigate(ctx context.Context, pageURL string) error

	// Title resolves the page's display title, preferring the on-page
	// heading over the branded document title.
	Title(ctx context.Context) (string, error)

	// Breadcrumbs returns the ancestor trail, space root first.
	Breadcrumbs(ctx context.Context) ([]string, error)

	OpenActionsMenu(ctx context.Context) error
	OpenExportSubmenu(ctx context.Context) error
	TriggerPDFExport(ctx context.Context) error

	// AwaitProcessing blocks until the service signals the generated PDF
	// is ready for download.
	AwaitProcessing(ctx context.Context) error

	// CaptureDownload arms the download listener, activates the ready
	// control, and returns the streamed bytes plus the service's
	// suggested filename.
	CaptureDownload(ctx context.Context) (data []byte, suggestedName string, err error)

	Screenshot(ctx context.Context) ([]byte, error)
}

// DirectFetch downloads a page's PDF through the direct export endpoint,
// bypassing the UI. Unverified fast path; see the config.Export.Direct doc.
type DirectFetch func(ctx context.Context, pageID int64) ([]byte, error)

// Machine runs the export state machine over the shared tab, one page at
// a time.
type Machine struct {
	cfg    *config.Config
	drv    Driver
	direct DirectFetch
	log    *slog.Logger

	// shotsDir receives diagnostic screenshots on retry exhaustion.
	shotsDir string

	sleep    func(time.Duration) // test seam for the retry cooldown
	validate func([]byte) error  // artifact validation, default validatePDF
}

// NewMachine creates a Machine. direct may be nil to disable the
// endpoint fast path regardless of configuration.
func NewMachine(cfg *config.Config, drv Driver, direct DirectFetch, shotsDir string) *Machine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		cfg:      cfg,
		drv:      drv,
		direct:   direct,
		log:      log,
		shotsDir: shotsDir,
		sleep:    time.Sleep,
		validate: validatePDF,
	}
}

// Export runs the full state machine for one page, retrying the whole
// sequence from navigation on any failure, up to the configured attempt
// budget. The returned Outcome is final: errors never propagate past
// this boundary.
func (m *Machine) Export(ctx context.Context, rec discover.PageRecord, destDir string) Outcome {
	// Idempotent re-export avoidance: the discovery title alone gives a
	// candidate path, so a page exported by a prior run is skipped
	// before any remote interaction.
	if rec.Title != "" {
		p := filepath.Join(destDir, pathing.Sanitize(rec.Title)+".pdf")
		if fileExists(p) {
			m.log.Info("export: artifact exists, skipping", "title", rec.Title, "path", p)
			return Outcome{Success: true, Path: p, Skipped: true}
		}
	}

	attempts := 1
	if m.cfg.Export.RetryOnError {
		attempts += m.cfg.Export.MaxRetries
	}

	out := Outcome{}
	var lastErr error
	for i := 0; i < attempts; i++ {
		out.Attempts = i + 1

		path, skipped, err := m.attempt(ctx, rec, destDir)
		if err == nil {
			out.Success = true
			out.Path = path
			out.Skipped = skipped
			return out
		}
		lastErr = err
		m.log.Warn("export: attempt failed",
			"url", rec.URL, "attempt", i+1, "of", attempts, "error", err)

		if errors.Is(err, ErrFilesystem) || ctx.Err() != nil {
			break
		}
		if i < attempts-1 {
			m.sleep(m.cfg.Export.Cooldown)
		}
	}

	out.Err = lastErr
	m.captureDiagnostic(ctx, rec)
	return out
}

// attempt runs one pass through the state sequence. Any error restarts
// the sequence from navigation on the next attempt.
func (m *Machine) attempt(ctx context.Context, rec discover.PageRecord, destDir string) (string, bool, error) {
	// NAVIGATE
	if err := m.drv.Navigate(ctx, rec.URL); err != nil {
		return "", false, fmt.Errorf("navigate: %w", err)
	}

	// RESOLVE_TITLE. A page with no resolvable title can still be
	// exported; its name then comes from the download's suggested
	// filename.
	title, err := m.drv.Title(ctx)
	if err != nil || title == "" {
		title = rec.Title
	}

	crumbs, err := m.drv.Breadcrumbs(ctx)
	if err != nil {
		m.log.Debug("export: breadcrumbs unavailable", "url", rec.URL, "error", err)
		crumbs = nil
	}

	var outPath string
	if title != "" {
		outPath = filepath.Join(destDir, pathing.BreadcrumbDir(crumbs), pathing.Sanitize(title)+".pdf")

		// CHECK_EXISTING
		if fileExists(outPath) {
			return outPath, true, nil
		}

		// Endpoint fast path, when enabled and the numeric page id is known.
		if m.cfg.Export.Direct && m.direct != nil && rec.ID > 0 {
			if data, err := m.direct(ctx, rec.ID); err == nil {
				if err := m.persist(data, outPath); err == nil {
					m.log.Info("export: direct endpoint download", "url", rec.URL, "path", outPath)
					return outPath, false, nil
				}
			} else {
				m.log.Debug("export: direct endpoint failed, using UI flow",
					"url", rec.URL, "error", err)
			}
		}
	}

	// OPEN_ACTIONS_MENU -> OPEN_EXPORT_SUBMENU -> TRIGGER_EXPORT_TO_PDF
	uiSteps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"open actions menu", m.drv.OpenActionsMenu},
		{"open export submenu", m.drv.OpenExportSubmenu},
		{"trigger pdf export", m.drv.TriggerPDFExport},
	}
	for _, step := range uiSteps {
		stepCtx, cancel := context.WithTimeout(ctx, m.cfg.Export.Timeout)
		err := step.fn(stepCtx)
		cancel()
		if err != nil {
			return "", false, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	// AWAIT_SERVER_PROCESSING: generation takes its own, much longer
	// ceiling than UI interaction.
	procCtx, cancel := context.WithTimeout(ctx, m.cfg.Export.ProcessingTimeout)
	err = m.drv.AwaitProcessing(procCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", false, fmt.Errorf("%w after %s", ErrProcessingTimeout, m.cfg.Export.ProcessingTimeout)
		}
		return "", false, fmt.Errorf("await processing: %w", err)
	}

	// CAPTURE_DOWNLOAD
	dlCtx, cancel := context.WithTimeout(ctx, m.cfg.Export.DownloadTimeout)
	data, suggested, err := m.drv.CaptureDownload(dlCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", false, fmt.Errorf("%w after %s", ErrDownloadTimeout, m.cfg.Export.DownloadTimeout)
		}
		return "", false, fmt.Errorf("capture download: %w", err)
	}

	if outPath == "" {
		if suggested == "" {
			return "", false, fmt.Errorf("export: no name resolvable for %s", rec.URL)
		}
		outPath = filepath.Join(destDir, pathing.BreadcrumbDir(crumbs),
			pathing.Sanitize(trimPDFExt(suggested))+".pdf")
	}

	// PERSIST_ARTIFACT
	if err := m.persist(data, outPath); err != nil {
		return "", false, err
	}
	return outPath, false, nil
}

// captureDiagnostic writes a screenshot of the page's current state for
// postmortem. Best-effort: its own failure is swallowed.
func (m *Machine) captureDiagnostic(ctx context.Context, rec discover.PageRecord) {
	if m.shotsDir == "" {
		return
	}
	shot, err := m.drv.Screenshot(ctx)
	if err != nil {
		m.log.Debug("export: diagnostic screenshot failed", "url", rec.URL, "error", err)
		return
	}
	name := pathing.Sanitize(rec.Title)
	if name == "" {
		name = "page"
	}
	path := filepath.Join(m.shotsDir,
		fmt.Sprintf("%s-%s.png", name, time.Now().Format("20060102-150405")))
	if err := os.MkdirAll(m.shotsDir, 0o755); err == nil {
		if err := os.WriteFile(path, shot, 0o644); err != nil {
			m.log.Debug("export: write screenshot failed", "path", path, "error", err)
		} else {
			m.log.Info("export: diagnostic screenshot", "path", path)
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func trimPDFExt(name string) string {
	if len(name) > 4 && (name[len(name)-4:] == ".pdf" || name[len(name)-4:] == ".PDF") {
		return name[:len(name)-4]
	}
	return name
}
