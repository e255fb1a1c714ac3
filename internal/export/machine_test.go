package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/spacedump/internal/config"
	"github.com/hazyhaar/spacedump/internal/discover"
)

// fakeDriver records every UI-level call so tests can assert the machine
// touched (or did not touch) the remote flow.
type fakeDriver struct {
	calls []string

	navErr  error
	uiErr   error
	title   string
	crumbs  []string
	data    []byte
	shotErr error
}

func (f *fakeDriver) record(name string) { f.calls = append(f.calls, name) }

func (f *fakeDriver) Navigate(ctx context.Context, pageURL string) error {
	f.record("navigate")
	return f.navErr
}

func (f *fakeDriver) Title(ctx context.Context) (string, error) {
	f.record("title")
	return f.title, nil
}

func (f *fakeDriver) Breadcrumbs(ctx context.Context) ([]string, error) {
	f.record("breadcrumbs")
	return f.crumbs, nil
}

func (f *fakeDriver) OpenActionsMenu(ctx context.Context) error {
	f.record("actions-menu")
	return f.uiErr
}

func (f *fakeDriver) OpenExportSubmenu(ctx context.Context) error {
	f.record("export-submenu")
	return f.uiErr
}

func (f *fakeDriver) TriggerPDFExport(ctx context.Context) error {
	f.record("trigger-pdf")
	return f.uiErr
}

func (f *fakeDriver) AwaitProcessing(ctx context.Context) error {
	f.record("await-processing")
	return nil
}

func (f *fakeDriver) CaptureDownload(ctx context.Context) ([]byte, string, error) {
	f.record("capture-download")
	return f.data, "export.pdf", nil
}

func (f *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	f.record("screenshot")
	if f.shotErr != nil {
		return nil, f.shotErr
	}
	return []byte("png"), nil
}

func count(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Export.RetryOnError = true
	cfg.ApplyDefaults()
	cfg.Export.Cooldown = time.Millisecond
	return cfg
}

func testMachine(t *testing.T, cfg *config.Config, drv Driver) *Machine {
	t.Helper()
	m := NewMachine(cfg, drv, nil, "")
	m.sleep = func(time.Duration) {}
	m.validate = func([]byte) error { return nil }
	return m
}

func TestExport_SkipsExistingWithoutUIInteraction(t *testing.T) {
	dest := t.TempDir()
	existing := filepath.Join(dest, "deploy_guide.pdf")
	if err := os.WriteFile(existing, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	drv := &fakeDriver{}
	m := testMachine(t, testConfig(t), drv)

	out := m.Export(context.Background(),
		discover.PageRecord{Title: "Deploy Guide", URL: "https://wiki/x"}, dest)

	if !out.Success || !out.Skipped {
		t.Fatalf("expected skipped success, got %+v", out)
	}
	if out.Path != existing {
		t.Fatalf("expected path %q, got %q", existing, out.Path)
	}
	if len(drv.calls) != 0 {
		t.Fatalf("expected zero UI interaction, got %v", drv.calls)
	}
}

func TestExport_RetryBound(t *testing.T) {
	drv := &fakeDriver{title: "Broken Page", uiErr: errors.New("menu gone")}
	cfg := testConfig(t)
	cfg.Export.MaxRetries = 3

	cooldowns := 0
	m := testMachine(t, cfg, drv)
	m.sleep = func(time.Duration) { cooldowns++ }

	out := m.Export(context.Background(),
		discover.PageRecord{Title: "Broken Page", URL: "https://wiki/broken"}, t.TempDir())

	if out.Success {
		t.Fatal("expected failure")
	}
	if out.Attempts != 4 {
		t.Fatalf("expected 1 initial + 3 retries = 4 attempts, got %d", out.Attempts)
	}
	if got := count(drv.calls, "navigate"); got != 4 {
		t.Fatalf("expected 4 navigations, got %d", got)
	}
	if cooldowns != 3 {
		t.Fatalf("expected 3 cooldowns between attempts, got %d", cooldowns)
	}
	if out.Err == nil {
		t.Fatal("expected recorded error")
	}
}

func TestExport_RetryDisabledMeansSingleAttempt(t *testing.T) {
	drv := &fakeDriver{title: "Broken Page", uiErr: errors.New("menu gone")}
	cfg := testConfig(t)
	cfg.Export.RetryOnError = false

	m := testMachine(t, cfg, drv)
	out := m.Export(context.Background(),
		discover.PageRecord{Title: "Broken Page", URL: "https://wiki/broken"}, t.TempDir())

	if out.Attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", out.Attempts)
	}
}

func TestExport_HappyPathPersistsUnderBreadcrumbs(t *testing.T) {
	dest := t.TempDir()
	drv := &fakeDriver{
		title:  "Release Checklist",
		crumbs: []string{"Engineering Space", "Engineering", "RFCs"},
		data:   []byte("%PDF-1.4 fake"),
	}
	m := testMachine(t, testConfig(t), drv)

	out := m.Export(context.Background(),
		discover.PageRecord{Title: "Release Checklist", URL: "https://wiki/rc"}, dest)

	if !out.Success || out.Skipped {
		t.Fatalf("expected fresh success, got %+v", out)
	}
	want := filepath.Join(dest, "engineering", "rfcs", "release_checklist.pdf")
	if out.Path != want {
		t.Fatalf("expected %q, got %q", want, out.Path)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.4 fake" {
		t.Fatalf("artifact content mismatch: %q", data)
	}
	if out.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", out.Attempts)
	}
}

func TestExport_InvalidArtifactIsRetried(t *testing.T) {
	drv := &fakeDriver{title: "Truncated", data: []byte("half a pdf")}
	cfg := testConfig(t)
	cfg.Export.MaxRetries = 2

	m := testMachine(t, cfg, drv)
	m.validate = func([]byte) error { return errors.New("xref table missing") }

	out := m.Export(context.Background(),
		discover.PageRecord{Title: "Truncated", URL: "https://wiki/t"}, t.TempDir())

	if out.Success {
		t.Fatal("expected failure")
	}
	if out.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", out.Attempts)
	}
	if !errors.Is(out.Err, ErrBadArtifact) {
		t.Fatalf("expected ErrBadArtifact, got %v", out.Err)
	}
}

func TestExport_FilesystemFailureIsNotRetried(t *testing.T) {
	// destDir is a file, so creating the artifact directory must fail.
	tmp := t.TempDir()
	dest := filepath.Join(tmp, "blocked")
	if err := os.WriteFile(dest, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	drv := &fakeDriver{title: "Page", data: []byte("%PDF")}
	m := testMachine(t, testConfig(t), drv)

	out := m.Export(context.Background(),
		discover.PageRecord{Title: "Page", URL: "https://wiki/p"}, dest)

	if out.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Err, ErrFilesystem) {
		t.Fatalf("expected ErrFilesystem, got %v", out.Err)
	}
	if out.Attempts != 1 {
		t.Fatalf("filesystem failure must not be retried, got %d attempts", out.Attempts)
	}
}

func TestValidatePDF_RejectsGarbage(t *testing.T) {
	if err := validatePDF(nil); err == nil {
		t.Fatal("expected error for empty data")
	}
	if err := validatePDF([]byte("not a pdf at all")); err == nil {
		t.Fatal("expected error for garbage data")
	}
}
