package spacedump

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/spacedump/internal/config"
	"github.com/hazyhaar/spacedump/internal/discover"
	"github.com/hazyhaar/spacedump/internal/export"
)

type fakeDisc struct {
	res *discover.Result
	err error
}

func (f *fakeDisc) Discover(ctx context.Context) (*discover.Result, error) {
	return f.res, f.err
}

// fakeMachine records which pages were exported and fails the URLs in
// fail.
type fakeMachine struct {
	exports []string
	fail    map[string]bool
}

func (f *fakeMachine) Export(ctx context.Context, rec PageRecord, destDir string) Outcome {
	f.exports = append(f.exports, rec.URL)
	if f.fail[rec.URL] {
		return Outcome{Success: false, Attempts: 1, Err: errors.New("export broke")}
	}
	return Outcome{Success: true, Attempts: 1, Path: filepath.Join(destDir, "x.pdf")}
}

func testCfg(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{OutputDir: t.TempDir()}
	cfg.Export.RetryOnError = true
	cfg.ApplyDefaults()
	return cfg
}

func threePages() *discover.Result {
	return &discover.Result{
		Space: discover.Space{Name: "Engineering", Key: "ENG"},
		Pages: []discover.PageRecord{
			{Title: "A", URL: "https://wiki/a"},
			{Title: "B", URL: "https://wiki/b"},
			{Title: "C", URL: "https://wiki/c"},
		},
	}
}

func newExporter(cfg *config.Config, disc Discoverer, m PageMachine) *Exporter {
	e := New(cfg, disc, m)
	e.sleep = func(time.Duration) {}
	return e
}

func TestRun_ExportsAllThenSecondRunIsNoop(t *testing.T) {
	cfg := testCfg(t)
	disc := &fakeDisc{res: threePages()}

	m1 := &fakeMachine{}
	sum, err := newExporter(cfg, disc, m1).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Discovered != 3 || sum.Pending != 3 || sum.Succeeded != 3 || sum.Failed != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(m1.exports) != 3 {
		t.Fatalf("expected 3 exports, got %v", m1.exports)
	}

	// Second run against the persisted ledger re-exports nothing.
	m2 := &fakeMachine{}
	sum2, err := newExporter(cfg, disc, m2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum2.Pending != 0 || sum2.Succeeded != 0 {
		t.Fatalf("expected a no-op second run, got %+v", sum2)
	}
	if len(m2.exports) != 0 {
		t.Fatalf("expected zero re-exports, got %v", m2.exports)
	}
}

func TestRun_CandidateSetExcludesCompleted(t *testing.T) {
	cfg := testCfg(t)

	// Pre-seed the ledger with one completed page.
	ledger := map[string]bool{"https://wiki/b": true}
	data, _ := json.Marshal(ledger)
	if err := os.WriteFile(filepath.Join(cfg.OutputDir, "history.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	m := &fakeMachine{}
	sum, err := newExporter(cfg, &fakeDisc{res: threePages()}, m).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Pending != 2 {
		t.Fatalf("expected 2 pending, got %d", sum.Pending)
	}
	for _, url := range m.exports {
		if url == "https://wiki/b" {
			t.Fatal("completed page was re-exported")
		}
	}
}

func TestRun_PageFailureDoesNotAbort(t *testing.T) {
	cfg := testCfg(t)
	disc := &fakeDisc{res: threePages()}

	m := &fakeMachine{fail: map[string]bool{"https://wiki/b": true}}
	sum, err := newExporter(cfg, disc, m).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Succeeded != 2 || sum.Failed != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(m.exports) != 3 {
		t.Fatalf("run stopped early: %v", m.exports)
	}

	// The failed page is the only candidate on rerun.
	m2 := &fakeMachine{}
	sum2, err := newExporter(cfg, disc, m2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum2.Pending != 1 || len(m2.exports) != 1 || m2.exports[0] != "https://wiki/b" {
		t.Fatalf("expected only the failed page to be retried, got %+v %v", sum2, m2.exports)
	}
}

func TestRun_PacingAppliedBetweenPages(t *testing.T) {
	cfg := testCfg(t)
	e := New(cfg, &fakeDisc{res: threePages()}, &fakeMachine{})

	paced := 0
	e.sleep = func(d time.Duration) {
		if d != cfg.Export.Pacing {
			t.Errorf("unexpected pacing delay %s", d)
		}
		paced++
	}

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if paced != 2 {
		t.Fatalf("expected pacing after each page but the last (2), got %d", paced)
	}
}

func TestRun_DiscoveryFailureIsFatal(t *testing.T) {
	cfg := testCfg(t)
	wantErr := errors.New("listing api down")

	_, err := newExporter(cfg, &fakeDisc{err: wantErr}, &fakeMachine{}).Run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected discovery error to propagate, got %v", err)
	}
}

func TestRun_WritesDebugPageListing(t *testing.T) {
	cfg := testCfg(t)
	if _, err := newExporter(cfg, &fakeDisc{res: threePages()}, &fakeMachine{}).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "engineering", "pages.json"))
	if err != nil {
		t.Fatal(err)
	}
	var pages []PageRecord
	if err := json.Unmarshal(data, &pages); err != nil {
		t.Fatal(err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 listed pages, got %d", len(pages))
	}
}

// Compile-time check that the real machine satisfies the orchestrator's
// dependency.
var _ PageMachine = (*export.Machine)(nil)
