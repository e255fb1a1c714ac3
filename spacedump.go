// Package spacedump bulk-exports every page of a remote wiki space into
// PDF files, mirroring the space's hierarchy on disk. The remote export
// mechanism is a multi-step, failure-prone UI workflow, so the run keeps
// a durable history ledger and is safe to re-run until everything is
// captured: discovery enumerates the space, the ledger filters out pages
// already done, and the export machine drives the rest one at a time.
package spacedump

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/spacedump/internal/config"
	"github.com/hazyhaar/spacedump/internal/discover"
	"github.com/hazyhaar/spacedump/internal/history"
	"github.com/hazyhaar/spacedump/internal/pathing"
)

// Discoverer enumerates the pages of the configured space.
type Discoverer = discover.Discoverer

// PageMachine exports a single page to a durable artifact under destDir.
// Failures are final per page; they never abort the run.
type PageMachine interface {
	Export(ctx context.Context, rec PageRecord, destDir string) Outcome
}

// Summary are the aggregate counts of one run.
type Summary struct {
	Space      Space
	Discovered int
	Pending    int
	Succeeded  int
	Failed     int
	Skipped    int
}

// Exporter composes discovery, the history ledger, and the export
// machine into the sequential run loop.
type Exporter struct {
	cfg     *config.Config
	log     *slog.Logger
	disc    Discoverer
	machine PageMachine

	sleep func(time.Duration) // test seam for inter-page pacing
}

// New creates an Exporter.
func New(cfg *config.Config, disc Discoverer, machine PageMachine) *Exporter {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{
		cfg:     cfg,
		log:     log,
		disc:    disc,
		machine: machine,
		sleep:   time.Sleep,
	}
}

// Run executes one full export pass. Discovery and output-root failures
// are fatal and returned; per-page failures are counted and the run
// continues to the next page.
func (e *Exporter) Run(ctx context.Context) (*Summary, error) {
	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("spacedump: create output root: %w", err)
	}

	hist, err := history.Load(filepath.Join(e.cfg.OutputDir, "history.json"), e.log)
	if err != nil {
		return nil, err
	}

	res, err := e.disc.Discover(ctx)
	if err != nil {
		return nil, err
	}

	spaceDir := filepath.Join(e.cfg.OutputDir, pathing.Sanitize(res.Space.Name))
	if err := os.MkdirAll(spaceDir, 0o755); err != nil {
		return nil, fmt.Errorf("spacedump: create space dir: %w", err)
	}

	e.dumpListing(spaceDir, res.Pages)

	// Candidate set: discovered minus already completed, in discovery order.
	var todo []PageRecord
	for _, p := range res.Pages {
		if !hist.Done(p.URL) {
			todo = append(todo, p)
		}
	}

	sum := &Summary{
		Space:      res.Space,
		Discovered: len(res.Pages),
		Pending:    len(todo),
	}

	if len(todo) == 0 {
		e.log.Info("spacedump: nothing to do, space fully exported",
			"space", res.Space.Key, "pages", len(res.Pages))
		return sum, nil
	}

	e.log.Info("spacedump: starting export",
		"space", res.Space.Key, "pending", len(todo), "done", hist.Len())

	for i, rec := range todo {
		if ctx.Err() != nil {
			e.log.Warn("spacedump: run cancelled", "exported", sum.Succeeded)
			break
		}

		out := e.machine.Export(ctx, rec, spaceDir)
		if out.Success {
			// History is updated strictly after the artifact is
			// confirmed, never speculatively.
			if err := hist.MarkDone(rec.URL); err != nil {
				e.log.Error("spacedump: ledger update failed", "url", rec.URL, "error", err)
				sum.Failed++
			} else {
				sum.Succeeded++
				if out.Skipped {
					sum.Skipped++
				}
				e.log.Info("spacedump: page exported",
					"n", i+1, "of", len(todo), "title", rec.Title,
					"path", out.Path, "attempts", out.Attempts, "skipped", out.Skipped)
			}
		} else {
			sum.Failed++
			e.log.Error("spacedump: page failed",
				"n", i+1, "of", len(todo), "title", rec.Title,
				"url", rec.URL, "attempts", out.Attempts, "error", out.Err)
		}

		// Inter-page pacing after every page, success or failure, so a
		// long run stays under the service's rate-limit defenses.
		if i < len(todo)-1 {
			e.pace(ctx)
		}
	}

	e.log.Info("spacedump: run complete",
		"succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped)
	return sum, nil
}

// dumpListing writes the discovered page set under the space directory.
// Write-only diagnostic; never read back.
func (e *Exporter) dumpListing(spaceDir string, pages []PageRecord) {
	data, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(spaceDir, "pages.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		e.log.Warn("spacedump: page listing dump failed", "path", path, "error", err)
	}
}

func (e *Exporter) pace(ctx context.Context) {
	if e.cfg.Export.Pacing <= 0 || ctx.Err() != nil {
		return
	}
	e.sleep(e.cfg.Export.Pacing)
}
