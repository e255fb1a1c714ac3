// Command spacedump bulk-exports a wiki space to PDF files.
//
// Usage:
//
//	spacedump -space https://wiki.example.com/spaces/ENG/overview
//	spacedump -config spacedump.yaml
//	spacedump -space ... -mode headful        # manual login bootstrap
//
// The run is resumable: a history ledger under the output root records
// completed pages, so re-running after a crash or partial failure only
// exports what is still missing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hazyhaar/spacedump"
	"github.com/hazyhaar/spacedump/internal/browser"
	"github.com/hazyhaar/spacedump/internal/config"
	"github.com/hazyhaar/spacedump/internal/discover"
	"github.com/hazyhaar/spacedump/internal/export"
)

func main() {
	configPath := flag.String("config", "", "path to spacedump.yaml config file")
	space := flag.String("space", "", "space reference: full space URL or bare key")
	baseURL := flag.String("base-url", "", "service base URL (required when -space is a bare key)")
	outputDir := flag.String("output", "", "destination root for exported PDFs")
	sessionFile := flag.String("session", "", "session cookie file")
	strategy := flag.String("strategy", "", "discovery strategy: api or scroll")
	mode := flag.String("mode", "", "browser mode: headless or headful (headful for login bootstrap)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("spacedump: config", "error", err)
		os.Exit(1)
	}

	// Flags override the file.
	if *space != "" {
		cfg.Space = *space
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *sessionFile != "" {
		cfg.SessionFile = *sessionFile
	}
	if *strategy != "" {
		cfg.Discovery.Strategy = *strategy
	}
	if *mode != "" {
		cfg.Browser.Mode = *mode
	}
	cfg.Logger = logger

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *baseURL); err != nil {
		switch {
		case errors.Is(err, spacedump.ErrAuthentication), errors.Is(err, spacedump.ErrNoSession):
			logger.Error("spacedump: session invalid or expired", "error", err)
			fmt.Fprintln(os.Stderr, "session needs renewal: run once with -mode headful, log in, then retry")
		default:
			logger.Error("spacedump: fatal", "error", err)
		}
		os.Exit(1)
	}
}

func loadConfig(path string) (*spacedump.Config, error) {
	if path == "" {
		cfg := &config.Config{}
		cfg.Export.RetryOnError = true
		cfg.ApplyDefaults()
		return cfg, nil
	}
	return spacedump.LoadConfigFile(path)
}

func run(ctx context.Context, cfg *spacedump.Config, baseURL string) error {
	origin, err := resolveOrigin(cfg.Space, baseURL)
	if err != nil {
		return err
	}

	sess, err := browser.Start(ctx, browser.Config{
		RemoteURL:   cfg.Browser.Remote,
		Headless:    cfg.Browser.Mode == "headless",
		SessionFile: cfg.SessionFile,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return err
	}
	// The session is torn down (and its cookies saved) whatever happens.
	defer sess.Close()

	if err := sess.Verify(ctx, origin); err != nil {
		if !errors.Is(err, browser.ErrNoSession) {
			return err
		}
		if cfg.Browser.Mode != "headful" {
			return err
		}
		// Headful bootstrap: hand the window to the operator.
		cfg.Logger.Info("spacedump: waiting for manual login", "origin", origin)
		if err := sess.AwaitLogin(ctx, origin, 5*time.Minute); err != nil {
			return err
		}
	}

	tab, err := sess.OpenTab(ctx, "")
	if err != nil {
		return err
	}
	defer tab.Close()

	client, err := sess.HTTPClient(origin)
	if err != nil {
		return err
	}

	var disc spacedump.Discoverer
	switch cfg.Discovery.Strategy {
	case "scroll":
		disc = &discover.Scroll{
			Origin:     origin,
			Space:      cfg.Space,
			Pager:      tab,
			MaxScrolls: cfg.Discovery.MaxScrolls,
			Prober:     tab,
			Logger:     cfg.Logger,
		}
	default:
		disc = &discover.API{
			Origin:   origin,
			Space:    cfg.Space,
			Client:   client,
			PageSize: cfg.Discovery.PageSize,
			Prober:   tab,
			Logger:   cfg.Logger,
		}
	}

	machine := export.NewMachine(cfg,
		export.NewPageDriver(sess, tab),
		export.NewDirectFetch(client, origin),
		shotsDir(cfg))

	sum, err := spacedump.New(cfg, disc, machine).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("space %q: %d discovered, %d exported, %d failed, %d already present\n",
		sum.Space.Name, sum.Discovered, sum.Succeeded, sum.Failed, sum.Skipped)
	if sum.Failed > 0 {
		fmt.Println("re-run to retry the failed pages; completed ones are skipped via the ledger")
	}
	return nil
}

// resolveOrigin derives the service origin from the space reference, or
// from -base-url when the reference is a bare key.
func resolveOrigin(space, baseURL string) (string, error) {
	if baseURL != "" {
		return discover.Origin(baseURL)
	}
	origin, err := discover.Origin(space)
	if err != nil {
		return "", fmt.Errorf("spacedump: -space is not a URL, provide -base-url: %w", err)
	}
	return origin, nil
}

func shotsDir(cfg *spacedump.Config) string {
	return filepath.Join(cfg.OutputDir, "screenshots")
}
