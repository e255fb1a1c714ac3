package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spacedump.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
space: https://wiki.example.com/spaces/ENG/overview
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Discovery.Strategy != "api" {
		t.Errorf("default strategy = %q", cfg.Discovery.Strategy)
	}
	if cfg.Discovery.PageSize != 50 {
		t.Errorf("default page size = %d", cfg.Discovery.PageSize)
	}
	if cfg.Export.Timeout != 10*time.Second {
		t.Errorf("default timeout = %s", cfg.Export.Timeout)
	}
	if cfg.Export.ProcessingTimeout != 60*time.Second {
		t.Errorf("default processing timeout = %s", cfg.Export.ProcessingTimeout)
	}
	if !cfg.Export.RetryOnError {
		t.Error("retry must default to enabled")
	}
	if cfg.Export.MaxRetries != 3 {
		t.Errorf("default max retries = %d", cfg.Export.MaxRetries)
	}
	if cfg.Browser.Mode != "headless" {
		t.Errorf("default mode = %q", cfg.Browser.Mode)
	}
}

func TestLoadFile_ExplicitRetryOff(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
space: ENG
export:
  retry_on_error: false
  max_retries: 5
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Export.RetryOnError {
		t.Error("explicit retry_on_error: false was ignored")
	}
	if cfg.Export.MaxRetries != 5 {
		t.Errorf("max retries = %d", cfg.Export.MaxRetries)
	}
}

func TestLoadFile_Unparsable(t *testing.T) {
	if _, err := LoadFile(writeConfig(t, "space: [unterminated")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing space reference")
	}

	cfg.Space = "ENG"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	cfg.Discovery.Strategy = "teleport"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
