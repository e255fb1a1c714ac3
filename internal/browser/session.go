// Package browser manages the single authenticated Chrome session the
// exporter runs on: launch or connect via Rod, seed cookies from the
// session file, verify the session is still valid, and persist refreshed
// cookies on teardown. The exporter never performs login itself; the
// session file is produced by a manual headful bootstrap run.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrNoSession signals that no valid authenticated session is available.
// The operator must run the login bootstrap before exporting.
var ErrNoSession = errors.New("spacedump: no valid session, run with -mode headful and log in")

// Config configures the browser session.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless controls the launch mode. Headful is used for the manual
	// login bootstrap.
	Headless bool

	// SessionFile holds the persisted cookies as a JSON array.
	SessionFile string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is the exporter's exclusive browsing session. All navigation
// and export interaction happens on tabs opened from it, strictly
// sequentially.
type Session struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// Start launches Chrome (or connects to a remote instance) and applies
// the persisted session cookies if the session file exists.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	cfg.defaults()
	log := cfg.Logger

	var wsURL string
	var lnch *launcher.Launcher

	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		lnch = l
		log.Info("browser: launched local chrome", "headless", cfg.Headless)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	s := &Session{cfg: cfg, browser: b, lnch: lnch}

	if err := s.loadCookies(); err != nil {
		log.Warn("browser: session cookies not loaded", "error", err)
	}

	return s, nil
}

// Browser returns the Rod browser handle.
func (s *Session) Browser() *rod.Browser { return s.browser }

// Close persists the current cookies back to the session file and shuts
// Chrome down. Always called on the way out, whatever the run outcome.
func (s *Session) Close() {
	if err := s.saveCookies(); err != nil {
		s.cfg.Logger.Warn("browser: save session failed", "error", err)
	}
	if s.browser != nil {
		s.browser.Close()
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
	}
}

// Verify checks that the session is authenticated against the service
// origin: the page must expose the logged-in user marker. Returns
// ErrNoSession otherwise.
func (s *Session) Verify(ctx context.Context, origin string) error {
	tab, err := s.OpenTab(ctx, origin)
	if err != nil {
		return fmt.Errorf("browser: verify: %w", err)
	}
	defer tab.Close()

	user, err := tab.RemoteUser(ctx)
	if err != nil {
		return fmt.Errorf("browser: verify: %w", err)
	}
	if user == "" {
		return ErrNoSession
	}
	s.cfg.Logger.Info("browser: session verified", "user", user)
	return nil
}

// AwaitLogin polls the origin until the operator has logged in manually,
// or the deadline passes. Used by the headful bootstrap flow.
func (s *Session) AwaitLogin(ctx context.Context, origin string, deadline time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	tab, err := s.OpenTab(ctx, origin)
	if err != nil {
		return fmt.Errorf("browser: await login: %w", err)
	}
	defer tab.Close()

	for {
		user, err := tab.RemoteUser(ctx)
		if err == nil && user != "" {
			s.cfg.Logger.Info("browser: login detected", "user", user)
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrNoSession
		case <-time.After(2 * time.Second):
		}
	}
}

// HTTPClient returns an HTTP client whose cookie jar mirrors the
// browser's current cookies for the given origin, so the listing API is
// queried under the same authenticated session.
func (s *Session) HTTPClient(origin string) (*http.Client, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("browser: parse origin: %w", err)
	}

	cookies, err := s.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("browser: get cookies: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("browser: cookie jar: %w", err)
	}

	var hcs []*http.Cookie
	for _, c := range cookies {
		hcs = append(hcs, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: c.Domain,
			Secure: c.Secure,
		})
	}
	jar.SetCookies(u, hcs)

	return &http.Client{Jar: jar, Timeout: 30 * time.Second}, nil
}

func (s *Session) loadCookies() error {
	data, err := os.ReadFile(s.cfg.SessionFile)
	if os.IsNotExist(err) {
		s.cfg.Logger.Info("browser: no session file", "path", s.cfg.SessionFile)
		return nil
	}
	if err != nil {
		return err
	}

	var cookies []*proto.NetworkCookieParam
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("parse %s: %w", s.cfg.SessionFile, err)
	}

	if err := s.browser.SetCookies(cookies); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	s.cfg.Logger.Info("browser: session cookies applied", "count", len(cookies))
	return nil
}

func (s *Session) saveCookies() error {
	if s.browser == nil || s.cfg.SessionFile == "" {
		return nil
	}
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return err
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			Expires:  c.Expires,
		})
	}

	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.cfg.SessionFile, data, 0o600)
}
