// Package antidetect supplies randomized client identities for browser
// pages and the stall mitigation that rotates them.
package antidetect

import (
	"fmt"
	"log/slog"
	"math/rand"
)

// Page is the slice of page behavior the layer needs. The scraper's
// page driver satisfies it.
type Page interface {
	SetHeaders(headers map[string]string) error
	SetViewport(width, height int) error
	Reload() error
}

// Identity is one randomized desktop client fingerprint.
type Identity struct {
	UserAgent      string
	AcceptLanguage string
	ViewportWidth  int
	ViewportHeight int
}

type Options struct {
	UserAgents     []string
	AcceptLanguage string
	ViewportWidth  int
	ViewportHeight int
}

// Shield hands out identities and performs the single-shot stall
// mitigation. Best effort only: callers still treat repeated stalls as
// task failure.
type Shield struct {
	userAgents     []string
	acceptLanguage string
	viewportWidth  int
	viewportHeight int
	logger         *slog.Logger
}

func NewShield(opts Options, logger *slog.Logger) *Shield {
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = 1200
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = 800
	}
	return &Shield{
		userAgents:     opts.UserAgents,
		acceptLanguage: opts.AcceptLanguage,
		viewportWidth:  opts.ViewportWidth,
		viewportHeight: opts.ViewportHeight,
		logger:         logger.With("component", "antidetect"),
	}
}

// NewIdentity draws a fresh identity from the pool.
func (s *Shield) NewIdentity() Identity {
	ua := ""
	if len(s.userAgents) > 0 {
		ua = s.userAgents[rand.Intn(len(s.userAgents))]
	}
	return Identity{
		UserAgent:      ua,
		AcceptLanguage: s.acceptLanguage,
		ViewportWidth:  s.viewportWidth,
		ViewportHeight: s.viewportHeight,
	}
}

// Configure assigns a randomized identity to a freshly acquired page.
func (s *Shield) Configure(page Page) error {
	return s.apply(page, s.NewIdentity())
}

// OnStall reassigns a fresh identity and reloads the page once. Invoked
// when an expected selector failed to appear within its timeout.
func (s *Shield) OnStall(page Page) error {
	s.logger.Warn("selector stall, rotating identity and reloading")

	if err := s.apply(page, s.NewIdentity()); err != nil {
		return err
	}
	if err := page.Reload(); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return nil
}

func (s *Shield) apply(page Page, id Identity) error {
	headers := map[string]string{}
	if id.UserAgent != "" {
		headers["User-Agent"] = id.UserAgent
	}
	if id.AcceptLanguage != "" {
		headers["Accept-Language"] = id.AcceptLanguage
	}
	if len(headers) > 0 {
		if err := page.SetHeaders(headers); err != nil {
			return fmt.Errorf("failed to set headers: %w", err)
		}
	}
	if err := page.SetViewport(id.ViewportWidth, id.ViewportHeight); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}
	return nil
}
