// Package session owns the single shared browser process: page
// acquisition, the page-processed counter, and the hard restart applied
// once the page budget is spent. Long-lived browser processes grow
// memory and accumulate a recognizable session fingerprint; the budget
// bounds both.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pricewatch/storefront-scraper/internal/scraper"
)

var ErrNotRunning = errors.New("browser session not running")

// engine is the launched browser process. The playwright implementation
// lives in launch.go; tests substitute a fake.
type engine interface {
	NewDriver() (scraper.Driver, error)
	Close() error
}

// Controller serializes page acquisition against browser restarts: no
// page is handed out while a restart is in flight.
type Controller struct {
	opts   Options
	launch func(Options) (engine, error)
	logger *slog.Logger

	mu                sync.Mutex
	eng               engine
	pagesOpen         int
	pagesSinceRestart int
	pagesProcessed    int
	restarts          int
}

func NewController(opts Options, logger *slog.Logger) *Controller {
	if opts.PageBudget <= 0 {
		opts.PageBudget = 50
	}
	return &Controller{
		opts:   opts,
		launch: launchPlaywright,
		logger: logger.With("component", "session"),
	}
}

// Start launches the browser process. A launch failure is fatal to the
// run; the caller reports it upward without retrying.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eng != nil {
		return nil
	}

	eng, err := c.launch(c.opts)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	c.eng = eng

	c.logger.Info("browser session started", "page_budget", c.opts.PageBudget)
	return nil
}

// AcquirePage opens a fresh page on the shared browser.
func (c *Controller) AcquirePage() (scraper.Driver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eng == nil {
		return nil, ErrNotRunning
	}

	drv, err := c.eng.NewDriver()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	c.pagesOpen++
	return drv, nil
}

// ReleasePage closes a page and counts it against the budget.
func (c *Controller) ReleasePage(drv scraper.Driver) error {
	err := drv.Close()

	c.mu.Lock()
	if c.pagesOpen > 0 {
		c.pagesOpen--
	}
	c.pagesSinceRestart++
	c.pagesProcessed++
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}

// MaybeRestart relaunches the browser once the page budget is reached.
// A hard operational bound: it fires regardless of task success. The
// restart is held back while any page is still handed out; the caller
// that releases the last page triggers it on its next call.
func (c *Controller) MaybeRestart() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eng == nil || c.pagesSinceRestart < c.opts.PageBudget {
		return nil
	}
	if c.pagesOpen > 0 {
		c.logger.Debug("page budget reached, deferring restart until pages close",
			"open_pages", c.pagesOpen)
		return nil
	}

	c.logger.Info("page budget reached, restarting browser",
		"pages", c.pagesSinceRestart, "budget", c.opts.PageBudget)

	if err := c.eng.Close(); err != nil {
		c.logger.Warn("failed to close browser cleanly", "error", err)
	}
	c.eng = nil

	eng, err := c.launch(c.opts)
	if err != nil {
		return fmt.Errorf("failed to relaunch browser: %w", err)
	}

	c.eng = eng
	c.pagesSinceRestart = 0
	c.restarts++
	return nil
}

// Shutdown closes the browser process.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eng == nil {
		return nil
	}

	err := c.eng.Close()
	c.eng = nil
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}

	c.logger.Info("browser session closed", "pages_processed", c.pagesProcessed)
	return nil
}

// PagesProcessed reports the total pages processed over the run.
func (c *Controller) PagesProcessed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pagesProcessed
}

// Restarts reports how many budget restarts have happened.
func (c *Controller) Restarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}
