package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pricewatch/storefront-scraper/internal/antidetect"
	"github.com/pricewatch/storefront-scraper/internal/profile"
	"github.com/pricewatch/storefront-scraper/internal/ratelimit"
)

var ErrNavigationFailed = errors.New("navigation failed")

const (
	navigationTimeout = 30 * time.Second
	loadMoreTimeout   = 5 * time.Second

	// Bounded pagination: click-based stores get two load-more cycles,
	// infinite-scroll stores a fixed number of scroll-to-end steps.
	maxLoadMoreCycles = 2
	scrollSteps       = 10

	// Debug runs park the page for manual inspection instead of pacing.
	debugHold = 24 * time.Hour
)

// Navigator drives page loads and the bounded pagination loop for one
// store profile.
type Navigator struct {
	shield *antidetect.Shield
	sleep  ratelimit.SleepFunc
	debug  bool
	logger *slog.Logger
}

func NewNavigator(shield *antidetect.Shield, debug bool, logger *slog.Logger) *Navigator {
	return &Navigator{
		shield: shield,
		sleep:  ratelimit.RandomDelay,
		debug:  debug,
		logger: logger.With("component", "navigator"),
	}
}

// Load navigates to targetUrl with a bounded timeout and applies the
// profile's navigation delay. Failures are returned without retry; the
// caller skips the task.
func (n *Navigator) Load(ctx context.Context, drv Driver, targetURL string, p profile.StoreProfile) error {
	if err := n.shield.Configure(drv); err != nil {
		return fmt.Errorf("failed to configure page identity: %w", err)
	}

	if err := drv.Goto(targetURL, navigationTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigationFailed, err)
	}

	if n.debug {
		n.logger.Info("debug mode, holding page for inspection", "url", targetURL)
		return n.sleep(ctx, debugHold, debugHold)
	}

	return n.sleep(ctx, p.Delays.Navigation.Min, p.Delays.Navigation.Max)
}

// Paginate loads additional listing content. A missing load-more control
// ends pagination early; many categories simply have no more pages. The
// stall mitigation runs at most once per call.
func (n *Navigator) Paginate(ctx context.Context, drv Driver, p profile.StoreProfile) error {
	if p.InfiniteScroll {
		return n.scroll(ctx, drv, p)
	}

	if err := drv.PressEnd(); err != nil {
		n.logger.Warn("failed to scroll listing", "store", p.Key, "error", err)
	}

	stalled := false
	for cycle := 0; cycle < maxLoadMoreCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := drv.WaitFor(p.Selectors.LoadMoreControl, loadMoreTimeout); err != nil {
			if stalled {
				n.logger.Debug("load-more control absent, pagination done", "store", p.Key)
				return nil
			}
			stalled = true

			if err := n.shield.OnStall(drv); err != nil {
				return fmt.Errorf("stall mitigation failed: %w", err)
			}
			if err := drv.WaitFor(p.Selectors.LoadMoreControl, loadMoreTimeout); err != nil {
				n.logger.Debug("load-more control absent after reload, pagination done", "store", p.Key)
				return nil
			}
		}

		if err := drv.Click(p.Selectors.LoadMoreControl); err != nil {
			// Control disappeared between the wait and the click.
			n.logger.Debug("load-more control vanished, pagination done", "store", p.Key)
			return nil
		}

		drv.PressEnd()
		if err := n.sleep(ctx, p.Delays.Pagination.Min, p.Delays.Pagination.Max); err != nil {
			return err
		}
		drv.PressEnd()
	}

	return nil
}

func (n *Navigator) scroll(ctx context.Context, drv Driver, p profile.StoreProfile) error {
	for step := 0; step < scrollSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := drv.PressEnd(); err != nil {
			n.logger.Warn("failed to scroll listing", "store", p.Key, "error", err)
			return nil
		}
		if err := n.sleep(ctx, p.Delays.Pagination.Min, p.Delays.Pagination.Max); err != nil {
			return err
		}
	}
	return nil
}

// WaitForListing blocks until the product list selector appears, running
// the stall mitigation once before giving up.
func (n *Navigator) WaitForListing(ctx context.Context, drv Driver, p profile.StoreProfile, timeout time.Duration) error {
	if err := drv.WaitFor(p.Selectors.ProductList, timeout); err == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.shield.OnStall(drv); err != nil {
		return fmt.Errorf("stall mitigation failed: %w", err)
	}
	if err := drv.WaitFor(p.Selectors.ProductList, timeout); err != nil {
		return fmt.Errorf("listing did not appear after reload: %w", err)
	}
	return nil
}
