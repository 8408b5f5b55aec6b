package session

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pricewatch/storefront-scraper/internal/scraper"
)

// Options configures the launched browser process and its pages.
type Options struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	PageBudget     int
}

func DefaultOptions() Options {
	return Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		ViewportWidth:  1200,
		ViewportHeight: 800,
		AcceptLanguage: "ru-RU,ru;q=0.9,en;q=0.8",
		TimezoneID:     "Europe/Moscow",
		Locale:         "ru-RU",
		PageBudget:     50,
	}
}

type playwrightEngine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
}

func launchPlaywright(opts Options) (engine, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--disable-extensions",
			"--fast-start",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": opts.AcceptLanguage,
			"DNT":             "1",
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &playwrightEngine{
		pw:      pw,
		browser: browser,
		context: context,
		timeout: opts.Timeout,
	}, nil
}

func (e *playwrightEngine) NewDriver() (scraper.Driver, error) {
	page, err := e.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	if e.timeout > 0 {
		page.SetDefaultTimeout(float64(e.timeout.Milliseconds()))
	}

	return scraper.NewDriver(page), nil
}

func (e *playwrightEngine) Close() error {
	var errs []error

	if e.context != nil {
		if err := e.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if e.pw != nil {
		if err := e.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
