package scraper

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Driver is the slice of browser-page behavior the pipeline uses. The
// playwright implementation is the only production one; tests substitute
// fakes.
type Driver interface {
	Goto(url string, timeout time.Duration) error
	WaitFor(selector string, timeout time.Duration) error
	Click(selector string) error
	PressEnd() error
	Reload() error
	Evaluate(script string) (any, error)
	Content() (string, error)
	Count(selector string) (int, error)
	SetHeaders(headers map[string]string) error
	SetViewport(width, height int) error
	Close() error
}

type pageDriver struct {
	page playwright.Page
}

// NewDriver wraps a playwright page.
func NewDriver(page playwright.Page) Driver {
	return &pageDriver{page: page}
}

func (d *pageDriver) Goto(url string, timeout time.Duration) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *pageDriver) WaitFor(selector string, timeout time.Duration) error {
	_, err := d.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (d *pageDriver) Click(selector string) error {
	return d.page.Click(selector)
}

func (d *pageDriver) PressEnd() error {
	return d.page.Keyboard().Press("End")
}

func (d *pageDriver) Reload() error {
	_, err := d.page.Reload()
	return err
}

func (d *pageDriver) Evaluate(script string) (any, error) {
	return d.page.Evaluate(script)
}

func (d *pageDriver) Content() (string, error) {
	return d.page.Content()
}

func (d *pageDriver) Count(selector string) (int, error) {
	return d.page.Locator(selector).Count()
}

func (d *pageDriver) SetHeaders(headers map[string]string) error {
	return d.page.SetExtraHTTPHeaders(headers)
}

func (d *pageDriver) SetViewport(width, height int) error {
	return d.page.SetViewportSize(width, height)
}

func (d *pageDriver) Close() error {
	return d.page.Close()
}
