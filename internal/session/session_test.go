package session

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/storefront-scraper/internal/scraper"
)

type fakeEngine struct {
	pagesOpened int
	closed      bool
	pageErr     error
}

func (f *fakeEngine) NewDriver() (scraper.Driver, error) {
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	f.pagesOpened++
	return &nopDriver{}, nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

type nopDriver struct{ closed bool }

func (d *nopDriver) Goto(string, time.Duration) error        { return nil }
func (d *nopDriver) WaitFor(string, time.Duration) error     { return nil }
func (d *nopDriver) Click(string) error                      { return nil }
func (d *nopDriver) PressEnd() error                         { return nil }
func (d *nopDriver) Reload() error                           { return nil }
func (d *nopDriver) Evaluate(string) (any, error)            { return nil, nil }
func (d *nopDriver) Content() (string, error)                { return "", nil }
func (d *nopDriver) Count(string) (int, error)               { return 0, nil }
func (d *nopDriver) SetHeaders(map[string]string) error      { return nil }
func (d *nopDriver) SetViewport(int, int) error              { return nil }
func (d *nopDriver) Close() error                            { d.closed = true; return nil }

func newTestController(budget int) (*Controller, *[]*fakeEngine) {
	engines := &[]*fakeEngine{}
	c := NewController(Options{PageBudget: budget}, slog.Default())
	c.launch = func(Options) (engine, error) {
		eng := &fakeEngine{}
		*engines = append(*engines, eng)
		return eng, nil
	}
	return c, engines
}

func TestAcquireBeforeStart(t *testing.T) {
	c, _ := newTestController(3)
	_, err := c.AcquirePage()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStartLaunchFailureIsFatal(t *testing.T) {
	c := NewController(Options{PageBudget: 3}, slog.Default())
	c.launch = func(Options) (engine, error) {
		return nil, errors.New("chromium not found")
	}

	assert.Error(t, c.Start())
}

func TestRestartExactlyOncePerBudget(t *testing.T) {
	c, engines := newTestController(3)
	require.NoError(t, c.Start())

	for i := 0; i < 9; i++ {
		drv, err := c.AcquirePage()
		require.NoError(t, err)
		require.NoError(t, c.ReleasePage(drv))
		require.NoError(t, c.MaybeRestart())
	}

	// 9 pages with a budget of 3: restart after pages 3 and 6, and again
	// after page 9.
	assert.Equal(t, 3, c.Restarts())
	assert.Equal(t, 9, c.PagesProcessed())
	require.Len(t, *engines, 4)
	for _, eng := range (*engines)[:3] {
		assert.True(t, eng.closed)
	}
	assert.False(t, (*engines)[3].closed)
}

func TestMaybeRestartUnderBudget(t *testing.T) {
	c, engines := newTestController(5)
	require.NoError(t, c.Start())

	drv, err := c.AcquirePage()
	require.NoError(t, err)
	require.NoError(t, c.ReleasePage(drv))
	require.NoError(t, c.MaybeRestart())

	assert.Zero(t, c.Restarts())
	assert.Len(t, *engines, 1)
}

func TestRestartWaitsForOpenPages(t *testing.T) {
	c, engines := newTestController(1)
	require.NoError(t, c.Start())

	first, err := c.AcquirePage()
	require.NoError(t, err)
	second, err := c.AcquirePage()
	require.NoError(t, err)

	// Budget spent, but a sibling page is still live on the same
	// engine: the restart must not tear it down.
	require.NoError(t, c.ReleasePage(first))
	require.NoError(t, c.MaybeRestart())
	assert.Zero(t, c.Restarts())
	assert.False(t, (*engines)[0].closed)

	require.NoError(t, c.ReleasePage(second))
	require.NoError(t, c.MaybeRestart())
	assert.Equal(t, 1, c.Restarts())
	assert.True(t, (*engines)[0].closed)
	require.Len(t, *engines, 2)
}

func TestReleaseCountsEvenWhenCloseFails(t *testing.T) {
	c, _ := newTestController(3)
	require.NoError(t, c.Start())

	drv := &nopDriver{}
	require.NoError(t, c.ReleasePage(drv))
	assert.True(t, drv.closed)
	assert.Equal(t, 1, c.PagesProcessed())
}

func TestShutdownClosesEngine(t *testing.T) {
	c, engines := newTestController(3)
	require.NoError(t, c.Start())
	require.NoError(t, c.Shutdown())

	assert.True(t, (*engines)[0].closed)

	_, err := c.AcquirePage()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStartIsIdempotent(t *testing.T) {
	c, engines := newTestController(3)
	require.NoError(t, c.Start())
	require.NoError(t, c.Start())
	assert.Len(t, *engines, 1)
}
