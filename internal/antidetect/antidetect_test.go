package antidetect

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	headers   []map[string]string
	viewports [][2]int
	reloads   int
	reloadErr error
}

func (f *fakePage) SetHeaders(h map[string]string) error {
	f.headers = append(f.headers, h)
	return nil
}

func (f *fakePage) SetViewport(w, h int) error {
	f.viewports = append(f.viewports, [2]int{w, h})
	return nil
}

func (f *fakePage) Reload() error {
	f.reloads++
	return f.reloadErr
}

func newShield(uas ...string) *Shield {
	return NewShield(Options{
		UserAgents:     uas,
		AcceptLanguage: "ru-RU,ru;q=0.9",
		ViewportWidth:  810,
		ViewportHeight: 900,
	}, slog.Default())
}

func TestNewIdentityDrawsFromPool(t *testing.T) {
	s := newShield("ua-one", "ua-two")

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := s.NewIdentity()
		seen[id.UserAgent] = true
		assert.Equal(t, 810, id.ViewportWidth)
		assert.Equal(t, 900, id.ViewportHeight)
	}

	assert.True(t, seen["ua-one"] || seen["ua-two"])
	assert.False(t, seen[""])
}

func TestConfigureAppliesIdentity(t *testing.T) {
	s := newShield("ua-one")
	page := &fakePage{}

	require.NoError(t, s.Configure(page))

	require.Len(t, page.headers, 1)
	assert.Equal(t, "ua-one", page.headers[0]["User-Agent"])
	assert.Equal(t, "ru-RU,ru;q=0.9", page.headers[0]["Accept-Language"])
	require.Len(t, page.viewports, 1)
	assert.Equal(t, [2]int{810, 900}, page.viewports[0])
	assert.Zero(t, page.reloads)
}

func TestOnStallRotatesAndReloadsOnce(t *testing.T) {
	s := newShield("ua-one")
	page := &fakePage{}

	require.NoError(t, s.OnStall(page))

	assert.Len(t, page.headers, 1)
	assert.Equal(t, 1, page.reloads)
}

func TestOnStallReloadFailure(t *testing.T) {
	s := newShield("ua-one")
	page := &fakePage{reloadErr: errors.New("page gone")}

	err := s.OnStall(page)
	assert.Error(t, err)
}
