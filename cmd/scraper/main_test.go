package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pricewatch/storefront-scraper/internal/config"
)

func TestLogOnly(t *testing.T) {
	tests := []struct {
		name    string
		mode    config.Mode
		dryRun  bool
		logOnly bool
	}{
		{name: "production writes", mode: config.ModeProduction, dryRun: false, logOnly: false},
		{name: "debug never writes", mode: config.ModeDebug, dryRun: false, logOnly: true},
		{name: "dry-run flag alone", mode: config.ModeProduction, dryRun: true, logOnly: true},
		{name: "debug plus dry-run", mode: config.ModeDebug, dryRun: true, logOnly: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.logOnly, logOnly(tt.mode, tt.dryRun))
		})
	}
}
