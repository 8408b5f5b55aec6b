package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"plain number", "12999", 12999},
		{"currency suffix", "12999 руб.", 12999},
		{"ruble sign", "1 234 ₽", 1234},
		{"thousands space", "12 999 руб", 12999},
		{"nbsp thousands", "12 999 руб.", 12999},
		{"kopeck fraction", "1 234,00 руб.", 1234},
		{"dot fraction", "1234.99 ₽", 1234},
		{"text after currency ignored", "999 руб./мес", 999},
		{"empty", "", PriceMissing},
		{"whitespace only", "   ", PriceMissing},
		{"no digits", "Нет цены", PriceMissing},
		{"letters only", "договорная", PriceMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParsePrice(tt.input))
		})
	}
}

func TestNormalizeIsPure(t *testing.T) {
	card := RawCard{
		NameText:  "  Холодильник Haier  ",
		PriceText: "54 999 руб.",
		ImageURL:  "https://cdn.example.com/img.jpg",
		LinkURL:   "/catalog/123",
	}
	capturedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := Normalize(card, "https://www.eldorado.ru", 1, 10, capturedAt)
	second := Normalize(card, "https://www.eldorado.ru", 1, 10, capturedAt)

	assert.Equal(t, first, second)
	assert.Equal(t, "Холодильник Haier", first.Name)
	assert.Equal(t, 54999, first.Price)
	assert.Equal(t, "https://www.eldorado.ru/catalog/123", first.URL)
	assert.Equal(t, "https://cdn.example.com/img.jpg", first.Image)
	assert.Equal(t, 1, first.StoreID)
	assert.Equal(t, 10, first.CategoryID)
	assert.Equal(t, capturedAt, first.ParseDate)
}

func TestNormalizeSentinels(t *testing.T) {
	rec := Normalize(RawCard{}, "https://www.eldorado.ru", 1, 10, time.Now())

	assert.Equal(t, NameMissing, rec.Name)
	assert.Equal(t, PriceMissing, rec.Price)
	assert.Equal(t, ImageMissing, rec.Image)
	assert.Equal(t, URLMissing, rec.URL)
	assert.False(t, rec.IsComplete())
}

func TestIsComplete(t *testing.T) {
	complete := ProductRecord{
		Name:  "Телевизор",
		Price: 29999,
		Image: "https://cdn.example.com/tv.jpg",
		URL:   "https://www.eldorado.ru/catalog/tv-1",
	}
	assert.True(t, complete.IsComplete())

	missingPrice := complete
	missingPrice.Price = PriceMissing
	assert.False(t, missingPrice.IsComplete())

	missingName := complete
	missingName.Name = NameMissing
	assert.False(t, missingName.IsComplete())

	missingImage := complete
	missingImage.Image = ImageMissing
	assert.False(t, missingImage.IsComplete())

	missingURL := complete
	missingURL.URL = URLMissing
	assert.False(t, missingURL.IsComplete())

	zeroPrice := complete
	zeroPrice.Price = 0
	assert.True(t, zeroPrice.IsComplete())
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	records := []ProductRecord{
		{URL: "https://example.com/a", Price: 100},
		{URL: "https://example.com/b", Price: 200},
		{URL: "https://example.com/a", Price: 300},
	}

	deduped := Dedupe(records)
	require.Len(t, deduped, 2)
	assert.Equal(t, 100, deduped[0].Price)
	assert.Equal(t, "https://example.com/b", deduped[1].URL)
}

func TestFilterComplete(t *testing.T) {
	records := []ProductRecord{
		{Name: "a", Price: 100, Image: "i", URL: "u1"},
		{Name: NameMissing, Price: 100, Image: "i", URL: "u2"},
		{Name: "c", Price: PriceMissing, Image: "i", URL: "u3"},
		{Name: "d", Price: 400, Image: "i", URL: "u4"},
	}

	complete, dropped := FilterComplete(records)
	assert.Len(t, complete, 2)
	assert.Equal(t, 2, dropped)
}
