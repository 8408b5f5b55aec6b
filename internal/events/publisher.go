// Package events publishes reconciliation outcomes to a Redis stream so
// downstream consumers (alerting, analytics) see price movements without
// polling the catalog.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricewatch/storefront-scraper/internal/catalog"
)

// RedisClient is the slice of go-redis the publisher uses (for testing).
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Publisher appends outcome events to a Redis stream. A nil *Publisher
// is a valid no-op, so callers need no branching when Redis is not
// configured.
type Publisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = "stream:price_events"
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "events"),
	}
}

// PublishOutcome appends one reconciliation outcome. Unchanged and
// skipped outcomes are not published; only actual catalog movement is.
func (p *Publisher) PublishOutcome(ctx context.Context, out catalog.Outcome) error {
	if p == nil {
		return nil
	}
	if out.Action != catalog.ActionCreated && out.Action != catalog.ActionPriceUpdated {
		return nil
	}

	values := map[string]any{
		"action":     string(out.Action),
		"url":        out.Record.URL,
		"name":       out.Record.Name,
		"price":      strconv.Itoa(out.Record.Price),
		"store_id":   strconv.Itoa(out.Record.StoreID),
		"parse_date": out.Record.ParseDate.Format(time.RFC3339),
	}

	if err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish outcome for %s: %w", out.Record.URL, err)
	}

	p.logger.Debug("outcome published", "action", out.Action, "url", out.Record.URL)
	return nil
}

// Close releases the underlying Redis connection.
func (p *Publisher) Close() error {
	if p == nil || p.redis == nil {
		return nil
	}
	return p.redis.Close()
}
