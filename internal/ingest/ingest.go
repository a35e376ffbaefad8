// ABOUTME: Queue consumer: dedupe inbound mentions and feed them to the hub.
// ABOUTME: A session-limit rejection leaves the message unconsumed for redelivery.

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Tonksthebear/trybotster-sub005/internal/action"
	"github.com/Tonksthebear/trybotster-sub005/internal/dedupe"
)

// ClientID attributes queue-originated actions. It never corresponds to
// a registered viewer, so confirmations addressed to it go nowhere.
const ClientID = "queue"

// Dispatcher is the slice of the hub the consumer needs.
type Dispatcher interface {
	Do(ctx context.Context, act action.Action, clientID string) error
}

// Consumer applies inbound queue messages to the hub.
type Consumer struct {
	mapper Mapper
	cache  *dedupe.Cache
	hub    Dispatcher
	logger *slog.Logger
}

// NewConsumer wires the mapper, the dedupe cache, and the hub together.
func NewConsumer(mapper Mapper, cache *dedupe.Cache, hub Dispatcher, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		mapper: mapper,
		cache:  cache,
		hub:    hub,
		logger: logger.With("component", "ingest"),
	}
}

// Handle processes one raw queue payload. A nil return consumes the
// message; an error leaves it unconsumed so the queue redelivers it.
//
// Malformed messages are consumed (redelivery cannot fix them). A spawn
// rejected by the session limit is NOT consumed: capacity may free up
// before the redelivery arrives.
func (c *Consumer) Handle(ctx context.Context, data []byte) error {
	m, err := Parse(data)
	if err != nil {
		c.logger.Warn("dropping malformed queue message", "error", err)
		return nil
	}

	if m.ID != "" && c.cache.Duplicate(m.ID) {
		c.logger.Debug("dropping duplicate queue message", "id", m.ID)
		return nil
	}

	act, err := c.mapper.Map(m)
	if err != nil {
		c.logger.Warn("dropping unmappable queue message", "id", m.ID, "type", m.Type, "error", err)
		return nil
	}

	err = c.hub.Do(ctx, act, ClientID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, action.ErrMaxSessions):
		// Unconsumed: capacity may free up before redelivery. Release
		// the id so the retry is not mistaken for a duplicate.
		c.cache.Forget(m.ID)
		c.logger.Info("session limit reached, leaving message for redelivery", "id", m.ID, "issue", m.Issue)
		return fmt.Errorf("handling mention %s: %w", m.ID, err)
	case errors.Is(err, action.ErrAgentNotFound):
		// Cleanup for a session that is already gone. Done.
		return nil
	default:
		c.cache.Forget(m.ID)
		c.logger.Error("applying queue message", "id", m.ID, "error", err)
		return fmt.Errorf("handling message %s: %w", m.ID, err)
	}
}
