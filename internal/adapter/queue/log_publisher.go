package queue

import (
	"context"
	"log/slog"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/usecase"
)

// LogPublisher writes saga events to the log when no broker is configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev entity.SagaEvent) error {
	p.Log.Info("saga event",
		"event", ev.Type,
		"event_id", ev.ID,
		"draft_id", ev.DraftOrderID,
		"order_id", ev.OrderID,
		"session_id", ev.SessionID,
		"status", ev.Status,
	)
	return nil
}

var _ usecase.EventPublisher = LogPublisher{}
