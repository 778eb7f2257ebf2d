package usecase

import (
	"context"
	"time"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/logging"
	"github.com/google/uuid"
)

// publish emits an audit event. Publishing never fails a saga step.
func publish(ctx context.Context, p EventPublisher, ev entity.SagaEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil {
		logging.FromCtx(ctx).Warn("saga event not published",
			"event", ev.Type, "draft_id", ev.DraftOrderID, "session_id", ev.SessionID, "err", err)
	}
}
