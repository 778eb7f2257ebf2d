package queue

import (
	"context"
	"errors"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/logging"
	"github.com/Xolta0/shopify/internal/usecase"
)

// Settler is the reconciliation step replayed for failed settlements.
type Settler interface {
	Settle(ctx context.Context, n entity.Notification) (usecase.ReconcileResult, error)
}

// SettlementRetryHandler replays a settlement.failed event as a RECEIVED
// notification. The draft status and claim store keep the replay idempotent.
type SettlementRetryHandler struct {
	settler Settler
}

func NewSettlementRetryHandler(s Settler) *SettlementRetryHandler {
	return &SettlementRetryHandler{settler: s}
}

// HandleFailed is intended to be used with JSONHandler[entity.SagaEvent].
func (h *SettlementRetryHandler) HandleFailed(ctx context.Context, ev entity.SagaEvent) error {
	log := logging.FromCtx(ctx).With("event_id", ev.ID, "session_id", ev.SessionID, "draft_id", ev.DraftOrderID)
	if ev.Type != entity.EventSettlementFailed {
		log.Warn("unexpected event on settlement retry queue", "event", ev.Type)
		return nil
	}

	res, err := h.settler.Settle(logging.WithCtx(ctx, log), entity.Notification{
		SessionID: ev.SessionID,
		DraftID:   ev.DraftOrderID,
		Status:    entity.PaymentReceived,
		Amount:    ev.Amount,
		Currency:  ev.Currency,
		Type:      "retry",
	})
	if errors.Is(err, usecase.ErrOrderNotFound) {
		log.Error("settlement retry: draft not found; needs manual reconciliation", "err", err)
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("settlement retry done", "outcome", string(res.Outcome), "order_id", res.OrderID)
	return nil
}
