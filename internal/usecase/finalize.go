package usecase

import (
	"context"
	"errors"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/logging"
)

// Finalizer turns a paid draft into a confirmed order. It does not retry;
// callers retry through gateway re-delivery, the settlement retry queue or an
// operator replay.
type Finalizer struct {
	backend OrderBackend
	events  EventPublisher
}

func NewFinalizer(backend OrderBackend, events EventPublisher) *Finalizer {
	if events == nil {
		events = nopPublisher{}
	}
	return &Finalizer{backend: backend, events: events}
}

func (f *Finalizer) Finalize(ctx context.Context, draftID string, n entity.Notification) (*entity.ProvisionalOrder, error) {
	log := logging.FromCtx(ctx).With("draft_id", draftID, "session_id", n.SessionID)

	completed, err := f.backend.CompleteDraftOrder(ctx, draftID)
	if err != nil {
		if !errors.Is(err, ErrFinalization) {
			err = &Error{Kind: ErrFinalization, Msg: "Draft order completion failed", Err: err}
		}
		return nil, err
	}
	log = log.With("order_id", completed.OrderID)

	if completed.OrderID == "" {
		log.Warn("completed draft returned no order id; paid tag not written")
	} else if err := f.backend.UpdateOrderMetadata(ctx, completed.OrderID, paidMetadata(n)); err != nil {
		log.Warn("paid tag write failed; order is completed", "err", err)
	}

	log.Info("order marked as paid", "amount", n.Amount, "currency", n.Currency)
	publish(ctx, f.events, entity.SagaEvent{
		Type:         entity.EventOrderFinalized,
		DraftOrderID: draftID,
		OrderID:      completed.OrderID,
		SessionID:    n.SessionID,
		Status:       string(n.Status),
		Amount:       n.Amount,
		Currency:     n.Currency,
	})
	return completed, nil
}
