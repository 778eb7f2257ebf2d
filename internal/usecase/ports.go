package usecase

import (
	"context"

	"github.com/Xolta0/shopify/internal/entity"
)

// DraftRef points at a draft order being calculated. Location is used only
// when the backend accepted the draft without returning its id.
type DraftRef struct {
	ID       string
	Location string
}

// CreateResult is the backend's answer to a draft submission. When the draft
// is still calculating, Order may be nil and Ref says where to poll.
type CreateResult struct {
	Order *entity.ProvisionalOrder
	Ref   DraftRef
}

func (r CreateResult) Pending() bool {
	return r.Order == nil || r.Order.Calculating()
}

// OrderBackend is the order-owning system.
type OrderBackend interface {
	CreateDraftOrder(ctx context.Context, req entity.DraftRequest) (CreateResult, error)
	GetDraftOrder(ctx context.Context, ref DraftRef) (*entity.ProvisionalOrder, error)
	ListOpenDraftOrders(ctx context.Context, limit int) ([]entity.ProvisionalOrder, error)
	UpdateDraftMetadata(ctx context.Context, draftID string, md entity.Metadata) error
	DeleteDraftOrder(ctx context.Context, draftID string) error
	CompleteDraftOrder(ctx context.Context, draftID string) (*entity.ProvisionalOrder, error)
	UpdateOrderMetadata(ctx context.Context, orderID string, md entity.Metadata) error
}

// PaymentGateway is the payment-owning system.
type PaymentGateway interface {
	CreatePaymentSession(ctx context.Context, req entity.PaymentRequest) (entity.PaymentSession, error)
}

// ClaimStore guards a draft order against concurrent finalization.
type ClaimStore interface {
	TryClaim(ctx context.Context, draftID string) (bool, error)
	Release(ctx context.Context, draftID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev entity.SagaEvent) error
}
