package entity

import "time"

type PaymentStatus string

const (
	PaymentReceived PaymentStatus = "RECEIVED"
	PaymentCanceled PaymentStatus = "CANCELED"
	PaymentTimeout  PaymentStatus = "TIMEOUT"
)

// PaymentRequest asks the gateway for a hosted payment session.
type PaymentRequest struct {
	Amount         string
	Currency       string
	SourceCurrency string
	Convert        bool
	CallbackURL    string
}

// PaymentSession is owned by the gateway; only ID and RedirectURL are kept.
type PaymentSession struct {
	ID          string
	Amount      string
	Currency    string
	RedirectURL string
}

// Notification is one webhook delivery. Secret and DraftID come from the
// callback URL query, the rest from the body.
type Notification struct {
	SessionID string
	Amount    string
	Currency  string
	Status    PaymentStatus
	Method    string
	Type      string
	CreatedAt string

	Secret  string
	DraftID string
}

// SagaEvent is published for audit after each terminal saga step.
type SagaEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	DraftOrderID string    `json:"draftOrderId,omitempty"`
	OrderID      string    `json:"orderId,omitempty"`
	SessionID    string    `json:"sessionId,omitempty"`
	Status       string    `json:"status,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	At           time.Time `json:"at"`
}

const (
	EventCheckoutStarted    = "checkout.started"
	EventCheckoutRolledBack = "checkout.rolled_back"
	EventOrderFinalized     = "order.finalized"
	EventPaymentCanceled    = "payment.canceled"
	EventPaymentTimeout     = "payment.timeout"
	EventSettlementFailed   = "settlement.failed"
)
