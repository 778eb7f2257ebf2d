package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/logging"
	"github.com/Xolta0/shopify/internal/observ"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Outcome string

const (
	OutcomeFinalized Outcome = "finalized"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeInFlight  Outcome = "in_flight"
	OutcomeAudited   Outcome = "audited"
	OutcomeIgnored   Outcome = "ignored"
)

type ReconcileResult struct {
	Outcome      Outcome
	DraftOrderID string
	OrderID      string
}

type ReconcilerConfig struct {
	WebhookSecret string
	SearchLimit   int
}

// Reconciler runs the second half of the saga for one gateway notification.
type Reconciler struct {
	backend   OrderBackend
	finalizer *Finalizer
	claims    ClaimStore
	events    EventPublisher
	cfg       ReconcilerConfig
}

func NewReconciler(backend OrderBackend, finalizer *Finalizer, claims ClaimStore, events EventPublisher, cfg ReconcilerConfig) *Reconciler {
	if claims == nil {
		claims = nopClaims{}
	}
	if events == nil {
		events = nopPublisher{}
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 50
	}
	return &Reconciler{backend: backend, finalizer: finalizer, claims: claims, events: events, cfg: cfg}
}

func (r *Reconciler) Authenticate(secret string) error {
	if r.cfg.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(r.cfg.WebhookSecret)) != 1 {
		return &Error{Kind: ErrUnauthorized, Msg: "Unauthorized"}
	}
	return nil
}

// Handle authenticates n and dispatches on its status. Only RECEIVED
// mutates orders.
func (r *Reconciler) Handle(ctx context.Context, n entity.Notification) (res ReconcileResult, err error) {
	if err := r.Authenticate(n.Secret); err != nil {
		logging.FromCtx(ctx).Error("webhook: invalid secret")
		observ.WebhookNotification(string(n.Status), Kind(err))
		return ReconcileResult{}, err
	}

	ctx, span := tracer.Start(ctx, "reconcile")
	span.SetAttributes(
		attribute.String("payment.session_id", n.SessionID),
		attribute.String("payment.status", string(n.Status)),
	)
	defer func() {
		outcome := string(res.Outcome)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, Kind(err))
			outcome = Kind(err)
		}
		span.End()
		observ.WebhookNotification(string(n.Status), outcome)
	}()

	log := logging.FromCtx(ctx).With("session_id", n.SessionID, "draft_id", n.DraftID, "status", string(n.Status))
	ctx = logging.WithCtx(ctx, log)
	log.Info("webhook received", "amount", n.Amount, "currency", n.Currency, "method", n.Method, "type", n.Type)

	switch n.Status {
	case entity.PaymentReceived:
		res, err = r.Settle(ctx, n)
		if err != nil && retryable(err) {
			// the gateway is acknowledged with 200, so queue one more attempt
			publish(context.WithoutCancel(ctx), r.events, entity.SagaEvent{
				Type:         entity.EventSettlementFailed,
				DraftOrderID: firstNonEmpty(res.DraftOrderID, n.DraftID),
				SessionID:    n.SessionID,
				Status:       string(n.Status),
				Amount:       n.Amount,
				Currency:     n.Currency,
			})
		}
		return res, err
	case entity.PaymentCanceled, entity.PaymentTimeout:
		log.Info("payment not completed; no order change")
		evType := entity.EventPaymentCanceled
		if n.Status == entity.PaymentTimeout {
			evType = entity.EventPaymentTimeout
		}
		publish(ctx, r.events, entity.SagaEvent{
			Type:         evType,
			DraftOrderID: n.DraftID,
			SessionID:    n.SessionID,
			Status:       string(n.Status),
			Amount:       n.Amount,
			Currency:     n.Currency,
		})
		return ReconcileResult{Outcome: OutcomeAudited, DraftOrderID: n.DraftID}, nil
	default:
		log.Warn("webhook status ignored")
		return ReconcileResult{Outcome: OutcomeIgnored, DraftOrderID: n.DraftID}, nil
	}
}

// Settle resolves the draft for a received payment and finalizes it unless it
// is already completed or another delivery holds the claim.
func (r *Reconciler) Settle(ctx context.Context, n entity.Notification) (ReconcileResult, error) {
	log := logging.FromCtx(ctx)

	draft, err := r.Resolve(ctx, n.SessionID, n.DraftID)
	if err != nil {
		log.Error("webhook: draft order not resolved", "err", err)
		return ReconcileResult{}, err
	}
	log = log.With("draft_id", draft.ID)

	if draft.Completed() {
		log.Info("draft already completed; duplicate notification", "order_id", draft.OrderID)
		return ReconcileResult{Outcome: OutcomeDuplicate, DraftOrderID: draft.ID, OrderID: draft.OrderID}, nil
	}

	ok, err := r.claims.TryClaim(ctx, draft.ID)
	if err != nil {
		log.Warn("claim store unavailable; relying on draft status", "err", err)
		ok = true
	}
	if !ok {
		log.Info("draft finalization already in progress")
		return ReconcileResult{Outcome: OutcomeInFlight, DraftOrderID: draft.ID}, nil
	}

	completed, err := r.finalizer.Finalize(ctx, draft.ID, n)
	if err != nil {
		if rerr := r.claims.Release(context.WithoutCancel(ctx), draft.ID); rerr != nil {
			log.Warn("claim release failed", "err", rerr)
		}
		log.Error("webhook: finalization failed", "err", err)
		return ReconcileResult{DraftOrderID: draft.ID}, err
	}
	return ReconcileResult{Outcome: OutcomeFinalized, DraftOrderID: draft.ID, OrderID: completed.OrderID}, nil
}

// Resolve maps a payment session to its draft order: the callback draft id
// first, then a search over open drafts. The search takes the first match in
// list order and only sees the first SearchLimit open drafts.
func (r *Reconciler) Resolve(ctx context.Context, sessionID, draftID string) (*entity.ProvisionalOrder, error) {
	log := logging.FromCtx(ctx)

	if draftID != "" {
		draft, err := r.backend.GetDraftOrder(ctx, DraftRef{ID: draftID})
		switch {
		case err == nil:
			tagged, hasTag := SessionFromTags(draft.Tags)
			if !hasTag || sessionID == "" || tagged == sessionID {
				return draft, nil
			}
			log.Warn("callback draft is tagged for another session; searching", "tagged_session", tagged)
		case errors.Is(err, ErrOrderNotFound):
			log.Warn("callback draft not found; searching")
		default:
			return nil, err
		}
	}

	if sessionID == "" {
		return nil, &Error{Kind: ErrOrderNotFound, Msg: "Notification carries no session or draft id"}
	}

	drafts, err := r.backend.ListOpenDraftOrders(ctx, r.cfg.SearchLimit)
	if err != nil {
		return nil, err
	}
	for i := range drafts {
		if MatchesSession(drafts[i], sessionID) {
			return &drafts[i], nil
		}
	}
	return nil, &Error{Kind: ErrOrderNotFound, Msg: fmt.Sprintf("No draft order found for Aviagram orderId: %s", sessionID)}
}

// retryable reports whether a failed settlement may succeed on a later
// attempt. An unknown session will not appear by itself.
func retryable(err error) bool {
	return !errors.Is(err, ErrOrderNotFound) && !errors.Is(err, ErrUnauthorized)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
