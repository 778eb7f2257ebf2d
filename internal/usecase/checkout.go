package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/logging"
	"github.com/Xolta0/shopify/internal/observ"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/Xolta0/shopify/internal/usecase")

type CheckoutConfig struct {
	PollInterval    time.Duration
	PollAttempts    int
	TagRetryDelay   time.Duration
	CompensateAfter time.Duration // deadline for the compensating delete

	Currency       string // gateway target currency, e.g. EUR-SP
	SourceCurrency string // empty => draft currency
	Convert        bool

	CallbackURL   string // absolute webhook URL without query
	WebhookSecret string
}

type CheckoutInput struct {
	Items           []entity.CartItem
	Customer        entity.Customer
	ShippingAddress entity.Address
	DiscountCode    string
}

type CheckoutOutput struct {
	DraftOrderID string
	SessionID    string
	RedirectURL  string
	TotalPrice   string
	Currency     string
}

// Checkout runs the first half of the saga: draft order, payment session,
// correlation tag.
type Checkout struct {
	backend OrderBackend
	gateway PaymentGateway
	events  EventPublisher
	cfg     CheckoutConfig
}

func NewCheckout(backend OrderBackend, gateway PaymentGateway, events EventPublisher, cfg CheckoutConfig) *Checkout {
	if events == nil {
		events = nopPublisher{}
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.TagRetryDelay <= 0 {
		cfg.TagRetryDelay = time.Second
	}
	if cfg.CompensateAfter <= 0 {
		cfg.CompensateAfter = 10 * time.Second
	}
	return &Checkout{backend: backend, gateway: gateway, events: events, cfg: cfg}
}

func (uc *Checkout) Execute(ctx context.Context, in CheckoutInput) (out CheckoutOutput, err error) {
	ctx, span := tracer.Start(ctx, "checkout")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, Kind(err))
		}
		span.End()
		observ.CheckoutResult(Kind(err))
	}()

	if err := ValidateCheckout(in); err != nil {
		return CheckoutOutput{}, err
	}

	draft, err := uc.createProvisional(ctx, in)
	if err != nil {
		return CheckoutOutput{}, err
	}
	span.SetAttributes(attribute.String("draft.id", draft.ID))

	session, err := uc.initiatePayment(ctx, draft)
	if err != nil {
		return CheckoutOutput{}, err
	}
	span.SetAttributes(attribute.String("payment.session_id", session.ID))

	// A failed tag is logged inside; the callback URL still carries the draft id.
	_ = uc.tag(ctx, draft.ID, session.ID)

	publish(ctx, uc.events, entity.SagaEvent{
		Type:         entity.EventCheckoutStarted,
		DraftOrderID: draft.ID,
		SessionID:    session.ID,
		Amount:       draft.TotalPrice,
		Currency:     draft.Currency,
	})

	return CheckoutOutput{
		DraftOrderID: draft.ID,
		SessionID:    session.ID,
		RedirectURL:  session.RedirectURL,
		TotalPrice:   draft.TotalPrice,
		Currency:     draft.Currency,
	}, nil
}

// ValidateCheckout fails fast with one message per missing group.
func ValidateCheckout(in CheckoutInput) error {
	if len(in.Items) == 0 {
		return validationErr("Cart is empty")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.VariantID) == "" || it.Quantity < 1 {
			return validationErr(fmt.Sprintf("Cart item %d is invalid", i+1))
		}
	}
	if strings.TrimSpace(in.Customer.Email) == "" {
		return validationErr("Email is required")
	}
	a := in.ShippingAddress
	if strings.TrimSpace(a.FirstName) == "" || strings.TrimSpace(a.LastName) == "" {
		return validationErr("First and last name are required")
	}
	if strings.TrimSpace(a.Address1) == "" || strings.TrimSpace(a.City) == "" || strings.TrimSpace(a.Country) == "" {
		return validationErr("Address, city, and country are required")
	}
	return nil
}

func (uc *Checkout) createProvisional(ctx context.Context, in CheckoutInput) (*entity.ProvisionalOrder, error) {
	log := logging.FromCtx(ctx)
	md := pendingMetadata()

	res, err := uc.backend.CreateDraftOrder(ctx, entity.DraftRequest{
		Items:           in.Items,
		Customer:        in.Customer,
		ShippingAddress: in.ShippingAddress,
		DiscountCode:    in.DiscountCode,
		ShippingTitle:   "Standard Shipping",
		ShippingPrice:   "0.00",
		Note:            md.Note,
		Tags:            md.Tags,
	})
	if err != nil {
		return nil, err
	}
	if !res.Pending() {
		log.Info("draft order created", "draft_id", res.Order.ID, "total", res.Order.TotalPrice, "currency", res.Order.Currency)
		return res.Order, nil
	}

	ref := res.Ref
	if ref.ID == "" && res.Order != nil {
		ref.ID = res.Order.ID
	}
	if ref.ID == "" && ref.Location == "" {
		return nil, &Error{Kind: ErrUpstream, Msg: "Draft order returned 202 with no ID or location"}
	}
	log.Info("draft order calculating, polling", "draft_id", ref.ID, "location", ref.Location)

	draft, err := uc.awaitCalculation(ctx, ref)
	if err != nil {
		return nil, err
	}
	log.Info("draft order created", "draft_id", draft.ID, "total", draft.TotalPrice, "currency", draft.Currency)
	return draft, nil
}

// awaitCalculation polls at a fixed interval until the draft leaves the
// calculating state or the attempt ceiling is reached.
func (uc *Checkout) awaitCalculation(ctx context.Context, ref DraftRef) (*entity.ProvisionalOrder, error) {
	log := logging.FromCtx(ctx)
	for attempt := 1; attempt <= uc.cfg.PollAttempts; attempt++ {
		if err := sleepOrDone(ctx, uc.cfg.PollInterval); err != nil {
			return nil, err
		}
		draft, err := uc.backend.GetDraftOrder(ctx, ref)
		if err != nil {
			if errors.Is(err, ErrAuthFailure) || ctx.Err() != nil {
				return nil, err
			}
			log.Warn("draft poll failed", "attempt", attempt, "draft_id", ref.ID, "err", err)
			continue
		}
		if !draft.Calculating() {
			observ.DraftPolls(attempt)
			return draft, nil
		}
		log.Info("draft still calculating", "attempt", attempt, "draft_id", ref.ID)
	}
	observ.DraftPolls(uc.cfg.PollAttempts)
	return nil, &Error{Kind: ErrCalculationTimeout, Msg: "Draft order creation timed out"}
}

func (uc *Checkout) initiatePayment(ctx context.Context, draft *entity.ProvisionalOrder) (entity.PaymentSession, error) {
	log := logging.FromCtx(ctx).With("draft_id", draft.ID)

	if draft.Status == entity.DraftInvalid {
		err := &Error{Kind: ErrOrderRejected, Msg: "Draft order could not be calculated"}
		uc.compensate(ctx, draft.ID, err)
		return entity.PaymentSession{}, err
	}
	amount, err := decimal.NewFromString(draft.TotalPrice)
	if err != nil || !amount.IsPositive() {
		err := &Error{Kind: ErrUpstream, Msg: "Draft order returned an unusable total", Body: draft.TotalPrice, Err: err}
		uc.compensate(ctx, draft.ID, err)
		return entity.PaymentSession{}, err
	}

	callback, err := uc.callbackURL(draft.ID)
	if err != nil {
		uc.compensate(ctx, draft.ID, err)
		return entity.PaymentSession{}, err
	}

	source := uc.cfg.SourceCurrency
	if source == "" {
		source = draft.Currency
	}
	session, err := uc.gateway.CreatePaymentSession(ctx, entity.PaymentRequest{
		Amount:         amount.StringFixed(2),
		Currency:       uc.cfg.Currency,
		SourceCurrency: source,
		Convert:        uc.cfg.Convert,
		CallbackURL:    callback,
	})
	if err != nil {
		if !errors.Is(err, ErrPaymentGateway) {
			err = &Error{Kind: ErrPaymentGateway, Msg: "Payment gateway error", Err: err}
		}
		log.Error("payment session failed", "err", err)
		uc.compensate(ctx, draft.ID, err)
		return entity.PaymentSession{}, err
	}

	log.Info("payment session created", "session_id", session.ID, "amount", amount.StringFixed(2))
	return session, nil
}

// compensate discards a draft whose payment could not be started. Its own
// failure is logged and never replaces cause.
func (uc *Checkout) compensate(ctx context.Context, draftID string, cause error) {
	log := logging.FromCtx(ctx).With("draft_id", draftID, "cause", Kind(cause))

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.CompensateAfter)
	defer cancel()

	if err := uc.backend.DeleteDraftOrder(cctx, draftID); err != nil {
		observ.Compensation(false)
		log.Error("compensating draft delete failed; draft left behind", "err", err)
		return
	}
	observ.Compensation(true)
	log.Info("draft order deleted after payment failure")
	publish(cctx, uc.events, entity.SagaEvent{
		Type:         entity.EventCheckoutRolledBack,
		DraftOrderID: draftID,
		Status:       Kind(cause),
	})
}

func (uc *Checkout) callbackURL(draftID string) (string, error) {
	u, err := url.Parse(uc.cfg.CallbackURL)
	if err != nil {
		return "", fmt.Errorf("parse callback url: %w", err)
	}
	q := u.Query()
	q.Set("secret", uc.cfg.WebhookSecret)
	q.Set("draft", draftID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// tag writes the session id into the draft's note and tags, retrying once.
func (uc *Checkout) tag(ctx context.Context, draftID, sessionID string) error {
	log := logging.FromCtx(ctx).With("draft_id", draftID, "session_id", sessionID)
	md := taggedMetadata(sessionID)

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			if werr := sleepOrDone(ctx, uc.cfg.TagRetryDelay); werr != nil {
				err = werr
				break
			}
		}
		if err = uc.backend.UpdateDraftMetadata(ctx, draftID, md); err == nil {
			return nil
		}
		log.Warn("correlation tag write failed", "attempt", attempt, "err", err)
	}
	log.Error("CORRELATION TAG MISSING: draft is only reachable through the callback draft id", "err", err)
	return err
}
