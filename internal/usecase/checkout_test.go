package usecase

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() CheckoutInput {
	return CheckoutInput{
		Items:    []entity.CartItem{{VariantID: "V1", Quantity: 2}},
		Customer: entity.Customer{Email: "ada@example.com"},
		ShippingAddress: entity.Address{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Address1:  "1 Analytical Row",
			City:      "London",
			Country:   "GB",
		},
	}
}

func testCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		PollInterval:   time.Millisecond,
		PollAttempts:   10,
		TagRetryDelay:  time.Millisecond,
		Currency:       "EUR-SP",
		SourceCurrency: "GBP",
		Convert:        true,
		CallbackURL:    "https://shop.example/api/webhook",
		WebhookSecret:  "s3cret",
	}
}

func TestCheckout_Success(t *testing.T) {
	backend := newFakeBackend()
	gw := &fakeGateway{}
	events := &recordingPublisher{}
	uc := NewCheckout(backend, gw, events, testCheckoutConfig())

	out, err := uc.Execute(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, "1001", out.DraftOrderID)
	assert.Equal(t, "AV-77", out.SessionID)
	assert.Equal(t, "42.00", out.TotalPrice)
	assert.Equal(t, "GBP", out.Currency)
	assert.Equal(t, "https://pay.example/form/AV-77", out.RedirectURL)

	// draft submitted with pending marker and free shipping
	require.Len(t, backend.created, 1)
	req := backend.created[0]
	assert.Equal(t, TagPending, req.Tags)
	assert.Equal(t, "Awaiting Aviagram payment", req.Note)
	assert.Equal(t, "Standard Shipping", req.ShippingTitle)
	assert.Equal(t, "0.00", req.ShippingPrice)

	// payment request carries the formatted total and an authenticated callback
	require.Len(t, gw.requests, 1)
	pr := gw.requests[0]
	assert.Equal(t, "42.00", pr.Amount)
	assert.Equal(t, "EUR-SP", pr.Currency)
	assert.Equal(t, "GBP", pr.SourceCurrency)
	assert.True(t, pr.Convert)
	cb, err := url.Parse(pr.CallbackURL)
	require.NoError(t, err)
	assert.Equal(t, "/api/webhook", cb.Path)
	assert.Equal(t, "s3cret", cb.Query().Get("secret"))
	assert.Equal(t, "1001", cb.Query().Get("draft"))

	// correlation tag replaces the pending marker
	d := backend.draft("1001")
	assert.Equal(t, "aviagram:AV-77", d.Tags)
	assert.Equal(t, "Aviagram: AV-77", d.Note)

	assert.Equal(t, []string{entity.EventCheckoutStarted}, events.types())
}

func TestCheckout_ValidationMakesNoBackendCalls(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CheckoutInput)
		msg    string
	}{
		{"empty cart", func(in *CheckoutInput) { in.Items = nil }, "Cart is empty"},
		{"zero quantity", func(in *CheckoutInput) { in.Items[0].Quantity = 0 }, "Cart item 1 is invalid"},
		{"missing variant", func(in *CheckoutInput) { in.Items[0].VariantID = " " }, "Cart item 1 is invalid"},
		{"missing email", func(in *CheckoutInput) { in.Customer.Email = "" }, "Email is required"},
		{"missing last name", func(in *CheckoutInput) { in.ShippingAddress.LastName = "" }, "First and last name are required"},
		{"missing city", func(in *CheckoutInput) { in.ShippingAddress.City = "" }, "Address, city, and country are required"},
		{"missing country", func(in *CheckoutInput) { in.ShippingAddress.Country = "" }, "Address, city, and country are required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := newFakeBackend()
			gw := &fakeGateway{}
			uc := NewCheckout(backend, gw, nil, testCheckoutConfig())

			in := validInput()
			tc.mutate(&in)
			_, err := uc.Execute(context.Background(), in)

			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tc.msg, Message(err))
			creates, gets, deletes, _ := backend.counts()
			assert.Zero(t, creates+gets+deletes)
			assert.Empty(t, gw.requests)
		})
	}
}

func TestCheckout_PollsUntilCalculated(t *testing.T) {
	backend := newFakeBackend()
	backend.createFn = func(entity.DraftRequest) (CreateResult, error) {
		return CreateResult{Ref: DraftRef{ID: "2002"}}, nil
	}
	polls := 0
	backend.getFn = func(ref DraftRef) (*entity.ProvisionalOrder, error) {
		polls++
		if polls < 3 {
			return &entity.ProvisionalOrder{ID: ref.ID, Status: entity.DraftCalculating}, nil
		}
		return &entity.ProvisionalOrder{ID: ref.ID, Status: entity.DraftOpen, TotalPrice: "19.5", Currency: "GBP"}, nil
	}
	gw := &fakeGateway{}
	uc := NewCheckout(backend, gw, nil, testCheckoutConfig())

	out, err := uc.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, 3, polls)
	assert.Equal(t, "2002", out.DraftOrderID)
	require.Len(t, gw.requests, 1)
	assert.Equal(t, "19.50", gw.requests[0].Amount)
}

func TestCheckout_PollsByLocationWhenIDMissing(t *testing.T) {
	backend := newFakeBackend()
	backend.createFn = func(entity.DraftRequest) (CreateResult, error) {
		return CreateResult{Ref: DraftRef{Location: "https://shop.example/admin/api/2025-01/draft_orders/3003.json"}}, nil
	}
	var seen DraftRef
	backend.getFn = func(ref DraftRef) (*entity.ProvisionalOrder, error) {
		seen = ref
		return &entity.ProvisionalOrder{ID: "3003", Status: entity.DraftOpen, TotalPrice: "10.00", Currency: "GBP"}, nil
	}
	uc := NewCheckout(backend, &fakeGateway{}, nil, testCheckoutConfig())

	out, err := uc.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "3003", out.DraftOrderID)
	assert.Contains(t, seen.Location, "/draft_orders/3003.json")
}

func TestCheckout_AcceptedWithoutReference(t *testing.T) {
	backend := newFakeBackend()
	backend.createFn = func(entity.DraftRequest) (CreateResult, error) {
		return CreateResult{}, nil
	}
	uc := NewCheckout(backend, &fakeGateway{}, nil, testCheckoutConfig())

	_, err := uc.Execute(context.Background(), validInput())
	require.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, "upstream", Kind(err))
}

func TestCheckout_CalculationTimeoutNeverRequestsPayment(t *testing.T) {
	backend := newFakeBackend()
	backend.createFn = func(entity.DraftRequest) (CreateResult, error) {
		return CreateResult{Ref: DraftRef{ID: "4004"}}, nil
	}
	backend.getFn = func(ref DraftRef) (*entity.ProvisionalOrder, error) {
		return &entity.ProvisionalOrder{ID: ref.ID, Status: entity.DraftCalculating}, nil
	}
	gw := &fakeGateway{}
	cfg := testCheckoutConfig()
	cfg.PollAttempts = 4
	uc := NewCheckout(backend, gw, nil, cfg)

	_, err := uc.Execute(context.Background(), validInput())
	require.ErrorIs(t, err, ErrCalculationTimeout)
	assert.Equal(t, "Draft order creation timed out", Message(err))
	_, gets, _, _ := backend.counts()
	assert.Equal(t, 4, gets)
	assert.Empty(t, gw.requests)
}

func TestCheckout_PollHonorsCancellation(t *testing.T) {
	backend := newFakeBackend()
	backend.createFn = func(entity.DraftRequest) (CreateResult, error) {
		return CreateResult{Ref: DraftRef{ID: "4005"}}, nil
	}
	cfg := testCheckoutConfig()
	cfg.PollInterval = time.Hour
	uc := NewCheckout(backend, &fakeGateway{}, nil, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := uc.Execute(ctx, validInput())

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCheckout_PollKeepsGoingOnTransientErrors(t *testing.T) {
	backend := newFakeBackend()
	backend.createFn = func(entity.DraftRequest) (CreateResult, error) {
		return CreateResult{Ref: DraftRef{ID: "4006"}}, nil
	}
	polls := 0
	backend.getFn = func(ref DraftRef) (*entity.ProvisionalOrder, error) {
		polls++
		if polls == 1 {
			return nil, UpstreamError(ErrUpstream, "Draft order lookup failed", 500, "oops")
		}
		return &entity.ProvisionalOrder{ID: ref.ID, Status: entity.DraftOpen, TotalPrice: "5.00", Currency: "GBP"}, nil
	}
	uc := NewCheckout(backend, &fakeGateway{}, nil, testCheckoutConfig())

	_, err := uc.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, 2, polls)
}

func TestCheckout_RejectedDraftIsNotRetried(t *testing.T) {
	backend := newFakeBackend()
	backend.createFn = func(entity.DraftRequest) (CreateResult, error) {
		return CreateResult{}, UpstreamError(ErrOrderRejected, "line_items: variant is invalid", 422, `{"errors":{}}`)
	}
	gw := &fakeGateway{}
	uc := NewCheckout(backend, gw, nil, testCheckoutConfig())

	_, err := uc.Execute(context.Background(), validInput())
	require.ErrorIs(t, err, ErrOrderRejected)
	assert.Equal(t, "line_items: variant is invalid", Message(err))
	creates, _, _, _ := backend.counts()
	assert.Equal(t, 1, creates)
	assert.Empty(t, gw.requests)
}

func TestCheckout_GatewayFailureDeletesDraft(t *testing.T) {
	backend := newFakeBackend()
	gw := &fakeGateway{err: UpstreamError(ErrPaymentGateway, "Payment gateway error", 500, "gateway down")}
	events := &recordingPublisher{}
	uc := NewCheckout(backend, gw, events, testCheckoutConfig())

	_, err := uc.Execute(context.Background(), validInput())

	require.ErrorIs(t, err, ErrPaymentGateway)
	assert.Equal(t, "payment_gateway", Kind(err))
	var ue *Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "gateway down", ue.Body)

	assert.Equal(t, []string{"1001"}, backend.deleted)
	assert.Empty(t, backend.updates, "no correlation tag after a failed payment")
	assert.Equal(t, []string{entity.EventCheckoutRolledBack}, events.types())
}

func TestCheckout_FailedCompensationDoesNotMaskCause(t *testing.T) {
	backend := newFakeBackend()
	backend.deleteErr = UpstreamError(ErrUpstream, "delete failed", 500, "")
	gw := &fakeGateway{err: errBoom}
	events := &recordingPublisher{}
	uc := NewCheckout(backend, gw, events, testCheckoutConfig())

	_, err := uc.Execute(context.Background(), validInput())

	require.ErrorIs(t, err, ErrPaymentGateway)
	require.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrUpstream)
	assert.Equal(t, []string{"1001"}, backend.deleted)
	assert.Empty(t, events.types())
}

func TestCheckout_InvalidDraftIsCompensated(t *testing.T) {
	backend := newFakeBackend()
	backend.createFn = func(entity.DraftRequest) (CreateResult, error) {
		o := backend.add(entity.ProvisionalOrder{Status: entity.DraftInvalid})
		return CreateResult{Order: o}, nil
	}
	gw := &fakeGateway{}
	uc := NewCheckout(backend, gw, nil, testCheckoutConfig())

	_, err := uc.Execute(context.Background(), validInput())
	require.ErrorIs(t, err, ErrOrderRejected)
	assert.Len(t, backend.deleted, 1)
	assert.Empty(t, gw.requests)
}

func TestCheckout_TagRetriedOnce(t *testing.T) {
	backend := newFakeBackend()
	backend.updateErrs = []error{errBoom}
	uc := NewCheckout(backend, &fakeGateway{}, nil, testCheckoutConfig())

	out, err := uc.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.Len(t, backend.updates, 2)
	assert.Equal(t, SessionTag(out.SessionID), backend.draft(out.DraftOrderID).Tags)
}

func TestCheckout_TagRetryWaitsConfiguredDelay(t *testing.T) {
	backend := newFakeBackend()
	backend.updateErrs = []error{errBoom}
	cfg := testCheckoutConfig()
	cfg.TagRetryDelay = 40 * time.Millisecond
	uc := NewCheckout(backend, &fakeGateway{}, nil, cfg)

	start := time.Now()
	_, err := uc.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Len(t, backend.updates, 2)
}

func TestCheckout_TagRetryDelayDefaultsToOneSecond(t *testing.T) {
	cfg := testCheckoutConfig()
	cfg.TagRetryDelay = 0
	uc := NewCheckout(newFakeBackend(), &fakeGateway{}, nil, cfg)
	assert.Equal(t, time.Second, uc.cfg.TagRetryDelay)
}

func TestCheckout_TagFailureStillSucceeds(t *testing.T) {
	backend := newFakeBackend()
	backend.updateErrs = []error{errBoom, errBoom}
	uc := NewCheckout(backend, &fakeGateway{}, nil, testCheckoutConfig())

	out, err := uc.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "AV-77", out.SessionID)
	assert.Len(t, backend.updates, 2)
	assert.Equal(t, TagPending, backend.draft(out.DraftOrderID).Tags)
	assert.Empty(t, backend.deleted)
}

func TestCheckout_EventFailureIsNotFatal(t *testing.T) {
	backend := newFakeBackend()
	uc := NewCheckout(backend, &fakeGateway{}, &recordingPublisher{err: errBoom}, testCheckoutConfig())

	_, err := uc.Execute(context.Background(), validInput())
	require.NoError(t, err)
}
