package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/Xolta0/shopify/internal/entity"
)

const unitPrice = 21

// fakeBackend is an in-memory order backend. Drafts are listed in creation
// order. The *Fn fields override the default behavior of a single call.
type fakeBackend struct {
	mu      sync.Mutex
	drafts  map[string]*entity.ProvisionalOrder
	listing []string
	nextID  int

	createFn   func(req entity.DraftRequest) (CreateResult, error)
	getFn      func(ref DraftRef) (*entity.ProvisionalOrder, error)
	updateErrs []error // consumed one per UpdateDraftMetadata call
	deleteErr  error
	completeFn func(draftID string) (*entity.ProvisionalOrder, error)
	orderMdErr error
	listErr    error

	created   []entity.DraftRequest
	gets      int
	updates   []entity.Metadata
	deleted   []string
	completed []string
	orderMd   map[string]entity.Metadata
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		drafts:  map[string]*entity.ProvisionalOrder{},
		nextID:  1001,
		orderMd: map[string]entity.Metadata{},
	}
}

// add stores a draft and returns it.
func (b *fakeBackend) add(o entity.ProvisionalOrder) *entity.ProvisionalOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o.ID == "" {
		o.ID = strconv.Itoa(b.nextID)
		b.nextID++
	}
	if o.Status == "" {
		o.Status = entity.DraftOpen
	}
	b.drafts[o.ID] = &o
	b.listing = append(b.listing, o.ID)
	return &o
}

func (b *fakeBackend) draft(id string) entity.ProvisionalOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.drafts[id]
}

func (b *fakeBackend) counts() (creates, gets, deletes, completes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.created), b.gets, len(b.deleted), len(b.completed)
}

func (b *fakeBackend) CreateDraftOrder(_ context.Context, req entity.DraftRequest) (CreateResult, error) {
	b.mu.Lock()
	b.created = append(b.created, req)
	fn := b.createFn
	b.mu.Unlock()
	if fn != nil {
		return fn(req)
	}

	qty := 0
	for _, it := range req.Items {
		qty += it.Quantity
	}
	o := b.add(entity.ProvisionalOrder{
		LineItems:  req.Items,
		Email:      req.Customer.Email,
		TotalPrice: fmt.Sprintf("%d.00", qty*unitPrice),
		Currency:   "GBP",
		Note:       req.Note,
		Tags:       req.Tags,
	})
	return CreateResult{Order: o, Ref: DraftRef{ID: o.ID}}, nil
}

func (b *fakeBackend) GetDraftOrder(_ context.Context, ref DraftRef) (*entity.ProvisionalOrder, error) {
	b.mu.Lock()
	b.gets++
	fn := b.getFn
	b.mu.Unlock()
	if fn != nil {
		return fn(ref)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.drafts[ref.ID]
	if !ok {
		return nil, &Error{Kind: ErrOrderNotFound, Msg: "Draft order not found", Status: 404}
	}
	cp := *o
	return &cp, nil
}

func (b *fakeBackend) ListOpenDraftOrders(_ context.Context, limit int) ([]entity.ProvisionalOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	var out []entity.ProvisionalOrder
	for _, id := range b.listing {
		o := b.drafts[id]
		if o.Status != entity.DraftOpen {
			continue
		}
		out = append(out, *o)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (b *fakeBackend) UpdateDraftMetadata(_ context.Context, draftID string, md entity.Metadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, md)
	if len(b.updateErrs) > 0 {
		err := b.updateErrs[0]
		b.updateErrs = b.updateErrs[1:]
		if err != nil {
			return err
		}
	}
	if o, ok := b.drafts[draftID]; ok {
		o.Note, o.Tags = md.Note, md.Tags
	}
	return nil
}

func (b *fakeBackend) DeleteDraftOrder(_ context.Context, draftID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, draftID)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.drafts, draftID)
	return nil
}

func (b *fakeBackend) CompleteDraftOrder(_ context.Context, draftID string) (*entity.ProvisionalOrder, error) {
	b.mu.Lock()
	b.completed = append(b.completed, draftID)
	fn := b.completeFn
	b.mu.Unlock()
	if fn != nil {
		return fn(draftID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.drafts[draftID]
	if !ok {
		return nil, &Error{Kind: ErrFinalization, Msg: "Draft order completion failed", Status: 404}
	}
	o.Status = entity.DraftCompleted
	o.OrderID = "5" + draftID
	cp := *o
	return &cp, nil
}

func (b *fakeBackend) UpdateOrderMetadata(_ context.Context, orderID string, md entity.Metadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.orderMdErr != nil {
		return b.orderMdErr
	}
	b.orderMd[orderID] = md
	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []entity.PaymentRequest
	err      error
	session  entity.PaymentSession
}

func (g *fakeGateway) CreatePaymentSession(_ context.Context, req entity.PaymentRequest) (entity.PaymentSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return entity.PaymentSession{}, g.err
	}
	s := g.session
	if s.ID == "" {
		s.ID = "AV-77"
	}
	if s.RedirectURL == "" {
		s.RedirectURL = "https://pay.example/form/" + s.ID
	}
	s.Amount, s.Currency = req.Amount, req.Currency
	return s, nil
}

type fakeClaims struct {
	mu     sync.Mutex
	held   map[string]bool
	err    error
	claims int
}

func newFakeClaims() *fakeClaims { return &fakeClaims{held: map[string]bool{}} }

func (c *fakeClaims) TryClaim(_ context.Context, draftID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims++
	if c.err != nil {
		return false, c.err
	}
	if c.held[draftID] {
		return false, nil
	}
	c.held[draftID] = true
	return true, nil
}

func (c *fakeClaims) Release(_ context.Context, draftID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, draftID)
	return nil
}

func (c *fakeClaims) isHeld(draftID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held[draftID]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.SagaEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev entity.SagaEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

var errBoom = errors.New("boom")
