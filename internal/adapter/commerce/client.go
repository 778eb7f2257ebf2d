package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/usecase"
)

const maxBody = 1 << 20

type Config struct {
	BaseURL string // e.g. https://{shop}/admin/api/2025-01
	Timeout time.Duration
}

// Client talks to the Shopify Admin REST API draft order and order endpoints.
type Client struct {
	hc    *http.Client
	base  string
	creds Credentials
}

func NewClient(cfg Config, creds Credentials) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		hc:    &http.Client{Timeout: cfg.Timeout},
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		creds: creds,
	}
}

// AdminBaseURL builds the versioned admin API root for a shop domain.
func AdminBaseURL(shop, version string) string {
	return fmt.Sprintf("https://%s/admin/api/%s", shop, version)
}

// TokenURL is the client-credentials endpoint for a shop domain.
func TokenURL(shop string) string {
	return fmt.Sprintf("https://%s/admin/oauth/access_token", shop)
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) ok() bool { return r.status >= 200 && r.status <= 299 }

func (c *Client) do(ctx context.Context, method, target string, in any) (response, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return response{}, err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return response{}, fmt.Errorf("marshal %s %s: %w", method, target, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return response{}, fmt.Errorf("build %s %s: %w", method, target, err)
	}
	req.Header.Set("X-Shopify-Access-Token", token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return response{}, fmt.Errorf("read %s %s: %w", method, target, err)
	}
	return response{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

func (c *Client) url(path string) string {
	return c.base + path
}

func draftPath(id string) string {
	return "/draft_orders/" + url.PathEscape(id) + ".json"
}

func (c *Client) CreateDraftOrder(ctx context.Context, req entity.DraftRequest) (usecase.CreateResult, error) {
	d := newDraftOrder(req)
	resp, err := c.do(ctx, http.MethodPost, c.url("/draft_orders.json"), draftEnvelope{DraftOrder: &d})
	if err != nil {
		return usecase.CreateResult{}, err
	}

	switch {
	case resp.status == http.StatusAccepted:
		ref := usecase.DraftRef{Location: c.resolveLocation(resp.header.Get("Location"))}
		var env draftEnvelope
		if json.Unmarshal(resp.body, &env) == nil && env.DraftOrder != nil {
			ref.ID = string(env.DraftOrder.ID)
		}
		return usecase.CreateResult{Ref: ref}, nil

	case resp.ok():
		var env draftEnvelope
		if err := json.Unmarshal(resp.body, &env); err != nil || env.DraftOrder == nil {
			return usecase.CreateResult{}, usecase.UpstreamError(usecase.ErrUpstream, "Draft order response unreadable", resp.status, string(resp.body))
		}
		o := env.DraftOrder.toEntity()
		return usecase.CreateResult{Order: o, Ref: usecase.DraftRef{ID: o.ID}}, nil

	default:
		msg, ok := flattenErrors(resp.body)
		if !ok {
			msg = "Failed to create order. Please try again."
		}
		return usecase.CreateResult{}, usecase.UpstreamError(usecase.ErrOrderRejected, msg, resp.status, string(resp.body))
	}
}

// resolveLocation makes a relative Location header absolute against the API base.
func (c *Client) resolveLocation(loc string) string {
	if loc == "" {
		return ""
	}
	u, err := url.Parse(loc)
	if err != nil || u.IsAbs() {
		return loc
	}
	base, err := url.Parse(c.base)
	if err != nil {
		return loc
	}
	return base.ResolveReference(u).String()
}

func (c *Client) GetDraftOrder(ctx context.Context, ref usecase.DraftRef) (*entity.ProvisionalOrder, error) {
	target := ref.Location
	if target == "" {
		target = c.url(draftPath(ref.ID))
	}
	resp, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusAccepted:
		return &entity.ProvisionalOrder{ID: ref.ID, Status: entity.DraftCalculating}, nil
	case resp.status == http.StatusNotFound:
		return nil, usecase.UpstreamError(usecase.ErrOrderNotFound, "Draft order not found", resp.status, string(resp.body))
	case !resp.ok():
		return nil, usecase.UpstreamError(usecase.ErrUpstream, "Draft order lookup failed", resp.status, string(resp.body))
	}

	var env draftEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil || env.DraftOrder == nil {
		return nil, usecase.UpstreamError(usecase.ErrUpstream, "Draft order response unreadable", resp.status, string(resp.body))
	}
	return env.DraftOrder.toEntity(), nil
}

func (c *Client) ListOpenDraftOrders(ctx context.Context, limit int) ([]entity.ProvisionalOrder, error) {
	q := url.Values{"status": {"open"}, "limit": {strconv.Itoa(limit)}}
	resp, err := c.do(ctx, http.MethodGet, c.url("/draft_orders.json?"+q.Encode()), nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, usecase.UpstreamError(usecase.ErrUpstream, "Draft order search failed", resp.status, string(resp.body))
	}

	var env draftListEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, usecase.UpstreamError(usecase.ErrUpstream, "Draft order list unreadable", resp.status, string(resp.body))
	}
	out := make([]entity.ProvisionalOrder, 0, len(env.DraftOrders))
	for i := range env.DraftOrders {
		out = append(out, *env.DraftOrders[i].toEntity())
	}
	return out, nil
}

func (c *Client) UpdateDraftMetadata(ctx context.Context, draftID string, md entity.Metadata) error {
	body := draftEnvelope{DraftOrder: &draftOrder{ID: jsonID(draftID), Note: &md.Note, Tags: &md.Tags}}
	resp, err := c.do(ctx, http.MethodPut, c.url(draftPath(draftID)), body)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return usecase.UpstreamError(usecase.ErrUpstream, "Draft order update failed", resp.status, string(resp.body))
	}
	return nil
}

// DeleteDraftOrder treats an already missing draft as deleted.
func (c *Client) DeleteDraftOrder(ctx context.Context, draftID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.url(draftPath(draftID)), nil)
	if err != nil {
		return err
	}
	if !resp.ok() && resp.status != http.StatusNotFound {
		return usecase.UpstreamError(usecase.ErrUpstream, "Draft order delete failed", resp.status, string(resp.body))
	}
	return nil
}

// CompleteDraftOrder converts the draft into an order marked as paid.
func (c *Client) CompleteDraftOrder(ctx context.Context, draftID string) (*entity.ProvisionalOrder, error) {
	target := c.url("/draft_orders/" + url.PathEscape(draftID) + "/complete.json?payment_pending=false")
	resp, err := c.do(ctx, http.MethodPut, target, nil)
	if err != nil {
		return nil, err
	}

	if resp.status == http.StatusAccepted {
		// Completion is running in the backend; report what the draft says now.
		d, err := c.GetDraftOrder(ctx, usecase.DraftRef{ID: draftID})
		if err != nil {
			return &entity.ProvisionalOrder{ID: draftID, Status: entity.DraftCompleted}, nil
		}
		d.Status = entity.DraftCompleted
		return d, nil
	}
	if !resp.ok() {
		return nil, usecase.UpstreamError(usecase.ErrFinalization, "Draft order completion failed", resp.status, string(resp.body))
	}

	var env draftEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil || env.DraftOrder == nil {
		return nil, usecase.UpstreamError(usecase.ErrFinalization, "Draft order completion response unreadable", resp.status, string(resp.body))
	}
	return env.DraftOrder.toEntity(), nil
}

func (c *Client) UpdateOrderMetadata(ctx context.Context, orderID string, md entity.Metadata) error {
	body := orderEnvelope{Order: orderMetadata{ID: jsonID(orderID), Note: md.Note, Tags: md.Tags}}
	resp, err := c.do(ctx, http.MethodPut, c.url("/orders/"+url.PathEscape(orderID)+".json"), body)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return usecase.UpstreamError(usecase.ErrUpstream, "Order update failed", resp.status, string(resp.body))
	}
	return nil
}

var _ usecase.OrderBackend = (*Client)(nil)
