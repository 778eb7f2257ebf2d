package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/logging"
	"github.com/Xolta0/shopify/internal/usecase"
	"github.com/gin-gonic/gin"
)

type notificationHandler interface {
	Handle(ctx context.Context, n entity.Notification) (usecase.ReconcileResult, error)
}

type WebhookHandler struct {
	reconciler notificationHandler
	budget     time.Duration
}

func NewWebhookHandler(reconciler notificationHandler, budget time.Duration) *WebhookHandler {
	if reconciler == nil {
		panic("http.NewWebhookHandler: nil reconciler")
	}
	if budget <= 0 {
		budget = 20 * time.Second
	}
	return &WebhookHandler{reconciler: reconciler, budget: budget}
}

type notificationReq struct {
	OrderID   flexString `json:"orderId"`
	Amount    flexString `json:"amount"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	Method    string     `json:"method"`
	Type      string     `json:"type"`
	CreatedAt flexString `json:"createdAt"`
}

// Webhook handles POST /api/webhook. It answers 200 {received: true} for
// everything except a bad secret, so the gateway does not retry deliveries
// this service cannot act on.
func (h *WebhookHandler) Webhook(c *gin.Context) {
	n := entity.Notification{
		Secret:  c.Query("secret"),
		DraftID: c.Query("draft"),
	}

	var req notificationReq
	bindErr := c.ShouldBindJSON(&req)
	if bindErr == nil {
		n.SessionID = string(req.OrderID)
		n.Amount = string(req.Amount)
		n.Currency = req.Currency
		n.Status = entity.PaymentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
		n.Method = req.Method
		n.Type = req.Type
		n.CreatedAt = string(req.CreatedAt)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.budget)
	defer cancel()

	res, err := h.reconciler.Handle(ctx, n)
	switch {
	case errors.Is(err, usecase.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "Processing failed"})
		return
	case bindErr != nil:
		logging.From(c).Warn("webhook: unreadable payload", "err", bindErr)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "Invalid payload"})
		return
	}

	logging.From(c).Info("webhook processed", "outcome", string(res.Outcome), "draft_id", res.DraftOrderID, "order_id", res.OrderID)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
