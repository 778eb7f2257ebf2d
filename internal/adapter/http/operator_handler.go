package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/usecase"
	"github.com/gin-gonic/gin"
)

type settler interface {
	Resolve(ctx context.Context, sessionID, draftID string) (*entity.ProvisionalOrder, error)
	Settle(ctx context.Context, n entity.Notification) (usecase.ReconcileResult, error)
}

// OperatorHandler lets support staff inspect and replay the settlement of a
// payment session whose webhook never arrived or failed.
type OperatorHandler struct {
	reconciler settler
	budget     time.Duration
}

func NewOperatorHandler(reconciler settler, budget time.Duration) *OperatorHandler {
	if reconciler == nil {
		panic("http.NewOperatorHandler: nil reconciler")
	}
	if budget <= 0 {
		budget = 20 * time.Second
	}
	return &OperatorHandler{reconciler: reconciler, budget: budget}
}

type draftView struct {
	DraftOrderID string `json:"draftOrderId"`
	OrderID      string `json:"orderId,omitempty"`
	Status       string `json:"status"`
	TotalPrice   string `json:"totalPrice"`
	Currency     string `json:"currency"`
	Note         string `json:"note"`
	Tags         string `json:"tags"`
	Completed    bool   `json:"completed"`
}

type replayReq struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// GetSession handles GET /v1/reconcile/:sessionId[?draft=].
func (h *OperatorHandler) GetSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.budget)
	defer cancel()

	d, err := h.reconciler.Resolve(ctx, c.Param("sessionId"), c.Query("draft"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, draftView{
		DraftOrderID: d.ID,
		OrderID:      d.OrderID,
		Status:       string(d.Status),
		TotalPrice:   d.TotalPrice,
		Currency:     d.Currency,
		Note:         d.Note,
		Tags:         d.Tags,
		Completed:    d.Completed(),
	})
}

// Replay handles POST /v1/reconcile/:sessionId[?draft=]. It settles the
// session as if a RECEIVED notification had arrived; the body is optional.
func (h *OperatorHandler) Replay(c *gin.Context) {
	var req replayReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.budget)
	defer cancel()

	res, err := h.reconciler.Settle(ctx, entity.Notification{
		SessionID: c.Param("sessionId"),
		DraftID:   c.Query("draft"),
		Status:    entity.PaymentReceived,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Type:      "manual",
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcome":      res.Outcome,
		"draftOrderId": res.DraftOrderID,
		"orderId":      res.OrderID,
	})
}
