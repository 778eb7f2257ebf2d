package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/usecase"
	"github.com/gin-gonic/gin"
)

type checkoutRunner interface {
	Execute(ctx context.Context, in usecase.CheckoutInput) (usecase.CheckoutOutput, error)
}

type CheckoutHandler struct {
	checkout checkoutRunner
	budget   time.Duration
}

// NewCheckoutHandler panics on a nil use case. budget bounds the whole
// checkout, including draft polling; non-positive means 45s.
func NewCheckoutHandler(checkout checkoutRunner, budget time.Duration) *CheckoutHandler {
	if checkout == nil {
		panic("http.NewCheckoutHandler: nil checkout")
	}
	if budget <= 0 {
		budget = 45 * time.Second
	}
	return &CheckoutHandler{checkout: checkout, budget: budget}
}

// flexString accepts ids that clients send either as strings or numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	v := strings.Trim(string(b), `"`)
	if v == "null" {
		v = ""
	}
	*s = flexString(v)
	return nil
}

type cartItemReq struct {
	VariantID flexString `json:"variant_id"`
	Quantity  int        `json:"quantity"`
}

type addressReq struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Country   string `json:"country"`
	Zip       string `json:"zip"`
	Phone     string `json:"phone"`
}

type checkoutReq struct {
	Items    []cartItemReq `json:"items"`
	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`
	ShippingAddress addressReq `json:"shippingAddress"`
	DiscountCode    string     `json:"discountCode"`
}

type checkoutResp struct {
	Success         bool   `json:"success"`
	DraftOrderID    string `json:"draftOrderId"`
	AviagramOrderID string `json:"aviagramOrderId"`
	RedirectURL     string `json:"redirectUrl"`
	TotalPrice      string `json:"totalPrice"`
	Currency        string `json:"currency"`
}

func (r checkoutReq) toInput() usecase.CheckoutInput {
	items := make([]entity.CartItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, entity.CartItem{VariantID: string(it.VariantID), Quantity: it.Quantity})
	}
	a := r.ShippingAddress
	return usecase.CheckoutInput{
		Items:    items,
		Customer: entity.Customer{Email: strings.TrimSpace(r.Customer.Email)},
		ShippingAddress: entity.Address{
			FirstName: a.FirstName,
			LastName:  a.LastName,
			Address1:  a.Address1,
			Address2:  a.Address2,
			City:      a.City,
			Province:  a.Province,
			Country:   a.Country,
			Zip:       a.Zip,
			Phone:     a.Phone,
		},
		DiscountCode: r.DiscountCode,
	}
}

// Checkout handles POST /api/checkout.
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.budget)
	defer cancel()

	out, err := h.checkout.Execute(ctx, req.toInput())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, checkoutResp{
		Success:         true,
		DraftOrderID:    out.DraftOrderID,
		AviagramOrderID: out.SessionID,
		RedirectURL:     out.RedirectURL,
		TotalPrice:      out.TotalPrice,
		Currency:        out.Currency,
	})
}
