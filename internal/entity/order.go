package entity

import "strings"

type DraftStatus string

const (
	DraftCalculating DraftStatus = "calculating"
	DraftOpen        DraftStatus = "open"
	DraftCompleted   DraftStatus = "completed"
	DraftInvalid     DraftStatus = "invalid"
)

type CartItem struct {
	VariantID string
	Quantity  int
}

type Customer struct {
	Email string
}

// Address is used for both shipping and billing; billing is always a copy of shipping.
type Address struct {
	FirstName string
	LastName  string
	Address1  string
	Address2  string
	City      string
	Province  string
	Country   string
	Zip       string
	Phone     string
}

// ProvisionalOrder is a draft order held by the commerce backend.
// Note and Tags are the only durable saga state.
type ProvisionalOrder struct {
	ID              string
	OrderID         string // confirmed order id, set once completed
	LineItems       []CartItem
	Email           string
	ShippingAddress Address
	BillingAddress  Address
	Status          DraftStatus
	TotalPrice      string
	Currency        string
	Note            string
	Tags            string
}

func (o ProvisionalOrder) Calculating() bool {
	return o.Status == DraftCalculating
}

func (o ProvisionalOrder) Completed() bool {
	return o.Status == DraftCompleted || o.OrderID != ""
}

// DraftRequest is what the checkout submits to create a draft order.
type DraftRequest struct {
	Items           []CartItem
	Customer        Customer
	ShippingAddress Address
	DiscountCode    string
	ShippingTitle   string
	ShippingPrice   string
	Note            string
	Tags            string
}

// Metadata is the note/tags pair written back to an order record.
type Metadata struct {
	Note string
	Tags string
}

// SplitTags splits a comma-separated tag list, trimming blanks.
func SplitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
