package commerce

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/Xolta0/shopify/internal/entity"
)

// jsonID carries Shopify numeric ids as strings. Digit-only values are
// written back as JSON numbers.
type jsonID string

func (id *jsonID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*id = jsonID(s)
	return nil
}

func (id jsonID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if s != "" && strings.Trim(s, "0123456789") == "" {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

type lineItem struct {
	VariantID jsonID `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type address struct {
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

type shippingLine struct {
	Title  string `json:"title"`
	Price  string `json:"price"`
	Custom bool   `json:"custom"`
}

type noteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type draftOrder struct {
	ID              jsonID          `json:"id,omitempty"`
	OrderID         jsonID          `json:"order_id,omitempty"`
	LineItems       []lineItem      `json:"line_items,omitempty"`
	Email           string          `json:"email,omitempty"`
	ShippingAddress *address        `json:"shipping_address,omitempty"`
	BillingAddress  *address        `json:"billing_address,omitempty"`
	ShippingLine    *shippingLine   `json:"shipping_line,omitempty"`
	NoteAttributes  []noteAttribute `json:"note_attributes,omitempty"`
	Status          string          `json:"status,omitempty"`
	TotalPrice      string          `json:"total_price,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	Note            *string         `json:"note,omitempty"`
	Tags            *string         `json:"tags,omitempty"`
}

type draftEnvelope struct {
	DraftOrder *draftOrder `json:"draft_order"`
}

type draftListEnvelope struct {
	DraftOrders []draftOrder `json:"draft_orders"`
}

type orderMetadata struct {
	ID   jsonID `json:"id"`
	Note string `json:"note"`
	Tags string `json:"tags"`
}

type orderEnvelope struct {
	Order orderMetadata `json:"order"`
}

type errorEnvelope struct {
	Errors json.RawMessage `json:"errors"`
}

func fromAddress(a entity.Address) *address {
	return &address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		Province:  a.Province,
		Country:   a.Country,
		Zip:       a.Zip,
		Phone:     a.Phone,
	}
}

func (a *address) toEntity() entity.Address {
	if a == nil {
		return entity.Address{}
	}
	return entity.Address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		Province:  a.Province,
		Country:   a.Country,
		Zip:       a.Zip,
		Phone:     a.Phone,
	}
}

func newDraftOrder(req entity.DraftRequest) draftOrder {
	items := make([]lineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, lineItem{VariantID: jsonID(it.VariantID), Quantity: it.Quantity})
	}
	d := draftOrder{
		LineItems:       items,
		Email:           req.Customer.Email,
		ShippingAddress: fromAddress(req.ShippingAddress),
		BillingAddress:  fromAddress(req.ShippingAddress),
		ShippingLine:    &shippingLine{Title: req.ShippingTitle, Price: req.ShippingPrice, Custom: true},
		Note:            &req.Note,
		Tags:            &req.Tags,
	}
	if req.DiscountCode != "" {
		d.NoteAttributes = []noteAttribute{{Name: "discount_code", Value: req.DiscountCode}}
	}
	return d
}

func (d *draftOrder) toEntity() *entity.ProvisionalOrder {
	o := &entity.ProvisionalOrder{
		ID:              string(d.ID),
		OrderID:         string(d.OrderID),
		Email:           d.Email,
		ShippingAddress: d.ShippingAddress.toEntity(),
		BillingAddress:  d.BillingAddress.toEntity(),
		Status:          entity.DraftStatus(d.Status),
		TotalPrice:      d.TotalPrice,
		Currency:        d.Currency,
	}
	if d.Note != nil {
		o.Note = *d.Note
	}
	if d.Tags != nil {
		o.Tags = *d.Tags
	}
	for _, li := range d.LineItems {
		o.LineItems = append(o.LineItems, entity.CartItem{VariantID: string(li.VariantID), Quantity: li.Quantity})
	}
	return o
}

// flattenErrors turns Shopify's "errors" value into one readable message:
// a plain string is returned as is; a field map becomes "field: a, b. other: c".
func flattenErrors(raw []byte) (string, bool) {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Errors) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(env.Errors, &s); err == nil {
		return s, s != ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Errors, &fields); err != nil {
		return "", false
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		var list []string
		if err := json.Unmarshal(fields[k], &list); err == nil {
			msgs = append(msgs, k+": "+strings.Join(list, ", "))
			continue
		}
		var one string
		if err := json.Unmarshal(fields[k], &one); err == nil {
			msgs = append(msgs, k+": "+one)
			continue
		}
		msgs = append(msgs, k+": "+string(fields[k]))
	}
	return strings.Join(msgs, ". "), len(msgs) > 0
}
