package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/usecase"
	fastshot "github.com/opus-domini/fast-shot"
)

const createFormPath = "/api/payment/createForm"

type Config struct {
	BaseURL      string // https://aviagram.app
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// AviagramClient creates hosted payment forms on the Aviagram gateway.
type AviagramClient struct {
	cfg  Config
	auth string
}

func NewAviagramClient(cfg Config) *AviagramClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	creds := base64.StdEncoding.EncodeToString([]byte(cfg.ClientID + ":" + cfg.ClientSecret))
	return &AviagramClient{cfg: cfg, auth: "Basic " + creds}
}

type createFormReq struct {
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	OriginalCurrency string `json:"originalCurrency,omitempty"`
	ConvertCurrency  string `json:"convertCurrency"`
	WebhookURL       string `json:"webhook_url"`
}

type createFormResp struct {
	OrderID     sessionID `json:"orderId"`
	RedirectURL string    `json:"redirect_url"`
}

// sessionID accepts the gateway's order id as either a JSON string or number.
type sessionID string

func (id *sessionID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*id = sessionID(s)
	return nil
}

func (c *AviagramClient) CreatePaymentSession(ctx context.Context, req entity.PaymentRequest) (entity.PaymentSession, error) {
	payload := createFormReq{
		Amount:           req.Amount,
		Currency:         req.Currency,
		OriginalCurrency: req.SourceCurrency,
		ConvertCurrency:  boolFlag(req.Convert),
		WebhookURL:       req.CallbackURL,
	}

	res, err := fastshot.NewClient(c.cfg.BaseURL).
		Config().SetTimeout(c.cfg.Timeout).
		Header().Add("Authorization", c.auth).
		Header().Add("Content-Type", "application/json").
		Build().POST(createFormPath).
		Context().Set(ctx).
		Body().AsJSON(payload).
		Send()
	if err != nil {
		return entity.PaymentSession{}, &usecase.Error{Kind: usecase.ErrPaymentGateway, Msg: "Payment gateway error", Err: err}
	}
	defer res.RawResponse.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(res.RawResponse.Body, 1<<20))

	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		return entity.PaymentSession{}, usecase.UpstreamError(usecase.ErrPaymentGateway, "Payment gateway error", res.StatusCode(), string(raw))
	}

	var out createFormResp
	if err := json.Unmarshal(raw, &out); err != nil || out.OrderID == "" || out.RedirectURL == "" {
		return entity.PaymentSession{}, &usecase.Error{
			Kind:   usecase.ErrPaymentGateway,
			Msg:    "Payment gateway returned an unusable session",
			Status: res.StatusCode(),
			Body:   string(raw),
			Err:    err,
		}
	}

	return entity.PaymentSession{
		ID:          string(out.OrderID),
		Amount:      req.Amount,
		Currency:    req.Currency,
		RedirectURL: out.RedirectURL,
	}, nil
}

// boolFlag renders the gateway's string-typed boolean.
func boolFlag(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

var _ usecase.PaymentGateway = (*AviagramClient)(nil)
