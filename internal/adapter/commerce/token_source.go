package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Xolta0/shopify/internal/logging"
	"github.com/Xolta0/shopify/internal/usecase"
	"golang.org/x/sync/singleflight"
)

// Credentials yields the access token sent with every admin API call.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a long-lived admin API token from configuration.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", &usecase.Error{Kind: usecase.ErrAuthFailure, Msg: "Commerce admin token not configured"}
	}
	return string(t), nil
}

// TokenSource caches a client-credentials access token and refreshes it
// once its remaining lifetime drops below margin. Concurrent refreshes
// share a single exchange.
type TokenSource struct {
	hc           *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	margin       time.Duration
	now          func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	sf singleflight.Group
}

type TokenSourceOption func(*TokenSource)

func WithClock(now func() time.Time) TokenSourceOption {
	return func(s *TokenSource) { s.now = now }
}

func WithHTTPClient(hc *http.Client) TokenSourceOption {
	return func(s *TokenSource) { s.hc = hc }
}

func NewTokenSource(tokenURL, clientID, clientSecret string, margin time.Duration, opts ...TokenSourceOption) *TokenSource {
	if margin <= 0 {
		margin = 60 * time.Second
	}
	s := &TokenSource{
		hc:           &http.Client{Timeout: 10 * time.Second},
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		margin:       margin,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}
	v, err, _ := s.sf.Do("token", func() (any, error) {
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		// One caller's cancellation must not fail everyone waiting on the exchange.
		return s.exchange(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *TokenSource) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token != "" && s.now().Before(s.expiresAt.Add(-s.margin)) {
		return s.token, true
	}
	return "", false
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *TokenSource) exchange(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.hc.Do(req)
	if err != nil {
		return "", &usecase.Error{Kind: usecase.ErrAuthFailure, Msg: "Commerce token request failed", Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", usecase.UpstreamError(usecase.ErrAuthFailure, "Commerce token request failed", resp.StatusCode, string(raw))
	}

	var tr tokenResp
	if err := json.Unmarshal(raw, &tr); err != nil || tr.AccessToken == "" {
		return "", &usecase.Error{Kind: usecase.ErrAuthFailure, Msg: "Commerce token response unreadable", Status: resp.StatusCode, Body: string(raw), Err: err}
	}

	s.mu.Lock()
	s.token = tr.AccessToken
	s.expiresAt = s.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	s.mu.Unlock()

	logging.Base().Info("commerce access token refreshed", "expires_in", tr.ExpiresIn)
	return tr.AccessToken, nil
}
