package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CHECKOUT_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout    time.Duration `koanf:"read_timeout"`
		WriteTimeout   time.Duration `koanf:"write_timeout"`
		IdleTimeout    time.Duration `koanf:"idle_timeout"`
		AllowedOrigin  string        `koanf:"allowed_origin"`
		CheckoutBudget time.Duration `koanf:"checkout_budget"`
		WebhookBudget  time.Duration `koanf:"webhook_budget"`
	} `koanf:"http"`

	Commerce struct {
		ShopDomain     string        `koanf:"shop_domain"`
		APIVersion     string        `koanf:"api_version"`
		BaseURL        string        `koanf:"base_url"`  // overrides https://{shop}/admin/api/{version}
		TokenURL       string        `koanf:"token_url"` // overrides https://{shop}/admin/oauth/access_token
		ClientID       string        `koanf:"client_id"`
		ClientSecret   string        `koanf:"client_secret"`
		AdminToken     string        `koanf:"admin_token"` // static token; skips the client-credentials exchange
		TokenMargin    time.Duration `koanf:"token_margin"`
		RequestTimeout time.Duration `koanf:"request_timeout"`
		PollInterval   time.Duration `koanf:"poll_interval"`
		PollAttempts   int           `koanf:"poll_attempts"`
		TagRetryDelay  time.Duration `koanf:"tag_retry_delay"`
		SearchLimit    int           `koanf:"search_limit"`
	} `koanf:"commerce"`

	Gateway struct {
		BaseURL        string        `koanf:"base_url"`
		ClientID       string        `koanf:"client_id"`
		ClientSecret   string        `koanf:"client_secret"`
		Currency       string        `koanf:"currency"`
		SourceCurrency string        `koanf:"source_currency"`
		Convert        bool          `koanf:"convert"`
		Timeout        time.Duration `koanf:"timeout"`
	} `koanf:"gateway"`

	Webhook struct {
		BaseURL  string        `koanf:"base_url"` // public URL of this service
		Path     string        `koanf:"path"`
		Secret   string        `koanf:"secret"`
		ClaimTTL time.Duration `koanf:"claim_ttl"`
	} `koanf:"webhook"`

	Redis struct {
		Addr     string `koanf:"addr"` // empty => no claim store
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Rabbit struct {
		URL        string `koanf:"url"` // empty => events are logged only
		Exchange   string `koanf:"exchange"`
		RetryQueue string `koanf:"retry_queue"` // empty => no settlement retry worker
		Prefetch   int    `koanf:"prefetch"`
	} `koanf:"rabbitmq"`

	Security struct {
		JWTSecret string           `koanf:"jwt_secret"`
		Issuer    string           `koanf:"issuer"`
		Audience  string           `koanf:"audience"`
		TTL       time.Duration    `koanf:"ttl"`
		Clients   []OperatorClient `koanf:"clients"`
	} `koanf:"security"`
}

// OperatorClient may obtain a token for the /v1 reconciliation endpoints.
type OperatorClient struct {
	ID      string   `koanf:"id"`
	Secret  string   `koanf:"secret"`
	Perms   []string `koanf:"perms"` // orders.read, orders.reconcile
	Enabled bool     `koanf:"enabled"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	// 1) base
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// 2) env override (dev/staging/prod). Optional: allow missing for local runs.
	_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())

	// 3) environment variables override (prefix CHECKOUT_, nested with __)
	// e.g. CHECKOUT_COMMERCE__CLIENT_SECRET, CHECKOUT_WEBHOOK__SECRET
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.Commerce.ShopDomain == "" && c.Commerce.BaseURL == "" {
		return fmt.Errorf("commerce.shop_domain required")
	}
	if c.Commerce.AdminToken == "" && (c.Commerce.ClientID == "" || c.Commerce.ClientSecret == "") {
		return fmt.Errorf("commerce.client_id and commerce.client_secret required (or commerce.admin_token)")
	}
	if c.Commerce.PollInterval <= 0 || c.Commerce.PollAttempts <= 0 {
		return fmt.Errorf("commerce.poll_interval and commerce.poll_attempts must be positive")
	}
	if c.Gateway.BaseURL == "" || c.Gateway.ClientID == "" || c.Gateway.ClientSecret == "" {
		return fmt.Errorf("gateway.base_url, gateway.client_id and gateway.client_secret required")
	}
	if c.Gateway.Currency == "" {
		return fmt.Errorf("gateway.currency required")
	}
	if c.Webhook.BaseURL == "" {
		return fmt.Errorf("webhook.base_url required")
	}
	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret required")
	}
	if len(c.Security.Clients) > 0 && c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret required when operator clients are configured")
	}
	return nil
}

// WebhookURL is the callback registered with the gateway, without query.
func (c Config) WebhookURL() string {
	path := c.Webhook.Path
	if path == "" {
		path = "/api/webhook"
	}
	return strings.TrimRight(c.Webhook.BaseURL, "/") + path
}
