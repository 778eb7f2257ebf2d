package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Xolta0/shopify/configs"
	"github.com/Xolta0/shopify/internal/adapter/cache"
	"github.com/Xolta0/shopify/internal/adapter/commerce"
	"github.com/Xolta0/shopify/internal/adapter/gateway"
	httpapi "github.com/Xolta0/shopify/internal/adapter/http"
	"github.com/Xolta0/shopify/internal/adapter/http/middleware"
	"github.com/Xolta0/shopify/internal/adapter/queue"
	"github.com/Xolta0/shopify/internal/entity"
	"github.com/Xolta0/shopify/internal/logging"
	"github.com/Xolta0/shopify/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

const shutdownGrace = 30 * time.Second

type App struct {
	Router *gin.Engine
	server *http.Server
}

// InitWithConfig builds the service graph. Redis and RabbitMQ are optional:
// without Redis, duplicate webhooks are caught only by the draft status;
// without RabbitMQ, saga events are written to the log.
func InitWithConfig(ctx context.Context, cfg configs.Config) (*App, func(), error) {
	log := logging.New("bootstrap")
	log.Info("checkout-api: starting up")

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// commerce backend
	base := cfg.Commerce.BaseURL
	if base == "" {
		base = commerce.AdminBaseURL(cfg.Commerce.ShopDomain, cfg.Commerce.APIVersion)
	}
	var creds commerce.Credentials
	if cfg.Commerce.AdminToken != "" {
		creds = commerce.StaticToken(cfg.Commerce.AdminToken)
	} else {
		tokenURL := cfg.Commerce.TokenURL
		if tokenURL == "" {
			tokenURL = commerce.TokenURL(cfg.Commerce.ShopDomain)
		}
		creds = commerce.NewTokenSource(tokenURL, cfg.Commerce.ClientID, cfg.Commerce.ClientSecret, cfg.Commerce.TokenMargin)
	}
	backend := commerce.NewClient(commerce.Config{BaseURL: base, Timeout: cfg.Commerce.RequestTimeout}, creds)

	// payment gateway
	gw := gateway.NewAviagramClient(gateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		ClientID:     cfg.Gateway.ClientID,
		ClientSecret: cfg.Gateway.ClientSecret,
		Timeout:      cfg.Gateway.Timeout,
	})

	// redis claim store
	var claims usecase.ClaimStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		claims = cache.NewRedisClaimStore(rdb, cfg.Webhook.ClaimTTL)
	} else {
		log.Warn("redis not configured; webhook claims disabled")
	}

	// saga events
	var amqpConn *amqp091.Connection
	var events usecase.EventPublisher = queue.LogPublisher{Log: logging.New("events")}
	if cfg.Rabbit.URL != "" {
		conn, err := amqp091.Dial(cfg.Rabbit.URL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			cleanup()
			return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
		}
		closers = append(closers, func() { _ = ch.Close(); _ = conn.Close() })
		pub, err := queue.NewRabbitPublisher(ch, cfg.Rabbit.Exchange)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		events = pub
		amqpConn = conn
	} else {
		log.Warn("rabbitmq not configured; saga events are logged only")
	}

	// use cases
	checkout := usecase.NewCheckout(backend, gw, events, usecase.CheckoutConfig{
		PollInterval:   cfg.Commerce.PollInterval,
		PollAttempts:   cfg.Commerce.PollAttempts,
		TagRetryDelay:  cfg.Commerce.TagRetryDelay,
		Currency:       cfg.Gateway.Currency,
		SourceCurrency: cfg.Gateway.SourceCurrency,
		Convert:        cfg.Gateway.Convert,
		CallbackURL:    cfg.WebhookURL(),
		WebhookSecret:  cfg.Webhook.Secret,
	})
	finalizer := usecase.NewFinalizer(backend, events)
	reconciler := usecase.NewReconciler(backend, finalizer, claims, events, usecase.ReconcilerConfig{
		WebhookSecret: cfg.Webhook.Secret,
		SearchLimit:   cfg.Commerce.SearchLimit,
	})

	// settlement retry worker
	if amqpConn != nil && cfg.Rabbit.RetryQueue != "" {
		closeRetry, err := startRetryWorker(ctx, amqpConn, cfg, reconciler)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, closeRetry)
	}

	// http
	rt := httpapi.Routes{
		Checkout:      httpapi.NewCheckoutHandler(checkout, cfg.HTTP.CheckoutBudget),
		Webhook:       httpapi.NewWebhookHandler(reconciler, cfg.HTTP.WebhookBudget),
		WebhookPath:   cfg.Webhook.Path,
		AllowedOrigin: cfg.HTTP.AllowedOrigin,
		Logger:        logging.New("http"),
	}
	if len(cfg.Security.Clients) > 0 {
		rt.Operator = httpapi.NewOperatorHandler(reconciler, cfg.HTTP.WebhookBudget)
		rt.Token = httpapi.NewTokenHandler(httpapi.TokenConfig{
			Secret:   cfg.Security.JWTSecret,
			Issuer:   cfg.Security.Issuer,
			Audience: cfg.Security.Audience,
			TTL:      cfg.Security.TTL,
			Clients:  cfg.Security.Clients,
		})
		rt.Authz = middleware.NewAuthz(cfg.Security.JWTSecret, cfg.Security.Issuer, cfg.Security.Audience)
	}
	router := httpapi.NewRouter(rt)

	srv := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{Router: router, server: srv}, cleanup, nil
}

// Serve runs the HTTP server until ctx is canceled, then drains in-flight
// requests for up to shutdownGrace.
func (a *App) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.New("bootstrap").Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}

// startRetryWorker consumes settlement.failed events on its own channel.
func startRetryWorker(ctx context.Context, conn *amqp091.Connection, cfg configs.Config, s queue.Settler) (func(), error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq retry channel: %w", err)
	}
	if err := queue.DeclareBoundQueue(ch, cfg.Rabbit.Exchange, cfg.Rabbit.RetryQueue, entity.EventSettlementFailed); err != nil {
		_ = ch.Close()
		return nil, err
	}

	h := queue.NewSettlementRetryHandler(s)
	router := queue.NewRouter(ch, queue.WithPrefetch(cfg.Rabbit.Prefetch), queue.WithTimeout(cfg.HTTP.WebhookBudget))
	router.Register(cfg.Rabbit.RetryQueue, queue.JSONHandler[entity.SagaEvent]{HandleFunc: h.HandleFailed})
	if err := router.Start(ctx); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return func() { _ = ch.Close() }, nil
}
