package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Xolta0/shopify/internal/adapter/http/middleware"
	"github.com/Xolta0/shopify/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes groups the handlers mounted by NewRouter. Operator, Token and Authz
// are optional; without them the /v1 surface is not mounted.
type Routes struct {
	Checkout *CheckoutHandler
	Webhook  *WebhookHandler
	Operator *OperatorHandler
	Token    *TokenHandler
	Authz    *middleware.Authz

	WebhookPath   string
	AllowedOrigin string
	Logger        *slog.Logger
}

func NewRouter(rt Routes) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), middleware.Metrics())

	l := rt.Logger
	if l == nil {
		l = logging.New("http")
	}
	r.Use(middleware.Logging(l))

	r.NoMethod(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			middleware.SetCORSHeaders(c, rt.AllowedOrigin)
		}
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	// Prometheus endpoint (scraped by Prometheus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.CORS(rt.AllowedOrigin))
	{
		api.OPTIONS("/checkout", func(c *gin.Context) { c.Status(http.StatusOK) })
		api.POST("/checkout", rt.Checkout.Checkout)
	}

	webhookPath := rt.WebhookPath
	if webhookPath == "" {
		webhookPath = "/api/webhook"
	}
	r.POST(webhookPath, rt.Webhook.Webhook)

	if rt.Operator != nil && rt.Token != nil && rt.Authz != nil {
		r.POST("/v1/token", rt.Token.IssueToken)
		v1 := r.Group("/v1")
		{
			v1.GET("/reconcile/:sessionId", rt.Authz.Require("orders.read"), rt.Operator.GetSession)
			v1.POST("/reconcile/:sessionId", rt.Authz.Require("orders.reconcile"), rt.Operator.Replay)
		}
	}

	return r
}
