package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/Xolta0/shopify/configs"
	"github.com/Xolta0/shopify/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	Clients  []configs.OperatorClient
	Now      func() time.Time
}

type TokenHandler struct {
	cfg     TokenConfig
	clients map[string]configs.OperatorClient
}

func NewTokenHandler(cfg TokenConfig) *TokenHandler {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	clients := make(map[string]configs.OperatorClient, len(cfg.Clients))
	for _, cl := range cfg.Clients {
		clients[cl.ID] = cl
	}
	return &TokenHandler{cfg: cfg, clients: clients}
}

// IssueToken handles POST /v1/token (form): client_id, client_secret.
func (h *TokenHandler) IssueToken(c *gin.Context) {
	clientID := c.PostForm("client_id")
	clientSecret := c.PostForm("client_secret")
	if clientID == "" || clientSecret == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	cl, ok := h.clients[clientID]
	if !ok || !cl.Enabled || subtle.ConstantTimeCompare([]byte(clientSecret), []byte(cl.Secret)) != 1 {
		logging.From(c).Warn("operator token refused", "client_id", clientID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		return
	}

	now := h.cfg.Now()
	claims := jwt.MapClaims{
		"iss":      h.cfg.Issuer,
		"aud":      h.cfg.Audience,
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"exp":      now.Add(h.cfg.TTL).Unix(),
		"clientID": clientID,
		"perms":    cl.Perms,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.Secret))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": signed,
		"token_type":   "Bearer",
		"expires_in":   int(h.cfg.TTL.Seconds()),
	})
}
