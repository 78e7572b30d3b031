package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereayou/circlechat/internal/middleware"
	ws "github.com/thereayou/circlechat/internal/websocket"
	"golang.org/x/time/rate"
)

// WebSocketConfig tunes the upgrader and the per-connection limiter.
type WebSocketConfig struct {
	AllowedOrigins []string
	MessageRate    float64
	MessageBurst   int
}

// WebSocketHandler upgrades authenticated requests and hands the connection
// to the gateway.
type WebSocketHandler struct {
	gateway  *Gateway
	cfg      WebSocketConfig
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWebSocketHandler(gateway *Gateway, cfg WebSocketConfig, log *slog.Logger) *WebSocketHandler {
	if log == nil {
		log = slog.Default()
	}
	h := &WebSocketHandler{
		gateway: gateway,
		cfg:     cfg,
		log:     log.With("component", "websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	return OriginAllowed(h.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// OriginAllowed accepts non-browser clients (no Origin) and any origin in
// allowed. A "*" entry accepts everything.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket runs behind WSAuthMiddleware, so the request is already
// authenticated when it gets here.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("upgrade failed", "user_id", identity.ID, "error", err)
		return
	}

	var limiter *rate.Limiter
	if h.cfg.MessageRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.MessageRate), h.cfg.MessageBurst)
	}
	client := ws.NewClient(conn, identity, limiter, h.log)
	client.SetState(ws.StateAuthenticated)

	// The request context ends with the handler; the pumps outlive it.
	ctx := context.WithoutCancel(c.Request.Context())
	h.gateway.Connect(ctx, client)

	go client.WritePump()
	go client.ReadPump(ctx, h.gateway)
}
