package notification

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"funding/internal/domain"
	"funding/internal/pkg/jwt"
	"funding/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type tokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

type donationAccess interface {
	GetDonation(ctx context.Context, id int64, username string, isAdmin bool) (*domain.Donation, error)
}

type WSHandler struct {
	hub       *Hub
	tokens    tokenValidator
	donations donationAccess
	upgrader  websocket.Upgrader
	loggerf   func(format string, args ...interface{})
}

// NewWSHandler builds the status stream handler. An empty allowedOrigins
// list accepts any origin.
func NewWSHandler(hub *Hub, tokens tokenValidator, donations donationAccess, allowedOrigins []string, loggerf func(format string, args ...interface{})) *WSHandler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WSHandler{
		hub:       hub,
		tokens:    tokens,
		donations: donations,
		loggerf:   loggerf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
	}
}

func (h *WSHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/donations/:id/ws", h.Stream)
}

// Stream pushes status changes of one donation to its donor.
//
// Endpoint: GET /donations/:id/ws?token=JWT
//
// Browsers cannot set headers on a websocket handshake, so the token comes
// from the query string.
func (h *WSHandler) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "AUTH_TOKEN_MISSING", "token query parameter is required")
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid donation id")
		return
	}
	d, err := h.donations.GetDonation(c.Request.Context(), id, claims.Username, claims.Role == "admin")
	switch {
	case errors.Is(err, domain.ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Donation not found")
		return
	case errors.Is(err, domain.ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Access denied")
		return
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.loggerf("level=warn msg=websocket upgrade failed donation_id=%d err=%v", id, err)
		return
	}

	sub := h.hub.register(id, ws)
	h.loggerf("level=info msg=donation stream opened donation_id=%d username=%s", id, claims.Username)
	defer func() {
		h.hub.unregister(id, sub)
		h.loggerf("level=info msg=donation stream closed donation_id=%d username=%s", id, claims.Username)
	}()

	// Current state first so the client does not wait for the next change.
	if err := sub.writeJSON(SnapshotEvent(d)); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go pingLoop(sub, done)

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// The stream is one-way; reads only drive ping/pong and close frames.
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.loggerf("level=warn msg=donation stream error donation_id=%d err=%v", id, err)
			}
			return
		}
	}
}

func pingLoop(c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
