package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/farhanpavel/cognit-api/internal/models"
	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
	"github.com/farhanpavel/cognit-api/pkg/response"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

type streamAuthorizer interface {
	AuthorizeStream(ctx context.Context, actor models.Actor, requestID string) (*models.DonationRequest, error)
}

// StatusFeed opens a subscription on a status channel.
type StatusFeed interface {
	Open(channel string) (<-chan []byte, func())
}

// StreamHandler forwards status-channel messages of a request to the
// requesting patient over a websocket.
type StreamHandler struct {
	auth          streamAuthorizer
	feed          StatusFeed
	statusChannel func(requestID string) string
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

// NewStreamHandler constructs the handler. statusChannel maps a request id to
// its status channel name. An empty allowedOrigins list accepts any origin.
func NewStreamHandler(auth streamAuthorizer, feed StatusFeed, statusChannel func(string) string, allowedOrigins []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &StreamHandler{
		auth:          auth,
		feed:          feed,
		statusChannel: statusChannel,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(origins) == 0 {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// Stream godoc
// @Summary Follow live status updates of a request
// @Tags BloodRequests
// @Param id path string true "Request ID"
// @Param access_token query string false "Bearer token for clients that cannot set headers"
// @Success 101 {string} string "Switching Protocols"
// @Failure 403 {object} response.Envelope
// @Router /blood-requests/{id}/stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	if h.auth == nil || h.feed == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "status stream not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, err := h.auth.AuthorizeStream(c.Request.Context(), claims.Actor(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("request_id", req.ID), zap.Error(err))
		return
	}
	defer conn.Close()

	messages, cancel := h.feed.Open(h.statusChannel(req.ID))
	defer cancel()

	h.logger.Debug("status stream opened", zap.String("request_id", req.ID), zap.String("user_id", claims.UserID))
	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case msg, ok := <-messages:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(streamWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed and
// closes done when the peer goes away.
func (h *StreamHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
