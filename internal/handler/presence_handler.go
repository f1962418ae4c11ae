package handler

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/noah-isme/campus-portal-api/internal/dto"
	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/service"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/response"
)

type presenceService interface {
	Heartbeat(ctx context.Context, req service.HeartbeatRequest) error
	Leave(ctx context.Context, sessionID string)
	Snapshot(ctx context.Context) models.PresenceSnapshot
	CountedPage() string
}

type onlineFeed interface {
	Subscribe() (<-chan int, func())
}

// PresenceHandler accepts heartbeats and serves the online gauge.
type PresenceHandler struct {
	service  presenceService
	feed     onlineFeed
	cfg      StreamConfig
	upgrader websocket.Upgrader
}

// NewPresenceHandler constructs the handler. feed may be nil, which disables the live gauge.
func NewPresenceHandler(svc presenceService, feed onlineFeed, cfg StreamConfig) *PresenceHandler {
	return &PresenceHandler{service: svc, feed: feed, cfg: cfg, upgrader: newUpgrader(cfg)}
}

// Heartbeat godoc
// @Summary Presence heartbeat
// @Description Upserts the caller's session row. Store failures are absorbed; the response is 202 whenever the payload is well formed.
// @Tags Presence
// @Accept json
// @Produce json
// @Param payload body service.HeartbeatRequest true "Heartbeat"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /presence/heartbeat [post]
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req service.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid heartbeat payload"))
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = c.GetHeader("User-Agent")
	}
	req.UserAgent = truncateUTF8(req.UserAgent, maxUserAgentBytes)
	if err := h.service.Heartbeat(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"sessionId": req.SessionID})
}

// Leave godoc
// @Summary End a presence session
// @Description Best-effort removal of the session row. Always 204.
// @Tags Presence
// @Param sessionId path string true "Session ID"
// @Success 204
// @Router /presence/{sessionId} [delete]
func (h *PresenceHandler) Leave(c *gin.Context) {
	if h.service != nil {
		h.service.Leave(c.Request.Context(), c.Param("sessionId"))
	}
	response.NoContent(c)
}

// Snapshot godoc
// @Summary Online sessions
// @Description Prunes stale sessions and counts live ones per tracked page.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/presence [get]
func (h *PresenceHandler) Snapshot(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.service.Snapshot(c.Request.Context()), nil)
}

// Stream godoc
// @Summary Live online count
// @Description Websocket pushing {"online": n} each time the count is recomputed.
// @Tags Admin
// @Security BearerAuth
// @Param access_token query string false "Admin token, for clients that cannot set headers"
// @Router /admin/presence/ws [get]
func (h *PresenceHandler) Stream(c *gin.Context) {
	if h.feed == nil || h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "live presence is disabled"))
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	ws := newStream(conn, h.cfg.WriteTimeout)
	defer ws.close()

	updates, unsubscribe := h.feed.Subscribe()
	defer unsubscribe()

	page := h.service.CountedPage()
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ws.closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				return
			}
		case n := <-updates:
			if err := ws.send(dto.OnlineCount{Online: n, Page: page}); err != nil {
				return
			}
		}
	}
}

const maxUserAgentBytes = 512

// truncateUTF8 cuts s to at most n bytes on a rune boundary and replaces
// invalid sequences, so the result is always storable as text.
func truncateUTF8(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
