package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/noah-isme/campus-portal-api/internal/middleware"
	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/service"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/realtime"
	"github.com/noah-isme/campus-portal-api/pkg/response"
)

type noticeService interface {
	List(ctx context.Context, req service.NoticeListRequest) (*service.NoticeListResult, bool, error)
	Get(ctx context.Context, id string) (*models.Notice, error)
	Create(ctx context.Context, req service.NoticeRequest, createdBy string) (*models.Notice, error)
	Update(ctx context.Context, id string, req service.NoticeRequest) (*models.Notice, error)
	Delete(ctx context.Context, id string) error
}

// NoticeHandler exposes the notice board.
type NoticeHandler struct {
	service  noticeService
	hub      realtime.Hub
	cfg      StreamConfig
	upgrader websocket.Upgrader
}

// NewNoticeHandler constructs the handler. hub may be nil, which disables the live feed.
func NewNoticeHandler(svc noticeService, hub realtime.Hub, cfg StreamConfig) *NoticeHandler {
	return &NoticeHandler{service: svc, hub: hub, cfg: cfg, upgrader: newUpgrader(cfg)}
}

// List godoc
// @Summary List notices
// @Description Published, unexpired notices: pinned first, then by priority, newest first. With since, only notices changed after that instant are returned.
// @Tags Notices
// @Produce json
// @Param category query string false "Category"
// @Param since query string false "RFC3339 timestamp"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notices [get]
func (h *NoticeHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req service.NoticeListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	result, hit, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, result.Items, result.Pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get notice
// @Tags Notices
// @Produce json
// @Param id path string true "Notice ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notices/{id} [get]
func (h *NoticeHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	notice, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notice, nil)
}

// Create godoc
// @Summary Create notice
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.NoticeRequest true "Notice payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/notices [post]
func (h *NoticeHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req service.NoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notice payload"))
		return
	}
	createdBy := "admin"
	if claims, ok := middleware.CurrentClaims(c); ok && claims.Subject != "" {
		createdBy = claims.Subject
	}
	notice, err := h.service.Create(c.Request.Context(), req, createdBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, notice)
}

// Update godoc
// @Summary Update notice
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Notice ID"
// @Param payload body service.NoticeRequest true "Notice payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/notices/{id} [put]
func (h *NoticeHandler) Update(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req service.NoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notice payload"))
		return
	}
	notice, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notice, nil)
}

// Delete godoc
// @Summary Delete notice
// @Tags Admin
// @Security BearerAuth
// @Param id path string true "Notice ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /admin/notices/{id} [delete]
func (h *NoticeHandler) Delete(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stream godoc
// @Summary Live notice changes
// @Description Websocket feed of notice change events. Clients refetch the list on each event; the two-minute poll remains the fallback.
// @Tags Notices
// @Router /notices/ws [get]
func (h *NoticeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "live notices are disabled"))
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	events, err := h.hub.Subscribe(ctx)
	if err != nil {
		response.Error(c, appErrors.Transient(err, "change feed unavailable"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	ws := newStream(conn, h.cfg.WriteTimeout)
	defer ws.close()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ws.closed:
			return
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Topic != realtime.TopicNotices {
				continue
			}
			if err := ws.send(evt); err != nil {
				return
			}
		}
	}
}
