package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/realtime"
)

const noticeCachePattern = "notices:*"

type noticeRepository interface {
	List(ctx context.Context, filter models.NoticeFilter) ([]models.Notice, int, error)
	GetByID(ctx context.Context, id string) (*models.Notice, error)
	Create(ctx context.Context, notice *models.Notice) error
	Update(ctx context.Context, notice *models.Notice) error
	Delete(ctx context.Context, id string) error
}

// NoticeListRequest describes filters for the public notice board.
type NoticeListRequest struct {
	Category string     `form:"category" validate:"max=64"`
	Since    *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Page     int        `form:"page" validate:"min=0"`
	PageSize int        `form:"pageSize" validate:"min=0,max=100"`
}

// NoticeRequest is the create and update payload.
type NoticeRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Content     string     `json:"content" validate:"required"`
	Category    string     `json:"category" validate:"omitempty,max=64"`
	Priority    string     `json:"priority" validate:"omitempty,notice_priority"`
	IsPinned    bool       `json:"is_pinned"`
	PublishedAt *time.Time `json:"published_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// NoticeListResult is one page of notices.
type NoticeListResult struct {
	Items      []models.Notice    `json:"items"`
	Pagination *models.Pagination `json:"pagination"`
}

// NoticeService handles the notice board.
type NoticeService struct {
	repo      noticeRepository
	cache     *CacheService
	hub       realtime.Hub
	metrics   *MetricsService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNoticeService constructs the service.
func NewNoticeService(repo noticeRepository, cache *CacheService, hub realtime.Hub, metrics *MetricsService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *NoticeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	_ = validate.RegisterValidation("notice_priority", func(fl validator.FieldLevel) bool {
		switch models.NoticePriority(strings.ToUpper(fl.Field().String())) {
		case models.NoticePriorityLow, models.NoticePriorityNormal, models.NoticePriorityHigh:
			return true
		default:
			return false
		}
	})
	return &NoticeService{repo: repo, cache: cache, hub: hub, metrics: metrics, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns visible notices. Unfiltered pages are cached; "since" polls always hit the store.
func (s *NoticeService) List(ctx context.Context, req NoticeListRequest) (*NoticeListResult, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notice query")
	}
	filter := models.NoticeFilter{
		Category:     strings.TrimSpace(req.Category),
		UpdatedSince: req.Since,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	cacheable := filter.UpdatedSince == nil
	key := fmt.Sprintf("notices:list:%s:%d:%d", filter.Category, filter.Page, filter.PageSize)
	if cacheable {
		var cached NoticeListResult
		if s.cache.Get(ctx, key, &cached) {
			return &cached, true, nil
		}
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notices")
	}
	result := &NoticeListResult{
		Items:      rows,
		Pagination: &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}
	if cacheable {
		s.cache.Set(ctx, key, result, s.cacheTTL)
	}
	return result, false, nil
}

// Get returns a notice by id.
func (s *NoticeService) Get(ctx context.Context, id string) (*models.Notice, error) {
	notice, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get notice")
	}
	return notice, nil
}

// Create publishes a new notice on behalf of createdBy.
func (s *NoticeService) Create(ctx context.Context, req NoticeRequest, createdBy string) (*models.Notice, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	notice := &models.Notice{CreatedBy: createdBy}
	applyNoticeRequest(notice, req)
	if err := s.repo.Create(ctx, notice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notice")
	}
	s.changed(ctx, realtime.ActionUpsert, notice.ID)
	return notice, nil
}

// Update replaces the editable fields of a notice.
func (s *NoticeService) Update(ctx context.Context, id string, req NoticeRequest) (*models.Notice, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyNoticeRequest(existing, req)
	if err := s.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notice")
	}
	s.changed(ctx, realtime.ActionUpsert, existing.ID)
	return existing, nil
}

// Delete removes a notice.
func (s *NoticeService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notice")
	}
	s.changed(ctx, realtime.ActionDelete, id)
	return nil
}

func (s *NoticeService) validate(req NoticeRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notice payload")
	}
	if req.ExpiresAt != nil && req.PublishedAt != nil && !req.ExpiresAt.After(*req.PublishedAt) {
		return appErrors.Clone(appErrors.ErrValidation, "expires_at must be after published_at")
	}
	return nil
}

func (s *NoticeService) changed(ctx context.Context, action, id string) {
	s.cache.Invalidate(ctx, noticeCachePattern)
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, realtime.Event{Topic: realtime.TopicNotices, Action: action, Key: id}); err != nil {
		s.logger.Warn("notice event not published", zap.String("notice_id", id), zap.Error(err))
		return
	}
	s.metrics.RecordRealtimeEvent(realtime.TopicNotices)
}

func applyNoticeRequest(notice *models.Notice, req NoticeRequest) {
	notice.Title = strings.TrimSpace(req.Title)
	notice.Content = req.Content
	notice.Category = strings.TrimSpace(req.Category)
	if notice.Category == "" {
		notice.Category = "general"
	}
	notice.Priority = models.NoticePriority(strings.ToUpper(req.Priority))
	if notice.Priority == "" {
		notice.Priority = models.NoticePriorityNormal
	}
	notice.IsPinned = req.IsPinned
	if req.PublishedAt != nil {
		notice.PublishedAt = req.PublishedAt.UTC()
	}
	notice.ExpiresAt = req.ExpiresAt
}
