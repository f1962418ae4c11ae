package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/realtime"
)

type presenceRepository interface {
	Upsert(ctx context.Context, record *models.PresenceRecord) error
	Delete(ctx context.Context, sessionID string) (bool, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
	CountByPage(ctx context.Context, page string) (int, error)
	CountGrouped(ctx context.Context) (map[string]int, error)
}

// PresenceConfig tunes staleness and the page counted as "online".
type PresenceConfig struct {
	StaleAfter  time.Duration
	CountedPage string
}

// HeartbeatRequest is sent by a tracked page every heartbeat interval.
type HeartbeatRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=64"`
	PageName  string `json:"pageName" validate:"required,oneof=student admin"`
	UserAgent string `json:"userAgent" validate:"max=512"`
}

// PresenceService maintains the advisory online gauge. Store failures are logged and
// degrade to a zero count; they are never returned to callers.
type PresenceService struct {
	repo      presenceRepository
	hub       realtime.Hub
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PresenceConfig
	now       func() time.Time
}

// NewPresenceService constructs the service. hub and metrics may be nil.
func NewPresenceService(repo presenceRepository, hub realtime.Hub, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg PresenceConfig) *PresenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	if cfg.CountedPage == "" {
		cfg.CountedPage = models.PageStudent
	}
	return &PresenceService{repo: repo, hub: hub, metrics: metrics, validator: validate, logger: logger, cfg: cfg, now: time.Now}
}

// WithClock overrides the time source.
func (s *PresenceService) WithClock(now func() time.Time) *PresenceService {
	if now != nil {
		s.now = now
	}
	return s
}

// CountedPage returns the page whose sessions make up the online gauge.
func (s *PresenceService) CountedPage() string {
	return s.cfg.CountedPage
}

// Heartbeat upserts the caller's row. Only malformed requests produce an error.
func (s *PresenceService) Heartbeat(ctx context.Context, req HeartbeatRequest) error {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.PageName = strings.ToLower(strings.TrimSpace(req.PageName))
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid heartbeat payload")
	}

	now := s.now().UTC()
	record := &models.PresenceRecord{
		SessionID:  req.SessionID,
		PageName:   req.PageName,
		LastSeenAt: now,
		UpdatedAt:  now,
		UserAgent:  req.UserAgent,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		s.metrics.RecordHeartbeat(false)
		s.logger.Warn("presence heartbeat not stored", zap.String("session_id", req.SessionID), zap.Error(err))
		return nil
	}
	s.metrics.RecordHeartbeat(true)
	s.publish(ctx, realtime.ActionUpsert, req.SessionID)
	return nil
}

// Leave removes the caller's row. Failures are logged and swallowed.
func (s *PresenceService) Leave(ctx context.Context, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	existed, err := s.repo.Delete(ctx, sessionID)
	if err != nil {
		s.logger.Warn("presence leave not stored", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if existed {
		s.publish(ctx, realtime.ActionDelete, sessionID)
	}
}

// Prune evicts rows not refreshed within the staleness window and returns how many went.
func (s *PresenceService) Prune(ctx context.Context) int64 {
	cutoff := s.now().UTC().Add(-s.cfg.StaleAfter)
	pruned, err := s.repo.DeleteStale(ctx, cutoff)
	if err != nil {
		s.logger.Warn("presence prune failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0
	}
	if pruned > 0 {
		s.metrics.RecordPruned(pruned)
		s.publish(ctx, realtime.ActionPrune, "")
	}
	return pruned
}

// Count prunes and then counts live sessions on page. Any failure yields 0.
func (s *PresenceService) Count(ctx context.Context, page string) int {
	if page == "" {
		page = s.cfg.CountedPage
	}
	s.Prune(ctx)
	count, err := s.repo.CountByPage(ctx, page)
	if err != nil {
		s.logger.Warn("presence count failed", zap.String("page", page), zap.Error(err))
		count = 0
	}
	s.metrics.SetOnline(page, count)
	return count
}

// Snapshot prunes and reports live sessions for every tracked page.
func (s *PresenceService) Snapshot(ctx context.Context) models.PresenceSnapshot {
	pruned := s.Prune(ctx)
	byPage := map[string]int{models.PageStudent: 0, models.PageAdmin: 0}
	counts, err := s.repo.CountGrouped(ctx)
	if err != nil {
		s.logger.Warn("presence snapshot failed", zap.Error(err))
	}
	for page, n := range counts {
		byPage[page] = n
	}
	for page, n := range byPage {
		s.metrics.SetOnline(page, n)
	}
	return models.PresenceSnapshot{
		Online:     byPage[s.cfg.CountedPage],
		ByPage:     byPage,
		Pruned:     pruned,
		ComputedAt: s.now().UTC(),
	}
}

func (s *PresenceService) publish(ctx context.Context, action, key string) {
	if s.hub == nil {
		return
	}
	evt := realtime.Event{Topic: realtime.TopicPresence, Action: action, Key: key, At: s.now().UTC()}
	if err := s.hub.Publish(ctx, evt); err != nil {
		s.logger.Debug("presence event not published", zap.String("action", action), zap.Error(err))
		return
	}
	s.metrics.RecordRealtimeEvent(realtime.TopicPresence)
}
