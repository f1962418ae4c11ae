package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/academic"
	"github.com/noah-isme/campus-portal-api/internal/dto"
	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/repository"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/export"
	"github.com/noah-isme/campus-portal-api/pkg/jobs"
	"github.com/noah-isme/campus-portal-api/pkg/storage"
)

const exportJobKind = "catalog_export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type catalogSource interface {
	Materials(ctx context.Context) ([]models.ExamMaterial, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload is an opened export artefact ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders the material catalog to CSV or PDF in the background.
type ExportService struct {
	repo      exportJobStore
	catalog   catalogSource
	semester  *SemesterService
	ranker    academic.Ranker
	storage   fileStorage
	signer    *storage.SignedURLSigner
	queue     jobDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. The queue is attached separately because
// the queue's handler is the service itself.
func NewExportService(repo exportJobStore, catalog catalogSource, semester *SemesterService, ranker academic.Ranker, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		repo:      repo,
		catalog:   catalog,
		semester:  semester,
		ranker:    ranker,
		storage:   files,
		signer:    signer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// AttachQueue sets the dispatcher new jobs are pushed to.
func (s *ExportService) AttachQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob validates the request, persists the job and enqueues it.
func (s *ExportService) CreateJob(ctx context.Context, req dto.ExportRequest, actor string) (*dto.ExportJobResponse, error) {
	req.Format = models.ExportFormat(strings.ToLower(string(req.Format)))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "exports are disabled")
	}
	job := &models.ExportJob{
		Params: models.ExportJobParams{
			Format:      req.Format,
			CourseCode:  strings.TrimSpace(req.CourseCode),
			ExamType:    req.ExamType,
			RelevantNow: req.RelevantNow,
		},
		Status:    models.ExportStatusQueued,
		CreatedBy: actor,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: exportJobKind}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Transient(err, "failed to enqueue export job")
	}
	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status}, nil
}

// GetStatus returns job state and a freshly signed download URL once finished.
func (s *ExportService) GetStatus(ctx context.Context, id string) (*dto.ExportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.ExportStatusResponse{
		ID:         job.ID,
		Status:     job.Status,
		Params:     job.Params,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	if job.Status == models.ExportStatusFinished && job.FilePath != nil {
		token, expiresAt, err := s.signer.Generate(job.ID, *job.FilePath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
		}
		url := fmt.Sprintf("%s/exports/download?token=%s", s.cfg.APIPrefix, token)
		resp.DownloadURL = &url
		resp.ExpiresAt = &expiresAt
	}
	return resp, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ExportStatusFinished || job.FilePath == nil || *job.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not available")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	renderer, err := export.ForFormat(string(job.Params.Format))
	if err != nil {
		_ = file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "unknown export format")
	}
	return &ExportDownload{
		File:        file,
		Filename:    path.Base(relPath),
		ContentType: renderer.ContentType(),
		ExpiresAt:   expiresAt,
	}, nil
}

// Handle renders one queued export. It is the queue handler.
func (s *ExportService) Handle(ctx context.Context, job jobs.Job) error {
	record, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", job.ID, err)
	}
	if record.Status == models.ExportStatusFinished {
		return nil
	}
	processing := models.ExportStatusProcessing
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return fmt.Errorf("mark export processing: %w", err)
	}

	renderer, err := export.ForFormat(string(record.Params.Format))
	if err != nil {
		s.markFailed(ctx, job.ID, err.Error())
		return nil
	}
	dataset, err := s.dataset(ctx, record.Params)
	if err != nil {
		return err
	}
	body, err := renderer.Render(dataset)
	if err != nil {
		return fmt.Errorf("render export: %w", err)
	}
	name := fmt.Sprintf("catalog/%s/%s.%s", s.now().UTC().Format("2006-01-02"), record.ID, renderer.Extension())
	stored, err := s.storage.Save(name, body)
	if err != nil {
		return fmt.Errorf("store export: %w", err)
	}

	finished := models.ExportStatusFinished
	finishedAt := s.now().UTC()
	clear := ""
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		FilePath:     &stored,
		ErrorMessage: &clear,
		FinishedAt:   &finishedAt,
	}); err != nil {
		_ = s.storage.Delete(stored)
		return fmt.Errorf("mark export finished: %w", err)
	}
	s.metrics.RecordExportJob(finished)
	s.logger.Info("catalog export finished", zap.String("job_id", job.ID), zap.Int("rows", len(dataset.Rows)))
	return nil
}

// GiveUp marks a job failed once the queue stops retrying it.
func (s *ExportService) GiveUp(ctx context.Context, job jobs.Job, cause error) {
	s.markFailed(ctx, job.ID, cause.Error())
}

// RecoverPendingJobs re-enqueues jobs left QUEUED by a previous process.
func (s *ExportService) RecoverPendingJobs(ctx context.Context) {
	if s.queue == nil {
		return
	}
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued export jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: exportJobKind}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue export job", "job_id", job.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup(ctx)
			}
		}
	}()
}

// Cleanup removes artefacts and job rows older than the result TTL.
func (s *ExportService) Cleanup(ctx context.Context) {
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export file cleanup failed", zap.Error(err))
	}
	rows, err := s.repo.DeleteFinishedBefore(ctx, s.now().UTC().Add(-s.cfg.ResultTTL))
	if err != nil {
		s.logger.Warn("export job cleanup failed", zap.Error(err))
	}
	if len(removed) > 0 || rows > 0 {
		s.logger.Info("export cleanup", zap.Int("files", len(removed)), zap.Int64("jobs", rows))
	}
}

func (s *ExportService) dataset(ctx context.Context, params models.ExportJobParams) (export.Dataset, error) {
	materials, err := s.catalog.Materials(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	query := models.MaterialQuery{CourseCode: params.CourseCode, ExamType: params.ExamType, RelevantNow: params.RelevantNow}
	status := s.semester.Status()
	ranked := s.ranker.Apply(materials, query, status.Phase)

	title := "Exam Material Catalog"
	if params.CourseCode != "" {
		title += " - " + params.CourseCode
	}
	data := export.Dataset{
		Title:   title,
		Headers: []string{"Course", "Material", "Type", "Exam", "Relevance", "Priority", "Topics", "Source"},
		Rows:    make([]map[string]string, 0, len(ranked)),
	}
	for _, m := range ranked {
		priority := ""
		if m.IsHighPriority {
			priority = "HIGH"
		}
		data.Rows = append(data.Rows, map[string]string{
			"Course":    m.CourseCode,
			"Material":  m.Name,
			"Type":      string(m.Type),
			"Exam":      string(m.ExamType),
			"Relevance": strconv.Itoa(m.RelevanceScore),
			"Priority":  priority,
			"Topics":    strings.Join(m.Topics, "; "),
			"Source":    m.SourceURL,
		})
	}
	return data, nil
}

func (s *ExportService) load(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

func (s *ExportService) markFailed(ctx context.Context, id, msg string) {
	failed := models.ExportStatusFailed
	now := s.now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{Status: &failed, ErrorMessage: &msg, FinishedAt: &now}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	s.metrics.RecordExportJob(failed)
}
