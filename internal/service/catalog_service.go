package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/academic"
	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

const coursesCacheKey = "courses:list"

type materialRepository interface {
	ListAll(ctx context.Context) ([]models.ExamMaterial, error)
}

type courseRepository interface {
	List(ctx context.Context) ([]models.Course, error)
	GetByCode(ctx context.Context, code string) (*models.Course, error)
}

// MaterialListRequest carries the raw dashboard filters.
type MaterialListRequest struct {
	Search      string `form:"q" validate:"max=200"`
	CourseCode  string `form:"course" validate:"max=32"`
	Type        string `form:"type"`
	ExamType    string `form:"examType"`
	RelevantNow bool   `form:"relevantNow"`
	Page        int    `form:"page" validate:"min=0"`
	PageSize    int    `form:"pageSize" validate:"min=0,max=100"`
}

// MaterialListResult is one page of ranked material and the phase it was ranked for.
type MaterialListResult struct {
	Items      []models.ExamMaterial
	Pagination *models.Pagination
	Phase      models.PhaseKind
}

// CatalogService serves courses and the curated exam material catalog. The material
// catalog is read once and kept as an immutable snapshot.
type CatalogService struct {
	materials materialRepository
	courses   courseRepository
	semester  *SemesterService
	ranker    academic.Ranker
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger

	mu       sync.RWMutex
	loaded   bool
	snapshot []models.ExamMaterial
	byID     map[string]int
}

// NewCatalogService constructs the service.
func NewCatalogService(materials materialRepository, courses courseRepository, semester *SemesterService, ranker academic.Ranker, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		materials: materials,
		courses:   courses,
		semester:  semester,
		ranker:    ranker,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// Load reads the catalog if it has not been read yet. A failed load can be retried.
func (s *CatalogService) Load(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	rows, err := s.materials.ListAll(ctx)
	if err != nil {
		return appErrors.Transient(err, "failed to load material catalog")
	}
	snapshot := make([]models.ExamMaterial, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, m := range rows {
		if _, dup := index[m.ID]; dup {
			s.logger.Warn("duplicate material id in catalog, keeping the first", zap.String("id", m.ID))
			continue
		}
		index[m.ID] = len(snapshot)
		snapshot = append(snapshot, m)
	}
	s.snapshot = snapshot
	s.byID = index
	s.loaded = true
	s.logger.Info("material catalog loaded", zap.Int("materials", len(snapshot)))
	return nil
}

// Materials returns a copy of the whole catalog in curation order.
func (s *CatalogService) Materials(ctx context.Context) ([]models.ExamMaterial, error) {
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ExamMaterial, len(s.snapshot))
	copy(out, s.snapshot)
	return out, nil
}

// List applies the composed query to the catalog and paginates the ranked result.
func (s *CatalogService) List(ctx context.Context, req MaterialListRequest) (*MaterialListResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material query")
	}
	query, err := buildMaterialQuery(req)
	if err != nil {
		return nil, err
	}
	all, err := s.Materials(ctx)
	if err != nil {
		return nil, err
	}

	phase := s.semester.Status().Phase
	ranked := s.ranker.Apply(all, query, phase)

	total := len(ranked)
	start := models.Offset(query.Page, query.PageSize)
	if start > total {
		start = total
	}
	end := start + query.PageSize
	if end > total {
		end = total
	}
	return &MaterialListResult{
		Items:      ranked[start:end],
		Pagination: &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total},
		Phase:      phase,
	}, nil
}

// Get returns one material by id.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.ExamMaterial, error) {
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
	}
	m := s.snapshot[idx]
	return &m, nil
}

// Courses lists every course, served from cache when possible.
func (s *CatalogService) Courses(ctx context.Context) ([]models.Course, bool, error) {
	var cached []models.Course
	if s.cache.Get(ctx, coursesCacheKey, &cached) {
		return cached, true, nil
	}
	courses, err := s.courses.List(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	s.cache.Set(ctx, coursesCacheKey, courses, s.cacheTTL)
	return courses, false, nil
}

// CourseMaterials returns the ranked material of one course.
func (s *CatalogService) CourseMaterials(ctx context.Context, code string) (*models.Course, []models.ExamMaterial, error) {
	course, err := s.courses.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	all, err := s.Materials(ctx)
	if err != nil {
		return nil, nil, err
	}
	return course, academic.ByCourse(all, course.Code), nil
}

func buildMaterialQuery(req MaterialListRequest) (models.MaterialQuery, error) {
	q := models.MaterialQuery{
		Search:      strings.TrimSpace(req.Search),
		CourseCode:  strings.TrimSpace(req.CourseCode),
		RelevantNow: req.RelevantNow,
		Page:        req.Page,
		PageSize:    req.PageSize,
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	if req.Type != "" {
		t, ok := canonical(req.Type, []string{
			string(models.MaterialTypeCT), string(models.MaterialTypeNotes), string(models.MaterialTypeSlides),
			string(models.MaterialTypeSuggestions), string(models.MaterialTypeSyllabus), string(models.MaterialTypeOther),
		})
		if !ok {
			return q, appErrors.Clone(appErrors.ErrValidation, "unknown material type")
		}
		q.Type = models.MaterialType(t)
	}
	if req.ExamType != "" {
		e, ok := canonical(req.ExamType, []string{string(models.ExamTypeMidterm), string(models.ExamTypeRegular), string(models.ExamTypeAll)})
		if !ok {
			return q, appErrors.Clone(appErrors.ErrValidation, "unknown exam type")
		}
		q.ExamType = models.ExamType(e)
	}
	return q, nil
}

func canonical(value string, allowed []string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return a, true
		}
	}
	return "", false
}
