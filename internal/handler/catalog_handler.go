package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-portal-api/internal/middleware"
	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/service"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/response"
)

type catalogService interface {
	List(ctx context.Context, req service.MaterialListRequest) (*service.MaterialListResult, error)
	Get(ctx context.Context, id string) (*models.ExamMaterial, error)
	Courses(ctx context.Context) ([]models.Course, bool, error)
	CourseMaterials(ctx context.Context, code string) (*models.Course, []models.ExamMaterial, error)
}

// CatalogHandler serves courses and exam material.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(svc catalogService) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// ListMaterials godoc
// @Summary List exam material
// @Description Composed search over the material catalog, ranked by priority and relevance. During the mid-term window only relevant material is returned when relevantNow is set.
// @Tags Materials
// @Produce json
// @Param q query string false "Case-insensitive search over name, description and topics"
// @Param course query string false "Course code"
// @Param type query string false "Material type (CT, Notes, Slides, Suggestions, Syllabus, Other)"
// @Param examType query string false "Exam type (Midterm, Regular, All)"
// @Param relevantNow query bool false "Only material relevant to the current phase"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /materials [get]
func (h *CatalogHandler) ListMaterials(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req service.MaterialListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	result, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "phase", result.Phase)
	response.JSON(c, http.StatusOK, result.Items, result.Pagination, middleware.ExtractMeta(c))
}

// GetMaterial godoc
// @Summary Get exam material
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /materials/{id} [get]
func (h *CatalogHandler) GetMaterial(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	material, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, material, nil)
}

// ListCourses godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	courses, hit, err := h.service.Courses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, courses, nil, middleware.ExtractMeta(c))
}

// CourseMaterials godoc
// @Summary Material of one course
// @Tags Courses
// @Produce json
// @Param code path string true "Course code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{code}/materials [get]
func (h *CatalogHandler) CourseMaterials(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	code := strings.TrimSpace(c.Param("code"))
	course, materials, err := h.service.CourseMaterials(c.Request.Context(), code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"course": course, "materials": materials}, nil)
}
