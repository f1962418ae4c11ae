package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/middleware"
	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/service"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

type fakeCatalogService struct {
	lastList   service.MaterialListRequest
	list       *service.MaterialListResult
	material   *models.ExamMaterial
	courses    []models.Course
	coursesHit bool
	course     *models.Course
	materials  []models.ExamMaterial
	err        error
}

func (f *fakeCatalogService) List(_ context.Context, req service.MaterialListRequest) (*service.MaterialListResult, error) {
	f.lastList = req
	return f.list, f.err
}

func (f *fakeCatalogService) Get(context.Context, string) (*models.ExamMaterial, error) {
	return f.material, f.err
}

func (f *fakeCatalogService) Courses(context.Context) ([]models.Course, bool, error) {
	return f.courses, f.coursesHit, f.err
}

func (f *fakeCatalogService) CourseMaterials(context.Context, string) (*models.Course, []models.ExamMaterial, error) {
	return f.course, f.materials, f.err
}

func TestCatalogListMaterialsBindsQueryAndReportsPhase(t *testing.T) {
	svc := &fakeCatalogService{list: &service.MaterialListResult{
		Items:      []models.ExamMaterial{{ID: "m1", Name: "CT 1"}},
		Pagination: &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1},
		Phase:      models.PhaseMidterm,
	}}
	h := NewCatalogHandler(svc)

	c, rec := newGinContext(http.MethodGet, "/materials?q=graph&course=CSE-2201&examType=Midterm&relevantNow=true&pageSize=5", nil)
	h.ListMaterials(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "graph", svc.lastList.Search)
	assert.Equal(t, "CSE-2201", svc.lastList.CourseCode)
	assert.Equal(t, "Midterm", svc.lastList.ExamType)
	assert.True(t, svc.lastList.RelevantNow)
	assert.Equal(t, 5, svc.lastList.PageSize)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "MIDTERM", env.Meta["phase"])
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestCatalogListMaterialsRejectsBadQuery(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalogService{})
	c, rec := newGinContext(http.MethodGet, "/materials?relevantNow=maybe", nil)

	h.ListMaterials(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogGetMaterialNotFound(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalogService{err: appErrors.Clone(appErrors.ErrNotFound, "material not found")})
	c, rec := newGinContext(http.MethodGet, "/materials/missing", nil)

	h.GetMaterial(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCatalogListCoursesMarksCacheHit(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalogService{courses: []models.Course{{Code: "CSE-2201"}}, coursesHit: true})
	c, rec := newGinContext(http.MethodGet, "/courses", nil)
	middleware.SetCacheHit(c, false)

	h.ListCourses(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
}

func TestCatalogCourseMaterials(t *testing.T) {
	h := NewCatalogHandler(&fakeCatalogService{
		course:    &models.Course{Code: "CSE-2201", Name: "Algorithms"},
		materials: []models.ExamMaterial{{ID: "m1"}, {ID: "m2"}},
	})
	c, rec := newGinContext(http.MethodGet, "/courses/CSE-2201/materials", nil)

	h.CourseMaterials(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Course    models.Course         `json:"course"`
		Materials []models.ExamMaterial `json:"materials"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, "Algorithms", body.Course.Name)
	assert.Len(t, body.Materials, 2)
}

func TestCatalogHandlerWithoutService(t *testing.T) {
	h := NewCatalogHandler(nil)
	c, rec := newGinContext(http.MethodGet, "/materials", nil)

	h.ListMaterials(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
