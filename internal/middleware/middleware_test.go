package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator struct {
	claims *models.JWTClaims
	seen   string
}

func (s *stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	s.seen = token
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func newGuardedRouter(v tokenValidator, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(v)}, extra...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin/things/:id", handlers...)
	r.POST("/admin/things/:id", handlers...)
	return r
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r := newGuardedRouter(&stubValidator{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/things/1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	r := newGuardedRouter(&stubValidator{})
	req := httptest.NewRequest(http.MethodGet, "/admin/things/1", nil)
	req.Header.Set("Authorization", "Token good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid authorization header")
}

func TestJWTAcceptsBearerAndRequireAdmin(t *testing.T) {
	v := &stubValidator{claims: &models.JWTClaims{SessionID: "s1", Role: models.RoleAdmin}}
	r := newGuardedRouter(v, RequireAdmin())
	req := httptest.NewRequest(http.MethodGet, "/admin/things/1", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "good", v.seen)
}

func TestRequireAdminForbidsOtherRoles(t *testing.T) {
	v := &stubValidator{claims: &models.JWTClaims{SessionID: "s1", Role: models.RoleStudent}}
	r := newGuardedRouter(v, RequireAdmin())
	req := httptest.NewRequest(http.MethodGet, "/admin/things/1", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAdminWithoutClaims(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RequireAdmin()(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTQueryTokenOnlyForWebsocketUpgrade(t *testing.T) {
	v := &stubValidator{claims: &models.JWTClaims{Role: models.RoleAdmin}}
	r := newGuardedRouter(v)

	plain := httptest.NewRecorder()
	r.ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "/admin/things/1?access_token=good", nil))
	assert.Equal(t, http.StatusUnauthorized, plain.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/things/1?access_token=good", nil)
	req.Header.Set("Upgrade", "websocket")
	upgraded := httptest.NewRecorder()
	r.ServeHTTP(upgraded, req)
	assert.Equal(t, http.StatusOK, upgraded.Code)
}

func TestAuditLogsSuccessfulMutations(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	v := &stubValidator{claims: &models.JWTClaims{SessionID: "sess-9", Role: models.RoleAdmin}}
	r := newGuardedRouter(v, Audit(zap.New(core), "update", "notice"))

	req := httptest.NewRequest(http.MethodPost, "/admin/things/42", nil)
	req.Header.Set("Authorization", "Bearer good")
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "update", fields["action"])
	assert.Equal(t, "42", fields["resource_id"])
	assert.Equal(t, "sess-9", fields["admin_session"])
}

func TestAuditSkipsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.POST("/x", Audit(zap.New(core), "create", "notice"), func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusBadRequest)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, 0, logs.Len())
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	r := gin.New()
	var meta map[string]interface{}
	r.GET("/x", WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestSetMetaWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))

	SetMeta(c, "phase", "MIDTERM")
	assert.Equal(t, "MIDTERM", ExtractMeta(c)["phase"])
}

type observation struct {
	method, path string
	status       int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{method, path, status})
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	obs := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/materials/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/notices/ws", func(c *gin.Context) { c.Status(http.StatusSwitchingProtocols) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/materials/m-1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))
	upgrade := httptest.NewRequest(http.MethodGet, "/notices/ws", nil)
	upgrade.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(httptest.NewRecorder(), upgrade)

	assert.Equal(t, []observation{
		{http.MethodGet, "/materials/:id", http.StatusOK},
		{http.MethodGet, unmatchedRoute, http.StatusNotFound},
	}, obs.seen)
}
