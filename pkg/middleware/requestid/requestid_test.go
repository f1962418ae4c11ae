package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, incoming string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if incoming != "" {
		req.Header.Set(headerKey, incoming)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return seen, w.Header().Get(headerKey)
}

func TestGeneratesID(t *testing.T) {
	seen, header := run(t, "")
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, header)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestReusesUpstreamID(t *testing.T) {
	seen, _ := run(t, "edge-1234.abc")
	assert.Equal(t, "edge-1234.abc", seen)
}

func TestRejectsMalformedUpstreamID(t *testing.T) {
	seen, _ := run(t, "bad id\r\ninjected")
	assert.NotContains(t, seen, "injected")

	seen, _ = run(t, strings.Repeat("a", maxLength+1))
	assert.Len(t, seen, 36)
}
