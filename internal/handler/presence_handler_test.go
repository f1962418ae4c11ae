package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/internal/dto"
	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/internal/service"
)

type fakePresenceService struct {
	beats  []service.HeartbeatRequest
	leaves []string
	err    error
}

func (f *fakePresenceService) Heartbeat(_ context.Context, req service.HeartbeatRequest) error {
	f.beats = append(f.beats, req)
	return f.err
}

func (f *fakePresenceService) Leave(_ context.Context, sessionID string) {
	f.leaves = append(f.leaves, sessionID)
}

func (f *fakePresenceService) Snapshot(context.Context) models.PresenceSnapshot {
	return models.PresenceSnapshot{Online: 4, ByPage: map[string]int{"student": 4, "admin": 1}}
}

func (f *fakePresenceService) CountedPage() string {
	return models.PageStudent
}

type staticFeed struct {
	updates chan int
}

func (f *staticFeed) Subscribe() (<-chan int, func()) {
	return f.updates, func() {}
}

func TestPresenceHeartbeatAccepted(t *testing.T) {
	svc := &fakePresenceService{}
	h := NewPresenceHandler(svc, nil, StreamConfig{})
	c, rec := newGinContext(http.MethodPost, "/presence/heartbeat", strings.NewReader(`{"sessionId":"s-1","pageName":"student"}`))
	c.Request.Header.Set("User-Agent", "Mozilla/5.0 "+strings.Repeat("x", 600))

	h.Heartbeat(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, svc.beats, 1)
	assert.Equal(t, "s-1", svc.beats[0].SessionID)
	assert.Len(t, svc.beats[0].UserAgent, 512)
}

func TestPresenceHeartbeatTruncatesUserAgentOnRuneBoundary(t *testing.T) {
	svc := &fakePresenceService{}
	h := NewPresenceHandler(svc, nil, StreamConfig{})
	c, rec := newGinContext(http.MethodPost, "/presence/heartbeat", strings.NewReader(`{"sessionId":"s-1","pageName":"student"}`))
	c.Request.Header.Set("User-Agent", "Mozilla/5.0 "+strings.Repeat("日", 200))

	h.Heartbeat(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, svc.beats, 1)
	ua := svc.beats[0].UserAgent
	assert.True(t, utf8.ValidString(ua))
	assert.LessOrEqual(t, len(ua), 512)
	assert.Equal(t, 510, len(ua), "12 ASCII bytes plus 166 three-byte runes")
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 10))
	assert.Equal(t, "a", truncateUTF8("a日", 3))
	assert.Equal(t, "a日", truncateUTF8("a日b", 4))
	assert.Equal(t, "ok", truncateUTF8("o\xffk", 10))
}

func TestPresenceHeartbeatRejectsMalformedBody(t *testing.T) {
	svc := &fakePresenceService{}
	h := NewPresenceHandler(svc, nil, StreamConfig{})
	c, rec := newGinContext(http.MethodPost, "/presence/heartbeat", strings.NewReader(`not json`))

	h.Heartbeat(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.beats)
}

func TestPresenceLeaveAlwaysNoContent(t *testing.T) {
	svc := &fakePresenceService{}
	h := NewPresenceHandler(svc, nil, StreamConfig{})
	c, _ := newGinContext(http.MethodDelete, "/presence/s-1", nil)
	c.Params = gin.Params{{Key: "sessionId", Value: "s-1"}}

	h.Leave(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, []string{"s-1"}, svc.leaves)

	c, _ = newGinContext(http.MethodDelete, "/presence/s-1", nil)
	NewPresenceHandler(nil, nil, StreamConfig{}).Leave(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
}

func TestPresenceSnapshot(t *testing.T) {
	h := NewPresenceHandler(&fakePresenceService{}, nil, StreamConfig{})
	c, rec := newGinContext(http.MethodGet, "/admin/presence", nil)

	h.Snapshot(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), `"online":4`)
}

func TestPresenceStreamPushesCounts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	feed := &staticFeed{updates: make(chan int, 2)}
	feed.updates <- 3

	h := NewPresenceHandler(&fakePresenceService{}, feed, StreamConfig{WriteTimeout: time.Second})
	router := gin.New()
	router.GET("/admin/presence/ws", h.Stream)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/admin/presence/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var got dto.OnlineCount
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, dto.OnlineCount{Online: 3, Page: "student"}, got)

	feed.updates <- 5
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 5, got.Online)
}

func TestPresenceStreamRejectsForeignOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewPresenceHandler(&fakePresenceService{}, &staticFeed{updates: make(chan int)}, StreamConfig{AllowedOrigins: []string{"https://portal.example"}})
	router := gin.New()
	router.GET("/ws", h.Stream)
	srv := httptest.NewServer(router)
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
