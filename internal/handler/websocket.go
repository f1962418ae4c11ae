package handler

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// StreamConfig configures websocket feeds.
type StreamConfig struct {
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

func newUpgrader(cfg StreamConfig) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	wildcard := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			wildcard = true
		}
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			if _, ok := allowed[origin]; ok {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

// stream wraps one websocket connection that only pushes JSON to the client.
type stream struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closed       chan struct{}
}

func newStream(conn *websocket.Conn, writeTimeout time.Duration) *stream {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	s := &stream{conn: conn, writeTimeout: writeTimeout, closed: make(chan struct{})}
	go s.readPump()
	return s
}

// readPump drains client frames so control messages are processed, and reports disconnects.
func (s *stream) readPump() {
	defer close(s.closed)
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *stream) send(v interface{}) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *stream) ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout))
}

func (s *stream) close() {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(s.writeTimeout))
	_ = s.conn.Close()
}
