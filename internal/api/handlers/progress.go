package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ProgressHandler streams session progress over SSE or WebSocket
type ProgressHandler struct {
	sessions *session.Manager
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewProgressHandler creates a new progress handler. allowOrigin decides
// WebSocket origins; nil allows all.
func NewProgressHandler(sessions *session.Manager, allowOrigin func(origin string) bool, logger *logrus.Logger) *ProgressHandler {
	return &ProgressHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowOrigin == nil || allowOrigin(origin)
			},
		},
		logger: logger,
	}
}

func followParam(c *gin.Context) bool {
	follow, _ := strconv.ParseBool(c.Query("follow"))
	return follow
}

// StreamProgress handles GET /optimizer/progress/:session_id as server-sent
// events. The stream ends after a terminal event unless follow=true.
func (h *ProgressHandler) StreamProgress(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	follow := followParam(c)
	sub := s.Bus().Subscribe(follow)
	defer sub.Unsubscribe()

	log := h.logger.WithFields(logrus.Fields{"session_id": s.ID, "transport": "sse", "follow": follow})
	log.Debug("Progress subscriber attached")

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		e, err := sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				log.WithError(err).Warn("Progress stream ended")
			}
			return false
		}
		c.SSEvent("progress", e)
		return true
	})
	log.Debug("Progress subscriber detached")
}

// ProgressWebSocket handles GET /optimizer/progress/:session_id/ws. Events
// are sent as JSON text frames with the same single-subscriber semantics.
func (h *ProgressHandler) ProgressWebSocket(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	follow := followParam(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	sub := s.Bus().Subscribe(follow)
	ctx, cancel := context.WithCancel(context.Background())
	log := h.logger.WithFields(logrus.Fields{"session_id": s.ID, "transport": "websocket", "follow": follow})
	log.Info("WebSocket client connected")

	go h.readPump(conn, cancel, log)
	h.writePump(ctx, conn, sub, log)

	cancel()
	sub.Unsubscribe()
	log.Info("WebSocket client disconnected")
}

// readPump drains client frames so close and pong control frames are seen.
func (h *ProgressHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc, log *logrus.Entry) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("WebSocket error")
			}
			return
		}
	}
}

func (h *ProgressHandler) writePump(ctx context.Context, conn *websocket.Conn, sub *session.Subscription, log *logrus.Entry) {
	defer conn.Close()

	events := make(chan session.Event)
	go func() {
		defer close(events)
		for {
			e, err := sub.Next(ctx)
			if err != nil {
				return
			}
			select {
			case events <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				log.WithError(err).Error("Failed to write WebSocket message")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
