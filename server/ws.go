package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xhad/ragdesk/internal/models"
)

// Message is one websocket frame. Type is "progress" while the task runs and
// "done" for its terminal snapshot.
type Message struct {
	Type    string             `json:"type"`
	Content string             `json:"content"`
	Data    *models.TaskRecord `json:"data,omitempty"`
}

// watchTask streams the task's record until it reaches a terminal state or
// the client goes away.
func (s *Server) watchTask(c *gin.Context) {
	rec, ok := s.task(c)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The client never sends anything useful; reading only detects close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for snap := range s.svc.Engine().Watch(ctx, rec.ID, s.config.WatchInterval) {
		msgType := "progress"
		if snap.Status.IsTerminal() {
			msgType = "done"
		}
		if err := s.sendMessage(conn, msgType, snap); err != nil {
			return
		}
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType string, rec models.TaskRecord) error {
	msg := Message{
		Type:    msgType,
		Content: rec.Message,
		Data:    &rec,
	}
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Debug("websocket write failed", "task_id", rec.ID, "error", err)
		return err
	}
	return nil
}
