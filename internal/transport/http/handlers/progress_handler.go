package handlers

import (
	"context"
	"time"

	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/gofiber/contrib/websocket"
)

const progressWriteWait = 10 * time.Second

type progressMessage struct {
	TaskID   string `json:"task_id"`
	Progress string `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ProgressHandler pushes a task's progress log to a websocket client.
type ProgressHandler struct {
	hub    ports.ProgressHub
	logger *logger.Logger
}

func NewProgressHandler(hub ports.ProgressHub, logger *logger.Logger) *ProgressHandler {
	return &ProgressHandler{hub: hub, logger: logger}
}

func (h *ProgressHandler) Handle(c *websocket.Conn) {
	id := c.Params("id")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, unsubscribe, err := h.hub.Subscribe(ctx, id)
	if err != nil {
		h.logger.Warnw("progress_ws_subscribe_failed", "task_id", id, "error", err)
		_ = c.WriteJSON(progressMessage{TaskID: id, Error: err.Error()})
		_ = c.Close()
		return
	}
	defer unsubscribe()
	h.logger.Infow("progress_ws_open", "task_id", id)

	// The client never sends anything useful; reading only notices it leaving.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = pump(ctx, updates, func(text string) error {
		if err := c.SetWriteDeadline(time.Now().Add(progressWriteWait)); err != nil {
			return err
		}
		return c.WriteJSON(progressMessage{TaskID: id, Progress: text})
	})
	if err != nil {
		h.logger.Debugw("progress_ws_write_failed", "task_id", id, "error", err)
	}
	h.logger.Infow("progress_ws_closed", "task_id", id)
}

// pump forwards updates to send until the channel closes, ctx ends or send
// fails.
func pump(ctx context.Context, updates <-chan string, send func(string) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text, ok := <-updates:
			if !ok {
				return nil
			}
			if err := send(text); err != nil {
				return err
			}
		}
	}
}
