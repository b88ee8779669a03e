package harness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/cklxx/NanoBee/internal/progress"
)

var _ progress.Transport = (*Client)(nil)

type progressResponse struct {
	Progress string `json:"progress"`
}

// GetProgress fetches the current progress log of a task.
func (c *Client) GetProgress(ctx context.Context, taskID string) (string, error) {
	var resp progressResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: taskPath(taskID, "progress")}, &resp); err != nil {
		return "", err
	}
	return resp.Progress, nil
}

// Poll returns the raw progress body; the progress client decodes it.
func (c *Client) Poll(ctx context.Context, taskID string) ([]byte, error) {
	return c.raw(ctx, request{method: http.MethodGet, path: taskPath(taskID, "progress")})
}

// OpenStream satisfies progress.Transport.
func (c *Client) OpenStream(ctx context.Context, taskID string) (progress.Stream, error) {
	return c.OpenProgressStream(ctx, taskID)
}

// OpenProgressStream subscribes to the server-push progress feed of a task.
// The returned stream yields the data of each event.
func (c *Client) OpenProgressStream(ctx context.Context, taskID string) (*EventStream, error) {
	path := taskPath(taskID, "progress", "stream")
	return c.openEventStream(ctx, request{method: http.MethodGet, path: path, long: true})
}

func (c *Client) openEventStream(ctx context.Context, r request) (*EventStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	req, _, err := c.newRequest(streamCtx, r)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.log.Debugw("harness_stream_open", "method", r.method, "path", r.path)
	resp, err := c.longClient.Do(req)
	if err != nil {
		cancel()
		c.log.Warnw("harness_stream_network_error", "path", r.path, "error", err)
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		cancel()
		c.log.Warnw("harness_stream_bad_status", "path", r.path, "status", resp.StatusCode)
		return nil, statusError(r.method, r.path, resp.StatusCode, body)
	}

	return &EventStream{
		body:   resp.Body,
		reader: NewSSEReader(resp.Body),
		cancel: cancel,
	}, nil
}

// EventStream is an open text/event-stream response.
type EventStream struct {
	body   io.ReadCloser
	reader *SSEReader
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Recv returns the data of the next event. The stream ending is reported as
// io.EOF.
func (s *EventStream) Recv() ([]byte, error) {
	ev, err := s.reader.ReadEvent()
	if err != nil {
		return nil, err
	}
	return ev.Data, nil
}

// Close aborts the request and unblocks a pending Recv. Safe to call more
// than once.
func (s *EventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
