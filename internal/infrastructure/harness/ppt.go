package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cklxx/NanoBee/internal/domain"
	"github.com/tidwall/gjson"
)

// ErrStreamIncomplete is returned when the outline stream ends before a
// final event.
var ErrStreamIncomplete = errors.New("harness: outline stream ended before completion")

func (c *Client) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
	var out domain.SearchResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/ppt/search", body: req, long: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Outline(ctx context.Context, req domain.OutlineRequest) (*domain.OutlineResponse, error) {
	var out domain.OutlineResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/ppt/outline", body: req, long: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OutlineStream runs the progressive outline generation and hands every
// decoded event to fn. It returns after the first final event (complete,
// partial_complete or error), when fn returns an error, or when ctx ends.
// Frames that are not JSON objects with a known type are skipped.
func (c *Client) OutlineStream(ctx context.Context, req domain.OutlineRequest, fn func(domain.OutlineEvent) error) error {
	r := request{method: http.MethodPost, path: "/api/ppt/outline-stream", body: req, long: true}
	stream, err := c.openEventStream(ctx, r)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		data, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrStreamIncomplete
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("outline stream: %w", err)
		}

		ev, ok := c.decodeOutlineEvent(data)
		if !ok {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Final() {
			return nil
		}
	}
}

func (c *Client) decodeOutlineEvent(data []byte) (domain.OutlineEvent, bool) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		c.log.Warnw("outline_event_malformed", "bytes", len(data))
		return domain.OutlineEvent{}, false
	}
	switch t := domain.OutlineEventType(gjson.GetBytes(data, "type").String()); t {
	case domain.OutlineEventProgress, domain.OutlineEventPartial, domain.OutlineEventPartialComplete,
		domain.OutlineEventComplete, domain.OutlineEventError:
	default:
		c.log.Debugw("outline_event_unknown", "type", t)
		return domain.OutlineEvent{}, false
	}

	var ev domain.OutlineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warnw("outline_event_malformed", "bytes", len(data), "error", err)
		return domain.OutlineEvent{}, false
	}
	return ev, true
}

func (c *Client) Slides(ctx context.Context, req domain.SlidesRequest) (*domain.SlidesResponse, error) {
	var out domain.SlidesResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/ppt/slides", body: req, long: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Images(ctx context.Context, req domain.ImagesRequest) (*domain.ImagesResponse, error) {
	var out domain.ImagesResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/ppt/images", body: req, long: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Prompts reads the prompt notebook recorded for a topic, optionally
// narrowed to one stage and session.
func (c *Client) Prompts(ctx context.Context, topic, stage, sessionID string) (*domain.PromptNotebook, error) {
	q := url.Values{"topic": {topic}}
	if stage != "" {
		q.Set("stage", stage)
	}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	var out domain.PromptNotebook
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/ppt/prompts", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
