package harness

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cklxx/NanoBee/internal/domain"
)

func (c *Client) CreateTask(ctx context.Context, req domain.CreateTaskRequest) (*domain.CreateTaskResult, error) {
	var out domain.CreateTaskResult
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/tasks", body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var out []domain.Task
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/tasks"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	var out domain.Task
	if err := c.do(ctx, request{method: http.MethodGet, path: taskPath(taskID)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunInit runs the initializer session. It blocks until the harness is done.
func (c *Client) RunInit(ctx context.Context, taskID string) (*domain.InitResult, error) {
	var out domain.InitResult
	r := request{method: http.MethodPost, path: taskPath(taskID, "run", "init"), long: true}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunCodingAll runs coding sessions until every feature passes, a session
// fails its tests, or maxSessions is reached. maxSessions <= 0 leaves the
// backend default.
func (c *Client) RunCodingAll(ctx context.Context, taskID string, maxSessions int) (*domain.CodingRunResult, error) {
	r := request{method: http.MethodPost, path: taskPath(taskID, "run", "coding", "all"), long: true}
	if maxSessions > 0 {
		r.query = url.Values{"max_sessions": {strconv.Itoa(maxSessions)}}
	}
	var out domain.CodingRunResult
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Evaluate(ctx context.Context, taskID string) (*domain.EvalResult, error) {
	var out domain.EvalResult
	r := request{method: http.MethodPost, path: taskPath(taskID, "evaluate"), long: true}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListEvents(ctx context.Context, taskID string) ([]domain.TaskEvent, error) {
	var out struct {
		Events []domain.TaskEvent `json:"events"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: taskPath(taskID, "events")}, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) ListFeatures(ctx context.Context, taskID string) ([]domain.Feature, error) {
	var out struct {
		Features []domain.Feature `json:"features"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: taskPath(taskID, "features")}, &out); err != nil {
		return nil, err
	}
	return out.Features, nil
}
