package dto

import (
	"strings"

	"github.com/cklxx/NanoBee/internal/domain"
)

type CreateTaskRequest struct {
	Goal   string `json:"goal" validate:"required"`
	UserID string `json:"user_id,omitempty"`
	TaskID string `json:"task_id,omitempty"`
}

func (r *CreateTaskRequest) Validate() []string {
	var errors []string
	if strings.TrimSpace(r.Goal) == "" {
		errors = append(errors, "goal is required")
	}
	if strings.ContainsAny(r.TaskID, "/?#") {
		errors = append(errors, "task_id must not contain '/', '?' or '#'")
	}
	return errors
}

type TaskDetailResponse struct {
	domain.Task
	Events   []domain.TaskEvent `json:"events"`
	Features []domain.Feature   `json:"features"`
	Progress string             `json:"progress"`
	Passing  int                `json:"passing"`
	Warnings []string           `json:"warnings,omitempty"`
}

func TaskDetailToResponse(d *domain.TaskDetail) TaskDetailResponse {
	passing := 0
	for _, f := range d.Features {
		if f.Passing() {
			passing++
		}
	}
	events := d.Events
	if events == nil {
		events = []domain.TaskEvent{}
	}
	features := d.Features
	if features == nil {
		features = []domain.Feature{}
	}
	return TaskDetailResponse{
		Task:     d.Task,
		Events:   events,
		Features: features,
		Progress: d.Progress,
		Passing:  passing,
		Warnings: d.Warnings,
	}
}

type ProgressResponse struct {
	TaskID   string `json:"task_id"`
	Progress string `json:"progress"`
	// Live is true when the value came from a running progress watch.
	Live bool `json:"live"`
}
