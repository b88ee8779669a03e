package domain

type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusInitialized TaskStatus = "initialized"
	TaskStatusRunning     TaskStatus = "running"
	TaskStatusSucceeded   TaskStatus = "succeeded"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
)

// Task mirrors the harness task summary. Timestamps stay as the backend
// formats them; the harness emits naive ISO datetimes.
type Task struct {
	ID          string     `json:"id"`
	Goal        string     `json:"goal"`
	Status      TaskStatus `json:"status"`
	WorkspaceID string     `json:"workspace_id"`
	CreatedAt   string     `json:"created_at,omitempty"`
	UpdatedAt   string     `json:"updated_at,omitempty"`
}

type CreateTaskRequest struct {
	Goal   string `json:"goal"`
	UserID string `json:"user_id,omitempty"`
	TaskID string `json:"task_id,omitempty"`
}

type CreateTaskResult struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
}

type InitResult struct {
	Status string   `json:"status"`
	Files  []string `json:"files"`
}

type CodingSession struct {
	FeatureID     string `json:"feature_id"`
	TestsOK       bool   `json:"tests_ok"`
	Output        string `json:"output"`
	FeatureStatus string `json:"feature_status,omitempty"`
}

type CodingRunResult struct {
	Status    string          `json:"status"`
	Sessions  []CodingSession `json:"sessions"`
	Remaining []string        `json:"remaining"`
}

type EvalResult struct {
	Score   float64 `json:"score"`
	Details string  `json:"details"`
}

type Feature struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
}

// Passing reports whether the harness marked the feature as done.
func (f Feature) Passing() bool {
	return f.Status == "passing"
}

// TaskDetail is the aggregated view of one task.
type TaskDetail struct {
	Task     Task        `json:"task"`
	Events   []TaskEvent `json:"events"`
	Features []Feature   `json:"features"`
	Progress string      `json:"progress"`
	Warnings []string    `json:"warnings,omitempty"`
}
