package ports

import (
	"context"

	"github.com/cklxx/NanoBee/internal/domain"
)

// TaskHarness is the task half of the harness backend.
type TaskHarness interface {
	CreateTask(ctx context.Context, req domain.CreateTaskRequest) (*domain.CreateTaskResult, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	RunInit(ctx context.Context, taskID string) (*domain.InitResult, error)
	RunCodingAll(ctx context.Context, taskID string, maxSessions int) (*domain.CodingRunResult, error)
	Evaluate(ctx context.Context, taskID string) (*domain.EvalResult, error)
	ListEvents(ctx context.Context, taskID string) ([]domain.TaskEvent, error)
	ListFeatures(ctx context.Context, taskID string) ([]domain.Feature, error)
	GetProgress(ctx context.Context, taskID string) (string, error)
}

// PPTHarness is the slide-deck workflow half of the harness backend.
type PPTHarness interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)
	Outline(ctx context.Context, req domain.OutlineRequest) (*domain.OutlineResponse, error)
	OutlineStream(ctx context.Context, req domain.OutlineRequest, fn func(domain.OutlineEvent) error) error
	Slides(ctx context.Context, req domain.SlidesRequest) (*domain.SlidesResponse, error)
	Images(ctx context.Context, req domain.ImagesRequest) (*domain.ImagesResponse, error)
	Prompts(ctx context.Context, topic, stage, sessionID string) (*domain.PromptNotebook, error)
}

type TaskService interface {
	CreateTask(ctx context.Context, input CreateTaskInput) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)
	Detail(ctx context.Context, taskID string) (*domain.TaskDetail, error)
	RunAction(ctx context.Context, taskID string, action domain.TaskAction, maxSessions int) (*domain.ActionResult, error)
	Progress(ctx context.Context, taskID string) (string, error)
}

type CreateTaskInput struct {
	Goal   string
	UserID string
	TaskID string
}

// ProgressHub shares one progress client per task between subscribers.
type ProgressHub interface {
	Subscribe(ctx context.Context, taskID string) (updates <-chan string, cancel func(), err error)
	Snapshot(taskID string) (progress string, watched bool)
}

type ProjectService interface {
	SessionID(ctx context.Context) (string, error)
	ResetSession(ctx context.Context) (string, error)
	Create(ctx context.Context, input CreateProjectInput) (*domain.Project, error)
	Load(ctx context.Context, id string) (*domain.Project, error)
	Save(ctx context.Context, project *domain.Project) error
	ScheduleSave(project *domain.Project)
	Delete(ctx context.Context, id string) error
	History(ctx context.Context) ([]domain.ProjectSummary, error)
	Flush(ctx context.Context) error
}

type CreateProjectInput struct {
	Topic       string
	StylePrompt string
	Watermark   bool
	TextModel   *domain.ModelConfig
	ImageModel  *domain.ModelConfig
}

type PPTService interface {
	RunStage(ctx context.Context, projectID string, stage domain.PPTStage, opts StageOptions) (*domain.Project, error)
	Prompts(ctx context.Context, projectID, stage string) (*domain.PromptNotebook, error)
}

// StageOptions tunes a single stage run. OnEvent receives outline stream
// frames as they arrive.
type StageOptions struct {
	Limit       int
	SourceHint  string
	StylePrompt string
	OnEvent     func(domain.OutlineEvent)
}
