package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/domain"
	"github.com/cklxx/NanoBee/internal/infrastructure/harness"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
)

const taskCacheKey = "nanobee_tasks"

type TaskServiceConfig struct {
	Harness ports.TaskHarness
	// Store backs the local task cache. Nil disables it.
	Store  ports.KVStore
	Logger *logger.Logger
	Now    func() time.Time
}

// TaskService fronts the harness task API and remembers the tasks it has
// seen so the list survives a backend outage.
type TaskService struct {
	harness ports.TaskHarness
	store   ports.KVStore
	logger  *logger.Logger
	now     func() time.Time
	mu      sync.Mutex
}

var _ ports.TaskService = (*TaskService)(nil)

func NewTaskService(cfg TaskServiceConfig) *TaskService {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TaskService{harness: cfg.Harness, store: cfg.Store, logger: log, now: now}
}

// ==================== Task Management ====================

func (s *TaskService) CreateTask(ctx context.Context, input ports.CreateTaskInput) (*domain.Task, error) {
	goal := strings.TrimSpace(input.Goal)
	if goal == "" {
		return nil, fmt.Errorf("%w: goal is required", ErrTaskInvalidInput)
	}

	created, err := s.harness.CreateTask(ctx, domain.CreateTaskRequest{
		Goal:   goal,
		UserID: input.UserID,
		TaskID: strings.TrimSpace(input.TaskID),
	})
	if err != nil {
		s.logger.Errorw("task_create_failed", "error", err)
		return nil, s.mapErr(err, input.TaskID)
	}

	task, err := s.harness.GetTask(ctx, created.ID)
	if err != nil {
		s.logger.Warnw("task_create_refetch_failed", "task_id", created.ID, "error", err)
		task = &domain.Task{
			ID:          created.ID,
			Goal:        goal,
			Status:      domain.TaskStatusPending,
			WorkspaceID: created.WorkspaceID,
			CreatedAt:   s.now().UTC().Format(time.RFC3339),
		}
	}

	s.remember(ctx, *task)
	s.logger.Infow("task_create_ok", "task_id", task.ID, "workspace_id", task.WorkspaceID)
	return task, nil
}

// ListTasks returns the backend's list, or the cached list when the backend
// cannot be reached.
func (s *TaskService) ListTasks(ctx context.Context) ([]domain.Task, error) {
	tasks, err := s.harness.ListTasks(ctx)
	if err == nil {
		s.replaceCache(ctx, tasks)
		return tasks, nil
	}

	var se *harness.StatusError
	if errors.As(err, &se) && se.StatusCode < 500 {
		return nil, err
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: %v", ErrTaskUnavailable, err)
	}

	cached, cerr := s.cached(ctx)
	if cerr != nil || len(cached) == 0 {
		s.logger.Errorw("task_list_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTaskUnavailable, err)
	}
	s.logger.Warnw("task_list_from_cache", "count", len(cached), "error", err)
	return cached, nil
}

func (s *TaskService) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := s.harness.GetTask(ctx, taskID)
	if err != nil {
		return nil, s.mapErr(err, taskID)
	}
	s.remember(ctx, *task)
	return task, nil
}

// Detail gathers the task with its events, features and progress log. Only
// the task itself is required; the other parts degrade to warnings.
func (s *TaskService) Detail(ctx context.Context, taskID string) (*domain.TaskDetail, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	detail := &domain.TaskDetail{Task: *task, Events: []domain.TaskEvent{}, Features: []domain.Feature{}}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		warnings []string
	)
	warn := func(part string, err error) {
		s.logger.Warnw("task_detail_part_failed", "task_id", taskID, "part", part, "error", err)
		mu.Lock()
		warnings = append(warnings, fmt.Sprintf("%s: %v", part, err))
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		events, err := s.harness.ListEvents(ctx, taskID)
		if err != nil {
			warn("events", err)
			return
		}
		detail.Events = events
	}()
	go func() {
		defer wg.Done()
		features, err := s.harness.ListFeatures(ctx, taskID)
		if err != nil {
			warn("features", err)
			return
		}
		detail.Features = features
	}()
	go func() {
		defer wg.Done()
		progress, err := s.harness.GetProgress(ctx, taskID)
		if err != nil {
			warn("progress", err)
			return
		}
		detail.Progress = progress
	}()
	wg.Wait()

	detail.Warnings = warnings
	return detail, nil
}

// RunAction runs one harness step and summarises the outcome.
func (s *TaskService) RunAction(ctx context.Context, taskID string, action domain.TaskAction, maxSessions int) (*domain.ActionResult, error) {
	s.logger.Infow("task_action_start", "task_id", taskID, "action", action)
	start := s.now()

	res := &domain.ActionResult{Action: action}
	switch action {
	case domain.TaskActionInit:
		out, err := s.harness.RunInit(ctx, taskID)
		if err != nil {
			return nil, s.actionFailed(taskID, action, err)
		}
		res.Message = fmt.Sprintf("Initializer finished (%d files written)", len(out.Files))
		res.Result = out
	case domain.TaskActionCoding:
		out, err := s.harness.RunCodingAll(ctx, taskID, maxSessions)
		if err != nil {
			return nil, s.actionFailed(taskID, action, err)
		}
		res.Message = fmt.Sprintf("Coding sessions: %d, remaining failing features: %d", len(out.Sessions), len(out.Remaining))
		res.Result = out
	case domain.TaskActionEval:
		out, err := s.harness.Evaluate(ctx, taskID)
		if err != nil {
			return nil, s.actionFailed(taskID, action, err)
		}
		res.Message = fmt.Sprintf("Evaluation completed (score: %g)", out.Score)
		res.Result = out
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrTaskInvalidInput, action)
	}

	// Refresh the cached status; the step already succeeded.
	if task, err := s.harness.GetTask(ctx, taskID); err == nil {
		s.remember(ctx, *task)
	}

	s.logger.Infow("task_action_ok", "task_id", taskID, "action", action, "duration_ms", s.now().Sub(start).Milliseconds())
	return res, nil
}

func (s *TaskService) Progress(ctx context.Context, taskID string) (string, error) {
	text, err := s.harness.GetProgress(ctx, taskID)
	if err != nil {
		return "", s.mapErr(err, taskID)
	}
	return text, nil
}

func (s *TaskService) actionFailed(taskID string, action domain.TaskAction, err error) error {
	s.logger.Errorw("task_action_failed", "task_id", taskID, "action", action, "error", err)
	return s.mapErr(err, taskID)
}

func (s *TaskService) mapErr(err error, taskID string) error {
	if harness.IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	var se *harness.StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
		return fmt.Errorf("%w: %s", ErrTaskInvalidInput, se.Detail)
	}
	return err
}

// ==================== Local Cache ====================

func (s *TaskService) cached(ctx context.Context) ([]domain.Task, error) {
	raw, found, err := s.store.Get(ctx, taskCacheKey)
	if err != nil || !found {
		return nil, err
	}
	var tasks []domain.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		s.logger.Warnw("task_cache_corrupt", "error", err)
		return nil, fmt.Errorf("%w: task cache", ErrKVCorrupt)
	}
	return tasks, nil
}

func (s *TaskService) writeCache(ctx context.Context, tasks []domain.Task) {
	payload, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, taskCacheKey, string(payload)); err != nil {
		s.logger.Warnw("task_cache_write_failed", "error", err)
	}
}

func (s *TaskService) replaceCache(ctx context.Context, tasks []domain.Task) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCache(ctx, tasks)
}

// remember updates the cached copy of task in place, or puts a new task at
// the front.
func (s *TaskService) remember(ctx context.Context, task domain.Task) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks, _ := s.cached(ctx)
	for i := range tasks {
		if tasks[i].ID == task.ID {
			tasks[i] = task
			s.writeCache(ctx, tasks)
			return
		}
	}
	s.writeCache(ctx, append([]domain.Task{task}, tasks...))
}
