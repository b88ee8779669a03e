package handlers

import (
	"strconv"

	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/domain"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/cklxx/NanoBee/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

type TaskHandler struct {
	service ports.TaskService
	hub     ports.ProgressHub
	logger  *logger.Logger
}

func NewTaskHandler(service ports.TaskService, hub ports.ProgressHub, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{service: service, hub: hub, logger: logger}
}

func (h *TaskHandler) CreateTask(c *fiber.Ctx) error {
	var req dto.CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("task_create_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		h.logger.Warnw("task_create_validation_failed", "details", errors)
		return badRequest(c, "validation failed", errors...)
	}

	task, err := h.service.CreateTask(c.UserContext(), ports.CreateTaskInput{
		Goal:   req.Goal,
		UserID: req.UserID,
		TaskID: req.TaskID,
	})
	if err != nil {
		h.logger.Errorw("task_create_failed", "error", err)
		return writeError(c, err)
	}

	h.logger.Infow("task_create_success", "task_id", task.ID)
	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *TaskHandler) GetTasks(c *fiber.Ctx) error {
	tasks, err := h.service.ListTasks(c.UserContext())
	if err != nil {
		h.logger.Errorw("tasks_list_failed", "error", err)
		return writeError(c, err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return c.JSON(tasks)
}

// GetTask returns the task with its events, features and progress. Parts the
// harness could not deliver are listed under warnings.
func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	id := c.Params("id")
	detail, err := h.service.Detail(c.UserContext(), id)
	if err != nil {
		h.logger.Warnw("task_get_failed", "task_id", id, "error", err)
		return writeError(c, err)
	}
	return c.JSON(dto.TaskDetailToResponse(detail))
}

func (h *TaskHandler) RunInit(c *fiber.Ctx) error {
	return h.runAction(c, domain.TaskActionInit, 0)
}

func (h *TaskHandler) RunCodingAll(c *fiber.Ctx) error {
	maxSessions := 0
	if raw := c.Query("max_sessions"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return badRequest(c, "max_sessions must be a positive integer")
		}
		maxSessions = n
	}
	return h.runAction(c, domain.TaskActionCoding, maxSessions)
}

func (h *TaskHandler) Evaluate(c *fiber.Ctx) error {
	return h.runAction(c, domain.TaskActionEval, 0)
}

func (h *TaskHandler) runAction(c *fiber.Ctx, action domain.TaskAction, maxSessions int) error {
	id := c.Params("id")
	h.logger.Infow("task_action_request", "task_id", id, "action", action)
	res, err := h.service.RunAction(c.UserContext(), id, action, maxSessions)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// GetProgress serves the watched value when a progress watch is running and
// asks the harness otherwise.
func (h *TaskHandler) GetProgress(c *fiber.Ctx) error {
	id := c.Params("id")
	if text, watched := h.hub.Snapshot(id); watched {
		return c.JSON(dto.ProgressResponse{TaskID: id, Progress: text, Live: true})
	}
	text, err := h.service.Progress(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ProgressResponse{TaskID: id, Progress: text})
}
