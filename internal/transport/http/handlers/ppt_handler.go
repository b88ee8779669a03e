package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/domain"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/cklxx/NanoBee/internal/transport/http/dto"
	"github.com/gofiber/fiber/v2"
)

type PPTHandler struct {
	projects ports.ProjectService
	ppt      ports.PPTService
	logger   *logger.Logger
}

func NewPPTHandler(projects ports.ProjectService, ppt ports.PPTService, logger *logger.Logger) *PPTHandler {
	return &PPTHandler{projects: projects, ppt: ppt, logger: logger}
}

// ==================== Session ====================

func (h *PPTHandler) GetSession(c *fiber.Ctx) error {
	id, err := h.projects.SessionID(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SessionResponse{SessionID: id})
}

func (h *PPTHandler) ResetSession(c *fiber.Ctx) error {
	id, err := h.projects.ResetSession(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	h.logger.Infow("ppt_session_reset", "session_id", id)
	return c.JSON(dto.SessionResponse{SessionID: id})
}

// ==================== Projects ====================

func (h *PPTHandler) GetProjects(c *fiber.Ctx) error {
	history, err := h.projects.History(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	if history == nil {
		history = []domain.ProjectSummary{}
	}
	return c.JSON(history)
}

func (h *PPTHandler) CreateProject(c *fiber.Ctx) error {
	var req dto.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("ppt_project_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body")
	}
	if errors := req.Validate(); len(errors) > 0 {
		return badRequest(c, "validation failed", errors...)
	}

	p, err := h.projects.Create(c.UserContext(), ports.CreateProjectInput{
		Topic:       req.Topic,
		StylePrompt: req.StylePrompt,
		Watermark:   req.GetWatermark(),
		TextModel:   req.TextModel,
		ImageModel:  req.ImageModel,
	})
	if err != nil {
		h.logger.Errorw("ppt_project_create_failed", "error", err)
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.ProjectToResponse(p))
}

func (h *PPTHandler) GetProject(c *fiber.Ctx) error {
	p, err := h.projects.Load(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ProjectToResponse(p))
}

func (h *PPTHandler) DeleteProject(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.projects.Delete(c.UserContext(), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.SuccessResponse{Message: "project deleted"})
}

func (h *PPTHandler) GetPrompts(c *fiber.Ctx) error {
	nb, err := h.ppt.Prompts(c.UserContext(), c.Params("id"), c.Query("stage"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(nb)
}

// ==================== Stages ====================

func (h *PPTHandler) RunStage(c *fiber.Ctx) error {
	stage, err := domain.ParseStage(c.Params("stage"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req dto.StageRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	if errors := req.Validate(); len(errors) > 0 {
		return badRequest(c, "validation failed", errors...)
	}
	opts := ports.StageOptions{Limit: req.Limit, SourceHint: req.SourceHint, StylePrompt: req.StylePrompt}

	if stage == domain.StageOutlineStream {
		return h.streamOutline(c, c.Params("id"), opts)
	}

	p, err := h.ppt.RunStage(c.UserContext(), c.Params("id"), stage, opts)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ProjectToResponse(p))
}

type stageDoneFrame struct {
	Type    string               `json:"type"`
	Project *dto.ProjectResponse `json:"project,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// streamOutline relays outline frames to the client as server-sent events
// and ends with a "done" frame carrying either the saved project or the
// error.
func (h *PPTHandler) streamOutline(c *fiber.Ctx, projectID string, opts ports.StageOptions) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	// The body writer runs after the handler returns; the request ctx is gone
	// by then.
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		broken := false
		send := func(v interface{}) {
			if broken {
				return
			}
			if err := writeSSE(w, v); err != nil {
				broken = true
				cancel()
			}
		}

		opts.OnEvent = func(ev domain.OutlineEvent) { send(ev) }
		p, err := h.ppt.RunStage(ctx, projectID, domain.StageOutlineStream, opts)
		if err != nil {
			h.logger.Warnw("ppt_outline_stream_failed", "project_id", projectID, "error", err)
			send(stageDoneFrame{Type: "done", Error: err.Error()})
			return
		}
		resp := dto.ProjectToResponse(p)
		send(stageDoneFrame{Type: "done", Project: &resp})
	})
	return nil
}

func writeSSE(w *bufio.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}
