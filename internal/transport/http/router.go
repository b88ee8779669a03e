package http

import (
	"strings"

	"github.com/cklxx/NanoBee/internal/config"
	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	"github.com/cklxx/NanoBee/internal/transport/http/handlers"
	httpmw "github.com/cklxx/NanoBee/internal/transport/http/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type RouterConfig struct {
	Logger   *logger.Logger
	Config   *config.Config
	Tasks    ports.TaskService
	Hub      ports.ProgressHub
	Projects ports.ProjectService
	PPT      ports.PPTService
}

// NewApp builds the console server with its middleware stack and routes.
func NewApp(cfg RouterConfig) *fiber.App {
	srv := cfg.Config.Server
	app := fiber.New(fiber.Config{
		ReadTimeout:           srv.ReadTimeout,
		WriteTimeout:          srv.WriteTimeout,
		IdleTimeout:           srv.IdleTimeout,
		ErrorHandler:          ErrorHandler(cfg.Logger),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "http://localhost:3000"
	if len(cfg.Config.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Config.Auth.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Token, " + cfg.Config.Features.RequestIDHeader,
		AllowMethods: "GET, POST, HEAD, DELETE",
	}))

	app.Use(httpmw.RequestID(cfg.Config.Features.RequestIDHeader))
	if cfg.Config.Features.EnableRequestLogging {
		app.Use(httpmw.AccessLog(cfg.Logger))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupRoutes(app, cfg)
	return app
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	taskHandler := handlers.NewTaskHandler(cfg.Tasks, cfg.Hub, cfg.Logger)
	progressHandler := handlers.NewProgressHandler(cfg.Hub, cfg.Logger)
	pptHandler := handlers.NewPPTHandler(cfg.Projects, cfg.PPT, cfg.Logger)

	// Live progress
	app.Use("/ws", httpmw.AdminAuth(cfg.Config), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/tasks/:id/progress", websocket.New(progressHandler.Handle))

	api := app.Group("/api/v1", httpmw.AdminAuth(cfg.Config))

	// Task routes
	tasks := api.Group("/tasks")
	tasks.Post("/", taskHandler.CreateTask)
	tasks.Get("/", taskHandler.GetTasks)
	tasks.Get("/:id", taskHandler.GetTask)
	tasks.Get("/:id/progress", taskHandler.GetProgress)
	tasks.Post("/:id/run/init", taskHandler.RunInit)
	tasks.Post("/:id/run/coding/all", taskHandler.RunCodingAll)
	tasks.Post("/:id/evaluate", taskHandler.Evaluate)

	// PPT routes
	ppt := api.Group("/ppt")
	ppt.Get("/session", pptHandler.GetSession)
	ppt.Post("/session/reset", pptHandler.ResetSession)
	ppt.Get("/projects", pptHandler.GetProjects)
	ppt.Post("/projects", pptHandler.CreateProject)
	ppt.Get("/projects/:id", pptHandler.GetProject)
	ppt.Delete("/projects/:id", pptHandler.DeleteProject)
	ppt.Get("/projects/:id/prompts", pptHandler.GetPrompts)
	ppt.Post("/projects/:id/:stage", pptHandler.RunStage)
}

// ErrorHandler logs and renders errors that escaped a handler.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		// Expected client-side failures stay at warn.
		if code < fiber.StatusInternalServerError {
			log.Warnw("request_failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", httpmw.GetRequestID(c),
			)
		} else {
			log.Errorw("request_error",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", httpmw.GetRequestID(c),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
