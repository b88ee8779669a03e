package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cklxx/NanoBee/internal/config"
	"github.com/cklxx/NanoBee/internal/core/ports"
	"github.com/cklxx/NanoBee/internal/core/services"
	"github.com/cklxx/NanoBee/internal/infrastructure/db"
	"github.com/cklxx/NanoBee/internal/infrastructure/harness"
	"github.com/cklxx/NanoBee/internal/infrastructure/logger"
	transporthttp "github.com/cklxx/NanoBee/internal/transport/http"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func main() {
	configPath := "config/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "../config/config.yaml"
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = ""
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	database, err := db.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	log.Info("database connection established")

	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	log.Info("database migrations completed")

	store := db.NewKVRepository(database, log)

	client := harness.NewClient(harness.ClientConfig{
		BaseURL: cfg.Harness.BaseURL,
		Timeout: cfg.Harness.Timeout,
		Logger:  log.Named("harness"),
	})

	var taskStore ports.KVStore
	if cfg.Features.LocalTaskCache {
		taskStore = store
	}
	taskService := services.NewTaskService(services.TaskServiceConfig{
		Harness: client,
		Store:   taskStore,
		Logger:  log,
	})

	hub := services.NewProgressHub(services.ProgressHubConfig{
		Transport:    client,
		Logger:       log.Named("progress"),
		PollInterval: cfg.Harness.PollInterval,
		RetryDelay:   cfg.Harness.RetryDelay,
	})

	projects, err := services.NewProjectService(services.ProjectServiceConfig{
		Store:         store,
		Logger:        log,
		AutosaveDelay: cfg.PPT.AutosaveDelay,
		HistoryLimit:  cfg.PPT.HistoryLimit,
		SecretKey:     cfg.PPT.SecretKey,
	})
	if err != nil {
		log.Fatalf("failed to initialize project service: %v", err)
	}

	pptService := services.NewPPTService(services.PPTServiceConfig{
		Harness:  client,
		Projects: projects,
		Logger:   log,
	})

	app := transporthttp.NewApp(transporthttp.RouterConfig{
		Logger:   log,
		Config:   cfg,
		Tasks:    taskService,
		Hub:      hub,
		Projects: projects,
		PPT:      pptService,
	})

	addr := cfg.Server.Address()
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatalf("server failed to start: %v", err)
		}
	}()
	log.Infow("server_started", "addr", addr, "harness", client.BaseURL())

	gracefulShutdown(app, hub, projects, database, log)
}

func gracefulShutdown(app *fiber.App, hub *services.ProgressHub, projects *services.ProjectService, database *gorm.DB, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Progress sockets stay open until their subscriptions end.
	if err := hub.Close(); err != nil {
		log.Errorf("failed to stop progress watches: %v", err)
	}

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("server forced to shutdown: %v", err)
	}

	if err := projects.Close(ctx); err != nil {
		log.Errorf("failed to flush ppt projects: %v", err)
	}

	if err := db.Close(database); err != nil {
		log.Errorf("failed to close database connection: %v", err)
	}

	log.Info("server exited gracefully")
}
