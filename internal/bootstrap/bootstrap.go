package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/pdf-recompose/internal/config"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
	"github.com/kirillkom/pdf-recompose/internal/core/usecase"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/queue/nats"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue     ports.JobQueue
	Repo      ports.JobRepository
	JobsUC    *usecase.JobUseCase
	ProcessUC ports.JobProcessor

	Provenance ports.ProvenanceService
	Reporter   ports.ProvenanceReporter

	closeFn func()
}

// New wires the service. observer receives pipeline telemetry and may be nil.
func New(ctx context.Context, cfg config.Config, observer ports.PipelineObserver) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewJobRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := NewExecutor(cfg)
	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, cfg.NATSProgressSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	pipelines := NewPipelines(cfg, executor, observer)

	jobsUC := usecase.NewJobUseCase(repo, storage, queue, pipelines.Inspector, pipelines.Provenance, pipelines.Recognizer, usecase.JobSettings{
		DefaultDPI:      cfg.DefaultDPI,
		MaxDPI:          cfg.MaxDPI,
		DefaultLanguage: cfg.OCRDefaultLanguage,
	})
	processUC := usecase.NewProcessJobUseCase(repo, storage, pipelines.OCR, pipelines.Redaction, pipelines.Provenance, queue)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		JobsUC:    jobsUC,
		ProcessUC: processUC,

		Provenance: pipelines.Provenance,
		Reporter:   xlsx.New(),

		closeFn: func() {
			if err := pipelines.Close(); err != nil {
				slog.Warn("ocr_session_close_failed", "error", err)
			}
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
