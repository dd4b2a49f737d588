package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

// JobRepository persists and reads pipeline job state.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error
	SaveOutcome(ctx context.Context, id string, outcome domain.JobOutcome) error
}

// ObjectStorage stores source and output documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// JobQueue publishes/consumes job submission events.
type JobQueue interface {
	PublishJobSubmitted(ctx context.Context, jobID string) error
	SubscribeJobSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}

// ProgressPublisher fans progress out to observers. Publish must not block.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, event domain.JobProgress)
}

// ProvenanceReporter renders a human-readable provenance record for a job.
type ProvenanceReporter interface {
	Render(job *domain.Job) ([]byte, error)
}

// PipelineObserver receives run-level telemetry.
type PipelineObserver interface {
	StartRun(pipeline domain.JobKind)
	ObservePage(pipeline domain.JobKind, stage domain.Stage)
	ObserveWarning(pipeline domain.JobKind)
	FinishRun(pipeline domain.JobKind, pages int, err error)
}
