package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

// OCRRunner produces a searchable PDF from a scanned one.
type OCRRunner interface {
	Run(ctx context.Context, req domain.OCRRequest, onProgress domain.ProgressFunc) (*domain.PipelineResult, error)
}

// RedactionRunner produces a flattened redacted PDF.
type RedactionRunner interface {
	Run(ctx context.Context, req domain.RedactionRequest, onProgress domain.ProgressFunc) ([]byte, error)
}

// Upload is a caller-supplied source document.
type Upload struct {
	Filename string
	Body     io.Reader
}

// JobSubmitter is the inbound contract for queueing pipeline runs.
type JobSubmitter interface {
	SubmitOCR(ctx context.Context, upload Upload, dpi float64, language string) (*domain.Job, error)
	SubmitRedaction(ctx context.Context, upload Upload, dpi float64, spec domain.RedactionSpec) (*domain.Job, error)
}

// JobReader is the inbound read model for job state and artifacts.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	OpenOutput(ctx context.Context, id string) (io.ReadCloser, *domain.Job, error)
}

// JobProcessor is the inbound contract for asynchronous job processing.
type JobProcessor interface {
	ProcessByID(ctx context.Context, jobID string) error
}

// ProvenanceService hashes sources and builds redaction specs.
type ProvenanceService interface {
	Hash(source []byte) (string, error)
	BuildSpec(marks []domain.RedactionMark, pdfHash string) domain.RedactionSpec
}
