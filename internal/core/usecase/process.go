package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

// terminalStatusTimeout bounds the failure write, which must outlive a
// cancelled or expired job context.
const terminalStatusTimeout = 5 * time.Second

type ProcessJobUseCase struct {
	repo       ports.JobRepository
	storage    ports.ObjectStorage
	ocr        ports.OCRRunner
	redaction  ports.RedactionRunner
	provenance ports.ProvenanceService
	progress   ports.ProgressPublisher
}

func NewProcessJobUseCase(
	repo ports.JobRepository,
	storage ports.ObjectStorage,
	ocr ports.OCRRunner,
	redaction ports.RedactionRunner,
	provenance ports.ProvenanceService,
	progress ports.ProgressPublisher,
) *ProcessJobUseCase {
	return &ProcessJobUseCase{
		repo:       repo,
		storage:    storage,
		ocr:        ocr,
		redaction:  redaction,
		provenance: provenance,
		progress:   progress,
	}
}

func (uc *ProcessJobUseCase) ProcessByID(ctx context.Context, jobID string) error {
	job, err := uc.repo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch job by id: %w", err)
	}
	if job.Status == domain.JobStatusSucceeded {
		slog.Info("job_already_processed", "job_id", jobID)
		return nil
	}

	if err := uc.markStatus(ctx, jobID, domain.JobStatusRunning, ""); err != nil {
		return fmt.Errorf("set status=running: %w", err)
	}

	outcome, err := uc.run(ctx, job)
	if err != nil {
		if failErr := uc.markFailed(ctx, jobID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveOutcome(ctx, jobID, outcome); err != nil {
		err = fmt.Errorf("save job outcome: %w", err)
		if failErr := uc.markFailed(ctx, jobID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, jobID, domain.JobStatusSucceeded, ""); err != nil {
		return fmt.Errorf("set status=succeeded: %w", err)
	}
	return nil
}

func (uc *ProcessJobUseCase) run(ctx context.Context, job *domain.Job) (domain.JobOutcome, error) {
	source, err := uc.loadSource(ctx, job)
	if err != nil {
		return domain.JobOutcome{}, err
	}

	onProgress := uc.progressSink(ctx, job.ID)
	var (
		pdf     []byte
		outcome domain.JobOutcome
	)
	switch job.Kind {
	case domain.JobKindOCR:
		result, err := uc.ocr.Run(ctx, domain.OCRRequest{Source: source, DPI: job.DPI, Language: job.Language}, onProgress)
		if err != nil {
			return domain.JobOutcome{}, fmt.Errorf("run ocr pipeline: %w", err)
		}
		for _, warning := range result.Warnings {
			slog.Warn("job_page_warning", "job_id", job.ID, "pipeline", string(job.Kind), "warning", warning)
		}
		pdf = result.PDF
		outcome.TextPreview = result.TextPreview
		outcome.Warnings = result.Warnings
	case domain.JobKindRedaction:
		if job.Spec == nil {
			return domain.JobOutcome{}, domain.WrapError(domain.ErrInvalidInput, "run redaction pipeline", errors.New("job has no redaction spec"))
		}
		pdf, err = uc.redaction.Run(ctx, domain.RedactionRequest{Source: source, DPI: job.DPI, Spec: *job.Spec}, onProgress)
		if err != nil {
			return domain.JobOutcome{}, fmt.Errorf("run redaction pipeline: %w", err)
		}
		outcome.Warnings = []string{}
	default:
		return domain.JobOutcome{}, domain.WrapError(domain.ErrInvalidInput, "run job", fmt.Errorf("unknown job kind %q", job.Kind))
	}

	outcome.OutputPath = fmt.Sprintf("outputs/%s.pdf", job.ID)
	if err := uc.storage.Save(ctx, outcome.OutputPath, bytes.NewReader(pdf)); err != nil {
		return domain.JobOutcome{}, fmt.Errorf("save output to object storage: %w", err)
	}
	return outcome, nil
}

// loadSource reads the stored bytes and checks they still hash to what was
// recorded at submission.
func (uc *ProcessJobUseCase) loadSource(ctx context.Context, job *domain.Job) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, job.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("open source from storage: %w", err)
	}
	defer rc.Close()

	source, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read source from storage: %w", err)
	}
	hash, err := uc.provenance.Hash(source)
	if err != nil {
		return nil, fmt.Errorf("hash stored source: %w", err)
	}
	expected := job.SourceHash
	if job.Spec != nil {
		expected = job.Spec.PDFHash
	}
	if !strings.EqualFold(hash, expected) {
		return nil, domain.WrapError(
			domain.ErrHashMismatch,
			"load source",
			fmt.Errorf("stored source hashes to %s, expected %s", hash, expected),
		)
	}
	return source, nil
}

func (uc *ProcessJobUseCase) progressSink(ctx context.Context, jobID string) domain.ProgressFunc {
	if uc.progress == nil {
		return nil
	}
	return func(p domain.Progress) {
		uc.progress.PublishProgress(ctx, domain.JobProgress{JobID: jobID, Progress: p})
	}
}

func (uc *ProcessJobUseCase) markStatus(ctx context.Context, jobID string, status domain.JobStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, jobID, status, errMessage)
}

func (uc *ProcessJobUseCase) markFailed(ctx context.Context, jobID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalStatusTimeout)
	defer cancel()
	return uc.markStatus(writeCtx, jobID, domain.JobStatusFailed, processErr.Error())
}
