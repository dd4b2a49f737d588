package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

const (
	DefaultDPI = 300
	MaxDPI     = 600
)

// LanguageResolver validates OCR language requests against bundled data.
type LanguageResolver interface {
	NormalizeLanguages(language string) ([]string, error)
}

type JobSettings struct {
	DefaultDPI      float64
	MaxDPI          float64
	DefaultLanguage string
}

type JobUseCase struct {
	repo       ports.JobRepository
	storage    ports.ObjectStorage
	queue      ports.JobQueue
	inspector  ports.SourceInspector
	provenance ports.ProvenanceService
	languages  LanguageResolver
	settings   JobSettings
	now        func() time.Time
}

func NewJobUseCase(
	repo ports.JobRepository,
	storage ports.ObjectStorage,
	queue ports.JobQueue,
	inspector ports.SourceInspector,
	provenance ports.ProvenanceService,
	languages LanguageResolver,
	settings JobSettings,
) *JobUseCase {
	if settings.DefaultDPI <= 0 {
		settings.DefaultDPI = DefaultDPI
	}
	if settings.MaxDPI <= 0 {
		settings.MaxDPI = MaxDPI
	}
	if settings.DefaultLanguage == "" {
		settings.DefaultLanguage = "eng"
	}
	return &JobUseCase{
		repo:       repo,
		storage:    storage,
		queue:      queue,
		inspector:  inspector,
		provenance: provenance,
		languages:  languages,
		settings:   settings,
		now:        time.Now,
	}
}

// stagedSource is an upload that passed preflight but is not stored yet.
type stagedSource struct {
	data []byte
	info domain.SourceInfo
	hash string
}

func (uc *JobUseCase) SubmitOCR(ctx context.Context, upload ports.Upload, dpi float64, language string) (*domain.Job, error) {
	if strings.TrimSpace(language) == "" {
		language = uc.settings.DefaultLanguage
	}
	codes, err := uc.languages.NormalizeLanguages(language)
	if err != nil {
		return nil, err
	}
	dpi, err = uc.resolveDPI(dpi)
	if err != nil {
		return nil, err
	}
	staged, err := uc.stage(ctx, upload)
	if err != nil {
		return nil, err
	}

	job := uc.newJob(domain.JobKindOCR, upload.Filename, staged, dpi)
	job.Language = strings.Join(codes, "+")
	return uc.enqueue(ctx, job, staged)
}

func (uc *JobUseCase) SubmitRedaction(ctx context.Context, upload ports.Upload, dpi float64, spec domain.RedactionSpec) (*domain.Job, error) {
	dpi, err := uc.resolveDPI(dpi)
	if err != nil {
		return nil, err
	}
	staged, err := uc.stage(ctx, upload)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(spec.PDFHash), staged.hash) {
		return nil, domain.WrapError(
			domain.ErrHashMismatch,
			"submit redaction",
			fmt.Errorf("spec hash %q does not describe the uploaded document", spec.PDFHash),
		)
	}
	if err := validateMarks(spec.Marks, staged.info.PageCount); err != nil {
		return nil, err
	}

	job := uc.newJob(domain.JobKindRedaction, upload.Filename, staged, dpi)
	job.Spec = &spec
	return uc.enqueue(ctx, job, staged)
}

func (uc *JobUseCase) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	job, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch job by id: %w", err)
	}
	return job, nil
}

// OpenOutput streams the finished PDF of a succeeded job.
func (uc *JobUseCase) OpenOutput(ctx context.Context, id string) (io.ReadCloser, *domain.Job, error) {
	job, err := uc.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != domain.JobStatusSucceeded || job.OutputPath == "" {
		return nil, nil, domain.WrapError(
			domain.ErrJobNotFound,
			"open job output",
			fmt.Errorf("job %s has no output (status=%s)", id, job.Status),
		)
	}
	rc, err := uc.storage.Open(ctx, job.OutputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open output from storage: %w", err)
	}
	return rc, job, nil
}

func (uc *JobUseCase) resolveDPI(dpi float64) (float64, error) {
	switch {
	case math.IsNaN(dpi) || dpi < 0:
		return 0, domain.WrapError(domain.ErrInvalidInput, "resolve dpi", fmt.Errorf("dpi must be positive, got %v", dpi))
	case dpi == 0:
		return uc.settings.DefaultDPI, nil
	case dpi > uc.settings.MaxDPI:
		return 0, domain.WrapError(
			domain.ErrInvalidInput,
			"resolve dpi",
			fmt.Errorf("dpi %v exceeds maximum %v", dpi, uc.settings.MaxDPI),
		)
	}
	return dpi, nil
}

func (uc *JobUseCase) stage(ctx context.Context, upload ports.Upload) (*stagedSource, error) {
	if upload.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("missing file body"))
	}
	data, err := io.ReadAll(upload.Body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("file is empty"))
	}

	info, err := uc.inspector.Inspect(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("preflight source: %w", err)
	}
	if info.PageCount <= 0 {
		return nil, domain.WrapError(domain.ErrPageDecode, "preflight source", errors.New("document has no pages"))
	}

	hash, err := uc.provenance.Hash(data)
	if err != nil {
		return nil, fmt.Errorf("hash source: %w", err)
	}
	return &stagedSource{data: data, info: info, hash: hash}, nil
}

func (uc *JobUseCase) newJob(kind domain.JobKind, filename string, staged *stagedSource, dpi float64) *domain.Job {
	id := uuid.NewString()
	now := uc.now().UTC()
	return &domain.Job{
		ID:         id,
		Kind:       kind,
		Filename:   filename,
		SourcePath: fmt.Sprintf("sources/%s_%s", id, sanitizeFilename(filename)),
		SourceHash: staged.hash,
		PageCount:  staged.info.PageCount,
		DPI:        dpi,
		Warnings:   []string{},
		Status:     domain.JobStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (uc *JobUseCase) enqueue(ctx context.Context, job *domain.Job, staged *stagedSource) (*domain.Job, error) {
	if err := uc.storage.Save(ctx, job.SourcePath, bytes.NewReader(staged.data)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job record: %w", err)
	}
	if err := uc.queue.PublishJobSubmitted(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("publish job event: %w", err)
	}
	return job, nil
}

func validateMarks(marks []domain.RedactionMark, pageCount int) error {
	for i, mark := range marks {
		if mark.PageIndex < 0 || mark.PageIndex >= pageCount {
			return domain.WrapError(
				domain.ErrInvalidInput,
				"validate marks",
				fmt.Errorf("mark %d targets page index %d; document has %d pages", i, mark.PageIndex, pageCount),
			)
		}
		for j, rect := range mark.Rects {
			if !finite(rect.X, rect.Y, rect.Width, rect.Height) || rect.Width <= 0 || rect.Height <= 0 {
				return domain.WrapError(
					domain.ErrInvalidInput,
					"validate marks",
					fmt.Errorf("mark %d rect %d has invalid geometry %+v", i, j, rect),
				)
			}
		}
	}
	return nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "document.pdf"
	}
	return base
}
