package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

var jobColumns = []string{
	"id", "kind", "filename", "source_path", "output_path", "source_hash", "page_count", "dpi",
	"language", "spec", "text_preview", "warnings", "status", "error_message", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*JobRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewJobRepository(db)
	repo.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	return repo, mock, func() { _ = db.Close() }
}

func TestCreateInsertsSpecAsJSON(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	job := &domain.Job{
		ID: "j1", Kind: domain.JobKindRedaction, Filename: "a.pdf", SourcePath: "sources/j1_a.pdf",
		SourceHash: "ab", PageCount: 2, DPI: 300, Status: domain.JobStatusQueued, CreatedAt: now, UpdatedAt: now,
		Spec: &domain.RedactionSpec{PDFHash: "ab", CreatedAt: "2026-10-01T09:00:00.000Z"},
	}

	mock.ExpectExec("INSERT INTO recompose_jobs").
		WithArgs(
			"j1", "redaction", "a.pdf", "sources/j1_a.pdf", "", "ab", 2, 300.0, "",
			[]byte(`{"marks":null,"pdfHash":"ab","createdAt":"2026-10-01T09:00:00.000Z"}`),
			"", []byte(`[]`), "queued", "", now, now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesJob(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(jobColumns).AddRow(
		"j1", "redaction", "a.pdf", "sources/j1_a.pdf", "outputs/j1.pdf", "ab", 2, 300.0, "",
		[]byte(`{"marks":[{"pageIndex":1,"rects":[{"x":1,"y":2,"width":3,"height":4}]}],"pdfHash":"ab","createdAt":"2026-10-01T09:00:00.000Z"}`),
		"", []byte(`["w"]`), "succeeded", "", now, now,
	)
	mock.ExpectQuery("SELECT id, kind, filename").WithArgs("j1").WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Kind != domain.JobKindRedaction || job.Status != domain.JobStatusSucceeded {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Spec == nil || len(job.Spec.Marks) != 1 || job.Spec.Marks[0].Rects[0].Height != 4 {
		t.Fatalf("unexpected spec %+v", job.Spec)
	}
	if len(job.Warnings) != 1 || job.Warnings[0] != "w" {
		t.Fatalf("unexpected warnings %v", job.Warnings)
	}
}

func TestGetByIDWithoutSpec(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(jobColumns).AddRow(
		"j2", "ocr", "s.pdf", "sources/j2_s.pdf", "", "cd", 1, 150.0, "eng", nil, "", []byte(`[]`), "queued", "", now, now,
	)
	mock.ExpectQuery("SELECT id, kind, filename").WithArgs("j2").WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "j2")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Spec != nil || job.Language != "eng" || job.Warnings == nil {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, kind, filename").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE recompose_jobs").
		WithArgs("missing", string(domain.JobStatusRunning), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.JobStatusRunning, "")
	if !domain.IsKind(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveOutcomeWritesWarnings(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE recompose_jobs").
		WithArgs("j1", "outputs/j1.pdf", "preview", []byte(`["Skipped OCR on page 1: rendered size 5x5 too small."]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveOutcome(context.Background(), "j1", domain.JobOutcome{
		OutputPath:  "outputs/j1.pdf",
		TextPreview: "preview",
		Warnings:    []string{"Skipped OCR on page 1: rendered size 5x5 too small."},
	})
	if err != nil {
		t.Fatalf("SaveOutcome() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
