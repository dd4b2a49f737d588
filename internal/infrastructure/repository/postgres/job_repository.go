package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

type JobRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026100101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS recompose_jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	filename TEXT NOT NULL,
	source_path TEXT NOT NULL,
	output_path TEXT NOT NULL DEFAULT '',
	source_hash CHAR(64) NOT NULL,
	page_count INTEGER NOT NULL,
	dpi DOUBLE PRECISION NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	spec JSONB,
	text_preview TEXT NOT NULL DEFAULT '',
	warnings JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recompose_jobs_status ON recompose_jobs(status);
CREATE INDEX IF NOT EXISTS idx_recompose_jobs_source_hash ON recompose_jobs(source_hash);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	var specJSON []byte
	if job.Spec != nil {
		raw, err := json.Marshal(job.Spec)
		if err != nil {
			return fmt.Errorf("marshal spec: %w", err)
		}
		specJSON = raw
	}
	warningsJSON, err := marshalWarnings(job.Warnings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO recompose_jobs (
	id, kind, filename, source_path, output_path, source_hash, page_count, dpi, language, spec, text_preview, warnings, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		job.ID, string(job.Kind), job.Filename, job.SourcePath, job.OutputPath, job.SourceHash, job.PageCount, job.DPI,
		job.Language, specJSON, job.TextPreview, warningsJSON, string(job.Status), job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, kind, filename, source_path, output_path, source_hash, page_count, dpi, language, spec, text_preview, warnings, status, error_message, created_at, updated_at
FROM recompose_jobs
WHERE id = $1
`, id)

	var (
		job          domain.Job
		kind, status string
		specRaw      []byte
		warningsRaw  []byte
	)
	err := row.Scan(
		&job.ID, &kind, &job.Filename, &job.SourcePath, &job.OutputPath, &job.SourceHash, &job.PageCount, &job.DPI,
		&job.Language, &specRaw, &job.TextPreview, &warningsRaw, &status, &job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if len(specRaw) > 0 {
		var spec domain.RedactionSpec
		if err := json.Unmarshal(specRaw, &spec); err != nil {
			return nil, fmt.Errorf("unmarshal spec: %w", err)
		}
		job.Spec = &spec
	}
	job.Warnings = []string{}
	if len(warningsRaw) > 0 {
		if err := json.Unmarshal(warningsRaw, &job.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	return &job, nil
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE recompose_jobs
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return requireAffected(res, "update job status", id)
}

func (r *JobRepository) SaveOutcome(ctx context.Context, id string, outcome domain.JobOutcome) error {
	warningsJSON, err := marshalWarnings(outcome.Warnings)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE recompose_jobs
SET output_path = $2, text_preview = $3, warnings = $4, updated_at = $5
WHERE id = $1
`, id, outcome.OutputPath, outcome.TextPreview, warningsJSON, r.now().UTC())
	if err != nil {
		return fmt.Errorf("save job outcome: %w", err)
	}
	return requireAffected(res, "save job outcome", id)
}

func marshalWarnings(warnings []string) ([]byte, error) {
	if warnings == nil {
		warnings = []string{}
	}
	raw, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}
	return raw, nil
}

func requireAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrJobNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}
