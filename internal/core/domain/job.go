package domain

import "time"

type JobKind string

const (
	JobKindOCR       JobKind = "ocr"
	JobKindRedaction JobKind = "redaction"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

type Job struct {
	ID          string         `json:"id"`
	Kind        JobKind        `json:"kind"`
	Filename    string         `json:"filename"`
	SourcePath  string         `json:"source_path"`
	OutputPath  string         `json:"output_path,omitempty"`
	SourceHash  string         `json:"source_hash"`
	PageCount   int            `json:"page_count"`
	DPI         float64        `json:"dpi"`
	Language    string         `json:"language,omitempty"`
	Spec        *RedactionSpec `json:"spec,omitempty"`
	TextPreview string         `json:"text_preview,omitempty"`
	Warnings    []string       `json:"warnings"`
	Status      JobStatus      `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// JobOutcome is what a finished pipeline run contributes to a job record.
type JobOutcome struct {
	OutputPath  string
	TextPreview string
	Warnings    []string
}

// JobProgress is a progress event addressed to a job.
type JobProgress struct {
	JobID string `json:"jobId"`
	Progress
}
