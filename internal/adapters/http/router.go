package httpadapter

import (
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/kirillkom/pdf-recompose/internal/config"
	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
	"github.com/kirillkom/pdf-recompose/internal/observability/metrics"
)

const (
	serviceName = "recompose-api"

	multipartMemory = 8 << 20

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Router struct {
	cfg        config.Config
	jobs       ports.JobSubmitter
	reader     ports.JobReader
	provenance ports.ProvenanceService
	reporter   ports.ProvenanceReporter
	metrics    *metrics.HTTPServerMetrics
	openapi    *openapi3.T
	limiter    *rate.Limiter
}

func NewRouter(
	cfg config.Config,
	jobs ports.JobSubmitter,
	reader ports.JobReader,
	provenance ports.ProvenanceService,
	reporter ports.ProvenanceReporter,
	httpMetrics *metrics.HTTPServerMetrics,
	openapi *openapi3.T,
) *Router {
	var limiter *rate.Limiter
	if cfg.APIRateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.APIRateLimitRPS), max(cfg.APIRateLimitBurst, 1))
	}
	return &Router{
		cfg:        cfg,
		jobs:       jobs,
		reader:     reader,
		provenance: provenance,
		reporter:   reporter,
		metrics:    httpMetrics,
		openapi:    openapi,
		limiter:    limiter,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("GET /openapi.json", rt.openAPI)
	mux.HandleFunc("GET /v1/tools", rt.listTools)
	mux.HandleFunc("POST /v1/jobs/ocr", rt.submitOCR)
	mux.HandleFunc("POST /v1/jobs/redaction", rt.submitRedaction)
	mux.HandleFunc("GET /v1/jobs/{id}", rt.getJob)
	mux.HandleFunc("GET /v1/jobs/{id}/output", rt.getJobOutput)
	mux.HandleFunc("GET /v1/jobs/{id}/provenance.xlsx", rt.getProvenanceReport)
	mux.HandleFunc("POST /v1/provenance/hash", rt.hashSource)
	mux.HandleFunc("POST /v1/provenance/spec", rt.buildSpec)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.limiter, rt.recordRateLimited)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	if len(rt.cfg.CORSAllowedOrigins) > 0 {
		handler = corsPolicy(rt.cfg.CORSAllowedOrigins).Handler(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func corsPolicy(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			requestIDHeader,
		},
		ExposedHeaders: []string{
			"Content-Disposition",
			"Retry-After",
			requestIDHeader,
		},
		MaxAge: 600,
	})
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	if rt.openapi == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "api description not loaded"})
		return
	}
	writeJSON(w, http.StatusOK, rt.openapi)
}

func (rt *Router) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": domain.Tools()})
}

func (rt *Router) submitOCR(w http.ResponseWriter, r *http.Request) {
	file, header, err := rt.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer file.Close()

	dpi, err := parseDPI(r.FormValue("dpi"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	job, err := rt.jobs.SubmitOCR(r.Context(), ports.Upload{Filename: header.Filename, Body: file}, dpi, r.FormValue("language"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordSubmitted(job, header.Size)
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) submitRedaction(w http.ResponseWriter, r *http.Request) {
	file, header, err := rt.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer file.Close()

	dpi, err := parseDPI(r.FormValue("dpi"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rawSpec := strings.TrimSpace(r.FormValue("spec"))
	if rawSpec == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'spec' is required"})
		return
	}
	var spec domain.RedactionSpec
	if err := json.Unmarshal([]byte(rawSpec), &spec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid redaction spec json"})
		return
	}

	job, err := rt.jobs.SubmitRedaction(r.Context(), ports.Upload{Filename: header.Filename, Body: file}, dpi, spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordSubmitted(job, header.Size)
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := rt.reader.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) getJobOutput(w http.ResponseWriter, r *http.Request) {
	body, job, err := rt.reader.OpenOutput(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment(outputFilename(job)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("job_output_stream_failed", "request_id", requestIDFromContext(r.Context()), "job_id", job.ID, "error", err)
	}
}

func (rt *Router) getProvenanceReport(w http.ResponseWriter, r *http.Request) {
	job, err := rt.reader.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if job.Kind != domain.JobKindRedaction || job.Spec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job has no provenance record"})
		return
	}

	report, err := rt.reporter.Render(job)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", attachment(stem(job.Filename)+"-provenance.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}

func (rt *Router) hashSource(w http.ResponseWriter, r *http.Request) {
	source, ok := rt.readUploadBytes(w, r)
	if !ok {
		return
	}
	hash, err := rt.provenance.Hash(source)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pdfHash": hash})
}

func (rt *Router) buildSpec(w http.ResponseWriter, r *http.Request) {
	source, ok := rt.readUploadBytes(w, r)
	if !ok {
		return
	}

	rawMarks := strings.TrimSpace(r.FormValue("marks"))
	if rawMarks == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'marks' is required"})
		return
	}
	var marks []domain.RedactionMark
	if err := json.Unmarshal([]byte(rawMarks), &marks); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid marks json"})
		return
	}

	hash, err := rt.provenance.Hash(source)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.provenance.BuildSpec(marks, hash))
}

func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "parse multipart form", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "multipart field 'file' is required", err)
	}
	return file, header, nil
}

func (rt *Router) readUploadBytes(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	file, _, err := rt.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	defer file.Close()

	source, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read upload", err))
		return nil, false
	}
	return source, true
}

func (rt *Router) recordSubmitted(job *domain.Job, size int64) {
	if rt.metrics != nil && job != nil {
		rt.metrics.RecordJobSubmitted(serviceName, string(job.Kind), size)
	}
}

func (rt *Router) recordRateLimited(path string) {
	if rt.metrics != nil {
		rt.metrics.RecordRateLimited(serviceName, path)
	}
}

func parseDPI(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dpi, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse dpi", err)
	}
	return dpi, nil
}

func outputFilename(job *domain.Job) string {
	suffix := "-searchable.pdf"
	if job.Kind == domain.JobKindRedaction {
		suffix = "-redacted.pdf"
	}
	return stem(job.Filename) + suffix
}

func stem(filename string) string {
	name := strings.TrimSpace(filename)
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".pdf") {
		name = name[:len(name)-4]
	}
	if name == "" {
		return "document"
	}
	return name
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
