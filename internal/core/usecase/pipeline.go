package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

type nopObserver struct{}

func (nopObserver) StartRun(domain.JobKind)                  {}
func (nopObserver) ObservePage(domain.JobKind, domain.Stage) {}
func (nopObserver) ObserveWarning(domain.JobKind)            {}
func (nopObserver) FinishRun(domain.JobKind, int, error)     {}

func observerOrNop(obs ports.PipelineObserver) ports.PipelineObserver {
	if obs == nil {
		return nopObserver{}
	}
	return obs
}

// progressReporter forwards staged progress to the caller's sink and the
// observer.
type progressReporter struct {
	kind     domain.JobKind
	sink     domain.ProgressFunc
	observer ports.PipelineObserver
}

func (r progressReporter) report(pageIndex int, stage domain.Stage, progress float64) {
	r.observer.ObservePage(r.kind, stage)
	if r.sink != nil {
		r.sink(domain.Progress{PageIndex: pageIndex, Stage: stage, Progress: progress})
	}
}

// openSource loads the source and rejects documents without pages.
func openSource(ctx context.Context, decoder ports.PageDecoder, source []byte) (ports.SourceDocument, error) {
	if len(source) == 0 {
		return nil, domain.WrapError(domain.ErrPageDecode, "load source", errors.New("source is empty"))
	}
	doc, err := decoder.Load(ctx, source)
	if err != nil {
		if domain.IsKind(err, domain.ErrPageDecode) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrPageDecode, "load source", err)
	}
	if doc.PageCount() <= 0 {
		_ = doc.Close()
		return nil, domain.WrapError(domain.ErrPageDecode, "load source", errors.New("source has no pages"))
	}
	return doc, nil
}

func closeSource(kind domain.JobKind, doc ports.SourceDocument) {
	if err := doc.Close(); err != nil {
		slog.Warn("source_close_failed", "pipeline", string(kind), "error", err)
	}
}

func checkCancelled(ctx context.Context, kind domain.JobKind, pageIndex int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s pipeline stopped before page %d: %w", kind, pageIndex+1, err)
	}
	return nil
}
