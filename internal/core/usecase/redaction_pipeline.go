package usecase

import (
	"context"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

// RedactionPipeline burns opaque masks into rasterized pages. No text layer
// survives into the output.
type RedactionPipeline struct {
	decoder    ports.PageDecoder
	rasterizer *Rasterizer
	composer   *OutputComposer
	observer   ports.PipelineObserver
}

func NewRedactionPipeline(
	decoder ports.PageDecoder,
	rasterizer *Rasterizer,
	composer *OutputComposer,
	observer ports.PipelineObserver,
) *RedactionPipeline {
	return &RedactionPipeline{
		decoder:    decoder,
		rasterizer: rasterizer,
		composer:   composer,
		observer:   observerOrNop(observer),
	}
}

func (p *RedactionPipeline) Run(ctx context.Context, req domain.RedactionRequest, onProgress domain.ProgressFunc) ([]byte, error) {
	p.observer.StartRun(domain.JobKindRedaction)
	out, pages, err := p.run(ctx, req, onProgress)
	p.observer.FinishRun(domain.JobKindRedaction, pages, err)
	return out, err
}

func (p *RedactionPipeline) run(ctx context.Context, req domain.RedactionRequest, onProgress domain.ProgressFunc) ([]byte, int, error) {
	doc, err := openSource(ctx, p.decoder, req.Source)
	if err != nil {
		return nil, 0, err
	}
	defer closeSource(domain.JobKindRedaction, doc)

	out, err := p.composer.Begin()
	if err != nil {
		return nil, 0, err
	}

	masksByPage := req.Spec.RectsByPage()
	reporter := progressReporter{kind: domain.JobKindRedaction, sink: onProgress, observer: p.observer}
	for pageIndex := 0; pageIndex < doc.PageCount(); pageIndex++ {
		if err := checkCancelled(ctx, domain.JobKindRedaction, pageIndex); err != nil {
			return nil, out.Pages(), err
		}
		if err := p.processPage(ctx, doc, out, pageIndex, req.DPI, masksByPage[pageIndex], reporter); err != nil {
			return nil, out.Pages(), err
		}
	}

	pdf, err := out.Finish()
	if err != nil {
		return nil, out.Pages(), err
	}
	return pdf, out.Pages(), nil
}

func (p *RedactionPipeline) processPage(
	ctx context.Context,
	doc ports.SourceDocument,
	out *Composition,
	pageIndex int,
	dpi float64,
	masks []domain.PDFRect,
	reporter progressReporter,
) error {
	reporter.report(pageIndex, domain.StageRender, 0)
	raster, err := p.rasterizer.Rasterize(ctx, doc, pageIndex, dpi, masks)
	if err != nil {
		return err
	}
	defer raster.Release()

	// Same staged shape as the OCR pipeline; no recognition happens here.
	reporter.report(pageIndex, domain.StageMask, 0.5)
	reporter.report(pageIndex, domain.StageOCR, 0.75)

	if err := out.AddRasterPage(raster, nil); err != nil {
		return err
	}
	reporter.report(pageIndex, domain.StageCompose, 1)
	return nil
}
