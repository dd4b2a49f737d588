package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

// OCRPipeline turns a scanned PDF into raster pages with an invisible text
// layer. Pages are processed strictly one at a time.
type OCRPipeline struct {
	decoder    ports.PageDecoder
	rasterizer *Rasterizer
	recognizer *Recognizer
	composer   *OutputComposer
	observer   ports.PipelineObserver
}

func NewOCRPipeline(
	decoder ports.PageDecoder,
	rasterizer *Rasterizer,
	recognizer *Recognizer,
	composer *OutputComposer,
	observer ports.PipelineObserver,
) *OCRPipeline {
	return &OCRPipeline{
		decoder:    decoder,
		rasterizer: rasterizer,
		recognizer: recognizer,
		composer:   composer,
		observer:   observerOrNop(observer),
	}
}

func (p *OCRPipeline) Run(ctx context.Context, req domain.OCRRequest, onProgress domain.ProgressFunc) (*domain.PipelineResult, error) {
	p.observer.StartRun(domain.JobKindOCR)
	result, pages, err := p.run(ctx, req, onProgress)
	p.observer.FinishRun(domain.JobKindOCR, pages, err)
	return result, err
}

func (p *OCRPipeline) run(ctx context.Context, req domain.OCRRequest, onProgress domain.ProgressFunc) (*domain.PipelineResult, int, error) {
	lease, err := p.recognizer.Lease(ctx, req.Language)
	if err != nil {
		return nil, 0, err
	}
	defer lease.Release()

	doc, err := openSource(ctx, p.decoder, req.Source)
	if err != nil {
		return nil, 0, err
	}
	defer closeSource(domain.JobKindOCR, doc)

	out, err := p.composer.Begin()
	if err != nil {
		return nil, 0, err
	}

	reporter := progressReporter{kind: domain.JobKindOCR, sink: onProgress, observer: p.observer}
	var (
		snippets []string
		warnings []string
	)
	for pageIndex := 0; pageIndex < doc.PageCount(); pageIndex++ {
		if err := checkCancelled(ctx, domain.JobKindOCR, pageIndex); err != nil {
			return nil, out.Pages(), err
		}
		text, warning, err := p.processPage(ctx, doc, out, lease, pageIndex, req.DPI, reporter)
		if err != nil {
			return nil, out.Pages(), err
		}
		if warning != "" {
			warnings = append(warnings, warning)
			p.observer.ObserveWarning(domain.JobKindOCR)
			slog.Warn("pipeline_page_warning", "pipeline", string(domain.JobKindOCR), "page", pageIndex+1, "warning", warning)
		}
		if text = strings.TrimSpace(text); text != "" {
			snippets = append(snippets, text)
		}
	}

	pdf, err := out.Finish()
	if err != nil {
		return nil, out.Pages(), err
	}
	if warnings == nil {
		warnings = []string{}
	}
	return &domain.PipelineResult{
		PDF:         pdf,
		TextPreview: BuildTextPreview(snippets),
		Warnings:    warnings,
	}, out.Pages(), nil
}

// processPage runs render → (skip | recognize) → compose for one page and
// returns the recognized text plus an optional warning.
func (p *OCRPipeline) processPage(
	ctx context.Context,
	doc ports.SourceDocument,
	out *Composition,
	lease *RecognitionLease,
	pageIndex int,
	dpi float64,
	reporter progressReporter,
) (string, string, error) {
	reporter.report(pageIndex, domain.StageRender, 0)
	raster, err := p.rasterizer.Rasterize(ctx, doc, pageIndex, dpi, nil)
	if err != nil {
		return "", "", err
	}
	defer raster.Release()

	reporter.report(pageIndex, domain.StageOCR, 0.3)
	var (
		recognition domain.Recognition
		warning     string
	)
	if domain.ShouldSkipOCR(raster.Width(), raster.Height()) {
		warning = fmt.Sprintf(
			"Skipped OCR on page %d: rendered size %dx%d too small.",
			pageIndex+1, raster.Width(), raster.Height(),
		)
	} else {
		recognition, err = lease.Recognize(ctx, raster)
		if err != nil {
			var pageErr *domain.PageError
			if !errors.As(err, &pageErr) {
				return "", "", err
			}
			warning = fmt.Sprintf("OCR warning on page %d: %s", pageIndex+1, pageErr.Message)
			recognition = domain.Recognition{}
		}
	}

	reporter.report(pageIndex, domain.StageCompose, 0.6)
	if err := out.AddRasterPage(raster, recognition.Words); err != nil {
		return "", "", err
	}
	reporter.report(pageIndex, domain.StageCompose, 1)
	return recognition.FullText, warning, nil
}

// BuildTextPreview joins page texts with blank lines and truncates to
// MaxTextPreviewRunes.
func BuildTextPreview(snippets []string) string {
	preview := strings.Join(snippets, "\n\n")
	if utf8.RuneCountInString(preview) <= domain.MaxTextPreviewRunes {
		return preview
	}
	runes := []rune(preview)
	return string(runes[:domain.MaxTextPreviewRunes])
}
