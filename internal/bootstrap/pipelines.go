package bootstrap

import (
	"github.com/kirillkom/pdf-recompose/internal/config"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
	"github.com/kirillkom/pdf-recompose/internal/core/usecase"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/ocr/tesseract"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/pdfcompose"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/pdfdecode"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/pdfinspect"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/pngenc"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/resilience"
)

// Pipelines is the in-process processing stack shared by the worker and the
// CLI. It needs no database or broker.
type Pipelines struct {
	OCR        *usecase.OCRPipeline
	Redaction  *usecase.RedactionPipeline
	Recognizer *usecase.Recognizer
	Provenance *usecase.ProvenanceBuilder
	Inspector  *pdfinspect.Inspector
}

func NewPipelines(cfg config.Config, executor *resilience.Executor, observer ports.PipelineObserver) *Pipelines {
	decoder := pdfdecode.New()
	rasterizer := usecase.NewRasterizer(cfg.MaxSurfacePixels)
	composer := usecase.NewOutputComposer(pdfcompose.New(), pngenc.New())
	recognizer := usecase.NewRecognizer(
		tesseract.New(cfg.TessdataPrefix, executor),
		cfg.OCRLanguages,
		cfg.OCRMinConfidence,
	)

	return &Pipelines{
		OCR:        usecase.NewOCRPipeline(decoder, rasterizer, recognizer, composer, observer),
		Redaction:  usecase.NewRedactionPipeline(decoder, rasterizer, composer, observer),
		Recognizer: recognizer,
		Provenance: usecase.NewProvenanceBuilder(),
		Inspector:  pdfinspect.New(cfg.MaxPages),
	}
}

func (p *Pipelines) Close() error {
	return p.Recognizer.Close()
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff,
		RetryMaxBackoff:     cfg.RetryMaxBackoff,
		RetryMultiplier:     cfg.RetryMultiplier,

		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}

func NewExecutor(cfg config.Config) *resilience.Executor {
	return resilience.NewExecutor(resilienceConfig(cfg))
}
