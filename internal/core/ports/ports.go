package ports

import (
	"context"
	"image"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

// PageDecoder opens source PDFs for rendering.
type PageDecoder interface {
	Load(ctx context.Context, source []byte) (SourceDocument, error)
}

// SourceDocument is owned by a single pipeline run and must be closed when
// the run ends.
type SourceDocument interface {
	PageCount() int
	Page(index int) (PageHandle, error)
	Close() error
}

// PageHandle renders one page. Viewport reports fractional device-pixel
// dimensions at scale; RenderInto fills surface, which is sized from that
// viewport.
type PageHandle interface {
	Viewport(scale float64) (domain.Viewport, error)
	RenderInto(ctx context.Context, surface *image.RGBA, viewport domain.Viewport) error
}

// DocumentComposer authors new PDFs.
type DocumentComposer interface {
	Create() (OutputDocument, error)
}

// ImageRef identifies an image embedded into an OutputDocument.
type ImageRef string

type SaveOptions struct {
	// UseObjectStreams is always false for output produced here; composers
	// that cannot honor false must fail.
	UseObjectStreams bool
}

type OutputDocument interface {
	AddPage(size domain.PageSize) (OutputPage, error)
	EmbedImage(data []byte, format domain.ImageFormat) (ImageRef, error)
	Save(opts SaveOptions) ([]byte, error)
}

// TextStyle positions a text run in PDF point space; Y is the baseline.
type TextStyle struct {
	X       float64
	Y       float64
	Size    float64
	Font    string
	Color   [3]float64
	Opacity float64
}

type OutputPage interface {
	DrawImage(ref ImageRef, rect domain.PDFRect) error
	DrawText(text string, style TextStyle) error
}

// OCREngine creates recognition sessions.
type OCREngine interface {
	CreateSession(ctx context.Context, languages []string) (OCRSession, error)
}

// RawWord is an unvalidated engine token.
type RawWord struct {
	Text       string
	Confidence float64
	BBox       domain.BBox
}

type RawRecognition struct {
	Words []RawWord
	Text  string
}

// OCRSession is not safe for concurrent use.
type OCRSession interface {
	Reinitialize(ctx context.Context, languages []string) error
	Recognize(ctx context.Context, surface *image.RGBA) (RawRecognition, error)
	Close() error
}

// ImageEncoder turns a raster surface into embeddable bytes.
type ImageEncoder interface {
	Encode(img image.Image) ([]byte, domain.ImageFormat, error)
}

// SourceInspector preflights a PDF without rendering it.
type SourceInspector interface {
	Inspect(ctx context.Context, source []byte) (domain.SourceInfo, error)
}
