package domain

import "image"

type Stage string

const (
	StageRender  Stage = "render"
	StageOCR     Stage = "ocr"
	StageMask    Stage = "mask"
	StageCompose Stage = "compose"
)

// Progress is a single staged notification for one page.
type Progress struct {
	PageIndex int     `json:"pageIndex"`
	Stage     Stage   `json:"stage"`
	Progress  float64 `json:"progress"`
}

// ProgressFunc receives progress synchronously. It must return promptly.
type ProgressFunc func(Progress)

// RasterPage is one page flattened into pixels. It lives only while the page
// is processed.
type RasterPage struct {
	PageIndex int
	Image     *image.RGBA
	Viewport  Viewport
}

func (p *RasterPage) Width() int {
	if p == nil || p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dx()
}

func (p *RasterPage) Height() int {
	if p == nil || p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dy()
}

// Release drops the pixel buffer.
func (p *RasterPage) Release() {
	if p != nil {
		p.Image = nil
	}
}

// OCRWord is a recognized token in image-pixel space. Confidence is 0-100.
type OCRWord struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Recognition is the normalized engine output for one page.
type Recognition struct {
	Words    []OCRWord
	FullText string
}

type ImageFormat string

const (
	ImageFormatPNG ImageFormat = "image/png"
)

type OCRRequest struct {
	Source   []byte
	DPI      float64
	Language string
}

type RedactionRequest struct {
	Source []byte
	DPI    float64
	Spec   RedactionSpec
}

// PipelineResult is the OCR pipeline output. TextPreview is bounded to
// MaxTextPreviewRunes.
type PipelineResult struct {
	PDF         []byte   `json:"-"`
	TextPreview string   `json:"textPreview"`
	Warnings    []string `json:"warnings"`
}

const MaxTextPreviewRunes = 600
