package usecase

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

func redactionRequest(marks ...domain.RedactionMark) domain.RedactionRequest {
	return domain.RedactionRequest{
		Source: []byte("%PDF-1.7 contract"),
		DPI:    72,
		Spec:   domain.RedactionSpec{Marks: marks, PDFHash: "abc", CreatedAt: "2026-01-01T00:00:00.000Z"},
	}
}

func TestRedactionPipelineMasksOnlyMarkedPage(t *testing.T) {
	decoder := &decoderFake{pages: []domain.PageSize{{Width: 100, Height: 100}, {Width: 200, Height: 150}}}
	composer := &composerFake{}
	pipeline := newTestRedactionPipeline(decoder, composer)

	req := redactionRequest(domain.RedactionMark{
		PageIndex: 0,
		Rects:     []domain.PDFRect{{X: 10, Y: 70, Width: 30, Height: 20}},
		Reason:    "account number",
	})
	pdf, err := pipeline.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(pdf) == 0 {
		t.Fatalf("expected output bytes")
	}

	doc := composer.last()
	if len(doc.pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(doc.pages))
	}
	if !almostEqual(doc.pages[1].size.Width, 200) || !almostEqual(doc.pages[1].size.Height, 150) {
		t.Fatalf("unexpected second page size %+v", doc.pages[1].size)
	}

	first, err := decodePNG(doc.pages[0].image)
	if err != nil {
		t.Fatalf("decode page 1: %v", err)
	}
	// PDF y=70..90 on a 100pt page is device rows 10..30.
	black := color.RGBA{A: 255}
	if got := color.RGBAModel.Convert(first.At(20, 20)); got != black {
		t.Fatalf("expected masked pixel, got %+v", got)
	}
	if got := color.RGBAModel.Convert(first.At(20, 50)); got == black {
		t.Fatalf("expected pixel outside mask untouched")
	}

	second, err := decodePNG(doc.pages[1].image)
	if err != nil {
		t.Fatalf("decode page 2: %v", err)
	}
	bounds := second.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 7 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 7 {
			if got := color.RGBAModel.Convert(second.At(x, y)); got == black {
				t.Fatalf("unexpected mask on unmarked page at %d,%d", x, y)
			}
		}
	}
	for _, page := range doc.pages {
		if len(page.texts) != 0 {
			t.Fatalf("expected no text layer on redacted output")
		}
	}
}

func TestRedactionPipelineMergesMarksForSamePage(t *testing.T) {
	decoder := &decoderFake{pages: []domain.PageSize{{Width: 100, Height: 100}}}
	composer := &composerFake{}
	pipeline := newTestRedactionPipeline(decoder, composer)

	req := redactionRequest(
		domain.RedactionMark{PageIndex: 0, Rects: []domain.PDFRect{{X: 0, Y: 90, Width: 10, Height: 10}}},
		domain.RedactionMark{PageIndex: 0, Rects: []domain.PDFRect{{X: 90, Y: 0, Width: 10, Height: 10}}},
		domain.RedactionMark{PageIndex: 5, Rects: []domain.PDFRect{{X: 0, Y: 0, Width: 100, Height: 100}}},
	)
	if _, err := pipeline.Run(context.Background(), req, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	img, err := decodePNG(composer.last().pages[0].image)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	black := color.RGBA{A: 255}
	if got := color.RGBAModel.Convert(img.At(5, 5)); got != black {
		t.Fatalf("expected top-left mask, got %+v", got)
	}
	if got := color.RGBAModel.Convert(img.At(95, 95)); got != black {
		t.Fatalf("expected bottom-right mask, got %+v", got)
	}
	if got := color.RGBAModel.Convert(img.At(50, 50)); got == black {
		t.Fatalf("expected center untouched")
	}
}

func TestRedactionPipelineProgressShape(t *testing.T) {
	decoder := &decoderFake{pages: []domain.PageSize{{Width: 50, Height: 50}}}
	pipeline := newTestRedactionPipeline(decoder, &composerFake{})
	progress := &progressLog{}

	if _, err := pipeline.Run(context.Background(), redactionRequest(), progress.sink); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []domain.Progress{
		{PageIndex: 0, Stage: domain.StageRender, Progress: 0},
		{PageIndex: 0, Stage: domain.StageMask, Progress: 0.5},
		{PageIndex: 0, Stage: domain.StageOCR, Progress: 0.75},
		{PageIndex: 0, Stage: domain.StageCompose, Progress: 1},
	}
	got := progress.forPage(0)
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRedactionPipelineIsIdempotent(t *testing.T) {
	decoder := &decoderFake{pages: []domain.PageSize{{Width: 120, Height: 80}, {Width: 120, Height: 80}}}
	pipeline := newTestRedactionPipeline(decoder, &composerFake{})
	req := redactionRequest(domain.RedactionMark{PageIndex: 1, Rects: []domain.PDFRect{{X: 5, Y: 5, Width: 40, Height: 10}}})

	first, err := pipeline.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := pipeline.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected identical output")
	}
}

func TestRedactionPipelineCancelledBeforeStart(t *testing.T) {
	decoder := &decoderFake{pages: []domain.PageSize{{Width: 50, Height: 50}}}
	composer := &composerFake{}
	pipeline := newTestRedactionPipeline(decoder, composer)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pipeline.Run(ctx, redactionRequest(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(composer.last().pages) != 0 {
		t.Fatalf("expected no pages composed")
	}
}

func TestRedactionPipelineDecodeFailure(t *testing.T) {
	decoder := &decoderFake{loadErr: errors.New("encrypted")}
	pipeline := newTestRedactionPipeline(decoder, &composerFake{})

	if _, err := pipeline.Run(context.Background(), redactionRequest(), nil); !errors.Is(err, domain.ErrPageDecode) {
		t.Fatalf("expected ErrPageDecode, got %v", err)
	}
}

func TestRedactionPipelineSaveFailure(t *testing.T) {
	decoder := &decoderFake{pages: []domain.PageSize{{Width: 50, Height: 50}}}
	pipeline := newTestRedactionPipeline(decoder, &composerFake{saveErr: errors.New("disk full")})

	if _, err := pipeline.Run(context.Background(), redactionRequest(), nil); !errors.Is(err, domain.ErrEncodingFailure) {
		t.Fatalf("expected ErrEncodingFailure, got %v", err)
	}
}
