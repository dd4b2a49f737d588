package pdfcompose

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/pdfinspect"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func composeTwoPages(t *testing.T) []byte {
	t.Helper()
	doc, err := New().Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	sizes := []domain.PageSize{{Width: 612, Height: 792}, {Width: 400, Height: 250}}
	for _, size := range sizes {
		page, err := doc.AddPage(size)
		if err != nil {
			t.Fatalf("AddPage() error = %v", err)
		}
		ref, err := doc.EmbedImage(pngBytes(t, 20, 20), domain.ImageFormatPNG)
		if err != nil {
			t.Fatalf("EmbedImage() error = %v", err)
		}
		if err := page.DrawImage(ref, domain.PDFRect{Width: size.Width, Height: size.Height}); err != nil {
			t.Fatalf("DrawImage() error = %v", err)
		}
		err = page.DrawText("Invoice", ports.TextStyle{X: 50, Y: 100, Size: 12, Font: "Helvetica", Color: [3]float64{1, 1, 1}, Opacity: 0.001})
		if err != nil {
			t.Fatalf("DrawText() error = %v", err)
		}
	}
	out, err := doc.Save(ports.SaveOptions{})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return out
}

func TestComposeProducesReadablePages(t *testing.T) {
	out := composeTwoPages(t)

	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("expected pdf header")
	}
	if bytes.Contains(out, []byte("/ObjStm")) {
		t.Fatalf("expected no object streams")
	}

	info, err := pdfinspect.New(0).Inspect(context.Background(), out)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.PageCount != 2 {
		t.Fatalf("expected 2 pages, got %d", info.PageCount)
	}
	if info.Pages[0] != (domain.PageSize{Width: 612, Height: 792}) || info.Pages[1] != (domain.PageSize{Width: 400, Height: 250}) {
		t.Fatalf("unexpected page sizes %+v", info.Pages)
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	if !bytes.Equal(composeTwoPages(t), composeTwoPages(t)) {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestSaveRejectsObjectStreamsAndEmptyDocuments(t *testing.T) {
	doc, err := New().Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := doc.Save(ports.SaveOptions{}); err == nil {
		t.Fatalf("expected error for zero pages")
	}
	if _, err := doc.AddPage(domain.PageSize{Width: 10, Height: 10}); err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}
	if _, err := doc.Save(ports.SaveOptions{UseObjectStreams: true}); err == nil {
		t.Fatalf("expected error for object streams")
	}
}

func TestDrawOnStalePageFails(t *testing.T) {
	doc, err := New().Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	first, err := doc.AddPage(domain.PageSize{Width: 10, Height: 10})
	if err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}
	if _, err := doc.AddPage(domain.PageSize{Width: 10, Height: 10}); err != nil {
		t.Fatalf("AddPage() error = %v", err)
	}
	if err := first.DrawText("x", ports.TextStyle{Font: "Helvetica", Size: 4}); err == nil {
		t.Fatalf("expected stale page error")
	}
}

func TestEmbedRejectsUnknownFormat(t *testing.T) {
	doc, err := New().Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := doc.EmbedImage([]byte{1, 2, 3}, domain.ImageFormat("image/jpeg")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAddPageRejectsInvalidSize(t *testing.T) {
	doc, err := New().Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := doc.AddPage(domain.PageSize{Width: 0, Height: 10}); err == nil {
		t.Fatalf("expected error")
	}
}
