package pdfinspect

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/jung-kurt/gofpdf"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

func fixturePDF(t *testing.T, sizes ...gofpdf.SizeType) []byte {
	t.Helper()
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 612, Ht: 792}})
	pdf.SetFont("Helvetica", "", 12)
	for _, size := range sizes {
		pdf.AddPageFormat("P", size)
		pdf.Text(20, 40, "fixture")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return buf.Bytes()
}

func TestInspectReportsPageSizes(t *testing.T) {
	source := fixturePDF(t, gofpdf.SizeType{Wd: 612, Ht: 792}, gofpdf.SizeType{Wd: 300.5, Ht: 200})

	info, err := New(0).Inspect(context.Background(), source)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.PageCount != 2 || len(info.Pages) != 2 {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Pages[0] != (domain.PageSize{Width: 612, Height: 792}) {
		t.Fatalf("unexpected first page %+v", info.Pages[0])
	}
	if math.Abs(info.Pages[1].Width-300.5) > 0.01 || math.Abs(info.Pages[1].Height-200) > 0.01 {
		t.Fatalf("unexpected second page %+v", info.Pages[1])
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	for _, source := range [][]byte{nil, []byte("not a pdf at all"), []byte("%PDF-1.4\n%%EOF")} {
		if _, err := New(0).Inspect(context.Background(), source); !errors.Is(err, domain.ErrPageDecode) {
			t.Fatalf("expected ErrPageDecode for %q, got %v", source, err)
		}
	}
}

func TestInspectEnforcesPageLimit(t *testing.T) {
	source := fixturePDF(t, gofpdf.SizeType{Wd: 100, Ht: 100}, gofpdf.SizeType{Wd: 100, Ht: 100})

	if _, err := New(1).Inspect(context.Background(), source); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
