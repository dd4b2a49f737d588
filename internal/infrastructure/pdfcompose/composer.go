package pdfcompose

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

const producer = "pdf-recompose"

// fixedCreationDate keeps output byte-identical across runs.
var fixedCreationDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Composer authors flattened PDFs with gofpdf in point units. gofpdf writes
// classic cross-reference tables and never emits object streams.
type Composer struct {
	creationDate time.Time
}

func New() *Composer {
	return &Composer{creationDate: fixedCreationDate}
}

func (c *Composer) Create() (ports.OutputDocument, error) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: 612, Ht: 792},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(c.creationDate)
	pdf.SetProducer(producer, false)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("init gofpdf: %w", err)
	}
	return &document{pdf: pdf, translate: pdf.UnicodeTranslatorFromDescriptor("")}, nil
}

type document struct {
	pdf       *gofpdf.Fpdf
	translate func(string) string
	images    int
}

func (d *document) AddPage(size domain.PageSize) (ports.OutputPage, error) {
	if !(size.Width > 0) || !(size.Height > 0) || math.IsInf(size.Width, 0) || math.IsInf(size.Height, 0) {
		return nil, fmt.Errorf("invalid page size %+v", size)
	}
	d.pdf.AddPageFormat("P", gofpdf.SizeType{Wd: size.Width, Ht: size.Height})
	if err := d.pdf.Error(); err != nil {
		return nil, fmt.Errorf("add page: %w", err)
	}
	return &page{doc: d, number: d.pdf.PageNo(), height: size.Height}, nil
}

func (d *document) EmbedImage(data []byte, format domain.ImageFormat) (ports.ImageRef, error) {
	if format != domain.ImageFormatPNG {
		return "", fmt.Errorf("unsupported image format %q", format)
	}
	d.images++
	name := fmt.Sprintf("raster-%04d", d.images)
	d.pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(data))
	if err := d.pdf.Error(); err != nil {
		return "", fmt.Errorf("register image: %w", err)
	}
	return ports.ImageRef(name), nil
}

func (d *document) Save(opts ports.SaveOptions) ([]byte, error) {
	if opts.UseObjectStreams {
		return nil, errors.New("object streams are not supported")
	}
	if d.pdf.PageCount() == 0 {
		return nil, errors.New("document has no pages")
	}
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// page converts bottom-left PDF coordinates to gofpdf's top-left origin.
type page struct {
	doc    *document
	number int
	height float64
}

func (p *page) current() error {
	if p.doc.pdf.PageNo() != p.number {
		return fmt.Errorf("page %d is no longer the current page", p.number)
	}
	return nil
}

func (p *page) DrawImage(ref ports.ImageRef, rect domain.PDFRect) error {
	if err := p.current(); err != nil {
		return err
	}
	top := p.height - (rect.Y + rect.Height)
	p.doc.pdf.ImageOptions(string(ref), rect.X, top, rect.Width, rect.Height, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	if err := p.doc.pdf.Error(); err != nil {
		return fmt.Errorf("draw image: %w", err)
	}
	return nil
}

func (p *page) DrawText(text string, style ports.TextStyle) error {
	if err := p.current(); err != nil {
		return err
	}
	pdf := p.doc.pdf
	pdf.SetFont(style.Font, "", style.Size)
	pdf.SetTextColor(channel(style.Color[0]), channel(style.Color[1]), channel(style.Color[2]))
	pdf.SetAlpha(style.Opacity, "Normal")
	pdf.Text(style.X, p.height-style.Y, p.doc.translate(text))
	pdf.SetAlpha(1, "Normal")
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("draw text: %w", err)
	}
	return nil
}

func channel(v float64) int {
	return int(math.Round(math.Max(0, math.Min(1, v)) * 255))
}
