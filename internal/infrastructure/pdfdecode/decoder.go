package pdfdecode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/draw"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/pdfinspect"
)

// PageSizer reports fractional page sizes in points. fitz.Document.Bound
// truncates to whole points, which is not precise enough for viewports.
type PageSizer interface {
	Inspect(ctx context.Context, source []byte) (domain.SourceInfo, error)
}

// Decoder opens PDFs with MuPDF through go-fitz.
type Decoder struct {
	sizes PageSizer
}

// New sizes pages with the pdfinspect reader.
func New() *Decoder {
	return NewWithSizer(pdfinspect.New(0))
}

// NewWithSizer uses sizes for exact page geometry. A nil sizer leaves
// MuPDF's whole-point bounds in place.
func NewWithSizer(sizes PageSizer) *Decoder {
	return &Decoder{sizes: sizes}
}

func (d *Decoder) Load(ctx context.Context, source []byte) (ports.SourceDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(source)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPageDecode, "open pdf", err)
	}
	return &document{doc: doc, exact: d.exactSizes(ctx, source, doc.NumPage())}, nil
}

// exactSizes returns nil when the sizer cannot read the document or
// disagrees with MuPDF on the page count.
func (d *Decoder) exactSizes(ctx context.Context, source []byte, pageCount int) []domain.PageSize {
	if d.sizes == nil {
		return nil
	}
	info, err := d.sizes.Inspect(ctx, source)
	if err != nil || len(info.Pages) != pageCount {
		return nil
	}
	return info.Pages
}

// document serializes MuPDF calls; a fitz.Document is not safe for
// concurrent rendering.
type document struct {
	mu     sync.Mutex
	doc    *fitz.Document
	exact  []domain.PageSize
	closed bool
}

func (d *document) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}
	return d.doc.NumPage()
}

func (d *document) Page(index int) (ports.PageHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("document closed")
	}
	if index < 0 || index >= d.doc.NumPage() {
		return nil, fmt.Errorf("page index %d out of range", index)
	}
	bounds, err := d.doc.Bound(index)
	if err != nil {
		return nil, fmt.Errorf("page bounds: %w", err)
	}
	if bounds.Empty() {
		return nil, fmt.Errorf("page %d has empty bounds", index+1)
	}
	size := domain.PageSize{Width: float64(bounds.Dx()), Height: float64(bounds.Dy())}
	if index < len(d.exact) && sameWholePoints(d.exact[index], size) {
		size = d.exact[index]
	}
	return &page{
		owner:  d,
		index:  index,
		width:  size.Width,
		height: size.Height,
	}, nil
}

// sameWholePoints reports whether exact truncates to bounds, so both
// readers resolved the same page box.
func sameWholePoints(exact, bounds domain.PageSize) bool {
	return math.Abs(exact.Width-bounds.Width) < 1 && math.Abs(exact.Height-bounds.Height) < 1
}

func (d *document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}

type page struct {
	owner  *document
	index  int
	width  float64 // points
	height float64
}

func (p *page) Viewport(scale float64) (domain.Viewport, error) {
	if scale <= 0 {
		return domain.Viewport{}, fmt.Errorf("scale must be positive, got %v", scale)
	}
	return domain.Viewport{Width: p.width * scale, Height: p.height * scale, Scale: scale}, nil
}

// RenderInto draws the page onto surface. MuPDF rounds its pixmap outward
// while the surface is floored, so a pixmap at most one pixel larger is
// cropped at the far edges. Any other mismatch is resampled.
func (p *page) RenderInto(ctx context.Context, surface *image.RGBA, viewport domain.Viewport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rendered, err := p.render(viewport.Scale * domain.PointsPerInch)
	if err != nil {
		return err
	}

	dst := surface.Bounds()
	if outwardRounded(rendered.Bounds().Size(), dst.Size()) {
		draw.Draw(surface, dst, rendered, rendered.Bounds().Min, draw.Src)
		return nil
	}
	draw.ApproxBiLinear.Scale(surface, dst, rendered, rendered.Bounds(), draw.Src, nil)
	return nil
}

func outwardRounded(rendered, surface image.Point) bool {
	dx, dy := rendered.X-surface.X, rendered.Y-surface.Y
	return dx >= 0 && dx <= 1 && dy >= 0 && dy <= 1
}

func (p *page) render(dpi float64) (*image.RGBA, error) {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	if p.owner.closed {
		return nil, errors.New("document closed")
	}
	img, err := p.owner.doc.ImageDPI(p.index, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", p.index+1, err)
	}
	return img, nil
}
