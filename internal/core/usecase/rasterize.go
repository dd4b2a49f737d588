package usecase

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

// DefaultMaxSurfacePixels caps one raster buffer at roughly 400 MiB of RGBA.
const DefaultMaxSurfacePixels = 100_000_000

var maskColor = image.NewUniform(color.RGBA{A: 0xff})

type Rasterizer struct {
	maxPixels int
}

func NewRasterizer(maxPixels int) *Rasterizer {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxSurfacePixels
	}
	return &Rasterizer{maxPixels: maxPixels}
}

// Viewport resolves the render frame for a page at dpi and validates what the
// decoder reported.
func (r *Rasterizer) Viewport(page ports.PageHandle, pageIndex int, dpi float64) (domain.Viewport, error) {
	scale := domain.ScaleForDPI(dpi)
	viewport, err := page.Viewport(scale)
	if err != nil {
		return domain.Viewport{}, domain.WrapError(domain.ErrPageDecode, fmt.Sprintf("viewport page %d", pageIndex+1), err)
	}
	if !validDimension(viewport.Width) || !validDimension(viewport.Height) || !validDimension(viewport.Scale) {
		return domain.Viewport{}, domain.WrapError(
			domain.ErrPageDecode,
			fmt.Sprintf("viewport page %d", pageIndex+1),
			fmt.Errorf("decoder returned invalid viewport %+v", viewport),
		)
	}
	return viewport, nil
}

// Rasterize renders one page and burns masks into the pixels before the
// buffer is handed back.
func (r *Rasterizer) Rasterize(
	ctx context.Context,
	doc ports.SourceDocument,
	pageIndex int,
	dpi float64,
	masks []domain.PDFRect,
) (*domain.RasterPage, error) {
	page, err := doc.Page(pageIndex)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPageDecode, fmt.Sprintf("open page %d", pageIndex+1), err)
	}
	viewport, err := r.Viewport(page, pageIndex, dpi)
	if err != nil {
		return nil, err
	}

	surface, err := r.acquireSurface(viewport)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRenderUnavailable, fmt.Sprintf("render page %d", pageIndex+1), err)
	}
	if err := page.RenderInto(ctx, surface, viewport); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.WrapError(domain.ErrPageDecode, fmt.Sprintf("render page %d", pageIndex+1), err)
	}

	for _, rect := range masks {
		paintMask(surface, domain.MapRectToDevice(rect, viewport))
	}

	return &domain.RasterPage{
		PageIndex: pageIndex,
		Image:     surface,
		Viewport:  viewport,
	}, nil
}

func (r *Rasterizer) acquireSurface(viewport domain.Viewport) (*image.RGBA, error) {
	width, height := viewport.SurfaceSize()
	if width > r.maxPixels/height {
		return nil, fmt.Errorf("surface %dx%d exceeds %d pixel budget", width, height, r.maxPixels)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height)), nil
}

func paintMask(surface *image.RGBA, rect domain.DeviceRect) {
	area := image.Rect(
		int(math.Floor(rect.X)),
		int(math.Floor(rect.Y)),
		int(math.Ceil(rect.X+rect.Width)),
		int(math.Ceil(rect.Y+rect.Height)),
	).Intersect(surface.Bounds())
	if area.Empty() {
		return
	}
	draw.Draw(surface, area, maskColor, image.Point{}, draw.Src)
}

func validDimension(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
