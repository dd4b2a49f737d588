package domain

import "math"

const (
	PointsPerInch = 72

	// MinOCRDimension is the smallest raster edge, in device pixels, sent to recognition.
	MinOCRDimension = 16
	// MinSurfaceDimension is the smallest raster edge the rasterizer produces.
	MinSurfaceDimension = 2

	minGlyphHeightPt = 2
	minFontSizePt    = 4
	fontSizeRatio    = 0.9
	minMaskDevicePx  = 2
)

// BBox is a box in image-pixel space, origin top-left.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Viewport is the device-pixel frame used to render one page. Width and
// Height are fractional; the raster surface rounds them down.
type Viewport struct {
	Width  float64
	Height float64
	Scale  float64
}

// PageSize is expressed in PDF points.
type PageSize struct {
	Width  float64 `json:"widthPt"`
	Height float64 `json:"heightPt"`
}

// PDFRect is a rectangle in PDF point space, origin bottom-left.
type PDFRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DeviceRect is a rectangle in device pixels, origin top-left.
type DeviceRect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// WordPlacement is where an invisible text run lands on the output page.
type WordPlacement struct {
	X        float64
	Y        float64
	Width    float64
	Height   float64
	FontSize float64
}

// ScaleForDPI never returns less than 1 so pages are not rendered below
// their native resolution.
func ScaleForDPI(dpi float64) float64 {
	return math.Max(dpi, PointsPerInch) / PointsPerInch
}

// ViewportForDPI derives the render frame for a page of the given point size.
func ViewportForDPI(page PageSize, dpi float64) Viewport {
	scale := ScaleForDPI(dpi)
	return Viewport{
		Width:  page.Width * scale,
		Height: page.Height * scale,
		Scale:  scale,
	}
}

// SurfaceSize is the integer pixel size of the raster surface for v.
func (v Viewport) SurfaceSize() (int, int) {
	return surfaceEdge(v.Width), surfaceEdge(v.Height)
}

// PageSize converts the viewport back to points.
func (v Viewport) PageSize() PageSize {
	if v.Scale <= 0 {
		return PageSize{}
	}
	return PageSize{Width: v.Width / v.Scale, Height: v.Height / v.Scale}
}

func surfaceEdge(v float64) int {
	if math.IsNaN(v) || v < MinSurfaceDimension {
		return MinSurfaceDimension
	}
	return int(math.Floor(v))
}

// MapWordToPDF places an image-space box on a page of pageHeightPt points.
// scaleFactor converts device pixels to points.
func MapWordToPDF(box BBox, scaleFactor, pageHeightPt float64) WordPlacement {
	width := (box.X1 - box.X0) * scaleFactor
	height := math.Max((box.Y1-box.Y0)*scaleFactor, minGlyphHeightPt)
	return WordPlacement{
		X:        box.X0 * scaleFactor,
		Y:        pageHeightPt - box.Y1*scaleFactor,
		Width:    width,
		Height:   height,
		FontSize: math.Max(height*fontSizeRatio, minFontSizePt),
	}
}

// MapRectToDevice converts a redaction rectangle to the viewport's device
// pixels, flipping the Y axis.
func MapRectToDevice(rect PDFRect, v Viewport) DeviceRect {
	s := v.Scale
	return DeviceRect{
		X:      rect.X * s,
		Y:      v.Height - (rect.Y+rect.Height)*s,
		Width:  math.Max(rect.Width*s, minMaskDevicePx),
		Height: math.Max(rect.Height*s, minMaskDevicePx),
	}
}

// ShouldSkipOCR reports whether a raster is too small for reliable recognition.
func ShouldSkipOCR(width, height int) bool {
	return width < MinOCRDimension || height < MinOCRDimension
}
