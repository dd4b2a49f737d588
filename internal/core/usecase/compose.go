package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

const (
	invisibleTextFont    = "Helvetica"
	invisibleTextOpacity = 0.001
)

var invisibleTextColor = [3]float64{1, 1, 1}

// OutputComposer assembles flattened pages into a new PDF through a
// ports.DocumentComposer.
type OutputComposer struct {
	composer ports.DocumentComposer
	encoder  ports.ImageEncoder
}

func NewOutputComposer(composer ports.DocumentComposer, encoder ports.ImageEncoder) *OutputComposer {
	return &OutputComposer{composer: composer, encoder: encoder}
}

func (c *OutputComposer) Begin() (*Composition, error) {
	doc, err := c.composer.Create()
	if err != nil {
		return nil, domain.WrapError(domain.ErrEncodingFailure, "create output document", err)
	}
	return &Composition{doc: doc, encoder: c.encoder}, nil
}

// Composition is one output document under construction. Pages are appended
// strictly in order.
type Composition struct {
	doc     ports.OutputDocument
	encoder ports.ImageEncoder
	pages   int
}

// AddRasterPage encodes raster, adds a page of the matching point size with
// the image filling it, then overlays words as invisible text.
func (c *Composition) AddRasterPage(raster *domain.RasterPage, words []domain.OCRWord) error {
	op := fmt.Sprintf("compose page %d", raster.PageIndex+1)
	if raster.Image == nil {
		return domain.WrapError(domain.ErrEncodingFailure, op, errors.New("raster buffer already released"))
	}

	data, format, err := c.encoder.Encode(raster.Image)
	if err != nil {
		return domain.WrapError(domain.ErrEncodingFailure, op, err)
	}
	if len(data) == 0 {
		return domain.WrapError(domain.ErrEncodingFailure, op, errors.New("encoder produced no bytes"))
	}

	size := raster.Viewport.PageSize()
	page, err := c.doc.AddPage(size)
	if err != nil {
		return domain.WrapError(domain.ErrEncodingFailure, op, fmt.Errorf("add page: %w", err))
	}
	ref, err := c.doc.EmbedImage(data, format)
	if err != nil {
		return domain.WrapError(domain.ErrEncodingFailure, op, fmt.Errorf("embed image: %w", err))
	}
	if err := page.DrawImage(ref, domain.PDFRect{Width: size.Width, Height: size.Height}); err != nil {
		return domain.WrapError(domain.ErrEncodingFailure, op, fmt.Errorf("draw image: %w", err))
	}

	scaleFactor := 1 / raster.Viewport.Scale
	for _, word := range words {
		text := strings.TrimSpace(word.Text)
		if text == "" {
			continue
		}
		placement := domain.MapWordToPDF(word.BBox, scaleFactor, size.Height)
		err := page.DrawText(text, ports.TextStyle{
			X:       placement.X,
			Y:       placement.Y,
			Size:    placement.FontSize,
			Font:    invisibleTextFont,
			Color:   invisibleTextColor,
			Opacity: invisibleTextOpacity,
		})
		if err != nil {
			return domain.WrapError(domain.ErrEncodingFailure, op, fmt.Errorf("draw text: %w", err))
		}
	}
	c.pages++
	return nil
}

func (c *Composition) Pages() int { return c.pages }

// Finish serializes the document without object streams.
func (c *Composition) Finish() ([]byte, error) {
	out, err := c.doc.Save(ports.SaveOptions{UseObjectStreams: false})
	if err != nil {
		return nil, domain.WrapError(domain.ErrEncodingFailure, "save output document", err)
	}
	return out, nil
}
