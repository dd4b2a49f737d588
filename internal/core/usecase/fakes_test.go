package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

type decoderFake struct {
	pages   []domain.PageSize
	loadErr error
	// renderErr fails RenderInto for the given page index.
	renderErr map[int]error
	fill      color.Color

	loads int
	docs  []*sourceDocFake
}

func (f *decoderFake) Load(_ context.Context, source []byte) (ports.SourceDocument, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	fill := f.fill
	if fill == nil {
		fill = color.White
	}
	doc := &sourceDocFake{decoder: f, fill: fill}
	f.docs = append(f.docs, doc)
	return doc, nil
}

type sourceDocFake struct {
	decoder *decoderFake
	fill    color.Color
	closed  bool
}

func (d *sourceDocFake) PageCount() int { return len(d.decoder.pages) }

func (d *sourceDocFake) Page(index int) (ports.PageHandle, error) {
	if index < 0 || index >= len(d.decoder.pages) {
		return nil, fmt.Errorf("page %d out of range", index)
	}
	return &pageFake{size: d.decoder.pages[index], err: d.decoder.renderErr[index], fill: d.fill}, nil
}

func (d *sourceDocFake) Close() error {
	d.closed = true
	return nil
}

type pageFake struct {
	size domain.PageSize
	err  error
	fill color.Color
}

func (p *pageFake) Viewport(scale float64) (domain.Viewport, error) {
	return domain.Viewport{Width: p.size.Width * scale, Height: p.size.Height * scale, Scale: scale}, nil
}

func (p *pageFake) RenderInto(_ context.Context, surface *image.RGBA, _ domain.Viewport) error {
	if p.err != nil {
		return p.err
	}
	draw.Draw(surface, surface.Bounds(), image.NewUniform(p.fill), image.Point{}, draw.Src)
	return nil
}

type pngEncoderFake struct {
	err error
}

func (e pngEncoderFake) Encode(img image.Image) ([]byte, domain.ImageFormat, error) {
	if e.err != nil {
		return nil, "", e.err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), domain.ImageFormatPNG, nil
}

type drawnText struct {
	text  string
	style ports.TextStyle
}

type composedPage struct {
	size   domain.PageSize
	image  []byte
	rect   domain.PDFRect
	texts  []drawnText
	images int
}

type composerFake struct {
	createErr error
	saveErr   error
	docs      []*outputDocFake
}

func (f *composerFake) Create() (ports.OutputDocument, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	doc := &outputDocFake{saveErr: f.saveErr, images: map[ports.ImageRef][]byte{}}
	f.docs = append(f.docs, doc)
	return doc, nil
}

func (f *composerFake) last() *outputDocFake {
	if len(f.docs) == 0 {
		return nil
	}
	return f.docs[len(f.docs)-1]
}

type outputDocFake struct {
	pages   []*composedPage
	images  map[ports.ImageRef][]byte
	saveErr error
	saved   ports.SaveOptions
}

func (d *outputDocFake) AddPage(size domain.PageSize) (ports.OutputPage, error) {
	page := &composedPage{size: size}
	d.pages = append(d.pages, page)
	return &outputPageFake{doc: d, page: page}, nil
}

func (d *outputDocFake) EmbedImage(data []byte, format domain.ImageFormat) (ports.ImageRef, error) {
	if format != domain.ImageFormatPNG {
		return "", fmt.Errorf("unexpected format %q", format)
	}
	ref := ports.ImageRef(fmt.Sprintf("img-%d", len(d.images)))
	d.images[ref] = append([]byte(nil), data...)
	return ref, nil
}

// Save emits a deterministic rendering of everything drawn.
func (d *outputDocFake) Save(opts ports.SaveOptions) ([]byte, error) {
	if d.saveErr != nil {
		return nil, d.saveErr
	}
	d.saved = opts
	var buf bytes.Buffer
	buf.WriteString("%FAKEPDF\n")
	for i, page := range d.pages {
		fmt.Fprintf(&buf, "page %d %.4f %.4f\n", i, page.size.Width, page.size.Height)
		buf.Write(page.image)
		for _, t := range page.texts {
			fmt.Fprintf(&buf, "text %q %.4f %.4f %.4f\n", t.text, t.style.X, t.style.Y, t.style.Size)
		}
	}
	return buf.Bytes(), nil
}

type outputPageFake struct {
	doc  *outputDocFake
	page *composedPage
}

func (p *outputPageFake) DrawImage(ref ports.ImageRef, rect domain.PDFRect) error {
	data, ok := p.doc.images[ref]
	if !ok {
		return errors.New("unknown image ref")
	}
	p.page.image = data
	p.page.rect = rect
	p.page.images++
	return nil
}

func (p *outputPageFake) DrawText(text string, style ports.TextStyle) error {
	p.page.texts = append(p.page.texts, drawnText{text: text, style: style})
	return nil
}

type engineFake struct {
	createErr error
	// results are returned in order; the last one repeats.
	results []sessionResult

	created []*sessionFake
}

type sessionResult struct {
	raw ports.RawRecognition
	err error
}

func (e *engineFake) CreateSession(_ context.Context, languages []string) (ports.OCRSession, error) {
	if e.createErr != nil {
		return nil, e.createErr
	}
	s := &sessionFake{engine: e, languages: append([]string(nil), languages...)}
	e.created = append(e.created, s)
	return s, nil
}

type sessionFake struct {
	engine    *engineFake
	languages []string
	reinits   int
	reinitErr error
	calls     int
	sizes     []image.Point
	closed    bool
}

func (s *sessionFake) Reinitialize(_ context.Context, languages []string) error {
	s.reinits++
	if s.reinitErr != nil {
		return s.reinitErr
	}
	s.languages = append([]string(nil), languages...)
	return nil
}

func (s *sessionFake) Recognize(_ context.Context, surface *image.RGBA) (ports.RawRecognition, error) {
	s.calls++
	s.sizes = append(s.sizes, surface.Bounds().Size())
	results := s.engine.results
	if len(results) == 0 {
		return ports.RawRecognition{}, nil
	}
	idx := s.calls - 1
	if idx >= len(results) {
		idx = len(results) - 1
	}
	return results[idx].raw, results[idx].err
}

func (s *sessionFake) Close() error {
	s.closed = true
	return nil
}

type progressLog struct {
	events []domain.Progress
}

func (l *progressLog) sink(p domain.Progress) { l.events = append(l.events, p) }

func (l *progressLog) forPage(pageIndex int) []domain.Progress {
	var out []domain.Progress
	for _, e := range l.events {
		if e.PageIndex == pageIndex {
			out = append(out, e)
		}
	}
	return out
}

func newTestOCRPipeline(decoder *decoderFake, engine *engineFake, composer *composerFake) (*OCRPipeline, *Recognizer) {
	recognizer := NewRecognizer(engine, nil, 0)
	return NewOCRPipeline(
		decoder,
		NewRasterizer(0),
		recognizer,
		NewOutputComposer(composer, pngEncoderFake{}),
		nil,
	), recognizer
}

func newTestRedactionPipeline(decoder *decoderFake, composer *composerFake) *RedactionPipeline {
	return NewRedactionPipeline(decoder, NewRasterizer(0), NewOutputComposer(composer, pngEncoderFake{}), nil)
}

func decodePNG(data []byte) (image.Image, error) {
	return png.Decode(bytes.NewReader(data))
}
