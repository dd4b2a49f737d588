package pngenc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

// Encoder writes lossless PNG. Flattened pages carry masks as exact black
// pixels, so lossy formats are not offered.
type Encoder struct {
	enc png.Encoder
}

func New() *Encoder {
	return &Encoder{enc: png.Encoder{CompressionLevel: png.DefaultCompression, BufferPool: &bufferPool{}}}
}

func (e *Encoder) Encode(img image.Image) ([]byte, domain.ImageFormat, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, "", errors.New("png encode: empty image")
	}
	var buf bytes.Buffer
	if err := e.enc.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), domain.ImageFormatPNG, nil
}

type bufferPool struct {
	pool sync.Pool
}

func (p *bufferPool) Get() *png.EncoderBuffer {
	if b, ok := p.pool.Get().(*png.EncoderBuffer); ok {
		return b
	}
	return nil
}

func (p *bufferPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}
