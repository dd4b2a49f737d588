package tesseract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/pngenc"
	"github.com/kirillkom/pdf-recompose/internal/infrastructure/resilience"
)

// Engine creates gosseract sessions. Each session wraps one Tesseract
// client and is reused across pages and runs.
type Engine struct {
	tessdataPrefix string
	executor       *resilience.Executor
	encoder        ports.ImageEncoder
}

func New(tessdataPrefix string, executor *resilience.Executor) *Engine {
	return &Engine{
		tessdataPrefix: strings.TrimSpace(tessdataPrefix),
		executor:       executor,
		encoder:        pngenc.New(),
	}
}

func (e *Engine) CreateSession(ctx context.Context, languages []string) (ports.OCRSession, error) {
	return resilience.Call(ctx, e.executor, resilience.OpOCRSession, func(ctx context.Context) (ports.OCRSession, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.checkLanguageData(languages); err != nil {
			return nil, err
		}
		client := gosseract.NewClient()
		if e.tessdataPrefix != "" {
			client.TessdataPrefix = e.tessdataPrefix
		}
		if err := configure(client, languages); err != nil {
			_ = client.Close()
			return nil, err
		}
		return &session{client: client, encoder: e.encoder, engine: e}, nil
	}, resilience.TemporaryKind)
}

// checkLanguageData fails early when traineddata files are missing; the
// client itself only notices on the first recognition.
func (e *Engine) checkLanguageData(languages []string) error {
	if len(languages) == 0 {
		return errors.New("no languages requested")
	}
	if e.tessdataPrefix == "" {
		return nil
	}
	var missing []string
	for _, lang := range languages {
		if _, err := os.Stat(filepath.Join(e.tessdataPrefix, lang+".traineddata")); err != nil {
			missing = append(missing, lang)
		}
	}
	if len(missing) > 0 {
		return domain.WrapError(
			domain.ErrUnsupportedLanguage,
			"tesseract language data",
			fmt.Errorf("missing traineddata for %s in %s", strings.Join(missing, ", "), e.tessdataPrefix),
		)
	}
	return nil
}

func configure(client *gosseract.Client, languages []string) error {
	if err := client.SetLanguage(languages...); err != nil {
		return fmt.Errorf("set languages: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return fmt.Errorf("set page segmentation mode: %w", err)
	}
	return nil
}

type session struct {
	client  *gosseract.Client
	encoder ports.ImageEncoder
	engine  *Engine
}

// Reinitialize switches languages; gosseract reloads models on the next call.
func (s *session) Reinitialize(ctx context.Context, languages []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.engine.checkLanguageData(languages); err != nil {
		return err
	}
	return configure(s.client, languages)
}

func (s *session) Recognize(ctx context.Context, surface *image.RGBA) (ports.RawRecognition, error) {
	if err := ctx.Err(); err != nil {
		return ports.RawRecognition{}, err
	}
	data, _, err := s.encoder.Encode(surface)
	if err != nil {
		return ports.RawRecognition{}, fmt.Errorf("encode page for recognition: %w", err)
	}
	if err := s.client.SetImageFromBytes(data); err != nil {
		return ports.RawRecognition{}, fmt.Errorf("set image: %w", err)
	}

	text, err := s.client.Text()
	if err != nil {
		return ports.RawRecognition{}, fmt.Errorf("recognize text: %w", err)
	}
	boxes, err := s.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return ports.RawRecognition{}, fmt.Errorf("word boxes: %w", err)
	}

	words := make([]ports.RawWord, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, ports.RawWord{
			Text:       b.Word,
			Confidence: b.Confidence,
			BBox: domain.BBox{
				X0: float64(b.Box.Min.X),
				Y0: float64(b.Box.Min.Y),
				X1: float64(b.Box.Max.X),
				Y1: float64(b.Box.Max.Y),
			},
		})
	}
	return ports.RawRecognition{Words: words, Text: text}, nil
}

func (s *session) Close() error {
	return s.client.Close()
}
