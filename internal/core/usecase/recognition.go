package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

const DefaultMinConfidence = 40

var DefaultBundledLanguages = []string{"eng", "fra", "deu", "osd"}

// Recognizer owns the single long-lived OCR session. A run takes a Lease for
// its whole duration; the session is reinitialized only when the language set
// changes between leases.
type Recognizer struct {
	engine        ports.OCREngine
	available     map[string]struct{}
	minConfidence float64

	slot      chan struct{}
	session   ports.OCRSession
	languages string
}

func NewRecognizer(engine ports.OCREngine, bundled []string, minConfidence float64) *Recognizer {
	if len(bundled) == 0 {
		bundled = DefaultBundledLanguages
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	available := make(map[string]struct{}, len(bundled))
	for _, code := range bundled {
		code = strings.ToLower(strings.TrimSpace(code))
		if code != "" {
			available[code] = struct{}{}
		}
	}
	return &Recognizer{
		engine:        engine,
		available:     available,
		minConfidence: minConfidence,
		slot:          make(chan struct{}, 1),
	}
}

// Available lists the bundled language codes, sorted.
func (r *Recognizer) Available() []string {
	out := make([]string, 0, len(r.available))
	for code := range r.available {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// NormalizeLanguages splits a "eng+deu" style request into bundled codes.
func (r *Recognizer) NormalizeLanguages(language string) ([]string, error) {
	seen := make(map[string]struct{})
	codes := make([]string, 0, 2)
	for _, part := range strings.Split(language, "+") {
		code := strings.ToLower(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil, domain.WrapError(domain.ErrUnsupportedLanguage, "normalize language", errors.New("no OCR language provided"))
	}

	var missing []string
	for _, code := range codes {
		if _, ok := r.available[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		return nil, domain.WrapError(
			domain.ErrUnsupportedLanguage,
			"normalize language",
			fmt.Errorf(
				"OCR language data not bundled for: %s. Available languages: %s",
				strings.Join(missing, ", "),
				strings.Join(r.Available(), ", "),
			),
		)
	}
	return codes, nil
}

// Lease blocks until the session is free, then prepares it for language.
func (r *Recognizer) Lease(ctx context.Context, language string) (*RecognitionLease, error) {
	codes, err := r.NormalizeLanguages(language)
	if err != nil {
		return nil, err
	}

	select {
	case r.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := r.ensureSession(ctx, codes); err != nil {
		<-r.slot
		return nil, err
	}
	return &RecognitionLease{recognizer: r}, nil
}

func (r *Recognizer) ensureSession(ctx context.Context, codes []string) error {
	key := strings.Join(codes, "+")
	if r.session == nil {
		session, err := r.engine.CreateSession(ctx, codes)
		if err != nil {
			return domain.WrapError(domain.ErrEngineUnavailable, "create ocr session", err)
		}
		r.session = session
		r.languages = key
		return nil
	}
	if r.languages == key {
		return nil
	}
	if err := r.session.Reinitialize(ctx, codes); err != nil {
		_ = r.session.Close()
		r.session = nil
		r.languages = ""
		return domain.WrapError(domain.ErrEngineUnavailable, "reinitialize ocr session", err)
	}
	r.languages = key
	return nil
}

// Close tears down the session. It waits for an active lease to finish.
func (r *Recognizer) Close() error {
	r.slot <- struct{}{}
	defer func() { <-r.slot }()
	if r.session == nil {
		return nil
	}
	err := r.session.Close()
	r.session = nil
	r.languages = ""
	return err
}

type RecognitionLease struct {
	recognizer *Recognizer
	once       sync.Once
}

// Recognize runs the engine on one raster page. Failures come back as a
// *domain.PageError carrying the first line of the engine message.
func (l *RecognitionLease) Recognize(ctx context.Context, page *domain.RasterPage) (domain.Recognition, error) {
	r := l.recognizer
	raw, err := r.session.Recognize(ctx, page.Image)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Recognition{}, ctxErr
		}
		return domain.Recognition{}, &domain.PageError{
			Kind:      domain.ErrRecognitionFailure,
			PageIndex: page.PageIndex,
			Message:   firstLine(err.Error()),
		}
	}

	words := make([]domain.OCRWord, 0, len(raw.Words))
	for _, w := range raw.Words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		if math.IsNaN(w.Confidence) || w.Confidence < r.minConfidence {
			continue
		}
		words = append(words, domain.OCRWord{Text: w.Text, Confidence: w.Confidence, BBox: w.BBox})
	}
	return domain.Recognition{Words: words, FullText: raw.Text}, nil
}

func (l *RecognitionLease) Release() {
	l.once.Do(func() { <-l.recognizer.slot })
}

func firstLine(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return strings.TrimSpace(message)
}
