package usecase

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
	"github.com/kirillkom/pdf-recompose/internal/core/ports"
)

func testRaster(pageIndex, w, h int) *domain.RasterPage {
	return &domain.RasterPage{
		PageIndex: pageIndex,
		Image:     image.NewRGBA(image.Rect(0, 0, w, h)),
		Viewport:  domain.Viewport{Width: float64(w), Height: float64(h), Scale: 1},
	}
}

func TestNormalizeLanguages(t *testing.T) {
	r := NewRecognizer(&engineFake{}, nil, 0)

	codes, err := r.NormalizeLanguages(" ENG+deu+eng+ ")
	if err != nil {
		t.Fatalf("NormalizeLanguages() error = %v", err)
	}
	if strings.Join(codes, ",") != "eng,deu" {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestNormalizeLanguagesUnsupported(t *testing.T) {
	r := NewRecognizer(&engineFake{}, nil, 0)

	_, err := r.NormalizeLanguages("eng+xx")
	if !errors.Is(err, domain.ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
	want := "OCR language data not bundled for: xx. Available languages: deu, eng, fra, osd"
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("expected message %q in %q", want, err.Error())
	}
}

func TestNormalizeLanguagesEmpty(t *testing.T) {
	r := NewRecognizer(&engineFake{}, nil, 0)

	_, err := r.NormalizeLanguages(" + ")
	if !errors.Is(err, domain.ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
	if !strings.Contains(err.Error(), "no OCR language provided") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestRecognizerFiltersLowConfidenceAndBlankWords(t *testing.T) {
	engine := &engineFake{results: []sessionResult{{raw: ports.RawRecognition{
		Text: "Hello world",
		Words: []ports.RawWord{
			{Text: "Hello", Confidence: 95, BBox: domain.BBox{X0: 1, Y0: 2, X1: 30, Y1: 12}},
			{Text: "world", Confidence: 10},
			{Text: "   ", Confidence: 99},
			{Text: " pad ", Confidence: 40},
		},
	}}}}
	r := NewRecognizer(engine, nil, 0)

	lease, err := r.Lease(context.Background(), "eng")
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	defer lease.Release()

	got, err := lease.Recognize(context.Background(), testRaster(0, 100, 100))
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if len(got.Words) != 2 {
		t.Fatalf("expected 2 words, got %+v", got.Words)
	}
	if got.Words[0].Text != "Hello" || got.Words[0].BBox.X1 != 30 {
		t.Fatalf("unexpected first word %+v", got.Words[0])
	}
	if got.Words[1].Text != " pad " {
		t.Fatalf("expected text kept verbatim, got %q", got.Words[1].Text)
	}
	if got.FullText != "Hello world" {
		t.Fatalf("unexpected full text %q", got.FullText)
	}
}

func TestRecognizerEngineErrorBecomesPageError(t *testing.T) {
	engine := &engineFake{results: []sessionResult{{err: errors.New("A\nB")}}}
	r := NewRecognizer(engine, nil, 0)

	lease, err := r.Lease(context.Background(), "eng")
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	defer lease.Release()

	_, err = lease.Recognize(context.Background(), testRaster(2, 100, 100))
	var pageErr *domain.PageError
	if !errors.As(err, &pageErr) {
		t.Fatalf("expected PageError, got %v", err)
	}
	if pageErr.Message != "A" || pageErr.PageIndex != 2 {
		t.Fatalf("unexpected page error %+v", pageErr)
	}
	if !errors.Is(err, domain.ErrRecognitionFailure) {
		t.Fatalf("expected ErrRecognitionFailure kind, got %v", err)
	}
}

func TestRecognizerReinitializesOnlyOnLanguageChange(t *testing.T) {
	engine := &engineFake{}
	r := NewRecognizer(engine, nil, 0)
	ctx := context.Background()

	for _, lang := range []string{"eng", "eng", "deu", "deu", "eng"} {
		lease, err := r.Lease(ctx, lang)
		if err != nil {
			t.Fatalf("Lease(%q) error = %v", lang, err)
		}
		lease.Release()
	}

	if len(engine.created) != 1 {
		t.Fatalf("expected one session, got %d", len(engine.created))
	}
	session := engine.created[0]
	if session.reinits != 2 {
		t.Fatalf("expected 2 reinitializations, got %d", session.reinits)
	}
	if strings.Join(session.languages, "+") != "eng" {
		t.Fatalf("unexpected session languages %v", session.languages)
	}
}

func TestRecognizerReinitFailureDropsSession(t *testing.T) {
	engine := &engineFake{}
	r := NewRecognizer(engine, nil, 0)
	ctx := context.Background()

	lease, err := r.Lease(ctx, "eng")
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	lease.Release()
	engine.created[0].reinitErr = errors.New("tessdata missing")

	if _, err := r.Lease(ctx, "fra"); !errors.Is(err, domain.ErrEngineUnavailable) || errors.Is(err, domain.ErrRecognitionFailure) {
		t.Fatalf("expected ErrEngineUnavailable only, got %v", err)
	}
	if !engine.created[0].closed {
		t.Fatalf("expected failed session to be closed")
	}

	lease, err = r.Lease(ctx, "fra")
	if err != nil {
		t.Fatalf("Lease() after failure error = %v", err)
	}
	lease.Release()
	if len(engine.created) != 2 {
		t.Fatalf("expected a fresh session, got %d", len(engine.created))
	}
}

func TestRecognizerCreateFailure(t *testing.T) {
	r := NewRecognizer(&engineFake{createErr: errors.New("no engine")}, nil, 0)

	if _, err := r.Lease(context.Background(), "eng"); !errors.Is(err, domain.ErrEngineUnavailable) || errors.Is(err, domain.ErrRecognitionFailure) {
		t.Fatalf("expected ErrEngineUnavailable only, got %v", err)
	}
	// The slot must be free again.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.engine = &engineFake{}
	lease, err := r.Lease(ctx, "eng")
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	lease.Release()
}

func TestRecognizerLeaseIsExclusive(t *testing.T) {
	r := NewRecognizer(&engineFake{}, nil, 0)

	first, err := r.Lease(context.Background(), "eng")
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Lease(ctx, "eng"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second lease to wait, got %v", err)
	}

	first.Release()
	first.Release()
	second, err := r.Lease(context.Background(), "eng")
	if err != nil {
		t.Fatalf("Lease() after release error = %v", err)
	}
	second.Release()
}

func TestRecognizerClose(t *testing.T) {
	engine := &engineFake{}
	r := NewRecognizer(engine, nil, 0)

	lease, err := r.Lease(context.Background(), "eng")
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	lease.Release()

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !engine.created[0].closed {
		t.Fatalf("expected session closed")
	}
}
