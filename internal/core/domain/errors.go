package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrJobNotFound  = errors.New("job not found")
	ErrTemporary    = errors.New("temporary failure")
	ErrHashMismatch = errors.New("source hash mismatch")

	ErrPageDecode          = errors.New("page decode error")
	ErrRenderUnavailable   = errors.New("render surface unavailable")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrRecognitionFailure  = errors.New("recognition failure")
	ErrEngineUnavailable   = errors.New("ocr engine unavailable")
	ErrSkippedTooSmall     = errors.New("page too small for recognition")
	ErrEncodingFailure     = errors.New("encoding failure")
	ErrCryptoUnavailable   = errors.New("digest provider unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// PageError is a non-fatal condition scoped to one page. Message is a single
// human-readable line.
type PageError struct {
	Kind      error
	PageIndex int
	Message   string
}

func (e *PageError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *PageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Kind
}
