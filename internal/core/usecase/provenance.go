package usecase

import (
	"crypto"
	_ "crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

// ISO8601Millis matches the millisecond UTC form used by redaction specs.
const ISO8601Millis = "2006-01-02T15:04:05.000Z"

type ProvenanceBuilder struct {
	algorithm crypto.Hash
	now       func() time.Time
}

func NewProvenanceBuilder() *ProvenanceBuilder {
	return NewProvenanceBuilderWith(crypto.SHA256, time.Now)
}

func NewProvenanceBuilderWith(algorithm crypto.Hash, now func() time.Time) *ProvenanceBuilder {
	if now == nil {
		now = time.Now
	}
	return &ProvenanceBuilder{algorithm: algorithm, now: now}
}

// Hash digests the exact source bytes and returns lowercase hex.
func (b *ProvenanceBuilder) Hash(source []byte) (string, error) {
	if !b.algorithm.Available() {
		return "", domain.WrapError(
			domain.ErrCryptoUnavailable,
			"hash source",
			fmt.Errorf("digest %s is not linked into the binary", b.algorithm),
		)
	}
	h := b.algorithm.New()
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// BuildSpec stamps marks with the current time. Mark geometry is taken as is.
func (b *ProvenanceBuilder) BuildSpec(marks []domain.RedactionMark, pdfHash string) domain.RedactionSpec {
	return domain.RedactionSpec{
		Marks:     marks,
		PDFHash:   pdfHash,
		CreatedAt: b.now().UTC().Format(ISO8601Millis),
	}
}
