package pdfinspect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

// Inspector reads page geometry without rendering, so uploads can be
// rejected before a job is queued.
type Inspector struct {
	maxPages int
}

func New(maxPages int) *Inspector {
	return &Inspector{maxPages: maxPages}
}

func (i *Inspector) Inspect(ctx context.Context, source []byte) (info domain.SourceInfo, err error) {
	if err := ctx.Err(); err != nil {
		return domain.SourceInfo{}, err
	}
	if len(source) == 0 {
		return domain.SourceInfo{}, domain.WrapError(domain.ErrPageDecode, "inspect pdf", errors.New("empty document"))
	}
	defer func() {
		if r := recover(); r != nil {
			info = domain.SourceInfo{}
			err = domain.WrapError(domain.ErrPageDecode, "inspect pdf", fmt.Errorf("malformed document: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(source), int64(len(source)))
	if err != nil {
		return domain.SourceInfo{}, domain.WrapError(domain.ErrPageDecode, "inspect pdf", err)
	}
	count := reader.NumPage()
	if count <= 0 {
		return domain.SourceInfo{}, domain.WrapError(domain.ErrPageDecode, "inspect pdf", errors.New("document has no pages"))
	}
	if i.maxPages > 0 && count > i.maxPages {
		return domain.SourceInfo{}, domain.WrapError(
			domain.ErrInvalidInput,
			"inspect pdf",
			fmt.Errorf("document has %d pages; limit is %d", count, i.maxPages),
		)
	}

	info = domain.SourceInfo{PageCount: count, Pages: make([]domain.PageSize, 0, count)}
	for n := 1; n <= count; n++ {
		if err := ctx.Err(); err != nil {
			return domain.SourceInfo{}, err
		}
		size, err := pageSize(reader.Page(n).V)
		if err != nil {
			return domain.SourceInfo{}, domain.WrapError(domain.ErrPageDecode, fmt.Sprintf("inspect page %d", n), err)
		}
		info.Pages = append(info.Pages, size)
	}
	return info, nil
}

// pageSize resolves the visible box, walking the page tree for inherited
// attributes, and applies /Rotate.
func pageSize(page pdf.Value) (domain.PageSize, error) {
	if page.IsNull() {
		return domain.PageSize{}, errors.New("page object missing")
	}
	box, ok := inheritedBox(page, "CropBox")
	if !ok {
		box, ok = inheritedBox(page, "MediaBox")
	}
	if !ok {
		return domain.PageSize{}, errors.New("no MediaBox in page tree")
	}

	size := domain.PageSize{
		Width:  math.Abs(box[2] - box[0]),
		Height: math.Abs(box[3] - box[1]),
	}
	if size.Width <= 0 || size.Height <= 0 {
		return domain.PageSize{}, fmt.Errorf("degenerate page box %v", box)
	}
	if rotate := inherited(page, "Rotate"); !rotate.IsNull() {
		if deg := ((rotate.Int64() % 360) + 360) % 360; deg == 90 || deg == 270 {
			size.Width, size.Height = size.Height, size.Width
		}
	}
	return size, nil
}

func inheritedBox(page pdf.Value, key string) ([4]float64, bool) {
	v := inherited(page, key)
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return [4]float64{}, false
	}
	var box [4]float64
	for i := range box {
		box[i] = v.Index(i).Float64()
	}
	return box, true
}

func inherited(page pdf.Value, key string) pdf.Value {
	// Bounded walk guards against cyclic /Parent chains.
	for depth, node := 0, page; depth < 64 && !node.IsNull(); depth++ {
		if v := node.Key(key); !v.IsNull() {
			return v
		}
		node = node.Key("Parent")
	}
	return pdf.Value{}
}
