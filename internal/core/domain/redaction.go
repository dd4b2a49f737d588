package domain

// RedactionMark is one logical redaction on a page.
type RedactionMark struct {
	PageIndex int       `json:"pageIndex"`
	Rects     []PDFRect `json:"rects"`
	Reason    string    `json:"reason,omitempty"`
}

// RedactionSpec records which marks were applied to which exact source bytes.
// PDFHash is the lowercase hex SHA-256 of the source; CreatedAt is ISO-8601.
type RedactionSpec struct {
	Marks     []RedactionMark `json:"marks"`
	PDFHash   string          `json:"pdfHash"`
	CreatedAt string          `json:"createdAt"`
}

// RectsByPage flattens marks into per-page rectangle lists.
func (s RedactionSpec) RectsByPage() map[int][]PDFRect {
	grouped := make(map[int][]PDFRect)
	for _, mark := range s.Marks {
		grouped[mark.PageIndex] = append(grouped[mark.PageIndex], mark.Rects...)
	}
	return grouped
}

// SourceInfo is what a preflight inspection learns about a source PDF.
type SourceInfo struct {
	PageCount int        `json:"pageCount"`
	Pages     []PageSize `json:"pages,omitempty"`
}
