package xlsx

import (
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

const (
	SummarySheet = "Summary"
	MarksSheet   = "Marks"
)

var marksHeader = []interface{}{"Page", "X", "Y", "Width", "Height", "Reason"}

// Reporter renders the provenance record of a redaction job as a workbook.
type Reporter struct{}

func New() *Reporter {
	return &Reporter{}
}

func (r *Reporter) Render(job *domain.Job) ([]byte, error) {
	if job == nil || job.Spec == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "render provenance report", errors.New("job carries no redaction spec"))
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, wrapReportError("rename summary sheet", err)
	}
	if err := writeSummary(f, job); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(MarksSheet); err != nil {
		return nil, wrapReportError("create marks sheet", err)
	}
	if err := writeMarks(f, job.Spec.Marks); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, wrapReportError("write workbook", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, job *domain.Job) error {
	rows := [][]interface{}{
		{"Job ID", job.ID},
		{"File name", job.Filename},
		{"PDF hash", job.Spec.PDFHash},
		{"Spec created at", job.Spec.CreatedAt},
		{"Job created at", job.CreatedAt.UTC().Format(time.RFC3339)},
		{"Pages", job.PageCount},
		{"DPI", job.DPI},
		{"Status", string(job.Status)},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return wrapReportError("summary cell", err)
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return wrapReportError("write summary row", err)
		}
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 18); err != nil {
		return wrapReportError("size summary column", err)
	}
	return f.SetColWidth(SummarySheet, "B", "B", 70)
}

func writeMarks(f *excelize.File, marks []domain.RedactionMark) error {
	header := marksHeader
	if err := f.SetSheetRow(MarksSheet, "A1", &header); err != nil {
		return wrapReportError("write marks header", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(MarksSheet, "A1", "F1", style)
	}

	row := 2
	for _, mark := range marks {
		for _, rect := range mark.Rects {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return wrapReportError("marks cell", err)
			}
			values := []interface{}{mark.PageIndex + 1, rect.X, rect.Y, rect.Width, rect.Height, mark.Reason}
			if err := f.SetSheetRow(MarksSheet, cell, &values); err != nil {
				return wrapReportError(fmt.Sprintf("write mark row %d", row), err)
			}
			row++
		}
	}
	return nil
}

func wrapReportError(op string, err error) error {
	return domain.WrapError(domain.ErrEncodingFailure, op, err)
}
