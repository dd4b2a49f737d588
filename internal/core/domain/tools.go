package domain

type Tool struct {
	ID               string `json:"id"`
	Label            string `json:"label"`
	Icon             string `json:"icon"`
	ShortDescription string `json:"shortDescription,omitempty"`
	Endpoint         string `json:"endpoint"`
}

func Tools() []Tool {
	return []Tool{
		{
			ID:               "pdf-ocr",
			Label:            "PDF OCR",
			Icon:             "text_snippet",
			ShortDescription: "Make scanned PDFs searchable with an invisible OCR text layer.",
			Endpoint:         "/v1/jobs/ocr",
		},
		{
			ID:               "pdf-redaction",
			Label:            "PDF Redaction",
			Icon:             "picture_as_pdf",
			ShortDescription: "Burn opaque masks into rasterized pages and record their provenance.",
			Endpoint:         "/v1/jobs/redaction",
		},
	}
}
