package services

import (
	"bytes"
	"errors"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFService extracts plain text from uploaded PDF bytes.
type PDFService struct{}

func NewPDFService() *PDFService {
	return &PDFService{}
}

// ExtractText reads every page of the PDF and concatenates its plain text.
// Unreadable, empty, or text-free documents return an *ExtractionError.
func (s *PDFService) ExtractText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &ExtractionError{Err: errors.New("empty file")}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Err: err}
	}
	if reader.NumPage() == 0 {
		return "", &ExtractionError{Err: errors.New("pdf has no pages")}
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", &ExtractionError{Err: err}
		}
		if strings.TrimSpace(content) != "" {
			parts = append(parts, content)
		}
	}

	text := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if text == "" {
		return "", &ExtractionError{Err: errors.New("no text could be extracted")}
	}
	return text, nil
}
