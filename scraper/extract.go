package scraper

import (
	"context"
	"fmt"

	"github.com/mydiplomaclassresults/sbtet-scraper/models"
	"github.com/mydiplomaclassresults/sbtet-scraper/parser"
)

// extract turns a classified raw response into a student record. An HTML page
// that merely links to a PDF result sheet redirects extraction to the PDF
// path. A nil record with nil error means the portal reported no result for
// this identifier.
func (s *Scraper) extract(ctx context.Context, pin string, raw *models.RawResponse) (*models.StudentRecord, error) {
	switch raw.Kind {
	case models.ContentPDF:
		return s.extractPDF(pin, raw.Body)
	case models.ContentHTML:
		record, pdfLink, err := parser.ParseHTML(pin, raw.Body)
		if err != nil {
			return nil, err
		}
		if pdfLink != "" {
			body, err := s.fetchPDF(ctx, pdfLink)
			if err != nil {
				return nil, fmt.Errorf("fetch linked pdf: %w", err)
			}
			return s.extractPDF(pin, body)
		}
		return record, nil
	}
	return nil, nil
}

func (s *Scraper) extractPDF(pin string, body []byte) (*models.StudentRecord, error) {
	text, err := s.pdfText(body)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	return parser.ParsePDFText(pin, text), nil
}
