package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mydiplomaclassresults/sbtet-scraper/models"
)

// Fixed submission parameters replayed alongside the captured form fields.
// Field names come from the live portal form; aadhar1 carries the PIN.
const (
	modeField     = "mode"
	modeValue     = "getData"
	pinField      = "aadhar1"
	semesterField = "grade2"
)

// fetchOne submits the result query for a single identifier and classifies
// the response body. A nil response with nil error means the portal answered
// in an unrecognized format and the identifier should be skipped.
func (s *Scraper) fetchOne(ctx context.Context, pin, semester string) (*models.RawResponse, error) {
	form, err := s.AnalyzeForm(ctx)
	if err != nil {
		return nil, err
	}

	data := make(map[string]string, len(form.Fields)+3)
	for name, value := range form.Fields {
		data[name] = value
	}
	data[modeField] = modeValue
	data[pinField] = pin
	data[semesterField] = semester

	submitURL, err := s.resolveAgainstBase(form.Action)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.client.R().SetContext(ctx).SetFormData(data).Post(submitURL)
	s.Metrics.IncRequest("fetch")
	s.Metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("http status %d for pin %s", resp.StatusCode(), pin)
	}

	contentType := strings.ToLower(resp.Header().Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "application/pdf"):
		return &models.RawResponse{Kind: models.ContentPDF, Body: resp.Body()}, nil
	case strings.Contains(contentType, "text/html"):
		return &models.RawResponse{Kind: models.ContentHTML, Body: resp.Body()}, nil
	}
	return nil, nil
}

// fetchPDF downloads a PDF result sheet linked from an HTML response.
func (s *Scraper) fetchPDF(ctx context.Context, pdfURL string) ([]byte, error) {
	resolved, err := s.resolveAgainstBase(pdfURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.client.R().SetContext(ctx).Get(resolved)
	s.Metrics.IncRequest("fetch_pdf")
	s.Metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("http status %d fetching pdf", resp.StatusCode())
	}
	return resp.Body(), nil
}

// resolveAgainstBase resolves a possibly relative URL against the selected
// base endpoint. An empty reference resolves to the base itself.
func (s *Scraper) resolveAgainstBase(ref string) (string, error) {
	base := s.WorkingURL()
	if ref == "" {
		return base, nil
	}
	if strings.HasPrefix(ref, "http") {
		return ref, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference url %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
