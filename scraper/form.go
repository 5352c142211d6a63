package scraper

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mydiplomaclassresults/sbtet-scraper/models"
)

// Pages shorter than this are almost certainly an upstream error page, not
// the real query form.
const minPlausibleBody = 512

// AnalyzeForm captures the portal's query form: the action URL plus every
// hidden and text input needed to replay a valid submission. The result is
// cached for the scraper's lifetime; subsequent calls return the cached spec
// without network I/O.
func (s *Scraper) AnalyzeForm(ctx context.Context) (*models.FormSpec, error) {
	s.mu.Lock()
	if s.form != nil {
		form := s.form
		s.mu.Unlock()
		return form, nil
	}
	s.mu.Unlock()

	base, err := s.Probe(ctx)
	if err != nil {
		return nil, err
	}

	body, err := s.fetchFormPage(ctx, base)
	if err != nil {
		return nil, err
	}

	form, err := parseFormSpec(body)
	if err != nil {
		return nil, ErrFormNotFound{Err: err}
	}

	s.mu.Lock()
	s.form = form
	s.mu.Unlock()

	slog.Info("form analysis complete",
		slog.String("action", form.Action),
		slog.Int("fields", len(form.Fields)),
	)
	return form, nil
}

// FormStructure exposes the captured action URL and field count for the
// connection-test endpoint.
func (s *Scraper) FormStructure(ctx context.Context) (action string, fieldCount int, err error) {
	form, err := s.AnalyzeForm(ctx)
	if err != nil {
		return "", 0, err
	}
	return form.Action, len(form.Fields), nil
}

// fetchFormPage retrieves the base page under fallback configurations:
// verified TLS, verified with a longer timeout, then verification disabled.
// The portal's certificate chain is broken often enough that the last resort
// is required in practice.
func (s *Scraper) fetchFormPage(ctx context.Context, base string) ([]byte, error) {
	attempts := []struct {
		timeout  time.Duration
		insecure bool
	}{
		{s.cfg.RequestTimeout, false},
		{2 * s.cfg.RequestTimeout, false},
		{2 * s.cfg.RequestTimeout, true},
	}

	// Form analysis runs once, before any workers share the session.
	defer s.client.SetTimeout(s.cfg.RequestTimeout)
	defer s.client.SetTLSClientConfig(&tls.Config{})

	var lastErr error
	for _, attempt := range attempts {
		s.client.SetTimeout(attempt.timeout)
		if attempt.insecure {
			s.client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
			slog.Warn("retrying form fetch with certificate verification disabled",
				slog.String("url", base),
			)
		}

		start := time.Now()
		resp, err := s.client.R().SetContext(ctx).Get(base)
		s.Metrics.IncRequest("form")
		s.Metrics.ObserveDuration(time.Since(start))

		if err != nil {
			lastErr = classifyError(err)
			slog.Debug("form page fetch failed",
				slog.Duration("timeout", attempt.timeout),
				slog.Bool("insecure", attempt.insecure),
				slog.Any("error", err),
			)
			continue
		}
		if !resp.IsSuccess() {
			lastErr = fmt.Errorf("http status %d fetching form page", resp.StatusCode())
			continue
		}
		body := resp.Body()
		if len(body) < minPlausibleBody {
			lastErr = ErrFormNotFound{Err: fmt.Errorf("implausibly short page (%d bytes)", len(body))}
			continue
		}
		return body, nil
	}
	return nil, lastErr
}

// parseFormSpec locates the primary form element and captures its action,
// method, and input fields. When no form tag exists, any container whose
// class name suggests a form is accepted as a fallback.
func parseFormSpec(body []byte) (*models.FormSpec, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	form := doc.Find("form").First()
	if form.Length() == 0 {
		form = doc.Find("div, section").FilterFunction(func(_ int, sel *goquery.Selection) bool {
			class, _ := sel.Attr("class")
			return strings.Contains(strings.ToLower(class), "form")
		}).First()
	}
	if form.Length() == 0 {
		return nil, fmt.Errorf("no form element located")
	}

	spec := &models.FormSpec{
		Action: form.AttrOr("action", ""),
		Method: strings.ToUpper(form.AttrOr("method", http.MethodPost)),
		Fields: make(map[string]string),
	}

	form.Find("input[type=hidden]").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		spec.Fields[name] = input.AttrOr("value", "")
	})

	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		kind := strings.ToLower(input.AttrOr("type", "text"))
		if kind != "text" && kind != "number" && kind != "email" {
			return
		}
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, captured := spec.Fields[name]; captured {
			return
		}
		spec.Fields[name] = input.AttrOr("value", "")
	})

	return spec, nil
}
