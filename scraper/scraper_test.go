package scraper

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/xuri/excelize/v2"
)

func htmlResponse(body string) *http.Response {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return resp
}

func resultPage() string {
	return `<html><body>
	<p>Name : TEST STUDENT, Sem 5</p>
	<table>
		<tr><td>101</td><td>65</td><td>20</td><td>85</td><td>P</td></tr>
		<tr><td>102</td><td>40</td><td>15</td><td>55</td><td>F</td></tr>
	</table>
	<p>Total : 140</p>
	<p>Result : PASS</p>
	</body></html>`
}

func TestScrapeResultsEndToEnd(t *testing.T) {
	s := newTestScraper(t)
	s.pdfText = func([]byte) (string, error) {
		return "Name PDF STUDENT\n101 65 2085P\nGrandTotal 85\nResult PASS\n", nil
	}

	httpmock.RegisterResponder("GET", testBaseURL,
		httpmock.NewStringResponder(200, formPage()))
	httpmock.RegisterResponder("POST", testBaseURL, func(req *http.Request) (*http.Response, error) {
		if err := req.ParseForm(); err != nil {
			return nil, err
		}
		if got := req.FormValue("mode"); got != "getData" {
			t.Errorf("mode = %q, want getData", got)
		}
		if got := req.FormValue("csrf_token"); got != "tok123" {
			t.Errorf("captured form field not replayed, csrf_token = %q", got)
		}
		if got := req.FormValue("grade2"); got != "5" {
			t.Errorf("grade2 = %q, want 5", got)
		}

		pin := req.FormValue("aadhar1")
		switch {
		case strings.HasSuffix(pin, "-003"):
			return htmlResponse(`<html><body><p>Invalid PIN</p></body></html>`), nil
		case strings.HasSuffix(pin, "-004"):
			resp := httpmock.NewStringResponse(200, "%PDF-1.4 stub")
			resp.Header.Set("Content-Type", "application/pdf")
			return resp, nil
		default:
			return htmlResponse(resultPage()), nil
		}
	})

	buf, summary, err := s.ScrapeResults(context.Background(), "22", "CM", "008", 1, 5, "5")
	if err != nil {
		t.Fatalf("scrape results: %v", err)
	}

	if summary.Total != 4 || summary.Succeeded != 3 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want total 4, succeeded 3, failed 1", summary)
	}
	if progress := s.GetProgress(); progress != 100 {
		t.Fatalf("progress = %v, want 100", progress)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	// Two header rows plus one row per extracted record.
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}
	if rows[1][0] != "SI.NO" || rows[1][1] != "PINNUMBERS" {
		t.Fatalf("column header row = %v", rows[1])
	}
}

func TestScrapeResultsBoundsConcurrency(t *testing.T) {
	s := newTestScraper(t)

	httpmock.RegisterResponder("GET", testBaseURL,
		httpmock.NewStringResponder(200, formPage()))

	var inFlight, peak int64
	httpmock.RegisterResponder("POST", testBaseURL, func(req *http.Request) (*http.Response, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return htmlResponse(`<html><body><p>Invalid PIN</p></body></html>`), nil
	})

	_, summary, err := s.ScrapeResults(context.Background(), "22", "CM", "008", 1, 11, "5")
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("error = %v, want ErrNoResults", err)
	}
	if summary.Failed != 10 {
		t.Fatalf("failed = %d, want 10", summary.Failed)
	}
	if got := atomic.LoadInt64(&peak); got > int64(s.cfg.Workers) {
		t.Fatalf("peak in-flight requests = %d, exceeds worker bound %d", got, s.cfg.Workers)
	}
}

func TestScrapeResultsFollowsPDFLink(t *testing.T) {
	s := newTestScraper(t)
	s.pdfText = func([]byte) (string, error) {
		return "Name LINKED STUDENT\n101 65 2085P\nGrandTotal 85\nResult PASS\n", nil
	}

	httpmock.RegisterResponder("GET", testBaseURL,
		httpmock.NewStringResponder(200, formPage()))
	httpmock.RegisterResponder("POST", testBaseURL,
		httpmock.ResponderFromResponse(htmlResponse(
			`<html><body><a href="/APSBTET/memo.pdf">Download memo</a></body></html>`,
		)))
	httpmock.RegisterResponder("GET", "http://portal.test/APSBTET/memo.pdf",
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(200, "%PDF-1.4 stub")
			resp.Header.Set("Content-Type", "application/pdf")
			return resp, nil
		})

	_, summary, err := s.ScrapeResults(context.Background(), "22", "CM", "008", 1, 2, "5")
	if err != nil {
		t.Fatalf("scrape results: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1", summary.Succeeded)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: "connection"},
		{name: "unknown authority", err: x509.UnknownAuthorityError{}, expected: "tls"},
		{name: "form not found", err: ErrFormNotFound{Err: errors.New("no form element located")}, expected: "form_not_found"},
		{name: "no results", err: fmt.Errorf("run: %w", ErrNoResults), expected: "no_results"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err)); got != tt.expected {
				t.Fatalf("classifyError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}
