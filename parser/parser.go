// Package parser turns raw portal responses into student records. The portal
// has no structured interface; everything here is regex and table heuristics
// over inconsistently formatted HTML and PDF result sheets.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mydiplomaclassresults/sbtet-scraper/models"
)

var (
	pdfNamePattern   = regexp.MustCompile(`Name\s+([A-Z\s]+)`)
	pdfMarkLine      = regexp.MustCompile(`^(\d{3})\s+(\d+)\s+(\d+)([PF])`)
	grandTotal       = regexp.MustCompile(`GrandTotal\s+(\d+)`)
	pdfResult        = regexp.MustCompile(`Result\s+(PASS|FAIL)`)
	htmlNamePattern  = regexp.MustCompile(`(?i)Name\s*:\s*([A-Z\s]+)`)
	htmlTotalPattern = regexp.MustCompile(`(?i)Total\s*:?\s*(\d+)`)
	htmlResult       = regexp.MustCompile(`(?i)Result\s*:?\s*(PASS|FAIL)`)
	errorPage        = regexp.MustCompile(`(?i)error|invalid|not found`)
	pdfHref          = regexp.MustCompile(`(?i)\.pdf`)
	subjectCode      = regexp.MustCompile(`^(\d{3})`)
	digitRun         = regexp.MustCompile(`\d+`)
)

// ParseCombinedMarks disambiguates the undelimited internal+total token found
// on PDF result sheets. The split position is recovered by trying a 2-digit
// internal mark, then a 1-digit one, accepting the first split where
// internal + external == total. When neither satisfies the identity, the last
// two digits are taken as the total and the remainder as the internal mark
// (or the whole token as the total when it is shorter than two digits).
//
// The try-2-then-1-then-fallback order is load bearing: downstream
// spreadsheets depend on the splits it produces, imperfect or not.
func ParseCombinedMarks(combined string, external int) (internal, total int) {
	if len(combined) >= 3 {
		for _, split := range []int{2, 1} {
			if split >= len(combined) {
				continue
			}
			intCand, err := strconv.Atoi(combined[:split])
			if err != nil {
				continue
			}
			totCand, err := strconv.Atoi(combined[split:])
			if err != nil {
				continue
			}
			if totCand == external+intCand {
				return intCand, totCand
			}
		}
	}

	if len(combined) > 2 {
		internal, _ = strconv.Atoi(combined[:len(combined)-2])
	}
	if len(combined) >= 2 {
		total, _ = strconv.Atoi(combined[len(combined)-2:])
	} else {
		total, _ = strconv.Atoi(combined)
	}
	return internal, total
}

// ParsePDFText builds a student record from the concatenated text of a PDF
// result sheet. Missing fields are omitted rather than failing the record.
func ParsePDFText(pin, text string) *models.StudentRecord {
	record := &models.StudentRecord{
		PIN:           pin,
		Name:          "Unknown",
		Marks:         make(map[string]models.SubjectMarks),
		OverallResult: "F",
	}

	if m := pdfNamePattern.FindStringSubmatch(text); m != nil {
		record.Name = strings.TrimSpace(m[1])
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		m := pdfMarkLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		external, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		internal, total := ParseCombinedMarks(m[3], external)
		record.AddSubject(m[1], models.SubjectMarks{
			External: external,
			Internal: internal,
			Total:    total,
			Result:   m[4],
		})
	}

	if m := grandTotal.FindStringSubmatch(text); m != nil {
		record.Total, _ = strconv.Atoi(m[1])
	}
	if m := pdfResult.FindStringSubmatch(text); m != nil && m[1] == "PASS" {
		record.OverallResult = "P"
	}

	return record
}

// ParseHTML builds a student record from an HTML result page. It returns a
// non-empty pdfLink instead of a record when the page merely links to a PDF
// result sheet; the caller is expected to fetch it and parse the PDF path.
// A nil record with no link means the page reported an error for this PIN.
func ParseHTML(pin string, body []byte) (record *models.StudentRecord, pdfLink string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("parse html: %w", err)
	}

	text := doc.Text()
	if errorPage.MatchString(text) {
		return nil, "", nil
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if ok && pdfHref.MatchString(href) {
			pdfLink = href
			return false
		}
		return true
	})
	if pdfLink != "" {
		return nil, pdfLink, nil
	}

	record = &models.StudentRecord{
		PIN:           pin,
		Name:          "Unknown",
		Marks:         make(map[string]models.SubjectMarks),
		OverallResult: "F",
	}

	if m := htmlNamePattern.FindStringSubmatch(text); m != nil {
		record.Name = strings.TrimSpace(m[1])
	}

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			if len(cells) < 4 {
				return
			}
			m := subjectCode.FindStringSubmatch(cells[0])
			if m == nil {
				return
			}
			marks := models.SubjectMarks{
				External: firstInt(cells[1]),
				Internal: firstInt(cells[2]),
				Total:    firstInt(cells[3]),
				Result:   "F",
			}
			if len(cells) > 4 {
				marks.Result = strings.ToUpper(cells[4])
			}
			record.AddSubject(m[1], marks)
		})
	})

	if m := htmlTotalPattern.FindStringSubmatch(text); m != nil {
		record.Total, _ = strconv.Atoi(m[1])
	}
	if m := htmlResult.FindStringSubmatch(text); m != nil && strings.EqualFold(m[1], "PASS") {
		record.OverallResult = "P"
	}

	return record, "", nil
}

// firstInt returns the first run of digits in s, or 0 when there is none.
// Malformed numeric cells degrade to zero instead of dropping the row.
func firstInt(s string) int {
	m := digitRun.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}
