package parser

import (
	"testing"
)

func TestParseCombinedMarks(t *testing.T) {
	tests := []struct {
		name     string
		combined string
		external int
		internal int
		total    int
	}{
		{name: "two digit internal satisfies identity", combined: "2085", external: 65, internal: 20, total: 85},
		{name: "one digit internal satisfies identity", combined: "995", external: 86, internal: 9, total: 95},
		{name: "fallback splits off last two digits", combined: "985", external: 89, internal: 9, total: 85},
		{name: "fallback on four digit token", combined: "6555", external: 65, internal: 65, total: 55},
		{name: "two digit token is the total", combined: "85", external: 70, internal: 0, total: 85},
		{name: "single digit token is the total", combined: "5", external: 70, internal: 0, total: 5},
		{name: "three digit identity", combined: "1895", external: 77, internal: 18, total: 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			internal, total := ParseCombinedMarks(tt.combined, tt.external)
			if internal != tt.internal || total != tt.total {
				t.Fatalf("ParseCombinedMarks(%q, %d) = (%d, %d), want (%d, %d)",
					tt.combined, tt.external, internal, total, tt.internal, tt.total)
			}
		})
	}
}

func TestParsePDFText(t *testing.T) {
	text := "STATE BOARD OF TECHNICAL EDUCATION\n" +
		"Name JOHN DOE\n" +
		"101 65 2085P\n" +
		"102 40 1555F\n" +
		"GrandTotal 240\n" +
		"Result PASS\n"

	record := ParsePDFText("22008-CM-001", text)

	if record.PIN != "22008-CM-001" {
		t.Fatalf("pin = %q", record.PIN)
	}
	if record.Name != "JOHN DOE" {
		t.Fatalf("name = %q, want JOHN DOE", record.Name)
	}
	if len(record.Subjects) != 2 {
		t.Fatalf("subjects = %v, want two", record.Subjects)
	}

	first := record.Marks["101"]
	if first.External != 65 || first.Internal != 20 || first.Total != 85 || first.Result != "P" {
		t.Fatalf("subject 101 = %+v", first)
	}
	second := record.Marks["102"]
	if second.External != 40 || second.Internal != 15 || second.Total != 55 || second.Result != "F" {
		t.Fatalf("subject 102 = %+v", second)
	}

	if record.Total != 240 {
		t.Fatalf("total = %d, want 240", record.Total)
	}
	if record.OverallResult != "P" {
		t.Fatalf("overall result = %q, want P", record.OverallResult)
	}
}

func TestParsePDFTextMissingFields(t *testing.T) {
	record := ParsePDFText("22008-CM-002", "nothing recognizable here")

	if record.Name != "Unknown" {
		t.Fatalf("name = %q, want Unknown", record.Name)
	}
	if len(record.Subjects) != 0 {
		t.Fatalf("subjects = %v, want none", record.Subjects)
	}
	if record.OverallResult != "F" {
		t.Fatalf("overall result = %q, want F", record.OverallResult)
	}
}

func TestParseHTMLResultPage(t *testing.T) {
	body := []byte(`<html><body>
		<p>Name : JANE ROE, Semester 5</p>
		<table>
			<tr><th>SUBJECT</th><th>EXT</th><th>INT</th><th>TOT</th><th>RES</th></tr>
			<tr><td>101 - MATHEMATICS</td><td>65</td><td>20</td><td>85</td><td>p</td></tr>
			<tr><td>102</td><td>40*</td><td>--</td><td>55</td><td>F</td></tr>
			<tr><td>103</td><td>50</td><td>18</td></tr>
		</table>
		<p>Total : 140</p>
		<p>Result : PASS</p>
	</body></html>`)

	record, pdfLink, err := ParseHTML("22008-CM-001", body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	if pdfLink != "" {
		t.Fatalf("unexpected pdf link %q", pdfLink)
	}
	if record == nil {
		t.Fatalf("expected a record")
	}

	if record.Name != "JANE ROE" {
		t.Fatalf("name = %q, want JANE ROE", record.Name)
	}
	if len(record.Subjects) != 2 {
		t.Fatalf("subjects = %v, want 101 and 102", record.Subjects)
	}

	first := record.Marks["101"]
	if first.External != 65 || first.Internal != 20 || first.Total != 85 || first.Result != "P" {
		t.Fatalf("subject 101 = %+v", first)
	}
	second := record.Marks["102"]
	if second.External != 40 || second.Internal != 0 || second.Total != 55 || second.Result != "F" {
		t.Fatalf("subject 102 = %+v", second)
	}

	if record.Total != 140 {
		t.Fatalf("total = %d, want 140", record.Total)
	}
	if record.OverallResult != "P" {
		t.Fatalf("overall result = %q, want P", record.OverallResult)
	}
}

func TestParseHTMLErrorPage(t *testing.T) {
	body := []byte(`<html><body><p>Invalid PIN entered</p></body></html>`)

	record, pdfLink, err := ParseHTML("22008-CM-099", body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	if record != nil || pdfLink != "" {
		t.Fatalf("error page should yield no record and no link, got %+v, %q", record, pdfLink)
	}
}

func TestParseHTMLPDFRedirect(t *testing.T) {
	body := []byte(`<html><body>
		<a href="/home">Home</a>
		<a href="/results/22008-CM-001.pdf">Download marks memo</a>
	</body></html>`)

	record, pdfLink, err := ParseHTML("22008-CM-001", body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	if record != nil {
		t.Fatalf("pdf redirect page should not produce a record")
	}
	if pdfLink != "/results/22008-CM-001.pdf" {
		t.Fatalf("pdf link = %q", pdfLink)
	}
}

func TestFirstInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"65", 65},
		{"40*", 40},
		{"AB", 0},
		{"", 0},
		{"mark 12 of 100", 12},
	}
	for _, tt := range tests {
		if got := firstInt(tt.in); got != tt.want {
			t.Fatalf("firstInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
