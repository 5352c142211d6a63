// Package models defines data structures shared across the scraper.
package models

import "time"

// ContentKind classifies a raw portal response by its declared content type.
type ContentKind string

const (
	ContentHTML    ContentKind = "html"
	ContentPDF     ContentKind = "pdf"
	ContentUnknown ContentKind = "unknown"
)

// RawResponse is the classified body returned for one identifier. It is
// transient and consumed immediately by the extractor.
type RawResponse struct {
	Kind ContentKind
	Body []byte
}

// FormSpec captures the portal's query form so a direct POST can replay a
// browser submission. Built once per scraper instance and shared read-only
// across workers.
type FormSpec struct {
	Action string
	Method string
	Fields map[string]string
}

// SubjectMarks holds the four per-subject fields of one result row.
type SubjectMarks struct {
	External int
	Internal int
	Total    int
	Result   string
}

// StudentRecord is one student's parsed result. Subjects preserves the order
// codes were first encountered; Marks may be partial when parsing only
// partially matched. Never mutated after creation.
type StudentRecord struct {
	PIN           string
	Name          string
	Subjects      []string
	Marks         map[string]SubjectMarks
	Total         int
	OverallResult string
}

// AddSubject records marks for a subject code, keeping first-seen order.
func (r *StudentRecord) AddSubject(code string, marks SubjectMarks) {
	if r.Marks == nil {
		r.Marks = make(map[string]SubjectMarks)
	}
	if _, seen := r.Marks[code]; !seen {
		r.Subjects = append(r.Subjects, code)
	}
	r.Marks[code] = marks
}

// RunSummary reports the outcome of one scrape run.
type RunSummary struct {
	StartTime time.Time
	EndTime   time.Time
	Total     int
	Succeeded int
	Failed    int
}

// DNSCheck is the DNS portion of a connectivity diagnosis.
type DNSCheck struct {
	Host      string   `json:"host"`
	Resolved  bool     `json:"resolved"`
	Addresses []string `json:"addresses,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// TCPCheck reports raw reachability of one port.
type TCPCheck struct {
	Port      int    `json:"port"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// HTTPCheck reports a timed GET against one candidate endpoint.
type HTTPCheck struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	Error      string `json:"error,omitempty"`
}

// Diagnostics is the structured report returned by connection diagnosis.
// Used for user-facing troubleshooting only, never for control flow.
type Diagnostics struct {
	DNS  DNSCheck    `json:"dns"`
	TCP  []TCPCheck  `json:"tcp"`
	HTTP []HTTPCheck `json:"http"`
}
