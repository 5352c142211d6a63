package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var eofMarker = []byte("%%EOF")

// sanitizePDF truncates trailing garbage after the last %%EOF marker. Portal
// downloads frequently arrive with HTML appended after the end of the PDF,
// which trips up the xref parser.
func sanitizePDF(content []byte) []byte {
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return content
	}

	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		return content
	}

	end := lastEOF + len(eofMarker)
	for end < len(content) && (content[end] == '\n' || content[end] == '\r') {
		end++
	}
	if len(content)-end > 10 {
		return content[:end]
	}
	return content
}

// PDFText extracts the concatenated text of all pages of a PDF document.
func PDFText(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty pdf content")
	}
	content = sanitizePDF(content)

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("pdf has no pages")
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			// Fall back to plain text when row extraction fails.
			text, plainErr := page.GetPlainText(nil)
			if plainErr != nil {
				continue
			}
			sb.WriteString(text)
			sb.WriteString("\n")
			continue
		}

		for _, row := range rows {
			var line strings.Builder
			for j, word := range row.Content {
				// Separate glyph runs so labeled fields stay matchable.
				if j > 0 && !strings.HasSuffix(line.String(), " ") && !strings.HasPrefix(word.S, " ") {
					line.WriteString(" ")
				}
				line.WriteString(word.S)
			}
			if text := strings.TrimSpace(line.String()); text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		}
	}

	return sb.String(), nil
}
