package scraper

import "fmt"

// GeneratePINs enumerates the identifier space for one class. The sequence
// runs from start inclusive to end exclusive, zero-padded to three digits.
// The wire format toward the portal is "{year}{college}-{branch}-{seq}".
func GeneratePINs(year, collegeCode, branchCode string, start, end int) []string {
	if end <= start {
		return nil
	}
	pins := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		pins = append(pins, fmt.Sprintf("%s%s-%s-%03d", year, collegeCode, branchCode, i))
	}
	return pins
}
