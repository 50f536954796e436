package document

import (
	"fmt"
	"strings"
)

// Citation is one reporter citation from a CourtListener cluster record.
// Type 1 marks the primary (official) reporter.
type Citation struct {
	Volume   int    `json:"volume,omitempty"`
	Reporter string `json:"reporter,omitempty"`
	Page     string `json:"page,omitempty"`
	Type     int    `json:"type,omitempty"`
}

const primaryReporterType = 1

// FormatBluebook renders a Bluebook-style citation such as
// "601 U.S. 416 (2024)". Selection: the citation tagged as the primary
// reporter wins; otherwise the first "U.S." reporter; otherwise there is
// nothing citable and the result is empty. A citation missing its volume,
// reporter, or page is never rendered partially.
func FormatBluebook(cites []Citation, dateFiled string) string {
	var chosen *Citation
	for i := range cites {
		if cites[i].Type == primaryReporterType {
			chosen = &cites[i]
			break
		}
	}
	if chosen == nil {
		for i := range cites {
			if cites[i].Reporter == "U.S." {
				chosen = &cites[i]
				break
			}
		}
	}
	if chosen == nil {
		return ""
	}
	if chosen.Volume == 0 || chosen.Reporter == "" || chosen.Page == "" {
		return ""
	}
	year := citationYear(dateFiled)
	if year == "" {
		return ""
	}
	return fmt.Sprintf("%d %s %s (%s)", chosen.Volume, chosen.Reporter, chosen.Page, year)
}

// citationYear accepts an ISO date ("2024-03-15") or a bare year ("2024").
func citationYear(date string) string {
	date = strings.TrimSpace(date)
	if i := strings.IndexByte(date, '-'); i > 0 {
		date = date[:i]
	}
	if len(date) != 4 {
		return ""
	}
	for _, r := range date {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return date
}
