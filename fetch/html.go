package fetch

import (
	"html"
	"regexp"
	"strings"
)

var (
	blockCloseRe = regexp.MustCompile(`(?i)</(p|div|blockquote|h[1-6]|li|tr)>`)
	lineBreakRe  = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	anchorRe     = regexp.MustCompile(`(?s)<a[^>]*>.*?</a>`)
	preRe        = regexp.MustCompile(`(?s)<pre>(.*?)</pre>`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// htmlToText reduces CourtListener's html_with_citations markup to plain
// text: block boundaries become paragraph breaks, tags are stripped,
// entities decoded, whitespace normalized.
func htmlToText(s string) string {
	s = blockCloseRe.ReplaceAllString(s, "\n\n")
	s = lineBreakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")

	s = spaceRunRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// extractRawText handles the Federal Register raw_text_url response, which
// is sometimes plain text and sometimes an HTML page wrapping the text in a
// <pre> block with anchor markup and escaped entities.
func extractRawText(body string) string {
	text := body
	if strings.HasPrefix(strings.TrimSpace(body), "<html") {
		if m := preRe.FindStringSubmatch(body); m != nil {
			text = m[1]
			text = strings.ReplaceAll(text, "&lt;", "<")
			text = strings.ReplaceAll(text, "&gt;", ">")
			text = strings.ReplaceAll(text, "&amp;", "&")
			text = strings.ReplaceAll(text, "&quot;", `"`)
			text = anchorRe.ReplaceAllString(text, "")
		}
	}
	return strings.TrimSpace(text)
}
