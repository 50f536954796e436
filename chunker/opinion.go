package chunker

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Opinion-type labels attached to court-opinion chunks.
const (
	OpinionSyllabus   = "syllabus"
	OpinionMajority   = "majority"
	OpinionConcurring = "concurring"
	OpinionDissenting = "dissenting"
	OpinionMixed      = "mixed" // concurring in part and dissenting in part
)

// ---------------------------------------------------------------------------
// Opinion-type markers
// ---------------------------------------------------------------------------

// syllabusRe matches the standalone word "Syllabus"; the first occurrence
// opens the syllabus span.
var syllabusRe = regexp.MustCompile(`(?i)\bsyllabus\b`)

// majorityJusticeRe matches "Justice Thomas delivered the opinion of the
// Court" style markers, capturing the justice's name.
var majorityJusticeRe = regexp.MustCompile(
	`(?i)(?:chief\s+)?justice\s+([A-Za-z'’-]+),?[^\n]{0,120}?delivered\s+the\s+opinion\s+of\s+the\s+Court`)

// majoritySurnameRe matches the reporter style "ROBERTS, C. J., delivered
// the opinion of the Court", capturing the surname.
var majoritySurnameRe = regexp.MustCompile(
	`([A-Z][A-Za-z'’-]+),\s*(?:C\.\s*)?J\.,\s*delivered\s+the\s+opinion\s+of\s+the\s+Court`)

// perCuriamRe matches an unsigned majority marker at the start of a line.
var perCuriamRe = regexp.MustCompile(`(?im)^\s*per\s+curiam\b`)

// separateOpinionRe matches concurrence/dissent headers such as
// "JUSTICE ALITO, with whom JUSTICE THOMAS joins, concurring." and
// "KAGAN, J., concurring in the judgment.". The participle and the rest of
// the header line are kept for classification: Go's regexp has no
// lookahead, so mixed opinions ("concurring in part and dissenting in
// part") are found by matching broadly here and classifying the captured
// line afterwards.
var separateOpinionRe = regexp.MustCompile(
	`(?im)^\s*(?:(?:chief\s+)?justice\s+([A-Za-z'’-]+)|([A-Z][A-Za-z'’-]+),\s*(?:C\.\s*)?J\.),\s+(?:with\s+whom[^\n]*?,\s+)?(?:concurring|dissenting)[^\n]*`)

// opinionSpan is one opinion-type region of the document.
type opinionSpan struct {
	start   int
	typ     string
	justice string
}

// ChunkOpinion segments a Supreme Court opinion. Spans are detected per
// opinion type, sectioned by Roman-numeral and capital-letter markers, and
// windowed under the opinion token budget. Chunk indices are document-wide.
// Text with no recognizable markers comes back as budget-windowed chunks of
// a single unlabeled span; empty text yields no chunks.
func (c *Chunker) ChunkOpinion(text string) []Chunk {
	text = normalizeWhitespace(text)
	if text == "" {
		return nil
	}

	spans := detectOpinionSpans(text)
	if len(spans) == 0 {
		spans = []opinionSpan{{start: 0}}
	}

	var chunks []Chunk
	for i, sp := range spans {
		end := len(text)
		if i+1 < len(spans) {
			end = spans[i+1].start
		}
		body := strings.TrimSpace(text[sp.start:end])
		if body == "" {
			continue
		}
		for _, sec := range opinionSections(body) {
			for _, w := range c.windowSection(sec.body, c.opinions) {
				chunks = append(chunks, Chunk{
					Text:         w.text,
					TokenCount:   w.tokens,
					OpinionType:  sp.typ,
					Justice:      sp.justice,
					SectionLabel: sec.label,
				})
			}
		}
	}
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// detectOpinionSpans locates the syllabus, the majority opinion, and every
// separate opinion, sorted by position. When the syllabus marker is the
// first marker found, its span absorbs the caption text before it.
func detectOpinionSpans(text string) []opinionSpan {
	var spans []opinionSpan

	if loc := syllabusRe.FindStringIndex(text); loc != nil {
		spans = append(spans, opinionSpan{start: loc[0], typ: OpinionSyllabus})
	}

	if start, justice, ok := findMajority(text); ok {
		spans = append(spans, opinionSpan{start: start, typ: OpinionMajority, justice: justice})
	}

	for _, m := range separateOpinionRe.FindAllStringSubmatchIndex(text, -1) {
		header := text[m[0]:m[1]]
		justice := ""
		if m[2] >= 0 {
			justice = text[m[2]:m[3]]
		} else if m[4] >= 0 {
			justice = text[m[4]:m[5]]
		}
		spans = append(spans, opinionSpan{
			start:   m[0],
			typ:     classifySeparateOpinion(header),
			justice: normalizeJusticeName(justice),
		})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	if len(spans) > 0 && spans[0].start > 0 {
		if spans[0].typ == OpinionSyllabus {
			spans[0].start = 0
		} else {
			spans = append([]opinionSpan{{start: 0}}, spans...)
		}
	}
	return spans
}

// findMajority returns the earliest majority marker. The justice name is
// empty for per curiam opinions.
func findMajority(text string) (start int, justice string, ok bool) {
	start = -1
	if m := majorityJusticeRe.FindStringSubmatchIndex(text); m != nil {
		start = m[0]
		justice = normalizeJusticeName(text[m[2]:m[3]])
		ok = true
	}
	if m := majoritySurnameRe.FindStringSubmatchIndex(text); m != nil && (start < 0 || m[0] < start) {
		start = m[0]
		justice = normalizeJusticeName(text[m[2]:m[3]])
		ok = true
	}
	if loc := perCuriamRe.FindStringIndex(text); loc != nil && (start < 0 || loc[0] < start) {
		start = loc[0]
		justice = ""
		ok = true
	}
	return start, justice, ok
}

// classifySeparateOpinion labels a matched header line. Mixed opinions are
// recognized first so they are never mislabeled as plain concurrences or
// dissents; a dissent qualified by "in part" is likewise mixed. An opinion
// "concurring in the judgment" counts as a plain concurrence.
func classifySeparateOpinion(header string) string {
	h := strings.ToLower(header)
	switch {
	case strings.Contains(h, "concurring in part and dissenting in part"):
		return OpinionMixed
	case strings.Contains(h, "dissenting") && strings.Contains(h, "in part"):
		return OpinionMixed
	case strings.Contains(h, "dissenting"):
		return OpinionDissenting
	default:
		return OpinionConcurring
	}
}

// normalizeJusticeName title-cases a matched name so "ROBERTS" and
// "roberts" both become "Roberts".
func normalizeJusticeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	upperNext := true
	for _, r := range name {
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		if r == '\'' || r == '’' || r == '-' {
			upperNext = true
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Section markers within an opinion span
// ---------------------------------------------------------------------------

// sectionMarkerRe matches Roman-numeral and capital-letter section markers
// standing alone on a line ("II", "II.", "A", "A."). A match only counts
// when the following text opens with an uppercase letter (checked
// separately).
var sectionMarkerRe = regexp.MustCompile(`(?m)^[ \t]*([IVX]+|[A-Z])\.?[ \t]*$`)

type opinionSection struct {
	label string
	body  string
}

// opinionSections splits an opinion span at its section markers. Roman
// numerals open a top-level section; capital letters nest beneath the
// current Roman numeral ("II" then "A" labels "II.A"). Text before the
// first marker keeps an empty label.
func opinionSections(text string) []opinionSection {
	matches := sectionMarkerRe.FindAllStringSubmatchIndex(text, -1)

	type marker struct {
		start int
		label string
	}
	var markers []marker
	roman := ""
	for _, m := range matches {
		if !followedByUppercase(text, m[1]) {
			continue
		}
		tok := text[m[2]:m[3]]
		if isRoman(tok) {
			roman = tok
			markers = append(markers, marker{start: m[0], label: tok})
			continue
		}
		label := tok
		if roman != "" {
			label = roman + "." + tok
		}
		markers = append(markers, marker{start: m[0], label: label})
	}

	if len(markers) == 0 {
		return []opinionSection{{body: text}}
	}

	var sections []opinionSection
	if lead := strings.TrimSpace(text[:markers[0].start]); lead != "" {
		sections = append(sections, opinionSection{body: lead})
	}
	for i, mk := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		body := strings.TrimSpace(text[mk.start:end])
		if body != "" {
			sections = append(sections, opinionSection{label: mk.label, body: body})
		}
	}
	return sections
}

// followedByUppercase reports whether the next non-whitespace rune after
// pos opens a sentence (uppercase letter, digit, or opening quote). This
// keeps stray single letters in running prose from being read as section
// markers.
func followedByUppercase(text string, pos int) bool {
	for _, r := range text[pos:] {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		return sentenceOpener(r)
	}
	return false
}

// isRoman reports whether tok is composed of Roman-numeral letters. A lone
// "I", "V", or "X" counts as Roman, never as a lettered subsection.
func isRoman(tok string) bool {
	for _, r := range tok {
		if r != 'I' && r != 'V' && r != 'X' {
			return false
		}
	}
	return tok != ""
}
