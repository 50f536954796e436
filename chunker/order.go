package chunker

import (
	"regexp"
	"strings"
)

// Chunk-type labels attached to executive-order chunks.
const (
	OrderHeader  = "header"
	OrderSection = "section"
	OrderTail    = "tail"
)

// ---------------------------------------------------------------------------
// Order structure markers
// ---------------------------------------------------------------------------

// orderedClauseRe matches the enacting clause that closes the preamble:
// "... it is hereby ordered as follows:" and its shorter variants.
var orderedClauseRe = regexp.MustCompile(
	`(?i)it\s+is\s+hereby\s+ordered(?:\s+as\s+follows)?\s*:?`)

// orderSectionRe matches "Sec. 1." and "Section 1." markers with an optional
// short title ending in a period on the same line ("Sec. 1. Purpose.").
var orderSectionRe = regexp.MustCompile(
	`(?m)^[ \t]*(Sec\.|Section)\s+(\d+)\.(?:[ \t]+([A-Z][^.\n]{0,120}\.))?`)

// orderTailRe matches the start of the signature and filing block.
var orderTailRe = regexp.MustCompile(
	`(?m)^[ \t]*(IN\s+WITNESS\s+WHEREOF|THE\s+WHITE\s+HOUSE|\[FR\s+Doc\.)`)

// subsectionRe matches lettered "(a)" and numbered "(1)" subsection markers
// at a block or sentence start.
var subsectionRe = regexp.MustCompile(`(?m)(?:^|\.\s+|:\s+)\(([a-z]|\d{1,2})\)\s`)

// orderBlock is one structural block of an executive order.
type orderBlock struct {
	typ   string // header, section, or tail
	title string // "Sec. 1. Purpose." for sections, "" otherwise
	body  string
}

// ChunkOrder segments an Executive Order into header, per-section, and tail
// chunks under the order token budget. Overlap never crosses a block
// boundary. Text without any "Sec. N." markers is chunked as one header
// block; empty text yields no chunks.
func (c *Chunker) ChunkOrder(text string) []Chunk {
	text = normalizeWhitespace(text)
	if text == "" {
		return nil
	}

	var chunks []Chunk
	for _, b := range detectOrderBlocks(text) {
		for _, w := range c.windowSection(b.body, c.orders) {
			chunks = append(chunks, Chunk{
				Text:            w.text,
				TokenCount:      w.tokens,
				ChunkType:       b.typ,
				SectionTitle:    b.title,
				SubsectionLabel: firstSubsectionLabel(w.text),
				SectionLabel:    b.title,
			})
		}
	}
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// detectOrderBlocks partitions order text into the header (title and
// preamble through the enacting clause), one block per "Sec. N.", and the
// signature/filing tail.
func detectOrderBlocks(text string) []orderBlock {
	sections := orderSectionRe.FindAllStringSubmatchIndex(text, -1)
	if len(sections) == 0 {
		return []orderBlock{{typ: OrderHeader, body: text}}
	}

	var blocks []orderBlock

	// The header runs to the first section marker. The enacting clause
	// belongs to the header even when markup has pulled it onto the same
	// line as "Sec. 1." text.
	if head := strings.TrimSpace(text[:sections[0][0]]); head != "" {
		blocks = append(blocks, orderBlock{typ: OrderHeader, body: head})
	}

	tailStart := len(text)
	if loc := orderTailRe.FindStringIndex(text[sections[len(sections)-1][1]:]); loc != nil {
		tailStart = sections[len(sections)-1][1] + loc[0]
	}

	for i, m := range sections {
		end := tailStart
		if i+1 < len(sections) {
			end = sections[i+1][0]
		}
		body := strings.TrimSpace(text[m[0]:end])
		if body == "" {
			continue
		}
		blocks = append(blocks, orderBlock{
			typ:   OrderSection,
			title: sectionTitle(text, m),
			body:  body,
		})
	}

	if tail := strings.TrimSpace(text[tailStart:]); tail != "" {
		blocks = append(blocks, orderBlock{typ: OrderTail, body: tail})
	}
	return blocks
}

// sectionTitle renders the canonical "Sec. N. Title." label for a section
// marker match, normalizing the long "Section" form.
func sectionTitle(text string, m []int) string {
	num := text[m[4]:m[5]]
	label := "Sec. " + num + "."
	if m[6] >= 0 {
		label += " " + strings.TrimSpace(text[m[6]:m[7]])
	}
	return label
}

// firstSubsectionLabel returns the first "(a)"-style marker in the chunk
// text, or "" when the chunk sits above or between subsections.
func firstSubsectionLabel(text string) string {
	if m := subsectionRe.FindStringSubmatch(text); m != nil {
		return "(" + m[1] + ")"
	}
	return ""
}
