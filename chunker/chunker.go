// Package chunker segments Supreme Court opinions and Executive Orders into
// token-budgeted chunks that follow each document's legal structure. Both
// document types share a sliding-window primitive; structure detection
// differs per type (opinion markers and Roman-numeral sections for
// opinions, Sec. N. blocks for orders).
package chunker

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Config is the token budget for one document type.
type Config struct {
	MinTokens    int     `json:"min_tokens"`
	TargetTokens int     `json:"target_tokens"`
	MaxTokens    int     `json:"max_tokens"`
	OverlapRatio float64 `json:"overlap_ratio"` // fraction of TargetTokens, [0, 1)
}

// DefaultOpinionConfig returns the budget for Supreme Court opinions.
func DefaultOpinionConfig() Config {
	return Config{MinTokens: 500, TargetTokens: 600, MaxTokens: 800, OverlapRatio: 0.15}
}

// DefaultOrderConfig returns the budget for Executive Orders.
func DefaultOrderConfig() Config {
	return Config{MinTokens: 240, TargetTokens: 340, MaxTokens: 400, OverlapRatio: 0.10}
}

// Validate checks the budget invariants.
func (c Config) Validate() error {
	if c.MinTokens <= 0 || c.TargetTokens <= 0 || c.MaxTokens <= 0 {
		return fmt.Errorf("token budgets must be positive: min=%d target=%d max=%d",
			c.MinTokens, c.TargetTokens, c.MaxTokens)
	}
	if c.MinTokens > c.TargetTokens || c.TargetTokens > c.MaxTokens {
		return fmt.Errorf("budget order must be min <= target <= max: min=%d target=%d max=%d",
			c.MinTokens, c.TargetTokens, c.MaxTokens)
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		return fmt.Errorf("overlap_ratio must be in [0, 1): %v", c.OverlapRatio)
	}
	return nil
}

// OverlapTokens is the overlap budget between adjacent chunks of the same
// structural section.
func (c Config) OverlapTokens() int {
	return int(math.Round(c.OverlapRatio * float64(c.TargetTokens)))
}

// Chunk is one windowed span of a document. Structure fields are filled
// according to the document type; Index is document-wide and assigned
// before embedding so chunk IDs stay stable.
type Chunk struct {
	Text       string
	Index      int
	TokenCount int

	// Opinion structure.
	OpinionType string // syllabus, majority, concurring, dissenting, mixed; "" when undetected
	Justice     string // authoring justice; "" for syllabus and per curiam

	// Order structure.
	ChunkType       string // header, section, or tail
	SectionTitle    string
	SubsectionLabel string

	// SectionLabel is the structural breadcrumb within the span: Roman
	// numeral paths ("II", "II.A") for opinions, "Sec. 2 - Policy" style
	// labels for orders.
	SectionLabel string
}

// Chunker segments both document types. The zero value is not usable; use
// New.
type Chunker struct {
	opinions Config
	orders   Config
	count    CountFunc
}

// New returns a Chunker with the given per-type budgets. A nil count
// function selects the BPE token counter.
func New(opinions, orders Config, count CountFunc) (*Chunker, error) {
	if err := opinions.Validate(); err != nil {
		return nil, fmt.Errorf("opinion chunking config: %w", err)
	}
	if err := orders.Validate(); err != nil {
		return nil, fmt.Errorf("order chunking config: %w", err)
	}
	if count == nil {
		count = TokenCounter()
	}
	return &Chunker{opinions: opinions, orders: orders, count: count}, nil
}

// ---------------------------------------------------------------------------
// Sliding window
// ---------------------------------------------------------------------------

// unit is an indivisible piece of section text: a paragraph, a sentence of
// an oversized paragraph, or a word run of an oversized sentence. sep is
// the separator that precedes the unit when it is not chunk-initial.
type unit struct {
	text string
	sep  string
}

// span is an emitted chunk body with its exact token count.
type span struct {
	text   string
	tokens int
}

// windowSection applies the token-budgeted sliding window to one structural
// section. Overlap never leaves this function, so it never crosses a
// section boundary.
func (c *Chunker) windowSection(text string, cfg Config) []span {
	text = normalizeWhitespace(text)
	if text == "" {
		return nil
	}
	if total := c.count(text); total <= cfg.MaxTokens {
		return []span{{text: text, tokens: total}}
	}

	units := c.sectionUnits(text, cfg)
	overlapBudget := cfg.OverlapTokens()
	if overlapBudget >= cfg.TargetTokens {
		overlapBudget = cfg.TargetTokens - 1
	}

	var chunks []span
	var seed string    // overlap tail carried from the previous chunk
	var parts []unit   // units of the current chunk
	var current string // assembled text of seed + parts

	flush := func(last bool) {
		if len(parts) == 0 {
			return
		}
		body := current
		tokens := c.count(body)

		if last && len(chunks) > 0 {
			// Merge an undersized final fragment into the previous chunk
			// when the merged size stays within budget. The seed text is
			// already part of the previous chunk, so only the fresh units
			// are merged.
			var fresh strings.Builder
			for i, u := range parts {
				if i > 0 {
					fresh.WriteString(u.sep)
				}
				fresh.WriteString(u.text)
			}
			if c.count(fresh.String()) < cfg.MinTokens {
				prev := chunks[len(chunks)-1]
				merged := prev.text + parts[0].sep + fresh.String()
				if mergedTokens := c.count(merged); mergedTokens <= cfg.MaxTokens {
					chunks[len(chunks)-1] = span{text: merged, tokens: mergedTokens}
					parts = nil
					return
				}
			}
		}

		chunks = append(chunks, span{text: body, tokens: tokens})
		if !last {
			seed = c.overlapTail(body, overlapBudget)
		}
		parts = nil
		current = seed
	}

	join := func(base string, u unit) string {
		if base == "" {
			return u.text
		}
		return base + u.sep + u.text
	}

	for _, u := range units {
		candidate := join(current, u)
		if c.count(candidate) > cfg.MaxTokens {
			if len(parts) > 0 {
				flush(false)
				candidate = join(current, u)
			}
			// An overlap seed that leaves no room for the unit is dropped
			// rather than allowed to push the chunk past the budget.
			if len(parts) == 0 && c.count(candidate) > cfg.MaxTokens {
				seed, current = "", ""
				candidate = u.text
			}
		}

		parts = append(parts, u)
		current = candidate

		if c.count(current) >= cfg.TargetTokens {
			flush(false)
		}
	}
	flush(true)

	return chunks
}

// sectionUnits breaks section text into window units: whole paragraphs
// where they fit, sentences of oversized paragraphs, and word runs of
// oversized sentences.
func (c *Chunker) sectionUnits(text string, cfg Config) []unit {
	var units []unit
	for _, para := range splitParagraphs(text) {
		if c.count(para) <= cfg.MaxTokens {
			units = append(units, unit{text: para, sep: "\n\n"})
			continue
		}
		first := true
		for _, sent := range splitSentences(para) {
			sep := " "
			if first {
				sep = "\n\n"
			}
			if c.count(sent) <= cfg.MaxTokens {
				units = append(units, unit{text: sent, sep: sep})
				first = false
				continue
			}
			for _, run := range c.splitByWords(sent, cfg.MaxTokens) {
				units = append(units, unit{text: run, sep: sep})
				sep = " "
			}
			first = false
		}
	}
	return units
}

// splitByWords breaks a sentence that exceeds the budget into word runs of
// at most maxTokens each. Last resort; produces no mid-word cuts.
func (c *Chunker) splitByWords(text string, maxTokens int) []string {
	words := strings.Fields(text)
	var runs []string
	var cur []string
	for _, w := range words {
		cur = append(cur, w)
		if c.count(strings.Join(cur, " ")) > maxTokens && len(cur) > 1 {
			runs = append(runs, strings.Join(cur[:len(cur)-1], " "))
			cur = []string{w}
		}
	}
	if len(cur) > 0 {
		runs = append(runs, strings.Join(cur, " "))
	}
	return runs
}

// overlapTail returns the trailing sentences of text whose total token
// count fits the overlap budget. The tail always ends on a sentence
// boundary; when even the final sentence exceeds the budget the overlap is
// empty rather than mid-sentence.
func (c *Chunker) overlapTail(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	sents := splitSentences(text)
	tokens := 0
	start := len(sents)
	for i := len(sents) - 1; i >= 0; i-- {
		t := c.count(sents[i])
		if tokens+t > budget {
			break
		}
		tokens += t
		start = i
	}
	if start == len(sents) {
		return ""
	}
	return strings.Join(sents[start:], " ")
}

// ---------------------------------------------------------------------------
// Text helpers
// ---------------------------------------------------------------------------

var blankLines = regexp.MustCompile(`\n\s*\n+`)

// normalizeWhitespace trims the text and collapses runs of blank lines to a
// single paragraph break.
func normalizeWhitespace(text string) string {
	return blankLines.ReplaceAllString(strings.TrimSpace(text), "\n\n")
}

// splitParagraphs splits text on blank-line boundaries.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits on sentence-ending punctuation followed by
// whitespace. Legal abbreviations ("v.", "U.S.", "Sec.") are frequent, so
// a boundary additionally requires the next sentence to open with an
// uppercase letter, a digit, or an opening quote or parenthesis.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		j := i + 1
		for j < len(runes) && (runes[j] == ' ' || runes[j] == '\n' || runes[j] == '\t') {
			j++
		}
		if j == i+1 && j < len(runes) {
			continue // no whitespace after the punctuation
		}
		if j < len(runes) && !sentenceOpener(runes[j]) {
			continue
		}
		s := strings.TrimSpace(string(runes[start:i+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func sentenceOpener(r rune) bool {
	if r >= 'A' && r <= 'Z' {
		return true
	}
	if r >= '0' && r <= '9' {
		return true
	}
	switch r {
	case '"', '“', '(', '[', '‘', '\'':
		return true
	}
	return false
}
