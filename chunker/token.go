package chunker

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// CountFunc returns the token count of text. The chunker uses it for every
// budget decision, so swapping the function swaps the unit of measure
// everywhere at once.
type CountFunc func(text string) int

// encodingName matches the vocabulary of the embedding model, so stored
// token counts predict embedding-side truncation.
const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// TokenCounter returns a CountFunc backed by the BPE encoding. If the
// encoding cannot be loaded the returned function approximates at four
// characters per token; the failure is logged once.
func TokenCounter() CountFunc {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			slog.Warn("tiktoken encoding unavailable, approximating at 4 chars/token",
				"encoding", encodingName, "err", err)
			return
		}
		enc = e
	})
	if enc == nil {
		return approximateTokens
	}
	e := enc
	return func(text string) int {
		return len(e.Encode(text, nil, nil))
	}
}

func approximateTokens(text string) int {
	return len(text) / 4
}
