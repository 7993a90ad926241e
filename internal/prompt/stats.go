package prompt

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"graphrag/internal/logging"
)

// Stats describes an assembled prompt.
type Stats struct {
	Sections int
	Chars    int
	Tokens   int
}

var (
	encOnce sync.Once
	encoder *tiktoken.Tiktoken
)

// CountTokens estimates the token count of text with the cl100k_base
// encoding. Falls back to a chars/4 heuristic if the encoding cannot be
// loaded (offline first run).
func CountTokens(text string) int {
	encOnce.Do(func() {
		var err error
		encoder, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logging.Prompt("Token encoding unavailable, using char heuristic: %v", err)
		}
	})
	if encoder == nil {
		return len(text) / 4
	}
	return len(encoder.Encode(text, nil, nil))
}

// BuildWithStats assembles the prompt and reports its size.
func (b *Builder) BuildWithStats(in Inputs) (string, Stats) {
	out := b.Build(in)
	return out, Stats{
		Sections: len(b.entries),
		Chars:    len(out),
		Tokens:   CountTokens(out),
	}
}
