package tutor

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text against the context token budget.
type TokenCounter func(text string) int

var (
	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
)

// defaultTokenCounter counts with the cl100k_base encoding, falling back to
// a bytes/4 approximation when the encoding cannot be loaded.
func defaultTokenCounter() TokenCounter {
	return func(text string) int {
		tokenizerOnce.Do(func() {
			tk, err := tiktoken.GetEncoding("cl100k_base")
			if err == nil {
				tokenizer = tk
			}
		})
		if tokenizer == nil {
			return len(text) / 4
		}
		return len(tokenizer.Encode(text, nil, nil))
	}
}
