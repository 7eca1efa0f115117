package retrieval

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/zhisuan/graphchat/log"
)

// TokenCounter estimates how many model tokens a string costs.
type TokenCounter func(text string) int

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens counts tokens with the cl100k_base encoding. If the encoding
// tables cannot be loaded it estimates four bytes per token, which is close
// enough for the content-budget loop it feeds.
func CountTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.GetDefaultLogger().Warn("tiktoken encoding unavailable, falling back to byte estimate: %v", err)
			return
		}
		encoding = enc
	})
	if encoding == nil {
		return len(text) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}
