package steps

import (
	"regexp"
	"strings"
)

// DefaultChunkWords approximates a 500 token budget.
const DefaultChunkWords = 375

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// ChunkTranscript packs whole paragraphs into chunks of at most maxWords words.
// A paragraph is never split, so a single paragraph longer than the budget
// becomes its own chunk.
func ChunkTranscript(text string, maxWords int) []string {
	if maxWords <= 0 {
		maxWords = DefaultChunkWords
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		out   []string
		cur   []string
		words int
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, "\n\n"))
		}
		cur, words = nil, 0
	}
	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := len(strings.Fields(para))
		if words > 0 && words+n > maxWords {
			flush()
		}
		cur = append(cur, para)
		words += n
	}
	flush()
	return out
}
