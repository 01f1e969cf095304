package indexer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxChunkSize is the chunk length bound in bytes.
	DefaultMaxChunkSize = 1000
	// DefaultOverlapSize controls how much of a chunk is repeated at the
	// start of the next one. Overlap is OverlapSize/6 words.
	DefaultOverlapSize = 100

	summaryMaxSentences = 3
	summaryMaxLength    = 500
)

// Chunk is one span of a document's content.
type Chunk struct {
	Text string
	// OverlapWords is the number of leading words copied from the previous
	// chunk.
	OverlapWords int
}

// SplitSentences splits text after '.', '!' or '?' when followed by
// whitespace. Terminators stay with their sentence and surrounding space is
// trimmed.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i < len(text) {
			next, _ := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(next) {
				continue
			}
		}
		if s := strings.TrimSpace(text[start:i]); s != "" {
			sentences = append(sentences, s)
		}
		start = i
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// ChunkText splits content into chunks of at most maxSize bytes where
// sentence boundaries allow. Content that fits is returned whole. Longer
// content is packed greedily sentence by sentence; each new chunk starts
// with the last overlapSize/6 words of the previous one. A sentence longer
// than maxSize becomes a chunk of its own.
func ChunkText(content string, maxSize, overlapSize int) []Chunk {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	if overlapSize < 0 {
		overlapSize = 0
	}
	if len(content) <= maxSize {
		return []Chunk{{Text: content}}
	}

	overlapWords := overlapSize / 6

	var (
		chunks  []Chunk
		current strings.Builder
		seeded  int  // overlap words at the start of current
		fresh   bool // current holds at least one sentence of its own
	)

	flush := func() {
		text := current.String()
		chunks = append(chunks, Chunk{Text: text, OverlapWords: seeded})
		current.Reset()
		seeded = 0
		fresh = false

		if overlapWords == 0 {
			return
		}
		words := strings.Fields(text)
		if len(words) > overlapWords {
			words = words[len(words)-overlapWords:]
		}
		current.WriteString(strings.Join(words, " "))
		seeded = len(words)
	}

	for _, sentence := range SplitSentences(content) {
		if fresh && current.Len()+1+len(sentence) > maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
		fresh = true
	}
	if fresh {
		chunks = append(chunks, Chunk{Text: current.String(), OverlapWords: seeded})
	}
	return chunks
}

// Summarize returns the first three sentences of text, cut to 500 bytes on
// a rune boundary.
func Summarize(text string) string {
	sentences := SplitSentences(text)
	if len(sentences) > summaryMaxSentences {
		sentences = sentences[:summaryMaxSentences]
	}
	summary := strings.Join(sentences, " ")
	if len(summary) <= summaryMaxLength {
		return summary
	}
	cut := summaryMaxLength
	for cut > 0 && !utf8.RuneStart(summary[cut]) {
		cut--
	}
	return strings.TrimSpace(summary[:cut])
}

// EstimateTokens approximates token usage at four bytes per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
