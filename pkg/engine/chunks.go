package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/reveriehq/reverie/pkg/assemble"
	"github.com/reveriehq/reverie/pkg/model"
)

// chunkTokenLimit is the target size of one chunk.
const chunkTokenLimit = 200

// PackChunks slices one message's text into roughly chunkTokenLimit-token
// chunks on sentence boundaries. A single sentence over the limit becomes
// its own chunk rather than being split mid-sentence.
func PackChunks(floor int, speaker string, isUser bool, text string) []model.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var pieces []string
	var current strings.Builder
	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 &&
			assemble.EstimateTokens(current.String())+assemble.EstimateTokens(sentence) > chunkTokenLimit {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	chunks := make([]model.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = model.Chunk{
			ChunkID:  fmt.Sprintf("c-%d-%d", floor, i),
			Floor:    floor,
			ChunkIdx: i,
			Speaker:  speaker,
			IsUser:   isUser,
			Text:     piece,
			TextHash: hashText(piece),
		}
	}
	return chunks
}

// splitSentences cuts text after terminal punctuation or newlines, keeping
// the terminator with its sentence. Closing quotes stay attached.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if !isTerminator(r) {
			continue
		}
		if i+1 < len(runes) && isTrailing(runes[i+1]) {
			continue
		}
		sentences = append(sentences, current.String())
		current.Reset()
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '…', '!', '?', '.', '\n':
		return true
	}
	return false
}

// isTrailing reports runes that belong to the sentence just terminated.
func isTrailing(r rune) bool {
	switch r {
	case '」', '』', '"', '\'', '）', ')', '”', '’', '。', '！', '？', '…', '!', '?', '.':
		return true
	}
	return false
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
