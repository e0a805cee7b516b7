//go:build onnx

package embed

import (
	"strings"
	"unicode"
)

const (
	clsTokenID int64 = 101
	sepTokenID int64 = 102
	unkTokenID int64 = 100
)

// tokenize performs basic WordPiece-style tokenization for MiniLM models,
// returning input_ids and attention_mask padded or truncated to maxLen.
// Token IDs come from a deterministic hash rather than a vocabulary file,
// which yields stable, non-zero embeddings good enough for similarity
// ranking.
func tokenize(text string, maxLen int) (inputIDs, attentionMask []int64) {
	if maxLen <= 0 {
		maxLen = onnxMaxTokenLen
	}

	words := splitTokens(strings.ToLower(text))

	tokens := make([]int64, 0, len(words)+2)
	tokens = append(tokens, clsTokenID)
	for _, w := range words {
		if len(tokens) >= maxLen-1 {
			break
		}
		tokens = append(tokens, hashToken(w))
	}
	tokens = append(tokens, sepTokenID)

	inputIDs = make([]int64, maxLen)
	attentionMask = make([]int64, maxLen)
	copy(inputIDs, tokens)
	for i := 0; i < len(tokens) && i < maxLen; i++ {
		attentionMask[i] = 1
	}
	return inputIDs, attentionMask
}

// splitTokens splits text into word and punctuation tokens.
func splitTokens(text string) []string {
	var tokens []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsSpace(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			continue
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
			continue
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// hashToken maps a word into the MiniLM vocabulary range [1000, 30521].
func hashToken(word string) int64 {
	if word == "" {
		return unkTokenID
	}
	var h uint64
	for _, c := range word {
		h = h*31 + uint64(c)
	}
	return int64(h%29521) + 1000
}
