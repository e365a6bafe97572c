// Package tokenizer provides token counting for prompts and chat messages.
//
// Two counting modes are available. Approximate counting divides character
// length by a fixed chars-per-token ratio and is used on hot paths (context
// assembly, usage estimation). Exact counting runs a byte-pair encoder over
// the cl100k_base vocabulary and is used only where exactness matters, such
// as chat message framing overhead.
package tokenizer

import "math"

const (
	// ContextTokensCutoff is the maximum number of context tokens included
	// in an assembled completion prompt.
	ContextTokensCutoff = 4000

	// ContextTokensCutoffGPT35Turbo is the reduced cutoff for models with a
	// smaller usable window.
	ContextTokensCutoffGPT35Turbo = 2048

	// ApproxCharsPerToken is the fixed character-to-token ratio used for
	// approximate counting.
	ApproxCharsPerToken = 4

	// MaxChunkLength is the maximum character length of an indexed section
	// chunk, derived from the token cutoff with a 20% safety margin.
	MaxChunkLength = (ContextTokensCutoff * 8 / 10) * ApproxCharsPerToken
)

// Approximate returns a fast approximate token count for text, rounding the
// character-ratio estimate to the nearest integer.
func Approximate(text string) int {
	return int(math.Round(float64(len(text)) / ApproxCharsPerToken))
}
