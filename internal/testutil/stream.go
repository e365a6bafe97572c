package testutil

import (
	"fmt"
	"strings"
	"testing"
)

// streamSeparator mirrors the separator between the reference header frame
// and the response text in streamed completion bodies.
const streamSeparator = "___START_RESPONSE_STREAM___"

// ChatChunkStream builds a provider event stream carrying the given text
// chunks as chat completion deltas, terminated with [DONE].
func ChatChunkStream(chunks ...string) string {
	var b strings.Builder
	for _, chunk := range chunks {
		fmt.Fprintf(&b, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", chunk)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// SplitStreamResponse splits a streamed completion body into its reference
// header frame and the response text.
func SplitStreamResponse(t *testing.T, body string) (header, text string) {
	t.Helper()

	header, text, found := strings.Cut(body, streamSeparator)
	if !found {
		t.Fatalf("stream body contains no separator: %q", body)
	}
	return header, text
}
