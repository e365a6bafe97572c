// Package completions answers documentation questions: it retrieves the
// sections most similar to a prompt, assembles them into a grounded prompt
// for the completion model, and returns the answer either whole or as a
// stream prefixed with a reference header frame.
package completions

import (
	"fmt"
	"strings"

	"github.com/docprompt/docprompt/internal/section"
)

// StreamSeparator delimits the JSON reference header from the response text
// in a streamed completion body.
const StreamSeparator = "___START_RESPONSE_STREAM___"

// DefaultIDontKnowMessage is the answer used when the model cannot ground a
// response in the retrieved context.
const DefaultIDontKnowMessage = "Sorry, I am not sure how to answer that."

// MaxPromptLength is the maximum prompt length in runes; longer prompts are
// truncated before retrieval.
const MaxPromptLength = 200

// Default retrieval parameters.
const (
	DefaultMatchThreshold = 0.5
	DefaultMatchCount     = 10
)

// SectionReferenceMeta carries the heading leading the referenced section.
type SectionReferenceMeta struct {
	LeadHeading *section.Heading `json:"leadHeading,omitempty"`
}

// FileReference identifies the source file of a matched section.
type FileReference struct {
	Path  string         `json:"path"`
	Title string         `json:"title,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// FileSectionReference points an answer back at a source section.
type FileSectionReference struct {
	File FileReference         `json:"file"`
	Meta *SectionReferenceMeta `json:"meta,omitempty"`
}

// RequestError is a caller-visible completion failure carrying the HTTP
// status the API layer should answer with.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("completion request failed (%d): %s", e.Status, e.Message)
}

// isIDontKnow reports whether the model declined to answer. The model often
// prefixes the refusal, so a suffix match is used rather than equality.
func isIDontKnow(text, idkMessage string) bool {
	text = strings.TrimSpace(text)
	return text == "" || strings.HasSuffix(text, strings.TrimSpace(idkMessage))
}
