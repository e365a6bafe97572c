package completions

import (
	"fmt"
	"strings"

	"github.com/docprompt/docprompt/internal/openai"
	"github.com/docprompt/docprompt/internal/section"
	"github.com/docprompt/docprompt/internal/store"
	"github.com/docprompt/docprompt/internal/tokenizer"
)

// contextCutoff returns the token budget for the context block. The smaller
// chat model needs room left for the answer within its shared window.
func contextCutoff(info openai.ModelInfo) int {
	if info.ID == "gpt-3.5-turbo" {
		return tokenizer.ContextTokensCutoffGPT35Turbo
	}
	return tokenizer.ContextTokensCutoff
}

// AssembleContext folds ranked matches into the context text injected into
// the prompt, stopping before a match would push the running token count past
// cutoff. Included sections are never truncated. It also builds the reference
// list and the distinct reference paths, in match order, for the sections
// actually included.
func AssembleContext(matches []store.SectionMatch, cutoff int) (contextText string, references []FileSectionReference, referencePaths []string) {
	var (
		b         strings.Builder
		numTokens int
		seenPaths = make(map[string]bool)
	)

	for _, match := range matches {
		if numTokens+match.TokenCount > cutoff {
			break
		}
		numTokens += match.TokenCount

		content := strings.TrimSpace(strings.ReplaceAll(match.Content, "\n", " "))
		fmt.Fprintf(&b, "Section id: %s\n\n%s\n---\n", match.Path, content)

		references = append(references, matchReference(match))
		if !seenPaths[match.Path] {
			seenPaths[match.Path] = true
			referencePaths = append(referencePaths, match.Path)
		}
	}

	return b.String(), references, referencePaths
}

func matchReference(match store.SectionMatch) FileSectionReference {
	ref := FileSectionReference{
		File: FileReference{
			Path: match.Path,
			Meta: match.FileMeta,
		},
	}
	if title, ok := match.FileMeta["title"].(string); ok {
		ref.File.Title = title
	}
	if match.Meta != nil && match.Meta.LeadHeading != nil {
		heading := *match.Meta.LeadHeading
		if heading.Slug == "" && heading.Value != "" {
			heading.Slug = section.Slugify(heading.Value)
		}
		ref.Meta = &SectionReferenceMeta{LeadHeading: &heading}
	}
	return ref
}
