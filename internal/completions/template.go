package completions

import (
	"fmt"
	"strings"
)

// Template tags substituted when assembling the full prompt.
const (
	TagContext   = "{{CONTEXT}}"
	TagPrompt    = "{{PROMPT}}"
	TagIDontKnow = "{{I_DONT_KNOW}}"
)

// DefaultTemplate is the system prompt used when a request supplies no
// template of its own.
const DefaultTemplate = `You are a very enthusiastic company representative who loves to help people! Below is a list of context sections separated by three dashes ('---'). Answer the question using only that information, outputted in Markdown format. If you are unsure and the answer is not explicitly written in the documentation, say "` + TagIDontKnow + `"

Context sections:
---
` + TagContext + `

Question: "` + TagPrompt + `"

Answer (including related code snippets if available):`

// TemplateOptions adjusts how template tags are resolved.
type TemplateOptions struct {
	// ContextTag, PromptTag and IDontKnowTag override the default tags when
	// non-empty, so templates written with other placeholder conventions
	// still work.
	ContextTag   string
	PromptTag    string
	IDontKnowTag string

	// DoNotInjectContext and DoNotInjectPrompt suppress the default
	// injection applied when the corresponding tag is absent from the
	// template.
	DoNotInjectContext bool
	DoNotInjectPrompt  bool
}

// BuildFullPrompt substitutes the template tags with the assembled context,
// the user prompt, and the refusal message. Each tag is replaced at its first
// occurrence only. By default a template without a context tag gets the
// context prepended, and one without a prompt tag gets the prompt appended,
// so a minimal custom template can never silently drop either.
func BuildFullPrompt(template, contextText, prompt, idkMessage string, opts TemplateOptions) string {
	contextTag := opts.ContextTag
	if contextTag == "" {
		contextTag = TagContext
	}
	promptTag := opts.PromptTag
	if promptTag == "" {
		promptTag = TagPrompt
	}
	idkTag := opts.IDontKnowTag
	if idkTag == "" {
		idkTag = TagIDontKnow
	}

	full := strings.Replace(template, idkTag, idkMessage, 1)

	if strings.Contains(template, contextTag) {
		full = strings.Replace(full, contextTag, contextText, 1)
	} else if !opts.DoNotInjectContext {
		full = fmt.Sprintf("Here is some context which might contain valuable information to answer the question. It is in no particular order:\n\n---\n%s\n---\n\n%s", contextText, full)
	}

	if strings.Contains(template, promptTag) {
		full = strings.Replace(full, promptTag, prompt, 1)
	} else if !opts.DoNotInjectPrompt {
		full += fmt.Sprintf("\n\nPrompt: %s\n", prompt)
	}

	return full
}
