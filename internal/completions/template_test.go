package completions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFullPrompt(t *testing.T) {
	t.Run("substitutes all tags in the default template", func(t *testing.T) {
		full := BuildFullPrompt(DefaultTemplate, "the context", "the question", "I don't know.", TemplateOptions{})

		assert.Contains(t, full, "the context")
		assert.Contains(t, full, `Question: "the question"`)
		assert.Contains(t, full, `say "I don't know."`)
		assert.NotContains(t, full, TagContext)
		assert.NotContains(t, full, TagPrompt)
		assert.NotContains(t, full, TagIDontKnow)
	})

	t.Run("replaces only the first occurrence of a tag", func(t *testing.T) {
		template := "A: {{PROMPT}} B: {{PROMPT}} C: {{CONTEXT}}"
		full := BuildFullPrompt(template, "ctx", "q", "idk", TemplateOptions{})

		assert.Equal(t, 1, strings.Count(full, "{{PROMPT}}"))
		assert.Contains(t, full, "A: q B: {{PROMPT}}")
	})

	t.Run("prepends context when the template has no context tag", func(t *testing.T) {
		full := BuildFullPrompt("Answer: {{PROMPT}}", "important context", "q", "idk", TemplateOptions{})

		assert.True(t, strings.HasPrefix(full, "Here is some context"))
		assert.Contains(t, full, "important context")
		assert.Contains(t, full, "Answer: q")
	})

	t.Run("appends prompt when the template has no prompt tag", func(t *testing.T) {
		full := BuildFullPrompt("Context: {{CONTEXT}}", "ctx", "my question", "idk", TemplateOptions{})

		assert.Contains(t, full, "Context: ctx")
		assert.True(t, strings.HasSuffix(full, "Prompt: my question\n"))
	})

	t.Run("honors custom tags", func(t *testing.T) {
		full := BuildFullPrompt("C: <ctx> Q: <q> F: <idk>", "the context", "the question", "no idea", TemplateOptions{
			ContextTag:   "<ctx>",
			PromptTag:    "<q>",
			IDontKnowTag: "<idk>",
		})

		assert.Equal(t, "C: the context Q: the question F: no idea", full)
	})

	t.Run("suppresses default injection when asked", func(t *testing.T) {
		full := BuildFullPrompt("Just answer.", "ctx", "q", "idk", TemplateOptions{
			DoNotInjectContext: true,
			DoNotInjectPrompt:  true,
		})

		assert.Equal(t, "Just answer.", full)
	})
}

func TestRedactSensitive(t *testing.T) {
	assert.Equal(t, "Reach me at [REDACTED].", redactSensitive("Reach me at jane.doe@example.com."))
	assert.Equal(t, "Call [REDACTED] now", redactSensitive("Call +1 555-123-4567 now"))
	assert.Equal(t, "No contact details here.", redactSensitive("No contact details here."))
}

func TestIsIDontKnow(t *testing.T) {
	msg := "Sorry, I am not sure how to answer that."

	assert.True(t, isIDontKnow("", msg))
	assert.True(t, isIDontKnow(msg, msg))
	assert.True(t, isIDontKnow("Hmm. "+msg, msg))
	assert.True(t, isIDontKnow(msg+"\n", msg))
	assert.False(t, isIDontKnow("The install command is npm install.", msg))
}
