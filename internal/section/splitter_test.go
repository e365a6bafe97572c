package section

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitWithinTokenCutoff(t *testing.T) {
	t.Run("empty input yields no chunks", func(t *testing.T) {
		assert.Nil(t, SplitWithinTokenCutoff("", 100))
	})

	t.Run("short section returned unchanged", func(t *testing.T) {
		chunks := SplitWithinTokenCutoff("hello\nworld", 100)
		require.Len(t, chunks, 1)
		assert.Equal(t, "hello\nworld", chunks[0])
	})

	t.Run("splits on line boundaries", func(t *testing.T) {
		lines := []string{
			strings.Repeat("a", 40),
			strings.Repeat("b", 40),
			strings.Repeat("c", 40),
		}
		chunks := SplitWithinTokenCutoff(strings.Join(lines, "\n"), 90)

		require.Len(t, chunks, 2)
		assert.Equal(t, lines[0]+"\n"+lines[1], chunks[0])
		assert.Equal(t, lines[2], chunks[1])
	})

	t.Run("every chunk of line-splittable input is under the limit", func(t *testing.T) {
		var b strings.Builder
		for range 50 {
			b.WriteString(strings.Repeat("x", 30))
			b.WriteString("\n")
		}
		chunks := SplitWithinTokenCutoff(b.String(), 100)

		require.NotEmpty(t, chunks)
		for _, chunk := range chunks {
			assert.Less(t, len(chunk), 100)
		}
	})

	t.Run("long single line splits on word boundaries", func(t *testing.T) {
		words := strings.Fields(strings.Repeat("lorem ipsum dolor ", 20))
		line := strings.Join(words, " ")
		chunks := SplitWithinTokenCutoff(line, 50)

		require.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), 50)
			// Words survive the split intact.
			for _, w := range strings.Fields(chunk) {
				assert.Contains(t, []string{"lorem", "ipsum", "dolor"}, w)
			}
		}
		assert.Equal(t, line, strings.Join(chunks, " "))
	})

	t.Run("single word over the limit is emitted whole", func(t *testing.T) {
		word := strings.Repeat("z", 200)
		chunks := SplitWithinTokenCutoff(word, 50)

		require.Len(t, chunks, 1)
		assert.Equal(t, word, chunks[0])
	})
}

func TestSplitSections(t *testing.T) {
	heading := &Heading{Value: "Install", Depth: 2, Slug: "install"}

	t.Run("lead heading stays on the first chunk only", func(t *testing.T) {
		long := strings.Repeat("line of text\n", 30)
		out := SplitSections([]Section{{Content: long, LeadHeading: heading}}, 100)

		require.Greater(t, len(out), 1)
		assert.Equal(t, heading, out[0].LeadHeading)
		for _, s := range out[1:] {
			assert.Nil(t, s.LeadHeading)
		}
	})

	t.Run("unsplit section keeps its heading", func(t *testing.T) {
		out := SplitSections([]Section{{Content: "short", LeadHeading: heading}}, 100)

		require.Len(t, out, 1)
		assert.Equal(t, heading, out[0].LeadHeading)
	})
}
