package section

import (
	"errors"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// errNotMarkdown signals that content is not parseable as Markdown-with-JSX
// and should be re-attempted as Markdoc.
var errNotMarkdown = errors.New("content is not valid Markdown/MDX")

// markdocTagRe matches Markdoc tag syntax ({% ... %}), which breaks the MDX
// expression parser when such files carry a .md extension.
var markdocTagRe = regexp.MustCompile(`(?s)\{%.+?%\}`)

// parseMarkdown parses Markdown or MDX content into heading-delimited
// sections. With strict set, content containing Markdoc tags is rejected so
// the caller can fall back to Markdoc parsing.
func parseMarkdown(content string, strict bool, opts Options) (*FileSections, error) {
	meta, body := extractFrontmatter(content)

	if strict && markdocTagRe.MatchString(body) {
		return nil, errNotMarkdown
	}

	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	type boundary struct {
		offset  int
		heading *Heading
	}
	var boundaries []boundary
	leadFileHeading := ""

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			continue
		}
		value := strings.TrimSpace(nodeText(h, src))
		if leadFileHeading == "" {
			leadFileHeading = value
		}
		if h.Level > opts.maxDepth() {
			continue
		}
		start, _ := nodeSpan(h, src)
		if start < 0 {
			continue
		}
		boundaries = append(boundaries, boundary{
			offset: lineStart(src, start),
			heading: &Heading{
				Value: value,
				Depth: h.Level,
				Slug:  Slugify(value),
			},
		})
	}

	var sections []Section
	appendSection := func(raw string, heading *Heading) {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return
		}
		sections = append(sections, Section{Content: trimmed, LeadHeading: heading})
	}

	if len(boundaries) == 0 {
		appendSection(body, nil)
	} else {
		appendSection(body[:boundaries[0].offset], nil)
		for i, b := range boundaries {
			end := len(body)
			if i+1 < len(boundaries) {
				end = boundaries[i+1].offset
			}
			appendSection(body[b.offset:end], b.heading)
		}
	}

	return &FileSections{
		Sections:        sections,
		Meta:            meta,
		LeadFileHeading: leadFileHeading,
	}, nil
}

// parseMarkdoc parses Markdoc content by stripping tag syntax and handing
// the remainder to the Markdown parser in non-strict mode.
func parseMarkdoc(content string, opts Options) (*FileSections, error) {
	meta, body := extractFrontmatter(content)
	stripped := markdocTagRe.ReplaceAllString(body, "")

	fs, err := parseMarkdown(stripped, false, opts)
	if err != nil {
		return nil, err
	}
	// Frontmatter was already taken from the original content.
	if len(meta) > 0 {
		fs.Meta = meta
	}
	return fs, nil
}

// extractFrontmatter splits YAML frontmatter from the body. Malformed
// frontmatter is ignored and the full content is returned as body.
func extractFrontmatter(content string) (map[string]any, string) {
	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return nil, content
	}
	rest := strings.TrimPrefix(content, "---\n")
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return nil, content
	}
	raw := rest[:idx]
	body := rest[idx+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, content
	}
	return meta, body
}

// nodeText collects the plain text of a node's inline content.
func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*ast.Text); ok {
				sb.Write(t.Segment.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// nodeSpan returns the source byte range covered by a node, descending into
// containers. Returns (-1, -1) when the node covers no source lines.
func nodeSpan(n ast.Node, src []byte) (int, int) {
	lines := n.Lines()
	if lines != nil && lines.Len() > 0 {
		return lines.At(0).Start, lines.At(lines.Len() - 1).Stop
	}
	start, stop := -1, -1
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		s, e := nodeSpan(c, src)
		if s < 0 {
			continue
		}
		if start < 0 || s < start {
			start = s
		}
		if e > stop {
			stop = e
		}
	}
	return start, stop
}

// lineStart walks back from offset to the start of its line, so heading
// sections include the marker characters.
func lineStart(src []byte, offset int) int {
	for offset > 0 && src[offset-1] != '\n' {
		offset--
	}
	return offset
}
