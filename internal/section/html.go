package section

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// parseHTML extracts heading-delimited sections from an HTML document. The
// traversal walks the body's elements in document order, flushing the
// accumulated text whenever a heading at or above the configured depth is
// encountered.
func parseHTML(content string, opts Options) (*FileSections, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	meta := make(map[string]any)
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta["title"] = title
	}

	var sections []Section
	var current *Heading
	var buf []string
	leadFileHeading := ""

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = nil
		if text != "" {
			sections = append(sections, Section{Content: text, LeadHeading: current})
		}
		current = nil
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	root.Find("h1, h2, h3, h4, h5, h6, p, pre, ul, ol, table, blockquote, dl").
		Each(func(_ int, s *goquery.Selection) {
			tag := goquery.NodeName(s)
			if depth := headingDepth(tag); depth > 0 {
				value := strings.TrimSpace(s.Text())
				if value == "" {
					return
				}
				if leadFileHeading == "" {
					leadFileHeading = value
				}
				if depth > opts.maxDepth() {
					buf = append(buf, value)
					return
				}
				flush()
				id := s.AttrOr("id", "")
				current = &Heading{Value: value, ID: id, Depth: depth, Slug: Slugify(value)}
				buf = append(buf, value)
				return
			}
			// Skip nested elements already covered by an ancestor match.
			if s.ParentsFiltered("p, pre, ul, ol, table, blockquote, dl").Length() > 0 {
				return
			}
			if text := strings.TrimSpace(s.Text()); text != "" {
				buf = append(buf, text)
			}
		})
	flush()

	return &FileSections{
		Sections:        sections,
		Meta:            meta,
		LeadFileHeading: leadFileHeading,
	}, nil
}

func headingDepth(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' {
		if d, err := strconv.Atoi(tag[1:]); err == nil && d >= 1 && d <= 6 {
			return d
		}
	}
	return 0
}
