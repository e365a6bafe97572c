// Package section turns raw documentation files into retrieval-sized
// sections.
//
// Parsing happens in two stages. A format-specific parser (selected from the
// file extension) produces heading-delimited sections plus file metadata.
// The splitter then breaks any section exceeding the character budget into
// sub-sections on line and word boundaries, never inside a word.
package section

import (
	"errors"
	"path"
	"strings"
)

// Heading describes the heading that leads a section.
type Heading struct {
	Value string `json:"value"`
	ID    string `json:"id,omitempty"`
	Depth int    `json:"depth,omitempty"`
	Slug  string `json:"slug,omitempty"`
}

// Section is a contiguous unit of document text. LeadHeading is nil for
// mid-section continuations produced by the splitter.
type Section struct {
	Content     string
	LeadHeading *Heading
}

// FileSections is the parse result for one file: its sections, frontmatter
// metadata, and the first heading of the file (used for title derivation).
type FileSections struct {
	Sections        []Section
	Meta            map[string]any
	LeadFileHeading string
}

// FileFormat identifies the markup format of a source file.
type FileFormat int

const (
	// FormatMarkdown covers Markdown and MDX (the default format).
	FormatMarkdown FileFormat = iota
	// FormatMarkdoc covers Markdoc (.mdoc) files.
	FormatMarkdoc
	// FormatRST covers reStructuredText (.rst) files.
	FormatRST
	// FormatHTML covers .html and .htm files.
	FormatHTML
)

// String returns the format name.
func (f FileFormat) String() string {
	switch f {
	case FormatMarkdoc:
		return "markdoc"
	case FormatRST:
		return "rst"
	case FormatHTML:
		return "html"
	default:
		return "markdown"
	}
}

// FormatFromPath selects the file format from the path's extension. Unknown
// extensions (including plain text) are treated as Markdown.
func FormatFromPath(p string) FileFormat {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) {
	case "mdoc":
		return FormatMarkdoc
	case "rst":
		return FormatRST
	case "html", "htm":
		return FormatHTML
	default:
		return FormatMarkdown
	}
}

// Options configures parsing.
type Options struct {
	// MaxSectionDepth is the deepest heading level that starts a new
	// section. Zero means DefaultMaxSectionDepth.
	MaxSectionDepth int
}

// DefaultMaxSectionDepth splits files at h1, h2 and h3 headings.
const DefaultMaxSectionDepth = 3

func (o Options) maxDepth() int {
	if o.MaxSectionDepth <= 0 {
		return DefaultMaxSectionDepth
	}
	return o.MaxSectionDepth
}

// ErrEmptyContent is returned when a file yields no sections.
var ErrEmptyContent = errors.New("empty content")

// Parse parses content according to the format derived from filePath.
//
// Markdown that fails to parse as Markdown-with-JSX is re-attempted as
// Markdoc: some repositories use the .md extension for Markdoc files, and
// the fallback is an explicit second step rather than an error.
func Parse(filePath, content string, opts Options) (*FileSections, error) {
	var fs *FileSections
	var err error

	switch FormatFromPath(filePath) {
	case FormatMarkdoc:
		fs, err = parseMarkdoc(content, opts)
	case FormatRST:
		fs, err = parseRST(content, opts)
	case FormatHTML:
		fs, err = parseHTML(content, opts)
	default:
		fs, err = parseMarkdown(content, true, opts)
		if err != nil {
			fs, err = parseMarkdoc(content, opts)
		}
	}
	if err != nil {
		return nil, err
	}
	if fs == nil || len(fs.Sections) == 0 {
		return nil, ErrEmptyContent
	}

	fs.Meta = augmentMetaWithTitle(fs.Meta, fs.LeadFileHeading, filePath)
	return fs, nil
}
