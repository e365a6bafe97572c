package section

import "strings"

// rstAdornmentChars are the punctuation characters reST accepts for title
// underlines and overlines.
const rstAdornmentChars = `=-~^"'` + "`" + `#*+.:_`

// isRSTAdornment reports whether line consists of a single repeated
// adornment character and is long enough to underline title.
func isRSTAdornment(line, title string) bool {
	line = strings.TrimRight(line, " ")
	if len(line) < 2 || len(line) < len(strings.TrimRight(title, " ")) {
		return false
	}
	ch := line[0]
	if !strings.ContainsRune(rstAdornmentChars, rune(ch)) {
		return false
	}
	for i := 1; i < len(line); i++ {
		if line[i] != ch {
			return false
		}
	}
	return true
}

// parseRST extracts title-delimited sections from reStructuredText. A title
// is a text line followed by an adornment line (optionally preceded by a
// matching overline). Section depth follows the order in which adornment
// characters first appear, per the reST convention.
func parseRST(content string, opts Options) (*FileSections, error) {
	lines := strings.Split(content, "\n")

	depthByAdornment := make(map[byte]int)
	depthOf := func(ch byte) int {
		if d, ok := depthByAdornment[ch]; ok {
			return d
		}
		d := len(depthByAdornment) + 1
		depthByAdornment[ch] = d
		return d
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

	startSection := func(value string, adornment byte) {
		if leadFileHeading == "" {
			leadFileHeading = value
		}
		depth := depthOf(adornment)
		if depth > opts.maxDepth() {
			buf = append(buf, value)
			return
		}
		flush()
		current = &Heading{Value: value, Depth: depth, Slug: Slugify(value)}
		buf = append(buf, value)
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		// Overline form: adornment / title / matching adornment.
		if trimmed != "" && i+2 < len(lines) &&
			isRSTAdornment(line, lines[i+1]) &&
			strings.TrimSpace(lines[i+1]) != "" &&
			isRSTAdornment(lines[i+2], lines[i+1]) &&
			lines[i+2] != "" && lines[i+2][0] == line[0] {
			startSection(strings.TrimSpace(lines[i+1]), lines[i+2][0])
			i += 2
			continue
		}

		// Underline form: title / adornment. A title must not itself look
		// like an adornment (that would be a transition marker).
		if trimmed != "" && i+1 < len(lines) &&
			isRSTAdornment(lines[i+1], line) &&
			!isRSTAdornment(line, line) {
			startSection(trimmed, lines[i+1][0])
			i++
			continue
		}

		buf = append(buf, line)
	}
	flush()

	return &FileSections{
		Sections:        sections,
		LeadFileHeading: leadFileHeading,
	}, nil
}
