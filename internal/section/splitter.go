package section

import "strings"

// SplitWithinTokenCutoff splits a section's text into chunks below
// maxChunkLength characters.
//
// Sections already under the limit are returned unchanged. Oversized
// sections are split greedily on line boundaries; any accumulated chunk that
// is still over the limit (a single pathologically long line) is split
// further on word boundaries. Words are never cut: a single word longer than
// the limit is emitted as its own oversized chunk.
func SplitWithinTokenCutoff(section string, maxChunkLength int) []string {
	if section == "" {
		return nil
	}
	if len(section) < maxChunkLength {
		return []string{section}
	}

	var subSections []string
	pushChunk := func(acc string) {
		if len(acc) < maxChunkLength {
			subSections = append(subSections, acc)
		} else {
			subSections = append(subSections, splitIntoSubstringsOfMaxLength(acc, maxChunkLength)...)
		}
	}

	var acc string
	for _, line := range strings.Split(section, "\n") {
		switch {
		case acc == "":
			acc = line
		case len(acc)+1+len(line) >= maxChunkLength:
			pushChunk(acc)
			acc = line
		default:
			acc = acc + "\n" + line
		}
	}
	if acc != "" {
		pushChunk(acc)
	}

	return subSections
}

// splitIntoSubstringsOfMaxLength splits a single line on word boundaries,
// greedily accumulating words up to maxLength characters per chunk.
func splitIntoSubstringsOfMaxLength(line string, maxLength int) []string {
	var result []string
	var current string

	for _, word := range strings.Split(line, " ") {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= maxLength:
			current = current + " " + word
		default:
			result = append(result, current)
			current = word
		}
	}
	if current != "" {
		result = append(result, current)
	}

	return result
}

// SplitSections runs every section through SplitWithinTokenCutoff. Only the
// first chunk of a split section keeps the lead heading; the rest are
// mid-section continuations.
func SplitSections(sections []Section, maxChunkLength int) []Section {
	var out []Section
	for _, s := range sections {
		for i, chunk := range SplitWithinTokenCutoff(s.Content, maxChunkLength) {
			var heading *Heading
			if i == 0 {
				heading = s.LeadHeading
			}
			out = append(out, Section{Content: chunk, LeadHeading: heading})
		}
	}
	return out
}
