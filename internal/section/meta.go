package section

import (
	"path"
	"regexp"
	"strings"
)

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a heading value into an anchor slug.
func Slugify(value string) string {
	slug := nonSlugRe.ReplaceAllString(strings.ToLower(value), "-")
	return strings.Trim(slug, "-")
}

// augmentMetaWithTitle ensures the file metadata carries a title: an
// explicit frontmatter title wins, then the lead file heading, then the
// file name without extension.
func augmentMetaWithTitle(meta map[string]any, leadFileHeading, filePath string) map[string]any {
	if meta == nil {
		meta = make(map[string]any)
	}
	if title, ok := meta["title"].(string); ok && title != "" {
		return meta
	}
	if leadFileHeading != "" {
		meta["title"] = leadFileHeading
		return meta
	}
	name := path.Base(filePath)
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	if name != "" && name != "." && name != "/" {
		meta["title"] = name
	}
	return meta
}
