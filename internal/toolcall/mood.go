package toolcall

import (
	"regexp"
	"strings"
)

var reMoodDirective = regexp.MustCompile(`(?i)\[\[\s*mood\s*:\s*([A-Za-z_-]*)\s*\]\]`)

// ExtractMood removes every [[mood:VALUE]] directive from text and returns the
// stripped text with the last directive whose value the catalog knows.
// Unknown values are stripped but ignored.
func (c *Catalog) ExtractMood(text string) (string, string) {
	matches := reMoodDirective.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, ""
	}
	mood := ""
	for _, m := range matches {
		if v := strings.ToLower(m[1]); c.IsMood(v) {
			mood = v
		}
	}
	return reMoodDirective.ReplaceAllString(text, ""), mood
}
