package text

import (
	"regexp"
	"strings"
)

var (
	emojiPattern = regexp.MustCompile("[" +
		`\x{1F1E0}-\x{1F1FF}` +
		`\x{1F300}-\x{1F5FF}` +
		`\x{1F600}-\x{1F64F}` +
		`\x{1F680}-\x{1F6FF}` +
		`\x{1F700}-\x{1F77F}` +
		`\x{1F780}-\x{1F7FF}` +
		`\x{1F800}-\x{1F8FF}` +
		`\x{1F900}-\x{1F9FF}` +
		`\x{1FA00}-\x{1FA6F}` +
		`\x{1FA70}-\x{1FAFF}` +
		`\x{2702}-\x{27B0}` +
		`\x{24C2}-\x{1F251}` +
		`\x{2500}-\x{2BEF}` +
		`\x{10000}-\x{10FFFF}` +
		`\x{2640}-\x{2642}` +
		`\x{2600}-\x{2B55}` +
		`\x{200D}\x{23CF}\x{23E9}\x{231A}\x{FE0F}\x{3030}` +
		"]+")

	formatPattern   = regexp.MustCompile("[\\\\*_~`\\[\\]]")
	blankRunRegex   = regexp.MustCompile(`[ \t]+`)
	newlineRunRegex = regexp.MustCompile(`\n+`)
)

// Clean removes emoji and pictographic runes and markdown formatting
// punctuation, collapses runs of spaces/tabs and runs of newlines, and trims
// the result. Clean(Clean(s)) == Clean(s).
func Clean(s string) string {
	s = emojiPattern.ReplaceAllString(s, "")
	s = formatPattern.ReplaceAllString(s, "")
	s = blankRunRegex.ReplaceAllString(s, " ")
	s = newlineRunRegex.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

var wordPunctuation = strings.NewReplacer("¿", "", "?", "", "¡", "", "!", "")

// SplitWords drops Spanish and English question/exclamation marks and splits
// on whitespace. Used for word-by-word glossing.
func SplitWords(sentence string) []string {
	return strings.Fields(wordPunctuation.Replace(sentence))
}
