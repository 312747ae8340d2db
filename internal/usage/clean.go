package usage

import "regexp"

var (
	csiPattern        = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)
	introducerPattern = regexp.MustCompile(`\x1b[<>=\]][^\x1b]*`)
	nonPrintPattern   = regexp.MustCompile(`[^\x20-\x7E\n]`)
	spaceRunPattern   = regexp.MustCompile(` +`)
)

// StripControl removes cursor-movement and mode-setting escape sequences.
// Output of Clean contains no escape bytes, so StripControl is a no-op on it.
func StripControl(text string) string {
	text = csiPattern.ReplaceAllString(text, "")
	return introducerPattern.ReplaceAllString(text, "")
}

// Clean normalizes a raw terminal transcript into printable ASCII lines.
// Escape sequences are dropped, every other non-printable character becomes a
// single space and runs of spaces are collapsed.
func Clean(text string) string {
	text = StripControl(text)
	text = nonPrintPattern.ReplaceAllString(text, " ")
	return spaceRunPattern.ReplaceAllString(text, " ")
}

// Tail returns the last RawTailLimit bytes of cleaned text. Cleaned text is
// pure ASCII, so the byte cut never splits a character.
func Tail(cleaned string) string {
	if len(cleaned) <= RawTailLimit {
		return cleaned
	}
	return cleaned[len(cleaned)-RawTailLimit:]
}
