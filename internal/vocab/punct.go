package vocab

import "strings"

// Full-width punctuation used by the corpus.
const (
	Comma       = "，"
	FullStop    = "。"
	Exclamation = "！"
	Question    = "？"
)

var asciiPunct = strings.NewReplacer(
	",", Comma,
	".", FullStop,
	"?", Question,
)

// NormalizePunctuation maps ASCII , . ? to their full-width forms so that
// phrases typed on a western keyboard match corpus characters.
func NormalizePunctuation(s string) string {
	return asciiPunct.Replace(s)
}

// IsSentenceStart reports whether the token after prev opens a new sentence:
// prev is a sentence-ending mark or the <START> marker.
func IsSentenceStart(prev string) bool {
	return prev == FullStop || prev == Exclamation || prev == Start
}
