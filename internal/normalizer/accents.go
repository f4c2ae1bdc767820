package normalizer

import (
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes combining marks, keeping base letters.
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	out, _, _ := transform.String(t, s)
	return out
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// FoldAccents transliterates to ASCII. Marks are stripped first so
// precomposed and decomposed input fold the same way.
func FoldAccents(s string) string {
	return unidecode.Unidecode(StripDiacritics(s))
}
