package similarity

import (
	"fmt"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"github.com/shaymcgreal/datatransformer/app/config"
)

// Comparator scores two non-empty normalized values in [0,100].
type Comparator func(a, b string) float64

// JaroWinkler uses the common 0.7 boost threshold and 4 rune prefix.
func JaroWinkler(a, b string) float64 {
	return 100 * smetrics.JaroWinkler(a, b, 0.7, 4)
}

// LevenshteinRatio is 100 minus the edit distance as a share of the
// longer string.
func LevenshteinRatio(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return 100 - 100*float64(d)/float64(longest)
}

// ComparatorFor maps a configured comparator name to its function.
func ComparatorFor(name string) (Comparator, error) {
	switch name {
	case config.ComparatorTokenSet, "":
		return TokenSetRatio, nil
	case config.ComparatorJaroWinkler:
		return JaroWinkler, nil
	case config.ComparatorLevenshtein:
		return LevenshteinRatio, nil
	default:
		return nil, fmt.Errorf("unknown comparator %q", name)
	}
}
