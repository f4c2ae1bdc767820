// Package similarity scores how alike two normalized records are.
package similarity

import (
	"sort"
	"strings"
)

// TokenSetRatio compares the whitespace-separated word sets of a and b
// and returns a score in [0,100]. Word order and repeated words are
// ignored, and a string whose words are a subset of the other's scores
// 100. Either side empty scores 0.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var sect, diffAB, diffBA []string
	for t := range ta {
		if _, ok := tb[t]; ok {
			sect = append(sect, t)
		} else {
			diffAB = append(diffAB, t)
		}
	}
	for t := range tb {
		if _, ok := ta[t]; !ok {
			diffBA = append(diffBA, t)
		}
	}
	if len(sect) > 0 && (len(diffAB) == 0 || len(diffBA) == 0) {
		return 100
	}

	joinedAB := joinSorted(diffAB)
	joinedBA := joinSorted(diffBA)
	abLen := runeLen(joinedAB)
	baLen := runeLen(joinedBA)
	sectLen := runeLen(joinSorted(sect))

	sep := 0
	if sectLen != 0 {
		sep = 1
	}
	sectABLen := sectLen + sep + abLen
	sectBALen := sectLen + sep + baLen

	result := normalizedSimilarity(indelDistance(joinedAB, joinedBA), sectABLen+sectBALen)
	if sectLen == 0 {
		return result
	}

	// the intersection compared with intersection + each remainder
	abRatio := normalizedSimilarity(sep+abLen, sectLen+sectABLen)
	baRatio := normalizedSimilarity(sep+baLen, sectLen+sectBALen)
	return max(result, abRatio, baRatio)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func joinSorted(tokens []string) string {
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func runeLen(s string) int {
	return len([]rune(s))
}

func normalizedSimilarity(dist, lenSum int) float64 {
	if lenSum == 0 {
		return 100
	}
	return 100 - 100*float64(dist)/float64(lenSum)
}

// indelDistance is the number of single-rune insertions and deletions
// needed to turn a into b.
func indelDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	return len(ra) + len(rb) - 2*lcsLength(ra, rb)
}

func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
