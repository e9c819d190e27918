package faq

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// tokenize lower-cases text, turns everything that is not a letter or digit
// into a separator and returns the sorted unique tokens.
func tokenize(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	slices.Sort(fields)
	return slices.Compact(fields)
}

// tokenSetRatio scores two sorted unique token lists from 0 to 100. Word order
// and duplicates do not matter; a list that is a subset of the other scores
// 100.
func tokenSetRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sect, diffAB, diffBA := splitSets(a, b)
	if len(sect) > 0 && (len(diffAB) == 0 || len(diffBA) == 0) {
		return 100
	}

	ab := strings.Join(diffAB, " ")
	ba := strings.Join(diffBA, " ")
	abLen := utf8.RuneCountInString(ab)
	baLen := utf8.RuneCountInString(ba)
	sectLen := utf8.RuneCountInString(strings.Join(sect, " "))

	sep := 0
	if sectLen != 0 {
		sep = 1
	}
	sectABLen := sectLen + sep + abLen
	sectBALen := sectLen + sep + baLen

	// "sect ab" and "sect ba" share their prefix, so their distance is the
	// distance of the differences alone.
	best := normalized(indel(ab, ba), sectABLen+sectBALen)
	if sectLen == 0 {
		return best
	}
	best = max(best,
		normalized(sep+abLen, sectLen+sectABLen),
		normalized(sep+baLen, sectLen+sectBALen),
	)
	return best
}

func splitSets(a, b []string) (sect, onlyA, onlyB []string) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			sect = append(sect, a[i])
			i++
			j++
		case a[i] < b[j]:
			onlyA = append(onlyA, a[i])
			i++
		default:
			onlyB = append(onlyB, b[j])
			j++
		}
	}
	onlyA = append(onlyA, a[i:]...)
	onlyB = append(onlyB, b[j:]...)
	return sect, onlyA, onlyB
}

func normalized(dist, total int) float64 {
	if total == 0 {
		return 100
	}
	return 100 * (1 - float64(dist)/float64(total))
}

// indel is the insertion/deletion edit distance in runes:
// len(a)+len(b)-2*LCS(a,b).
func indel(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return len(ra) + len(rb) - 2*prev[len(rb)]
}
