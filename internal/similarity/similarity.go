// Package similarity scores how alike two normalized names are.
package similarity

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// EditDistance is the Levenshtein distance between a and b, counted in runes.
// Insertions, deletions and substitutions each cost 1.
func EditDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// Similarity maps the edit distance onto [0,1]: 1 - d/max(len(a), len(b), 1).
// Two empty strings are perfectly similar.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b), 1)
	return 1 - float64(EditDistance(a, b))/float64(longest)
}
