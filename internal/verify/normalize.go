// ABOUTME: Answer normalization shared by the bank and the matcher.
// ABOUTME: NFKC folds full-width input, case folding is Unicode-aware, whitespace is collapsed.

package verify

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical form of an answer.
// "  Paris ", "PARIS" and "Ｐａｒｉｓ" all normalize to "paris".
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// normalizeSet normalizes answers, dropping blanks and duplicates while keeping order.
func normalizeSet(answers []string) []string {
	seen := make(map[string]struct{}, len(answers))
	out := make([]string, 0, len(answers))
	for _, a := range answers {
		n := Normalize(a)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
