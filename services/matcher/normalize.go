// Package matcher holds the title normalization and release-name heuristics
// shared by every ingestion path.
package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minFuzzyLength is the normalized length below which only exact matches count.
const minFuzzyLength = 5

var nonAlnumRun = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// fold lowercases s and strips combining marks, so "Pokémon" becomes "pokemon".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// NormalizeTitle lowercases s and collapses every non-alphanumeric run into a
// single space.
func NormalizeTitle(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(nonAlnumRun.ReplaceAllString(fold(s), " "))
}

// TitleMatches reports whether a and b name the same title. Short titles must
// match exactly; longer ones match when one contains the other on word
// boundaries.
func TitleMatches(a, b string) bool {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if len([]rune(na)) < minFuzzyLength || len([]rune(nb)) < minFuzzyLength {
		return false
	}
	pa, pb := " "+na+" ", " "+nb+" "
	return strings.Contains(pa, pb) || strings.Contains(pb, pa)
}

// ReleaseMatchesGame reports whether a raw release name belongs to gameTitle.
// It first compares the cleaned release name, then falls back to requiring
// every significant word of the title inside the release name.
func ReleaseMatchesGame(releaseName, gameTitle string) bool {
	if TitleMatches(CleanReleaseName(releaseName), gameTitle) {
		return true
	}

	var words []string
	for _, w := range strings.Fields(NormalizeTitle(gameTitle)) {
		if len([]rune(w)) > 2 {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return false
	}

	light := separators.ReplaceAllString(fold(releaseName), " ")
	for _, w := range words {
		if !strings.Contains(light, w) {
			return false
		}
	}
	return true
}
