package transform

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	xtransform "golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/papercomputeco/folio/pkg/rag"
)

// Policy decides whether a query depends on the conversation and must be
// rewritten before retrieval. Matching is whole-word and ignores case.
// Markers also ignore accents; prefixes keep them, so the verb "É" never
// reads as the conjunction "e".
type Policy struct {
	// Markers are words that refer back to earlier turns ("isso", "it").
	Markers []string

	// FollowUpPrefixes are openings that continue a previous question
	// ("e quanto", "what about").
	FollowUpPrefixes []string

	// MinWords marks queries shorter than this as elliptical.
	MinWords int
}

// DefaultPolicy covers Portuguese and English follow-ups.
func DefaultPolicy() Policy {
	return Policy{
		Markers: []string{
			"isso", "isto", "aquilo", "esse", "essa", "esses", "essas",
			"ele", "ela", "eles", "elas", "dele", "dela", "deles", "delas", "disso", "nisso",
			"this", "that", "these", "those", "it", "its", "they", "them", "their",
		},
		FollowUpPrefixes: []string{
			"e ", "e o ", "e a ", "e os ", "e as ", "e quanto", "e sobre", "também", "tambem", "mais ",
			"and ", "what about", "how about", "also", "same for",
		},
		MinWords: 3,
	}
}

// NeedsRewrite reports whether text should be rewritten given history.
// An empty history never needs a rewrite.
func (p Policy) NeedsRewrite(text string, history rag.History) bool {
	if len(history) == 0 {
		return false
	}

	words := splitWords(strings.ToLower(text))
	if len(words) == 0 {
		return false
	}

	if p.MinWords > 0 && len(words) < p.MinWords {
		return true
	}

	spaced := strings.Join(words, " ") + " "
	for _, prefix := range p.FollowUpPrefixes {
		if strings.HasPrefix(spaced, strings.ToLower(prefix)) {
			return true
		}
	}

	markers := make(map[string]struct{}, len(p.Markers))
	for _, m := range p.Markers {
		markers[fold(m)] = struct{}{}
	}
	for _, w := range words {
		if _, ok := markers[fold(w)]; ok {
			return true
		}
	}

	return false
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// fold lowercases and strips diacritics so "É" and "e" compare equal.
func fold(s string) string {
	t := xtransform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := xtransform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
