// Package suggest finds the known name a misheard or misspelled query most
// likely refers to. Spoken names reach the tools through speech recognition,
// so "Jaun" or "Pedro Bilders" should still point at the right customer.
//
// Matching runs in two stages:
//
//  1. Phonetic filter: Double Metaphone codes of each query word are compared
//     with those of each name word. Names sharing a code are candidates and
//     are accepted above the phonetic threshold.
//  2. Fuzzy fallback: without a phonetic candidate, a name is accepted on
//     Jaro-Winkler similarity alone above the stricter fuzzy threshold.
//
// Scores are the best of full-string, space-stripped, and word-pair
// Jaro-Winkler similarity, case-insensitive.
package suggest

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum score for a phonetic candidate.
// Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum score for a non-phonetic candidate.
// Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Closest returns the name in names that query most likely refers to, with
// its score. ok is false when nothing clears the thresholds.
func (m *Matcher) Closest(query string, names []string) (name string, score float64, ok bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(names) == 0 {
		return "", 0, false
	}
	qTokens := strings.Fields(q)
	qCodes := codes(qTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, candidate := range names {
		c := strings.ToLower(strings.TrimSpace(candidate))
		if c == "" {
			continue
		}
		cTokens := strings.Fields(c)
		s := similarity(qTokens, cTokens, q, c)

		if overlaps(qCodes, codes(cTokens)) {
			if s >= m.phoneticThreshold && (!bestPhonetic || s > bestScore) {
				best, bestScore, bestPhonetic = candidate, s, true
			}
			continue
		}
		if !bestPhonetic && s >= m.fuzzyThreshold && s > bestScore {
			best, bestScore = candidate, s
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// codes returns the set of non-empty Double Metaphone codes for tokens.
func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			out[p] = struct{}{}
		}
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

func similarity(qTokens, cTokens []string, q, c string) float64 {
	score := matchr.JaroWinkler(q, c, false)
	if len(qTokens) > 1 || len(cTokens) > 1 {
		score = max(score, matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(cTokens, ""), false))
	}
	for _, qt := range qTokens {
		for _, ct := range cTokens {
			score = max(score, matchr.JaroWinkler(qt, ct, false))
		}
	}
	return score
}
