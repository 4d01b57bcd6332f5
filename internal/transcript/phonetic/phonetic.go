// Package phonetic matches misheard phrases against a fixed vocabulary of
// proper names using Double Metaphone codes and Jaro-Winkler similarity.
//
// Matching has two stages:
//
//  1. Phonetic filtering: a name is a candidate when any Double Metaphone
//     code of the input shares a code with any word of the name.
//  2. Ranking: candidates are ranked by Jaro-Winkler similarity and accepted
//     above the phonetic threshold. When no candidate qualifies, plain
//     Jaro-Winkler against every name is tried with the stricter fuzzy
//     threshold.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.93
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for a phonetic candidate.
// Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum similarity when no phonetic candidate
// exists. Default: 0.93.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher scores phrases against a [Vocabulary]. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured by opts.
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

type entry struct {
	name   string
	lower  string
	tokens []string
	joined string
	codes  map[string]struct{}
}

// Vocabulary is a prepared list of names. Build one with [Prepare] and reuse
// it across calls.
type Vocabulary struct {
	entries  []entry
	words    map[string]struct{}
	maxWords int
}

// Prepare computes phonetic codes for names once. Blank names are skipped.
func Prepare(names []string) *Vocabulary {
	v := &Vocabulary{words: make(map[string]struct{})}
	for _, name := range names {
		lower := strings.ToLower(strings.TrimSpace(name))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.entries = append(v.entries, entry{
			name:   strings.TrimSpace(name),
			lower:  strings.Join(tokens, " "),
			tokens: tokens,
			joined: strings.Join(tokens, ""),
			codes:  codesFor(tokens),
		})
		for _, t := range tokens {
			v.words[t] = struct{}{}
		}
		v.maxWords = max(v.maxWords, len(tokens))
	}
	return v
}

// MaxWords returns the word count of the longest name.
func (v *Vocabulary) MaxWords() int { return v.maxWords }

// Len returns the number of names.
func (v *Vocabulary) Len() int { return len(v.entries) }

// Contains reports whether word (case-insensitive) occurs verbatim in any
// name.
func (v *Vocabulary) Contains(word string) bool {
	_, ok := v.words[strings.ToLower(word)]
	return ok
}

// Exact returns the canonical spelling when phrase equals a name ignoring
// case and spacing.
func (v *Vocabulary) Exact(phrase string) (string, bool) {
	lower := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	for _, e := range v.entries {
		if e.lower == lower {
			return e.name, true
		}
	}
	return "", false
}

// Match returns the name in v most similar to phrase. When matched is false,
// name is empty and confidence is 0.
func (m *Matcher) Match(phrase string, v *Vocabulary) (name string, confidence float64, matched bool) {
	lower := strings.ToLower(strings.TrimSpace(phrase))
	if lower == "" || v == nil || len(v.entries) == 0 {
		return "", 0, false
	}
	tokens := strings.Fields(lower)
	codes := codesFor(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, e := range v.entries {
		score := similarity(tokens, lower, e)
		if overlap(codes, e.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = e.name, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = e.name, score
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// codesFor returns the union of the Double Metaphone codes of tokens.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, 2*len(tokens))
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score of the full phrase and, when
// either side has several words, of both with spaces removed ("sun dial"
// vs "sundial").
func similarity(tokens []string, lower string, e entry) float64 {
	score := matchr.JaroWinkler(lower, e.lower, false)
	if len(tokens) > 1 || len(e.tokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(tokens, ""), e.joined, false); s > score {
			score = s
		}
	}
	return score
}

// JoinedSimilarity compares a and b case-insensitively with all spaces
// removed.
func JoinedSimilarity(a, b string) float64 {
	join := func(s string) string { return strings.Join(strings.Fields(strings.ToLower(s)), "") }
	return matchr.JaroWinkler(join(a), join(b), false)
}
