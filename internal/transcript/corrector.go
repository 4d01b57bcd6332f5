// Package transcript repairs exhibit names that the speech recognizer
// misheard before the transcript reaches the dialogue engine.
//
// Recognizers rarely know names like "Antikythera Mechanism" and return
// "antique kithera mechanism" instead. The [Corrector] slides a window over
// the transcript and replaces phrases that sound like a known name with its
// canonical spelling. Matching is in-process with no network calls.
package transcript

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/docent/internal/transcript/phonetic"
)

// Correction records one substitution.
type Correction struct {
	// Original is the phrase as recognised.
	Original string

	// Corrected is the canonical name that replaced it.
	Corrected string

	// Confidence is the similarity score in [0, 1].
	Confidence float64
}

// splitThreshold is the similarity a window must reach to replace a name
// with fewer words.
const splitThreshold = 0.97

// stopwords never start or end a correction window.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "be": {}, "but": {},
	"by": {}, "can": {}, "did": {}, "do": {}, "does": {}, "for": {}, "from": {},
	"has": {}, "have": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "so": {}, "tell": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "with": {},
	"you": {}, "your": {},
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(c *Corrector) { c.matcher = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Corrector) { c.log = l }
}

// Corrector replaces misheard exhibit names. It is safe for concurrent use;
// the vocabulary can be swapped at runtime with [Corrector.SetNames].
type Corrector struct {
	matcher *phonetic.Matcher
	vocab   atomic.Pointer[phonetic.Vocabulary]
	log     *slog.Logger
}

// NewCorrector returns a Corrector for names.
func NewCorrector(names []string, opts ...Option) *Corrector {
	c := &Corrector{
		matcher: phonetic.New(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.SetNames(names)
	return c
}

// SetNames replaces the vocabulary.
func (c *Corrector) SetNames(names []string) {
	c.vocab.Store(phonetic.Prepare(names))
}

// Correct returns text with misheard names replaced.
func (c *Corrector) Correct(text string) string {
	out, corrections := c.Apply(text)
	for _, cr := range corrections {
		c.log.Debug("exhibit name corrected", "original", cr.Original, "corrected", cr.Corrected, "confidence", cr.Confidence)
	}
	return out
}

// Apply returns the corrected text and every substitution made. At each
// position the longest matching window wins. Windows may be one word longer
// than the longest name so that a name split by the recognizer ("sun dial")
// is still found.
func (c *Corrector) Apply(text string) (string, []Correction) {
	v := c.vocab.Load()
	tokens := strings.Fields(text)
	if v == nil || v.Len() == 0 || len(tokens) == 0 {
		return text, nil
	}

	words := make([]word, len(tokens))
	for i, t := range tokens {
		words[i] = split(t)
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(words); {
		n, name, conf := c.matchAt(v, words[i:])
		if n == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}
		original := joinCores(words[i : i+n])
		last := words[i+n-1]
		out = append(out, words[i].prefix+name+last.suffix)
		if !strings.EqualFold(original, name) {
			corrections = append(corrections, Correction{Original: original, Corrected: name, Confidence: conf})
		}
		i += n
	}
	return strings.Join(out, " "), corrections
}

// matchAt tries windows starting at ws[0], longest first. It returns the
// number of words consumed, or 0 when nothing matched. An exact match
// normalises the spelling and reports confidence 1.
func (c *Corrector) matchAt(v *phonetic.Vocabulary, ws []word) (int, string, float64) {
	maxN := min(v.MaxWords()+1, len(ws))
	for n := maxN; n >= 1; n-- {
		window := ws[:n]
		if !contiguous(window) {
			continue
		}
		phrase := joinCores(window)
		if name, ok := v.Exact(phrase); ok {
			return n, name, 1
		}
		if !eligible(window) || allKnown(v, window) {
			continue
		}
		name, conf, ok := c.matcher.Match(phrase, v)
		if !ok {
			continue
		}
		// A window longer than the name only counts when it is the name
		// split into pieces.
		if n > len(strings.Fields(name)) && phonetic.JoinedSimilarity(phrase, name) < splitThreshold {
			continue
		}
		return n, name, conf
	}
	return 0, "", 0
}

// contiguous reports whether no punctuation separates the words of window.
func contiguous(window []word) bool {
	if window[0].core == "" {
		return false
	}
	for i, w := range window {
		if w.core == "" || (i > 0 && w.prefix != "") || (i < len(window)-1 && w.suffix != "") {
			return false
		}
	}
	return true
}

// eligible rejects windows that begin or end on a stopword and single words
// shorter than three letters.
func eligible(window []word) bool {
	first, last := window[0], window[len(window)-1]
	if isStopword(first.core) || isStopword(last.core) {
		return false
	}
	return len(window) > 1 || utf8.RuneCountInString(first.core) >= 3
}

// allKnown reports whether every word of window already appears verbatim in
// some name, in which case the phrase is left alone.
func allKnown(v *phonetic.Vocabulary, window []word) bool {
	for _, w := range window {
		if !v.Contains(w.core) {
			return false
		}
	}
	return true
}

func isStopword(s string) bool {
	_, ok := stopwords[strings.ToLower(s)]
	return ok
}

// word is a transcript token split into leading punctuation, the word
// itself and trailing punctuation.
type word struct {
	prefix, core, suffix string
}

func split(token string) word {
	start := strings.IndexFunc(token, isAlnum)
	if start < 0 {
		return word{prefix: token}
	}
	end := strings.LastIndexFunc(token, isAlnum)
	_, size := utf8.DecodeRuneInString(token[end:])
	end += size
	return word{prefix: token[:start], core: token[start:end], suffix: token[end:]}
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func joinCores(ws []word) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.core
	}
	return strings.Join(parts, " ")
}
