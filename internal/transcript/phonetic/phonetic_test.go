package phonetic_test

import (
	"testing"

	"github.com/MrWong99/docent/internal/transcript/phonetic"
)

var exhibits = []string{"Astrolabe", "Rosetta Stone", "Sundial"}

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	v := phonetic.Prepare(exhibits)

	tests := []struct {
		phrase  string
		want    string
		minConf float64
	}{
		{"astrolab", "Astrolabe", 0.9},
		{"ASTROLABE", "Astrolabe", 1},
		{"rosetta stoned", "Rosetta Stone", 0.9},
		{"sun dial", "Sundial", 1},
	}
	for _, tc := range tests {
		t.Run(tc.phrase, func(t *testing.T) {
			t.Parallel()
			got, conf, ok := m.Match(tc.phrase, v)
			if !ok {
				t.Fatalf("Match(%q): matched=false", tc.phrase)
			}
			if got != tc.want {
				t.Errorf("Match(%q) = %q, want %q", tc.phrase, got, tc.want)
			}
			if conf < tc.minConf {
				t.Errorf("Match(%q) confidence = %f, want >= %f", tc.phrase, conf, tc.minConf)
			}
		})
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	v := phonetic.Prepare(exhibits)

	for _, phrase := range []string{"hello", "sunday", "", "   "} {
		got, conf, ok := m.Match(phrase, v)
		if ok || got != "" || conf != 0 {
			t.Errorf("Match(%q) = %q, %f, %v; want no match", phrase, got, conf, ok)
		}
	}
	if _, _, ok := m.Match("astrolab", phonetic.Prepare(nil)); ok {
		t.Error("matched against an empty vocabulary")
	}
	if _, _, ok := m.Match("astrolab", nil); ok {
		t.Error("matched against a nil vocabulary")
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	v := phonetic.Prepare([]string{"", "  ", " Rosetta Stone ", "Sundial"})
	if v.Len() != 2 {
		t.Errorf("Len = %d, want 2", v.Len())
	}
	if v.MaxWords() != 2 {
		t.Errorf("MaxWords = %d, want 2", v.MaxWords())
	}
	if !v.Contains("STONE") || v.Contains("stones") {
		t.Error("Contains mismatch")
	}
	if name, ok := v.Exact("rosetta   STONE"); !ok || name != "Rosetta Stone" {
		t.Errorf("Exact = %q, %v", name, ok)
	}
	if _, ok := v.Exact("rosetta"); ok {
		t.Error("Exact matched a partial name")
	}
}

func TestJoinedSimilarity(t *testing.T) {
	t.Parallel()

	if s := phonetic.JoinedSimilarity("Sun Dial", "sundial"); s != 1 {
		t.Errorf("JoinedSimilarity = %f, want 1", s)
	}
	if s := phonetic.JoinedSimilarity("hello", "sundial"); s > 0.7 {
		t.Errorf("JoinedSimilarity = %f, want low", s)
	}
}

func TestWithOptions(t *testing.T) {
	t.Parallel()

	// Thresholds above 1 reject every phrase.
	m := phonetic.New(
		phonetic.WithPhoneticThreshold(1.1),
		phonetic.WithFuzzyThreshold(1.1),
	)
	if _, _, ok := m.Match("astrolab", phonetic.Prepare(exhibits)); ok {
		t.Error("matched despite unreachable thresholds")
	}
}
