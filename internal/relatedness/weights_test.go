package relatedness

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWeightDefaults(t *testing.T) {
	w := DefaultWeights()
	cases := map[string]float64{
		"featured":   5,
		"Featured":   5,
		" trending ": 3,
		"staff-pick": 2,
		"anything":   DefaultTagWeight,
	}
	for tag, want := range cases {
		if got := w.Weight(tag); got != want {
			t.Fatalf("Weight(%q) = %v, want %v", tag, got, want)
		}
	}
}

func TestLoadWeightsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	doc := "Trending: 4\nlive: 2.5\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	w, err := LoadWeights(path)
	if err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}
	if got := w.Weight("trending"); got != 4 {
		t.Fatalf("expected override 4, got %v", got)
	}
	if got := w.Weight("LIVE"); got != 2.5 {
		t.Fatalf("expected 2.5, got %v", got)
	}
	if got := w.Weight("featured"); got != 5 {
		t.Fatalf("expected builtin featured kept, got %v", got)
	}
}

func TestLoadWeightsErrors(t *testing.T) {
	if w, err := LoadWeights(""); err != nil || w.Weight("featured") != 5 {
		t.Fatalf("empty path should return defaults, got %v %v", w, err)
	}
	if _, err := LoadWeights(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("featured: [1, 2"), 0o600); err != nil {
		t.Fatalf("write bad: %v", err)
	}
	if _, err := LoadWeights(bad); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDeriveTotalsDistinctTags(t *testing.T) {
	tags, total := derive([]string{"featured", "FEATURED", "alpha", "  "}, DefaultWeights())
	if len(tags) != 2 || total != 6 {
		t.Fatalf("unexpected derive: %+v total=%v", tags, total)
	}
	if tags[0].Tag != "featured" || tags[1].Tag != "alpha" {
		t.Fatalf("unexpected order: %+v", tags)
	}
}
