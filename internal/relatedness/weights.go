package relatedness

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultTagWeight = 1.0

var builtinWeights = map[string]float64{
	"featured":   5,
	"trending":   3,
	"staff-pick": 2,
}

// Weights maps lower-cased tags to weights; unknown tags weigh DefaultTagWeight.
type Weights struct {
	table map[string]float64
}

func DefaultWeights() *Weights {
	return NewWeights(nil)
}

// NewWeights layers overrides on top of the built-in table.
func NewWeights(overrides map[string]float64) *Weights {
	w := &Weights{table: make(map[string]float64, len(builtinWeights)+len(overrides))}
	for k, v := range builtinWeights {
		w.table[k] = v
	}
	for k, v := range overrides {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		w.table[k] = v
	}
	return w
}

// LoadWeights reads a yaml document of `tag: weight` pairs. An empty path
// returns the built-in table.
func LoadWeights(path string) (*Weights, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultWeights(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tag weights: %w", err)
	}
	var overrides map[string]float64
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse tag weights %s: %w", path, err)
	}
	return NewWeights(overrides), nil
}

func (w *Weights) Weight(tag string) float64 {
	if w == nil {
		return DefaultTagWeight
	}
	if v, ok := w.table[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return v
	}
	return DefaultTagWeight
}

type derivedTag struct {
	Tag    string
	Weight float64
}

// derive trims tags, drops empties and collapses case-insensitive duplicates,
// keeping the first spelling seen.
func derive(tags []string, w *Weights) ([]derivedTag, float64) {
	seen := make(map[string]struct{}, len(tags))
	out := make([]derivedTag, 0, len(tags))
	total := 0.0
	for _, raw := range tags {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		weight := w.Weight(key)
		out = append(out, derivedTag{Tag: tag, Weight: weight})
		total += weight
	}
	return out, total
}
