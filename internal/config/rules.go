package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ashureev/dayreview/internal/analysis"
	"gopkg.in/yaml.v3"
)

// Rules is the user-editable rules file: category overrides and fallback
// scoring weights.
//
//	categories:
//	  work: [code, idea64, obsidian]
//	  game: [steam]
//	scoring:
//	  baseline_workday: 7h30m
//	  mood_leisure_weight: 35
type Rules struct {
	Categories map[string][]string `yaml:"categories"`
	Scoring    analysis.Weights    `yaml:"scoring"`
}

// DefaultRules returns rules with no category overrides and default weights.
func DefaultRules() Rules {
	return Rules{Scoring: analysis.DefaultWeights()}
}

// LoadRules reads the YAML rules file at path. A missing file yields
// DefaultRules. Scoring keys absent from the file keep their defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return rules, nil
	}
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}

	if err := yaml.Unmarshal(data, &rules); err != nil {
		return DefaultRules(), fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := rules.Scoring.Validate(); err != nil {
		return DefaultRules(), fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}
