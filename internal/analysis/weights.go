package analysis

import (
	"errors"
	"fmt"
	"time"
)

// Weights tunes the fallback evaluator. Every field can be overridden from
// the scoring section of the rules file; missing keys keep their defaults.
type Weights struct {
	// BaselineWorkday is the work duration that counts as a full day.
	BaselineWorkday time.Duration `yaml:"baseline_workday" json:"baseline_workday"`

	MoodBase          float64 `yaml:"mood_base" json:"mood_base"`
	MoodLeisureWeight float64 `yaml:"mood_leisure_weight" json:"mood_leisure_weight"`
	MoodDensityWeight float64 `yaml:"mood_density_weight" json:"mood_density_weight"`

	StressBase          float64 `yaml:"stress_base" json:"stress_base"`
	StressWorkWeight    float64 `yaml:"stress_work_weight" json:"stress_work_weight"`
	StressWorkCap       float64 `yaml:"stress_work_cap" json:"stress_work_cap"`
	StressDensityWeight float64 `yaml:"stress_density_weight" json:"stress_density_weight"`

	// DensityCeiling is the inputs-per-tracked-minute rate treated as
	// maximal activity.
	DensityCeiling float64 `yaml:"density_ceiling" json:"density_ceiling"`

	// LowBand and HighBand split an index into low, mid and high bands
	// for caption selection.
	LowBand  float64 `yaml:"low_band" json:"low_band"`
	HighBand float64 `yaml:"high_band" json:"high_band"`

	EmptyMood   float64 `yaml:"empty_mood" json:"empty_mood"`
	EmptyStress float64 `yaml:"empty_stress" json:"empty_stress"`
}

// DefaultWeights returns the built-in scoring weights.
func DefaultWeights() Weights {
	return Weights{
		BaselineWorkday:     8 * time.Hour,
		MoodBase:            45,
		MoodLeisureWeight:   40,
		MoodDensityWeight:   10,
		StressBase:          25,
		StressWorkWeight:    40,
		StressWorkCap:       1.5,
		StressDensityWeight: 15,
		DensityCeiling:      60,
		LowBand:             40,
		HighBand:            65,
		EmptyMood:           50,
		EmptyStress:         30,
	}
}

// Validate rejects weights the evaluator cannot use.
func (w Weights) Validate() error {
	var errs []error
	if w.BaselineWorkday <= 0 {
		errs = append(errs, errors.New("baseline_workday must be positive"))
	}
	if w.DensityCeiling <= 0 {
		errs = append(errs, errors.New("density_ceiling must be positive"))
	}
	if w.StressWorkCap < 0 {
		errs = append(errs, errors.New("stress_work_cap must not be negative"))
	}
	if w.LowBand < 0 || w.HighBand > 100 || w.LowBand >= w.HighBand {
		errs = append(errs, fmt.Errorf("bands must satisfy 0 <= low_band < high_band <= 100, got %.1f/%.1f", w.LowBand, w.HighBand))
	}
	for name, v := range map[string]float64{"empty_mood": w.EmptyMood, "empty_stress": w.EmptyStress} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%s must be within [0,100], got %.1f", name, v))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid scoring weights: %w", errors.Join(errs...))
	}
	return nil
}
