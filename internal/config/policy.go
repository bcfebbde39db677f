package config

import (
	"fmt"
	"os"

	yamlv2 "gopkg.in/yaml.v2"
)

// PolicyFile represents the forecast policy profile file
type PolicyFile struct {
	Profiles map[string]ForecastPolicy `yaml:"profiles"`
	Active   string                    `yaml:"active_profile"`
}

// ForecastPolicy holds the tunable knobs of the forecasting pipeline. These
// mirror what the analytics dashboard exposes to product: how far back to
// aggregate, how far forward to project, and when the model is allowed to
// bend.
type ForecastPolicy struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	WindowMonths    int    `yaml:"window_months"`     // trailing months of revenue to aggregate
	Horizon         int    `yaml:"horizon"`           // months to project forward
	MinSamples      int    `yaml:"min_samples"`       // below this, no projections at all
	CubicMinSamples int    `yaml:"cubic_min_samples"` // at or above this, degree 3 instead of 2
}

// DefaultPolicy returns the built-in forecast policy
func DefaultPolicy() ForecastPolicy {
	return ForecastPolicy{
		Name:            "default",
		Description:     "Quadratic under 9 samples, cubic from 9 up",
		WindowMonths:    12,
		Horizon:         3,
		MinSamples:      3,
		CubicMinSamples: 9,
	}
}

// Degree picks the polynomial degree for a sample count per this policy
func (p ForecastPolicy) Degree(sampleCount int) int {
	if sampleCount >= p.CubicMinSamples {
		return 3
	}

	return 2
}

// LoadPolicy loads the forecast policy profile file and selects a profile.
// An empty profile name selects the file's active_profile.
func LoadPolicy(path, profile string) (ForecastPolicy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ForecastPolicy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file PolicyFile
	if err := yamlv2.Unmarshal(data, &file); err != nil {
		return ForecastPolicy{}, fmt.Errorf("failed to parse policy YAML: %w", err)
	}

	if profile == "" {
		profile = file.Active
	}
	if profile == "" {
		profile = "default"
	}

	policy, ok := file.Profiles[profile]
	if !ok {
		return ForecastPolicy{}, fmt.Errorf("unknown forecast policy profile: %s", profile)
	}
	policy.Name = profile

	if err := policy.validate(); err != nil {
		return ForecastPolicy{}, err
	}

	return policy, nil
}

func (p ForecastPolicy) validate() error {
	if p.WindowMonths < 2 {
		return fmt.Errorf("policy %s: window_months must be at least 2, got %d", p.Name, p.WindowMonths)
	}
	if p.Horizon < 1 {
		return fmt.Errorf("policy %s: horizon must be at least 1, got %d", p.Name, p.Horizon)
	}
	if p.MinSamples < 2 {
		return fmt.Errorf("policy %s: min_samples must be at least 2, got %d", p.Name, p.MinSamples)
	}
	if p.CubicMinSamples < p.MinSamples {
		return fmt.Errorf("policy %s: cubic_min_samples %d below min_samples %d", p.Name, p.CubicMinSamples, p.MinSamples)
	}

	return nil
}
