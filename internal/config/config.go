// Package config carries the tunable constants of the intelligence pipeline.
// Defaults are embedded; a YAML file can override them. The exact values
// shape "feel", not correctness: the engines only rely on the invariants
// validated here (e.g. confidence bounds, positive tolerance).
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var embeddedConfig []byte

// Learning holds the confidence model constants.
type Learning struct {
	// InitialConfidence seeds a rule created from one observation. Kept
	// deliberately below certainty: one observation is weak evidence.
	InitialConfidence float64 `yaml:"initial_confidence"`
	// ConfirmGain is the fraction of the remaining gap to 1.0 closed by each
	// confirming use, so confidence approaches 1.0 but never reaches it.
	ConfirmGain float64 `yaml:"confirm_gain"`
	// DisagreeDecay multiplies confidence when a confirmation contradicts the
	// stored category.
	DisagreeDecay float64 `yaml:"disagree_decay"`
	// SwitchThreshold is the confidence below which a contradicted rule
	// switches to the newly confirmed category.
	SwitchThreshold float64 `yaml:"switch_threshold"`
	// AutoApplyThreshold is the minimum prediction confidence for silent
	// categorization during import.
	AutoApplyThreshold float64 `yaml:"auto_apply_threshold"`
}

// Recurring holds the pattern detector constants.
type Recurring struct {
	// AmountTolerance is the relative band for clustering amounts under one
	// merchant, absorbing small fee variance.
	AmountTolerance float64 `yaml:"amount_tolerance"`
	// MerchantDistance is the maximum Levenshtein distance at which two
	// normalized merchant keys are folded into one group.
	MerchantDistance int `yaml:"merchant_distance"`
}

// Config is the root of the tunables file.
type Config struct {
	Learning  Learning  `yaml:"learning"`
	Recurring Recurring `yaml:"recurring"`
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	return parse(embeddedConfig)
}

// LoadFromFile reads a YAML config from path, with full validation.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
	}
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config (check syntax, indentation, and field names): %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	l := c.Learning
	if l.InitialConfidence <= 0 || l.InitialConfidence >= 1 {
		return fmt.Errorf("learning.initial_confidence must be in (0,1), got %f", l.InitialConfidence)
	}
	if l.ConfirmGain <= 0 || l.ConfirmGain >= 1 {
		return fmt.Errorf("learning.confirm_gain must be in (0,1), got %f", l.ConfirmGain)
	}
	if l.DisagreeDecay <= 0 || l.DisagreeDecay >= 1 {
		return fmt.Errorf("learning.disagree_decay must be in (0,1), got %f", l.DisagreeDecay)
	}
	if l.SwitchThreshold <= 0 || l.SwitchThreshold >= 1 {
		return fmt.Errorf("learning.switch_threshold must be in (0,1), got %f", l.SwitchThreshold)
	}
	if l.AutoApplyThreshold <= 0 || l.AutoApplyThreshold >= 1 {
		return fmt.Errorf("learning.auto_apply_threshold must be in (0,1), got %f", l.AutoApplyThreshold)
	}

	r := c.Recurring
	if r.AmountTolerance <= 0 || r.AmountTolerance >= 1 {
		return fmt.Errorf("recurring.amount_tolerance must be in (0,1), got %f", r.AmountTolerance)
	}
	if r.MerchantDistance < 0 {
		return fmt.Errorf("recurring.merchant_distance cannot be negative, got %d", r.MerchantDistance)
	}
	return nil
}
