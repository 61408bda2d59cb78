package learning

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ledgermint/ledgermint/internal/domain"
	"github.com/ledgermint/ledgermint/internal/normalize"
)

//go:embed seed_rules.yaml
var embeddedSeedRules []byte

// seedRule is one entry in the seed rules YAML.
type seedRule struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
}

type seedRuleSet struct {
	Rules []seedRule `yaml:"rules"`
}

// Seed loads the embedded starter rules into the store, skipping patterns
// that already have a learned rule. Seed confidence is the configured
// initial value, below the auto-apply threshold, so seeds suggest but never
// silently categorize until confirmed.
func (e *Engine) Seed(ctx context.Context) error {
	return e.SeedFrom(ctx, embeddedSeedRules)
}

// SeedFrom loads starter rules from YAML data. Each entry needs a non-empty
// pattern and category; patterns are normalized the same way merchant text
// is, so seeds and learned rules share one keyspace.
func (e *Engine) SeedFrom(ctx context.Context, data []byte) error {
	var set seedRuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("failed to parse seed rules YAML (check syntax, indentation, and field names): %w", err)
	}

	now := e.now()
	for i, seed := range set.Rules {
		if seed.Pattern == "" {
			return fmt.Errorf("seed rule %d: pattern cannot be empty", i)
		}
		if seed.Category == "" {
			return fmt.Errorf("seed rule %d (%s): category cannot be empty", i, seed.Pattern)
		}

		key := normalize.MerchantKey(seed.Pattern)
		if key == "" {
			return fmt.Errorf("seed rule %d: pattern %q normalizes to nothing", i, seed.Pattern)
		}

		existing, err := e.store.GetLearningRule(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to look up seed pattern %q: %w", key, err)
		}
		if existing != nil {
			continue
		}

		rule, err := domain.NewLearningRule(key, seed.Category, e.cfg.InitialConfidence, now)
		if err != nil {
			return fmt.Errorf("seed rule %d (%s): %w", i, seed.Pattern, err)
		}
		if err := e.store.UpsertLearningRule(ctx, rule); err != nil {
			return fmt.Errorf("failed to store seed rule %q: %w", key, err)
		}
	}
	return nil
}
