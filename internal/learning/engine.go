// Package learning maintains merchant-pattern → category rules with a
// confidence score that strengthens on repeated confirmation. The engine is
// stateless apart from the rule table behind its store interface; it never
// prompts the user.
package learning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ledgermint/ledgermint/internal/config"
	"github.com/ledgermint/ledgermint/internal/domain"
	"github.com/ledgermint/ledgermint/internal/normalize"
)

// RuleStore is the persistence boundary for learning rules.
// GetLearningRule returns (nil, nil) when no rule exists for the pattern.
type RuleStore interface {
	GetLearningRule(ctx context.Context, pattern string) (*domain.LearningRule, error)
	UpsertLearningRule(ctx context.Context, rule *domain.LearningRule) error
	ListLearningRules(ctx context.Context) ([]domain.LearningRule, error)
}

// Prediction is a category suggestion for a merchant.
type Prediction struct {
	CategoryID string
	Confidence float64
	Pattern    string
}

// Engine predicts categories from learned merchant patterns and updates rule
// confidence on confirmation. Updates to one pattern are serialized; rules
// for different merchants update concurrently.
type Engine struct {
	store RuleStore
	cfg   config.Learning

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewEngine creates a learning engine over the given rule store.
func NewEngine(store RuleStore, cfg config.Learning) *Engine {
	return &Engine{
		store: store,
		cfg:   cfg,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

// Predict normalizes merchantText and returns the category and confidence of
// the longest stored pattern matching it, or (nil, nil) when no rule matches.
func (e *Engine) Predict(ctx context.Context, merchantText string) (*Prediction, error) {
	key := normalize.MerchantKey(merchantText)
	if key == "" {
		return nil, nil
	}

	// Exact hit first: the common case after a few imports.
	rule, err := e.store.GetLearningRule(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up rule for %q: %w", key, err)
	}
	if rule != nil {
		return &Prediction{CategoryID: rule.CategoryID, Confidence: rule.Confidence, Pattern: rule.Pattern}, nil
	}

	// Otherwise the longest stored pattern that is a substring or token
	// subsequence of the merchant key wins.
	rules, err := e.store.ListLearningRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	var best *domain.LearningRule
	for i := range rules {
		r := &rules[i]
		if !patternMatches(key, r.Pattern) {
			continue
		}
		if best == nil || len(r.Pattern) > len(best.Pattern) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	return &Prediction{CategoryID: best.CategoryID, Confidence: best.Confidence, Pattern: best.Pattern}, nil
}

// patternMatches reports whether pattern matches the merchant key as a
// substring or as a whole-token prefix match on every pattern token.
func patternMatches(key, pattern string) bool {
	if pattern == "" {
		return false
	}
	if strings.Contains(key, pattern) {
		return true
	}
	keyTokens := strings.Fields(key)
	patTokens := strings.Fields(pattern)
	if len(patTokens) == 0 || len(patTokens) > len(keyTokens) {
		return false
	}
	for _, pt := range patTokens {
		found := false
		for _, kt := range keyTokens {
			if kt == pt {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Confirm records a user (or import-process) confirmation that merchantText
// belongs to categoryID, creating or strengthening the rule. A confirmation
// that contradicts the stored category decays confidence instead of
// overwriting; below the switch threshold the rule changes category. This
// models "the user corrected a misprediction" without overreacting to one
// anomalous edit.
func (e *Engine) Confirm(ctx context.Context, merchantText, categoryID string) error {
	if categoryID == "" {
		return fmt.Errorf("category ID cannot be empty")
	}
	key := normalize.MerchantKey(merchantText)
	if key == "" {
		return fmt.Errorf("merchant text %q normalizes to nothing", merchantText)
	}

	unlock := e.lockPattern(key)
	defer unlock()

	now := e.now()
	rule, err := e.store.GetLearningRule(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to look up rule for %q: %w", key, err)
	}

	if rule == nil {
		rule, err = domain.NewLearningRule(key, categoryID, e.cfg.InitialConfidence, now)
		if err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}
		return e.store.UpsertLearningRule(ctx, rule)
	}

	if rule.CategoryID == categoryID {
		// Diminishing returns: close a fraction of the remaining gap to 1.0,
		// so confidence is non-decreasing and asymptotically approaches 1.0
		// without ever reaching it.
		rule.Confidence += (1 - rule.Confidence) * e.cfg.ConfirmGain
	} else {
		rule.Confidence *= e.cfg.DisagreeDecay
		if rule.Confidence < e.cfg.SwitchThreshold {
			rule.CategoryID = categoryID
			rule.Confidence = e.cfg.InitialConfidence
		}
	}
	rule.UseCount++
	rule.LastUsedAt = now

	return e.store.UpsertLearningRule(ctx, rule)
}

// lockPattern serializes read-modify-write cycles on a single pattern.
func (e *Engine) lockPattern(pattern string) func() {
	e.mu.Lock()
	l, ok := e.locks[pattern]
	if !ok {
		l = &sync.Mutex{}
		e.locks[pattern] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// AutoApply reports whether a prediction is confident enough for silent
// categorization during import.
func (e *Engine) AutoApply(p *Prediction) bool {
	return p != nil && p.Confidence >= e.cfg.AutoApplyThreshold
}
