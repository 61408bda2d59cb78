package learning

import (
	"context"
	"sync"

	"github.com/ledgermint/ledgermint/internal/domain"
)

// memoryRuleStore is an in-memory RuleStore for tests.
type memoryRuleStore struct {
	mu    sync.Mutex
	rules map[string]domain.LearningRule
}

func newMemoryRuleStore() *memoryRuleStore {
	return &memoryRuleStore{rules: make(map[string]domain.LearningRule)}
}

func (m *memoryRuleStore) GetLearningRule(_ context.Context, pattern string) (*domain.LearningRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[pattern]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memoryRuleStore) UpsertLearningRule(_ context.Context, rule *domain.LearningRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.Pattern] = *rule
	return nil
}

func (m *memoryRuleStore) ListLearningRules(_ context.Context) ([]domain.LearningRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LearningRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}
