package detection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/BradenHooton/mailguard/internal/models"
)

// RuleLoader reads enabled rules from storage
type RuleLoader interface {
	ListEnabled(ctx context.Context) ([]models.RiskRule, error)
}

// Registry holds the enabled rules in memory, keyed by name.
// Rules with malformed conditions are skipped at load time, which disables their check.
type Registry struct {
	loader RuleLoader
	logger *slog.Logger

	mu    sync.RWMutex
	rules map[string]models.RiskRule
}

func NewRegistry(loader RuleLoader, logger *slog.Logger) *Registry {
	return &Registry{
		loader: loader,
		logger: logger,
		rules:  make(map[string]models.RiskRule),
	}
}

// Load replaces the in-memory rule set with the currently enabled rules.
// On a storage error the previous set is kept.
func (r *Registry) Load(ctx context.Context) error {
	enabled, err := r.loader.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load risk rules: %w", err)
	}

	next := make(map[string]models.RiskRule, len(enabled))
	for _, rule := range enabled {
		cond, err := models.ParseRuleCondition(rule.Type, rule.RawCondition)
		if err != nil {
			r.logger.Error("risk rule disabled: invalid condition",
				"rule", rule.Name, "rule_type", rule.Type, "error", err)
			continue
		}
		rule.Condition = cond
		next[rule.Name] = rule
	}

	r.mu.Lock()
	r.rules = next
	r.mu.Unlock()

	r.logger.Info("risk rules loaded", "enabled", len(next), "skipped", len(enabled)-len(next))
	return nil
}

func (r *Registry) Get(name string) (models.RiskRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[name]
	return rule, ok
}

// All returns the loaded rules sorted by name
func (r *Registry) All() []models.RiskRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.RiskRule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ruleCondition fetches a rule and asserts its condition type.
// ok is false when the rule is not loaded.
func ruleCondition[C models.RuleCondition](rules RuleSource, name string) (models.RiskRule, C, bool, error) {
	var zero C
	rule, ok := rules.Get(name)
	if !ok {
		return rule, zero, false, nil
	}
	cond, ok := rule.Condition.(C)
	if !ok {
		return rule, zero, false, fmt.Errorf("%w: rule %s has condition %T", models.ErrConfiguration, name, rule.Condition)
	}
	return rule, cond, true, nil
}
