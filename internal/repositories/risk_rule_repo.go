package repositories

import (
	"context"

	"github.com/BradenHooton/mailguard/internal/database"
	"github.com/BradenHooton/mailguard/internal/models"
)

// RiskRuleRepository reads detection rules
type RiskRuleRepository struct {
	db *database.DB
}

// NewRiskRuleRepository creates a new RiskRuleRepository
func NewRiskRuleRepository(db *database.DB) *RiskRuleRepository {
	return &RiskRuleRepository{db: db}
}

// ListEnabled returns all enabled rules with their raw conditions
func (r *RiskRuleRepository) ListEnabled(ctx context.Context) ([]models.RiskRule, error) {
	return r.list(ctx, `WHERE enabled`)
}

// ListAll returns every rule, enabled or not
func (r *RiskRuleRepository) ListAll(ctx context.Context) ([]models.RiskRule, error) {
	return r.list(ctx, ``)
}

func (r *RiskRuleRepository) list(ctx context.Context, where string) ([]models.RiskRule, error) {
	query := `SELECT id, name, rule_type, enabled, risk_score, conditions, created_at, updated_at
		FROM risk_rules ` + where + ` ORDER BY name`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var rules []models.RiskRule
	for rows.Next() {
		var (
			rule     models.RiskRule
			ruleType string
			raw      []byte
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &ruleType, &rule.Enabled, &rule.RiskScore, &raw, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rule.Type = models.RuleType(ruleType)
		rule.RawCondition = raw
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
