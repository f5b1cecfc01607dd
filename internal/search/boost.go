package search

import (
	"fmt"
	"regexp"

	"github.com/Aman-CERP/medrag/internal/config"
	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

// MeasurementBoostName names the default lab-value rule.
const MeasurementBoostName = "measurement_value"

// MeasurementBoostBonus is the default lab-value bonus.
const MeasurementBoostBonus = 0.1

// BoostRule adds a bonus to vector hits whose content it matches.
type BoostRule interface {
	Name() string

	// Bonus returns the bonus for content, 0 when the rule does not apply.
	Bonus(content string) float64
}

// RegexBoost adds a fixed bonus when its pattern matches anywhere in the content.
type RegexBoost struct {
	name    string
	pattern *regexp.Regexp
	bonus   float64
}

var _ BoostRule = (*RegexBoost)(nil)

// NewRegexBoost compiles pattern into a boost rule.
func NewRegexBoost(name, pattern string, bonus float64) (*RegexBoost, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, merrors.ConfigError(fmt.Sprintf("invalid boost pattern for %s", name), err)
	}
	return &RegexBoost{name: name, pattern: re, bonus: bonus}, nil
}

// MeasurementBoost returns the rule favouring numeric values with clinical
// units, such as "110 mg/dL".
func MeasurementBoost() *RegexBoost {
	return &RegexBoost{
		name:    MeasurementBoostName,
		pattern: regexp.MustCompile(config.DefaultMeasurementPattern),
		bonus:   MeasurementBoostBonus,
	}
}

// Name returns the rule name.
func (b *RegexBoost) Name() string { return b.name }

// Bonus implements BoostRule.
func (b *RegexBoost) Bonus(content string) float64 {
	if b.pattern.MatchString(content) {
		return b.bonus
	}
	return 0
}

// BoostsFrom compiles configured rules in order.
func BoostsFrom(rules []config.BoostConfig) ([]BoostRule, error) {
	out := make([]BoostRule, 0, len(rules))
	for _, r := range rules {
		b, err := NewRegexBoost(r.Name, r.Pattern, r.Bonus)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
