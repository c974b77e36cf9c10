package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nurpe/freight/internal/model"
)

// SelectRule picks the active rule for a contract route. A rule matches when
// its route equals (start, end), or the reverse route if it is bidirectional.
// Non-default matches win over the default rule; direct matches win over
// reverse matches.
func SelectRule(start, end int64, rules []model.PricingRule) *model.PricingRule {
	var (
		best     *model.PricingRule
		bestRank = 3
		fallback *model.PricingRule
	)
	for i := range rules {
		rule := rules[i]
		if !rule.IsActive {
			continue
		}
		var rank int
		switch {
		case rule.StartLocationID == start && rule.EndLocationID == end:
			rank = 1
		case rule.IsBidirectional && rule.StartLocationID == end && rule.EndLocationID == start:
			rank = 2
		default:
			continue
		}
		if rule.IsDefault {
			if fallback == nil {
				fallback = &rule
			}
			continue
		}
		if rank < bestRank {
			best = &rule
			bestRank = rank
		}
	}
	if best != nil {
		return best
	}
	return fallback
}

// Validate checks a rule on its own.
func Validate(rule model.PricingRule) error {
	if rule.StartLocationID == 0 || rule.EndLocationID == 0 {
		return fmt.Errorf("%w: start and end location are required", ErrInvalidInput)
	}
	if !rule.PriceBase.Valid && !rule.PriceMin.Valid && !rule.PricePerVolume.Valid && !rule.PricePerCollateralPercent.Valid {
		return ErrNoPrice
	}

	amounts := map[string]decimal.NullDecimal{
		"price_base":                   rule.PriceBase,
		"price_min":                    rule.PriceMin,
		"price_per_volume":             rule.PricePerVolume,
		"price_per_collateral_percent": rule.PricePerCollateralPercent,
		"volume_min":                   rule.VolumeMin,
		"volume_max":                   rule.VolumeMax,
		"collateral_min":               rule.CollateralMin,
		"collateral_max":               rule.CollateralMax,
	}
	for name, value := range amounts {
		if value.Valid && value.Decimal.IsNegative() {
			return fmt.Errorf("%w: %s can not be negative", ErrInvalidInput, name)
		}
	}
	if rule.VolumeMin.Valid && rule.VolumeMax.Valid && rule.VolumeMin.Decimal.GreaterThan(rule.VolumeMax.Decimal) {
		return fmt.Errorf("%w: volume_min exceeds volume_max", ErrInvalidInput)
	}
	if rule.CollateralMin.Valid && rule.CollateralMax.Valid && rule.CollateralMin.Decimal.GreaterThan(rule.CollateralMax.Decimal) {
		return fmt.Errorf("%w: collateral_min exceeds collateral_max", ErrInvalidInput)
	}
	if rule.DaysToComplete != nil && *rule.DaysToComplete < 0 {
		return fmt.Errorf("%w: days_to_complete can not be negative", ErrInvalidInput)
	}
	if rule.DaysToExpire != nil && *rule.DaysToExpire < 0 {
		return fmt.Errorf("%w: days_to_expire can not be negative", ErrInvalidInput)
	}
	return nil
}

// ValidateRoute enforces route uniqueness among active rules: a bidirectional
// rule excludes every other rule on the same pair of locations, and two
// unidirectional rules may only coexist in opposite directions.
func ValidateRoute(rule model.PricingRule, existing []model.PricingRule) error {
	if !rule.IsActive {
		return nil
	}
	for _, other := range existing {
		if other.ID == rule.ID || !other.IsActive {
			continue
		}
		if !other.Covers(rule.StartLocationID, rule.EndLocationID) {
			continue
		}
		if rule.IsBidirectional || other.IsBidirectional {
			return fmt.Errorf("%w: a bidirectional pricing already covers or would cover this route", ErrRouteConflict)
		}
		if other.StartLocationID == rule.StartLocationID && other.EndLocationID == rule.EndLocationID {
			return fmt.Errorf("%w: a pricing for this direction already exists", ErrRouteConflict)
		}
	}
	return nil
}

// RouteName renders "Start -> End" or "Start <-> End". Short names use the
// solar system of each location.
func RouteName(rule model.PricingRule, full bool) string {
	arrow := "->"
	if rule.IsBidirectional {
		arrow = "<->"
	}
	return fmt.Sprintf("%s %s %s",
		locationLabel(rule.StartLocation, rule.StartLocationID, full),
		arrow,
		locationLabel(rule.EndLocation, rule.EndLocationID, full),
	)
}

func locationLabel(loc *model.Location, id int64, full bool) string {
	if loc == nil {
		return fmt.Sprintf("#%d", id)
	}
	if full {
		return loc.Name
	}
	return loc.ShortName()
}

// FormatAmount renders a value rounded to whole units with thousands separators.
func FormatAmount(value decimal.Decimal) string {
	raw := value.Round(0).String()
	sign := ""
	if strings.HasPrefix(raw, "-") {
		sign, raw = "-", raw[1:]
	}
	var b strings.Builder
	for i, r := range raw {
		if i > 0 && (len(raw)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}
