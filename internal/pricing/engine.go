// Package pricing calculates courier prices for a route and checks contracts
// against the limits of a pricing rule. All functions are pure; persistence
// and re-evaluation of stored contracts live in the service layer.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nurpe/freight/internal/model"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNoPrice       = fmt.Errorf("%w: rule must define a fix price or a variable price", ErrInvalidInput)
	ErrRouteConflict = fmt.Errorf("%w: route conflicts with an existing pricing", ErrInvalidInput)
)

var hundred = decimal.NewFromInt(100)

// Calculator computes prices. VolumeModifier is the handler-wide percentage
// applied to the per-volume rate of rules that opt in.
type Calculator struct {
	VolumeModifier decimal.NullDecimal
}

func NewCalculator(modifier decimal.NullDecimal) Calculator {
	return Calculator{VolumeModifier: modifier}
}

// VolumeModifierFor returns the modifier that applies to rule, if any.
func (c Calculator) VolumeModifierFor(rule model.PricingRule) decimal.NullDecimal {
	if !rule.UsePricePerVolumeModifier || !c.VolumeModifier.Valid {
		return decimal.NullDecimal{}
	}
	return c.VolumeModifier
}

// EffectivePricePerVolume returns the per-volume rate after the modifier,
// never below zero.
func (c Calculator) EffectivePricePerVolume(rule model.PricingRule) decimal.NullDecimal {
	if !rule.PricePerVolume.Valid {
		return decimal.NullDecimal{}
	}
	rate := rule.PricePerVolume.Decimal
	if modifier := c.VolumeModifierFor(rule); modifier.Valid {
		rate = rate.Mul(decimal.NewFromInt(1).Add(modifier.Decimal.Div(hundred)))
	}
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	return decimal.NullDecimal{Decimal: rate, Valid: true}
}

// ComputePrice returns the price for a contract with the given volume and
// collateral. An override is returned unchanged.
func (c Calculator) ComputePrice(rule model.PricingRule, volume, collateral decimal.NullDecimal, override *decimal.Decimal) (decimal.Decimal, error) {
	if volume.Valid && volume.Decimal.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: volume can not be negative", ErrInvalidInput)
	}
	if collateral.Valid && collateral.Decimal.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: collateral can not be negative", ErrInvalidInput)
	}
	if override != nil {
		return *override, nil
	}

	price := decimal.Zero
	if rule.PriceBase.Valid {
		price = rule.PriceBase.Decimal
	}
	if rate := c.EffectivePricePerVolume(rule); rate.Valid && volume.Valid {
		price = price.Add(volume.Decimal.Mul(rate.Decimal))
	}
	if rule.PricePerCollateralPercent.Valid && collateral.Valid {
		price = price.Add(collateral.Decimal.Mul(rule.PricePerCollateralPercent.Decimal).Div(hundred))
	}
	if rule.PriceMin.Valid {
		price = decimal.Max(price, rule.PriceMin.Decimal)
	}
	return price, nil
}

// CheckEligibility evaluates every limit of the rule and returns one issue per
// violated limit. The result is never nil.
func CheckEligibility(rule model.PricingRule, volume, collateral decimal.Decimal, daysToComplete *int) ([]string, error) {
	if volume.IsNegative() {
		return nil, fmt.Errorf("%w: volume can not be negative", ErrInvalidInput)
	}
	if collateral.IsNegative() {
		return nil, fmt.Errorf("%w: collateral can not be negative", ErrInvalidInput)
	}
	if daysToComplete != nil && *daysToComplete < 0 {
		return nil, fmt.Errorf("%w: days to complete can not be negative", ErrInvalidInput)
	}

	issues := []string{}
	if rule.VolumeMin.Valid && volume.LessThan(rule.VolumeMin.Decimal) {
		issues = append(issues, fmt.Sprintf("Volume too low. Must be at least %s m3", FormatAmount(rule.VolumeMin.Decimal)))
	}
	if rule.VolumeMax.Valid && volume.GreaterThan(rule.VolumeMax.Decimal) {
		issues = append(issues, fmt.Sprintf("Volume too high. Can not exceed %s m3", FormatAmount(rule.VolumeMax.Decimal)))
	}
	if rule.CollateralMin.Valid && collateral.LessThan(rule.CollateralMin.Decimal) {
		issues = append(issues, fmt.Sprintf("Collateral too low. Must be at least %s ISK", FormatAmount(rule.CollateralMin.Decimal)))
	}
	if rule.CollateralMax.Valid && collateral.GreaterThan(rule.CollateralMax.Decimal) {
		issues = append(issues, fmt.Sprintf("Collateral too high. Can not exceed %s ISK", FormatAmount(rule.CollateralMax.Decimal)))
	}
	if rule.DaysToComplete != nil && daysToComplete != nil && *daysToComplete < *rule.DaysToComplete {
		issues = append(issues, fmt.Sprintf("Days to complete too short. Must be at least %d days", *rule.DaysToComplete))
	}
	return issues, nil
}

// ContractTerms are the contract values checked against a rule.
type ContractTerms struct {
	Volume         decimal.Decimal
	Collateral     decimal.Decimal
	Reward         decimal.Decimal
	DaysToComplete int
	DateIssued     time.Time
	DateExpired    time.Time
}

// CheckContract runs CheckEligibility and additionally compares the reward
// with the computed price and the expiration window with days_to_expire.
func (c Calculator) CheckContract(rule model.PricingRule, terms ContractTerms) ([]string, decimal.Decimal, error) {
	days := terms.DaysToComplete
	issues, err := CheckEligibility(rule, terms.Volume, terms.Collateral, &days)
	if err != nil {
		return nil, decimal.Zero, err
	}

	expected, err := c.ComputePrice(
		rule,
		decimal.NullDecimal{Decimal: terms.Volume, Valid: true},
		decimal.NullDecimal{Decimal: terms.Collateral, Valid: true},
		nil,
	)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if terms.Reward.LessThan(expected) {
		issues = append(issues, fmt.Sprintf("Reward too low. Must be at least %s ISK", FormatAmount(expected)))
	}

	if rule.DaysToExpire != nil && !terms.DateIssued.IsZero() && !terms.DateExpired.IsZero() {
		window := terms.DateExpired.Sub(terms.DateIssued)
		if window < time.Duration(*rule.DaysToExpire)*24*time.Hour {
			issues = append(issues, fmt.Sprintf("Expiration too short. Must be at least %d days", *rule.DaysToExpire))
		}
	}
	return issues, expected, nil
}

func RequiresVolume(rule model.PricingRule) bool {
	return rule.PricePerVolume.Valid || rule.VolumeMin.Valid
}

func RequiresCollateral(rule model.PricingRule) bool {
	return rule.PricePerCollateralPercent.Valid || rule.CollateralMin.Valid
}

// IsFixPrice reports whether the price does not depend on the contract.
func IsFixPrice(rule model.PricingRule) bool {
	return rule.PriceBase.Valid &&
		!rule.PriceMin.Valid &&
		!rule.PricePerVolume.Valid &&
		!rule.PricePerCollateralPercent.Valid
}
