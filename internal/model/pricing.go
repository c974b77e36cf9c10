package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingRule prices courier contracts on one route. Unset optional values
// are represented by an invalid NullDecimal or a nil pointer.
type PricingRule struct {
	ID                        uuid.UUID           `json:"id"`
	HandlerID                 uuid.UUID           `json:"handler_id"`
	StartLocationID           int64               `json:"start_location_id"`
	EndLocationID             int64               `json:"end_location_id"`
	StartLocation             *Location           `json:"start_location,omitempty"`
	EndLocation               *Location           `json:"end_location,omitempty"`
	IsBidirectional           bool                `json:"is_bidirectional"`
	IsActive                  bool                `json:"is_active"`
	IsDefault                 bool                `json:"is_default"`
	PriceBase                 decimal.NullDecimal `json:"price_base"`
	PriceMin                  decimal.NullDecimal `json:"price_min"`
	PricePerVolume            decimal.NullDecimal `json:"price_per_volume"`
	UsePricePerVolumeModifier bool                `json:"use_price_per_volume_modifier"`
	PricePerCollateralPercent decimal.NullDecimal `json:"price_per_collateral_percent"`
	VolumeMin                 decimal.NullDecimal `json:"volume_min"`
	VolumeMax                 decimal.NullDecimal `json:"volume_max"`
	CollateralMin             decimal.NullDecimal `json:"collateral_min"`
	CollateralMax             decimal.NullDecimal `json:"collateral_max"`
	DaysToComplete            *int                `json:"days_to_complete"`
	DaysToExpire              *int                `json:"days_to_expire"`
	Details                   string              `json:"details"`
	CreatedAt                 time.Time           `json:"created_at"`
	UpdatedAt                 time.Time           `json:"updated_at"`
}

// Covers reports whether the rule applies to the unordered pair {a, b}.
func (p PricingRule) Covers(a, b int64) bool {
	return (p.StartLocationID == a && p.EndLocationID == b) ||
		(p.StartLocationID == b && p.EndLocationID == a)
}

// RulesChanged is emitted after a pricing rule was created or updated.
type RulesChanged struct {
	RuleID uuid.UUID
	At     time.Time
}
