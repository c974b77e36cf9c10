package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/freight/internal/model"
)

const selectPricingRules = `
	SELECT
		p.id,
		p.handler_id,
		p.start_location_id,
		p.end_location_id,
		p.is_bidirectional,
		p.is_active,
		p.is_default,
		p.price_base,
		p.price_min,
		p.price_per_volume,
		p.use_price_per_volume_modifier,
		p.price_per_collateral_percent,
		p.volume_min,
		p.volume_max,
		p.collateral_min,
		p.collateral_max,
		p.days_to_complete,
		p.days_to_expire,
		p.details,
		p.created_at,
		p.updated_at,
		sl.name AS start_name,
		sl.category AS start_category,
		sl.solar_system_id AS start_solar_system_id,
		sl.solar_system_name AS start_solar_system_name,
		el.name AS end_name,
		el.category AS end_category,
		el.solar_system_id AS end_solar_system_id,
		el.solar_system_name AS end_solar_system_name
	FROM pricing_rules p
	JOIN locations sl ON sl.id = p.start_location_id
	JOIN locations el ON el.id = p.end_location_id
`

type pricingRow struct {
	ID                        uuid.UUID
	HandlerID                 uuid.UUID
	StartLocationID           int64
	EndLocationID             int64
	IsBidirectional           bool
	IsActive                  bool
	IsDefault                 bool
	PriceBase                 decimal.NullDecimal
	PriceMin                  decimal.NullDecimal
	PricePerVolume            decimal.NullDecimal
	UsePricePerVolumeModifier bool
	PricePerCollateralPercent decimal.NullDecimal
	VolumeMin                 decimal.NullDecimal
	VolumeMax                 decimal.NullDecimal
	CollateralMin             decimal.NullDecimal
	CollateralMax             decimal.NullDecimal
	DaysToComplete            *int
	DaysToExpire              *int
	Details                   string
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
	StartName                 string
	StartCategory             int
	StartSolarSystemID        int64
	StartSolarSystemName      string
	EndName                   string
	EndCategory               int
	EndSolarSystemID          int64
	EndSolarSystemName        string
}

func (r pricingRow) toModel() model.PricingRule {
	return model.PricingRule{
		ID:              r.ID,
		HandlerID:       r.HandlerID,
		StartLocationID: r.StartLocationID,
		EndLocationID:   r.EndLocationID,
		StartLocation: &model.Location{
			ID:              r.StartLocationID,
			Name:            r.StartName,
			Category:        model.LocationCategory(r.StartCategory),
			SolarSystemID:   r.StartSolarSystemID,
			SolarSystemName: r.StartSolarSystemName,
		},
		EndLocation: &model.Location{
			ID:              r.EndLocationID,
			Name:            r.EndName,
			Category:        model.LocationCategory(r.EndCategory),
			SolarSystemID:   r.EndSolarSystemID,
			SolarSystemName: r.EndSolarSystemName,
		},
		IsBidirectional:           r.IsBidirectional,
		IsActive:                  r.IsActive,
		IsDefault:                 r.IsDefault,
		PriceBase:                 r.PriceBase,
		PriceMin:                  r.PriceMin,
		PricePerVolume:            r.PricePerVolume,
		UsePricePerVolumeModifier: r.UsePricePerVolumeModifier,
		PricePerCollateralPercent: r.PricePerCollateralPercent,
		VolumeMin:                 r.VolumeMin,
		VolumeMax:                 r.VolumeMax,
		CollateralMin:             r.CollateralMin,
		CollateralMax:             r.CollateralMax,
		DaysToComplete:            r.DaysToComplete,
		DaysToExpire:              r.DaysToExpire,
		Details:                   r.Details,
		CreatedAt:                 r.CreatedAt,
		UpdatedAt:                 r.UpdatedAt,
	}
}

type PricingRepository struct {
	db *gorm.DB
}

func NewPricingRepository(db *gorm.DB) *PricingRepository {
	return &PricingRepository{db: db}
}

func (r *PricingRepository) ListPricingRules(ctx context.Context, handlerID uuid.UUID) ([]model.PricingRule, error) {
	return listPricingRules(r.db.WithContext(ctx), handlerID)
}

func listPricingRules(db *gorm.DB, handlerID uuid.UUID) ([]model.PricingRule, error) {
	var rows []pricingRow
	if err := db.
		Raw(selectPricingRules+` WHERE p.handler_id = ? ORDER BY sl.name ASC, el.name ASC`, handlerID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	rules := make([]model.PricingRule, len(rows))
	for i, row := range rows {
		rules[i] = row.toModel()
	}
	return rules, nil
}

func (r *PricingRepository) GetPricingRule(ctx context.Context, id uuid.UUID) (*model.PricingRule, error) {
	var row pricingRow
	if err := r.db.WithContext(ctx).
		Raw(selectPricingRules+` WHERE p.id = ? LIMIT 1`, id).
		Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	rule := row.toModel()
	return &rule, nil
}

// SavePricingRule upserts the rule. Saves of one handler are serialized by
// an advisory lock; check sees the stored rules under that lock and aborts
// the save when it fails. A default rule clears the default flag of the
// handler's other rules in the same transaction.
func (r *PricingRepository) SavePricingRule(ctx context.Context, rule *model.PricingRule, check func(existing []model.PricingRule) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext(?))`, "pricing:"+rule.HandlerID.String()).Error; err != nil {
			return err
		}
		if check != nil {
			existing, err := listPricingRules(tx, rule.HandlerID)
			if err != nil {
				return err
			}
			if err := check(existing); err != nil {
				return err
			}
		}

		if rule.IsDefault {
			if err := tx.Exec(`
				UPDATE pricing_rules
				SET is_default = FALSE
				WHERE handler_id = ? AND id <> ? AND is_default
			`, rule.HandlerID, rule.ID).Error; err != nil {
				return err
			}
		}

		return tx.Exec(`
			INSERT INTO pricing_rules (
				id,
				handler_id,
				start_location_id,
				end_location_id,
				is_bidirectional,
				is_active,
				is_default,
				price_base,
				price_min,
				price_per_volume,
				use_price_per_volume_modifier,
				price_per_collateral_percent,
				volume_min,
				volume_max,
				collateral_min,
				collateral_max,
				days_to_complete,
				days_to_expire,
				details,
				created_at,
				updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				start_location_id = EXCLUDED.start_location_id,
				end_location_id = EXCLUDED.end_location_id,
				is_bidirectional = EXCLUDED.is_bidirectional,
				is_active = EXCLUDED.is_active,
				is_default = EXCLUDED.is_default,
				price_base = EXCLUDED.price_base,
				price_min = EXCLUDED.price_min,
				price_per_volume = EXCLUDED.price_per_volume,
				use_price_per_volume_modifier = EXCLUDED.use_price_per_volume_modifier,
				price_per_collateral_percent = EXCLUDED.price_per_collateral_percent,
				volume_min = EXCLUDED.volume_min,
				volume_max = EXCLUDED.volume_max,
				collateral_min = EXCLUDED.collateral_min,
				collateral_max = EXCLUDED.collateral_max,
				days_to_complete = EXCLUDED.days_to_complete,
				days_to_expire = EXCLUDED.days_to_expire,
				details = EXCLUDED.details,
				updated_at = EXCLUDED.updated_at
		`,
			rule.ID,
			rule.HandlerID,
			rule.StartLocationID,
			rule.EndLocationID,
			rule.IsBidirectional,
			rule.IsActive,
			rule.IsDefault,
			rule.PriceBase,
			rule.PriceMin,
			rule.PricePerVolume,
			rule.UsePricePerVolumeModifier,
			rule.PricePerCollateralPercent,
			rule.VolumeMin,
			rule.VolumeMax,
			rule.CollateralMin,
			rule.CollateralMax,
			rule.DaysToComplete,
			rule.DaysToExpire,
			rule.Details,
			rule.CreatedAt,
			rule.UpdatedAt,
		).Error
	})
	return translateError(err)
}
