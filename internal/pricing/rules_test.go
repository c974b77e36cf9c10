package pricing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/freight/internal/model"
)

const (
	jita    int64 = 60003760
	amamake int64 = 1022167642188
	oti     int64 = 60008494
)

func rule(start, end int64, bidirectional bool) model.PricingRule {
	return model.PricingRule{
		ID:              uuid.New(),
		StartLocationID: start,
		EndLocationID:   end,
		IsBidirectional: bidirectional,
		IsActive:        true,
		PriceBase:       dec(500),
	}
}

func TestSelectRule(t *testing.T) {
	forward := rule(jita, amamake, false)
	both := rule(oti, jita, true)
	inactive := rule(amamake, oti, true)
	inactive.IsActive = false
	rules := []model.PricingRule{forward, both, inactive}

	got := SelectRule(jita, amamake, rules)
	require.NotNil(t, got)
	assert.Equal(t, forward.ID, got.ID)

	assert.Nil(t, SelectRule(amamake, jita, rules), "unidirectional rule must not match reverse route")

	got = SelectRule(jita, oti, rules)
	require.NotNil(t, got)
	assert.Equal(t, both.ID, got.ID)

	assert.Nil(t, SelectRule(oti, amamake, rules), "inactive rules are ignored")
	assert.Nil(t, SelectRule(jita, amamake, nil))
}

func TestSelectRule_PrefersNonDefault(t *testing.T) {
	def := rule(jita, amamake, true)
	def.IsDefault = true
	reverse := rule(amamake, jita, true)
	direct := rule(jita, amamake, false)

	got := SelectRule(jita, amamake, []model.PricingRule{def, reverse, direct})
	require.NotNil(t, got)
	assert.Equal(t, direct.ID, got.ID)

	got = SelectRule(jita, amamake, []model.PricingRule{def, reverse})
	require.NotNil(t, got)
	assert.Equal(t, reverse.ID, got.ID)

	got = SelectRule(jita, amamake, []model.PricingRule{def})
	require.NotNil(t, got)
	assert.Equal(t, def.ID, got.ID)

	assert.Nil(t, SelectRule(oti, amamake, []model.PricingRule{def}), "default rule only applies to its own route")
}

func TestValidate(t *testing.T) {
	valid := rule(jita, amamake, false)
	require.NoError(t, Validate(valid))

	noPrice := valid
	noPrice.PriceBase = decimal.NullDecimal{}
	assert.ErrorIs(t, Validate(noPrice), ErrNoPrice)
	assert.ErrorIs(t, Validate(noPrice), ErrInvalidInput)

	for _, mutate := range []func(*model.PricingRule){
		func(r *model.PricingRule) { r.StartLocationID = 0 },
		func(r *model.PricingRule) { r.PricePerVolume = dec(-1) },
		func(r *model.PricingRule) { r.VolumeMin, r.VolumeMax = dec(10), dec(5) },
		func(r *model.PricingRule) { r.CollateralMin, r.CollateralMax = dec(10), dec(5) },
		func(r *model.PricingRule) { r.DaysToExpire = intPtr(-1) },
	} {
		candidate := valid
		mutate(&candidate)
		assert.ErrorIs(t, Validate(candidate), ErrInvalidInput)
	}

	for _, mutate := range []func(*model.PricingRule){
		func(r *model.PricingRule) { r.PriceBase = decimal.NullDecimal{}; r.PriceMin = dec(100) },
		func(r *model.PricingRule) { r.PriceBase = decimal.NullDecimal{}; r.PricePerVolume = dec(100) },
		func(r *model.PricingRule) { r.PriceBase = decimal.NullDecimal{}; r.PricePerCollateralPercent = dec(1) },
	} {
		candidate := valid
		mutate(&candidate)
		assert.NoError(t, Validate(candidate))
	}
}

func TestValidateRoute(t *testing.T) {
	tests := []struct {
		name     string
		existing model.PricingRule
		created  model.PricingRule
		conflict bool
	}{
		{"second bidirectional on same pair", rule(jita, amamake, true), rule(jita, amamake, true), true},
		{"second bidirectional reversed", rule(jita, amamake, true), rule(amamake, jita, true), true},
		{"unidirectional reverse of unidirectional", rule(jita, amamake, false), rule(amamake, jita, false), false},
		{"unidirectional duplicate", rule(jita, amamake, false), rule(jita, amamake, false), true},
		{"unidirectional after bidirectional", rule(jita, amamake, true), rule(amamake, jita, false), true},
		{"bidirectional after unidirectional", rule(jita, amamake, false), rule(jita, amamake, true), true},
		{"different pair", rule(jita, amamake, true), rule(jita, oti, true), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoute(tt.created, []model.PricingRule{tt.existing})
			if tt.conflict {
				assert.ErrorIs(t, err, ErrRouteConflict)
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRoute_IgnoresSelfAndInactive(t *testing.T) {
	existing := rule(jita, amamake, true)

	assert.NoError(t, ValidateRoute(existing, []model.PricingRule{existing}))

	disabled := existing
	disabled.ID = uuid.New()
	disabled.IsActive = false
	assert.NoError(t, ValidateRoute(rule(jita, amamake, true), []model.PricingRule{disabled}))

	candidate := rule(jita, amamake, true)
	candidate.IsActive = false
	assert.NoError(t, ValidateRoute(candidate, []model.PricingRule{existing}))
}

func TestRouteName(t *testing.T) {
	start := &model.Location{ID: jita, Name: "Jita IV - Moon 4 - Caldari Navy Assembly Plant", SolarSystemName: "Jita"}
	end := &model.Location{ID: amamake, Name: "Amamake - 3 Time Nearly AT Winners", SolarSystemName: "Amamake"}

	r := rule(jita, amamake, false)
	r.StartLocation, r.EndLocation = start, end
	assert.Equal(t, "Jita -> Amamake", RouteName(r, false))
	assert.Equal(t, "Jita IV - Moon 4 - Caldari Navy Assembly Plant -> Amamake - 3 Time Nearly AT Winners", RouteName(r, true))

	r.IsBidirectional = true
	assert.Equal(t, "Jita <-> Amamake", RouteName(r, false))

	assert.Equal(t, "#60003760 -> #1022167642188", RouteName(rule(jita, amamake, false), false))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0", FormatAmount(decimal.Zero))
	assert.Equal(t, "999", FormatAmount(decimal.NewFromInt(999)))
	assert.Equal(t, "1,000", FormatAmount(decimal.NewFromInt(1000)))
	assert.Equal(t, "50,000,000", FormatAmount(decimal.NewFromInt(50000000)))
	assert.Equal(t, "-12,346", FormatAmount(decimal.NewFromFloat(-12345.6)))
}
