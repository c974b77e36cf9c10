package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/freight/internal/model"
)

func dec(v float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(v), Valid: true}
}

func intPtr(v int) *int {
	return &v
}

func TestCalculator_ComputePrice(t *testing.T) {
	calc := Calculator{}
	none := decimal.NullDecimal{}

	tests := []struct {
		name       string
		rule       model.PricingRule
		volume     decimal.NullDecimal
		collateral decimal.NullDecimal
		want       float64
	}{
		{"per volume", model.PricingRule{PricePerVolume: dec(50)}, dec(10), dec(0), 500},
		{"per collateral", model.PricingRule{PricePerCollateralPercent: dec(2)}, dec(10), dec(1000), 20},
		{"volume and collateral", model.PricingRule{PricePerVolume: dec(50), PricePerCollateralPercent: dec(2)}, dec(10), dec(1000), 520},
		{"base only", model.PricingRule{PriceBase: dec(20)}, dec(10), dec(1000), 20},
		{"min only", model.PricingRule{PriceMin: dec(1000)}, dec(10), dec(1000), 1000},
		{"base and volume", model.PricingRule{PriceBase: dec(20), PricePerVolume: dec(50)}, dec(10), dec(1000), 520},
		{"min clamps", model.PricingRule{PriceBase: dec(20), PricePerVolume: dec(50), PriceMin: dec(1000)}, dec(10), dec(1000), 1000},
		{"min below sum", model.PricingRule{PriceBase: dec(20), PricePerVolume: dec(50), PricePerCollateralPercent: dec(2), PriceMin: dec(500)}, dec(10), dec(1000), 540},
		{"zero base unset inputs", model.PricingRule{PriceBase: dec(0)}, none, none, 0},
		{"volume without collateral", model.PricingRule{PricePerVolume: dec(50)}, dec(10), none, 500},
		{"collateral without volume", model.PricingRule{PricePerCollateralPercent: dec(2)}, none, dec(100), 2},
		{"nothing configured", model.PricingRule{}, dec(10), dec(10), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.ComputePrice(tt.rule, tt.volume, tt.collateral, nil)
			require.NoError(t, err)
			assert.True(t, decimal.NewFromFloat(tt.want).Equal(got), "want %v got %s", tt.want, got)
		})
	}
}

func TestCalculator_ComputePrice_Override(t *testing.T) {
	override := decimal.NewFromInt(123)
	got, err := Calculator{}.ComputePrice(model.PricingRule{PriceBase: dec(500)}, dec(10), dec(10), &override)
	require.NoError(t, err)
	assert.True(t, override.Equal(got))
}

func TestCalculator_ComputePrice_RejectsNegativeInput(t *testing.T) {
	rule := model.PricingRule{PriceBase: dec(20), PricePerVolume: dec(50)}

	_, err := Calculator{}.ComputePrice(rule, dec(-5), dec(0), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Calculator{}.ComputePrice(rule, dec(50), dec(-5), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCalculator_ComputePrice_MonotonicInVolumeAndCollateral(t *testing.T) {
	rules := []model.PricingRule{
		{PriceBase: dec(20)},
		{PricePerVolume: dec(50)},
		{PricePerCollateralPercent: dec(2)},
		{PriceBase: dec(20), PricePerVolume: dec(50), PriceMin: dec(1000)},
		{PriceBase: dec(5), PricePerVolume: dec(3), PricePerCollateralPercent: dec(1.5), PriceMin: dec(200)},
	}
	calc := Calculator{VolumeModifier: dec(-30)}
	for _, rule := range rules {
		rule.UsePricePerVolumeModifier = true
		prev := decimal.NewFromInt(-1)
		for v := 0; v <= 500; v += 25 {
			price, err := calc.ComputePrice(rule, dec(float64(v)), dec(1000), nil)
			require.NoError(t, err)
			assert.True(t, price.GreaterThanOrEqual(prev), "volume %d", v)
			prev = price
		}
		prev = decimal.NewFromInt(-1)
		for c := 0; c <= 100000; c += 5000 {
			price, err := calc.ComputePrice(rule, dec(10), dec(float64(c)), nil)
			require.NoError(t, err)
			assert.True(t, price.GreaterThanOrEqual(prev), "collateral %d", c)
			prev = price
		}
	}
}

func TestCalculator_VolumeModifier(t *testing.T) {
	rule := model.PricingRule{PricePerVolume: dec(50)}

	t.Run("ignored unless rule opts in", func(t *testing.T) {
		calc := Calculator{VolumeModifier: dec(10)}
		assert.False(t, calc.VolumeModifierFor(rule).Valid)
		price, err := calc.ComputePrice(rule, dec(10), decimal.NullDecimal{}, nil)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(500).Equal(price))
	})

	t.Run("no handler modifier", func(t *testing.T) {
		opted := rule
		opted.UsePricePerVolumeModifier = true
		assert.False(t, Calculator{}.VolumeModifierFor(opted).Valid)
		assert.True(t, decimal.NewFromInt(50).Equal(Calculator{}.EffectivePricePerVolume(opted).Decimal))
	})

	opted := rule
	opted.UsePricePerVolumeModifier = true
	cases := []struct {
		modifier float64
		rate     int64
		price    int64
	}{
		{10, 55, 550},
		{-10, 45, 450},
		{-200, 0, 0},
	}
	for _, tc := range cases {
		calc := Calculator{VolumeModifier: dec(tc.modifier)}
		assert.True(t, decimal.NewFromInt(tc.rate).Equal(calc.EffectivePricePerVolume(opted).Decimal), "modifier %v", tc.modifier)
		price, err := calc.ComputePrice(opted, dec(10), decimal.NullDecimal{}, nil)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(tc.price).Equal(price), "modifier %v", tc.modifier)
	}

	assert.False(t, Calculator{VolumeModifier: dec(10)}.EffectivePricePerVolume(model.PricingRule{}).Valid)
}

func TestCheckEligibility(t *testing.T) {
	rule := model.PricingRule{PriceBase: dec(500), VolumeMax: dec(300)}

	issues, err := CheckEligibility(rule, decimal.NewFromInt(350), decimal.NewFromInt(1000), nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "Volume too high")

	issues, err = CheckEligibility(rule, decimal.NewFromInt(250), decimal.NewFromInt(500), nil)
	require.NoError(t, err)
	assert.NotNil(t, issues)
	assert.Empty(t, issues)
}

func TestCheckEligibility_EachLimit(t *testing.T) {
	tests := []struct {
		name       string
		rule       model.PricingRule
		volume     int64
		collateral int64
		days       *int
		contains   string
	}{
		{"volume min", model.PricingRule{VolumeMin: dec(100)}, 50, 1000, nil, "Volume too low"},
		{"collateral max", model.PricingRule{CollateralMax: dec(300)}, 350, 1000, nil, "Collateral too high"},
		{"collateral min", model.PricingRule{CollateralMin: dec(300)}, 350, 200, nil, "Collateral too low"},
		{"days to complete", model.PricingRule{DaysToComplete: intPtr(3)}, 10, 10, intPtr(1), "Days to complete too short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rule.PriceBase = dec(500)
			issues, err := CheckEligibility(tt.rule, decimal.NewFromInt(tt.volume), decimal.NewFromInt(tt.collateral), tt.days)
			require.NoError(t, err)
			require.Len(t, issues, 1)
			assert.Contains(t, issues[0], tt.contains)
		})
	}
}

func TestCheckEligibility_AllChecksEvaluated(t *testing.T) {
	rule := model.PricingRule{
		PriceBase:      dec(500),
		VolumeMax:      dec(100),
		CollateralMin:  dec(1000),
		DaysToComplete: intPtr(5),
	}
	issues, err := CheckEligibility(rule, decimal.NewFromInt(200), decimal.NewFromInt(10), intPtr(2))
	require.NoError(t, err)
	assert.Len(t, issues, 3)
}

func TestCheckEligibility_ZeroCollateral(t *testing.T) {
	issues, err := CheckEligibility(model.PricingRule{PriceBase: dec(500), CollateralMin: dec(0)}, decimal.NewFromInt(350), decimal.Zero, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)

	issues, err = CheckEligibility(model.PricingRule{PriceBase: dec(500)}, decimal.NewFromInt(350), decimal.Zero, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestCheckEligibility_RejectsNegativeInput(t *testing.T) {
	rule := model.PricingRule{PriceBase: dec(500)}

	_, err := CheckEligibility(rule, decimal.NewFromInt(-5), decimal.Zero, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = CheckEligibility(rule, decimal.NewFromInt(50), decimal.NewFromInt(-5), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = CheckEligibility(rule, decimal.NewFromInt(50), decimal.NewFromInt(5), intPtr(-5))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCalculator_CheckContract(t *testing.T) {
	rule := model.PricingRule{
		PriceBase:                 dec(500),
		PricePerCollateralPercent: dec(2),
		CollateralMin:             dec(0),
		DaysToExpire:              intPtr(3),
	}
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	issues, expected, err := Calculator{}.CheckContract(rule, ContractTerms{
		Volume:         decimal.NewFromInt(350),
		Collateral:     decimal.Zero,
		Reward:         decimal.NewFromInt(500),
		DaysToComplete: 3,
		DateIssued:     issued,
		DateExpired:    issued.Add(72 * time.Hour),
	})
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.True(t, decimal.NewFromInt(500).Equal(expected))

	issues, _, err = Calculator{}.CheckContract(rule, ContractTerms{
		Volume:      decimal.NewFromInt(350),
		Collateral:  decimal.NewFromInt(1000),
		Reward:      decimal.NewFromInt(400),
		DateIssued:  issued,
		DateExpired: issued.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "Reward too low")
	assert.Contains(t, issues[1], "Expiration too short")
}

func TestRuleProperties(t *testing.T) {
	assert.True(t, RequiresVolume(model.PricingRule{PricePerVolume: dec(10000)}))
	assert.True(t, RequiresVolume(model.PricingRule{VolumeMin: dec(10000)}))
	assert.False(t, RequiresVolume(model.PricingRule{}))

	assert.True(t, RequiresCollateral(model.PricingRule{PricePerCollateralPercent: dec(2)}))
	assert.True(t, RequiresCollateral(model.PricingRule{CollateralMin: dec(50000000)}))
	assert.False(t, RequiresCollateral(model.PricingRule{}))

	assert.True(t, IsFixPrice(model.PricingRule{PriceBase: dec(50000000)}))
	assert.False(t, IsFixPrice(model.PricingRule{PriceBase: dec(50000000), PriceMin: dec(40000000)}))
	assert.False(t, IsFixPrice(model.PricingRule{PriceBase: dec(50000000), PricePerVolume: dec(400)}))
	assert.False(t, IsFixPrice(model.PricingRule{PriceBase: dec(50000000), PricePerCollateralPercent: dec(2)}))
	assert.False(t, IsFixPrice(model.PricingRule{}))
}
