package pdf

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/freight/internal/model"
)

func dec(v int64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromInt(v), Valid: true}
}

func TestGenerator_Generate(t *testing.T) {
	content, err := NewGenerator().Generate(model.PricingSheet{
		Handler:     model.Handler{Organization: model.Organization{Name: "Justice League"}, OperationMode: model.OperationModeMyAlliance},
		GeneratedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Rules: []model.PricingRule{
			{
				StartLocation: &model.Location{Name: "Jita IV - Moon 4", SolarSystemName: "Jita"},
				EndLocation:   &model.Location{Name: "Amamake - Keepstar", SolarSystemName: "Amamake"},
				IsActive:      true,
				PriceBase:     dec(500),
				VolumeMax:     dec(300000),
			},
		},
	})
	require.NoError(t, err)
	assert.True(t, len(content) > 4)
	assert.Equal(t, "%PDF", string(content[:4]))
}

func TestPriceText(t *testing.T) {
	assert.Equal(t, "500 + 50/m3 + 2%, min 1,000", priceText(model.PricingRule{
		PriceBase:                 dec(500),
		PricePerVolume:            dec(50),
		PricePerCollateralPercent: dec(2),
		PriceMin:                  dec(1000),
	}))
	assert.Equal(t, "min 1,000", priceText(model.PricingRule{PriceMin: dec(1000)}))
}

func TestRangeText(t *testing.T) {
	assert.Equal(t, "100 - 300,000", rangeText(dec(100), dec(300000)))
	assert.Equal(t, ">= 100", rangeText(dec(100), decimal.NullDecimal{}))
	assert.Equal(t, "<= 300", rangeText(decimal.NullDecimal{}, dec(300)))
	assert.Equal(t, "-", rangeText(decimal.NullDecimal{}, decimal.NullDecimal{}))
}
