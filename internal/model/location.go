package model

import "time"

type LocationCategory int

const (
	LocationCategoryUnknown     LocationCategory = 0
	LocationCategorySolarSystem LocationCategory = 2
	LocationCategoryStation     LocationCategory = 3
	LocationCategoryStructure   LocationCategory = 65
)

func (c LocationCategory) String() string {
	switch c {
	case LocationCategorySolarSystem:
		return "solar system"
	case LocationCategoryStation:
		return "station"
	case LocationCategoryStructure:
		return "structure"
	default:
		return "unknown"
	}
}

// Location is a pickup or drop-off point referenced by contracts and pricing rules.
type Location struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	Category        LocationCategory `json:"category"`
	SolarSystemID   int64            `json:"solar_system_id"`
	SolarSystemName string           `json:"solar_system_name"`
	TypeID          int64            `json:"type_id"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ShortName returns the solar system name when known, otherwise the full name.
func (l Location) ShortName() string {
	if l.SolarSystemName != "" {
		return l.SolarSystemName
	}
	return l.Name
}
