package esi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/service"
)

const (
	solarSystemMin = 30000000
	solarSystemMax = 33000000
	stationMin     = 60000000
	stationMax     = 64000000
	structureMin   = 1000000000000
)

type systemResponse struct {
	Name     string `json:"name"`
	SystemID int64  `json:"system_id"`
}

type stationResponse struct {
	Name     string `json:"name"`
	SystemID int64  `json:"system_id"`
	TypeID   int64  `json:"type_id"`
}

type structureResponse struct {
	Name          string `json:"name"`
	SolarSystemID int64  `json:"solar_system_id"`
	TypeID        int64  `json:"type_id"`
}

// LookupLocation resolves a solar system, station or player structure.
// Structures need a token with the structure read scope.
func (c *Client) LookupLocation(ctx context.Context, token string, id int64) (model.Location, error) {
	loc := model.Location{ID: id, UpdatedAt: time.Now().UTC()}

	switch {
	case id >= solarSystemMin && id < solarSystemMax:
		var system systemResponse
		if _, err := c.get(ctx, fmt.Sprintf("/universe/systems/%d/", id), nil, "", &system); err != nil {
			return model.Location{}, lookupError(id, err)
		}
		loc.Name = system.Name
		loc.Category = model.LocationCategorySolarSystem
		loc.SolarSystemID = id
		loc.SolarSystemName = system.Name

	case id >= stationMin && id < stationMax:
		var station stationResponse
		if _, err := c.get(ctx, fmt.Sprintf("/universe/stations/%d/", id), nil, "", &station); err != nil {
			return model.Location{}, lookupError(id, err)
		}
		loc.Name = station.Name
		loc.Category = model.LocationCategoryStation
		loc.TypeID = station.TypeID
		loc.SolarSystemID = station.SystemID

	case id >= structureMin:
		var structure structureResponse
		if _, err := c.get(ctx, fmt.Sprintf("/universe/structures/%d/", id), nil, token, &structure); err != nil {
			return model.Location{}, lookupError(id, err)
		}
		loc.Name = structure.Name
		loc.Category = model.LocationCategoryStructure
		loc.TypeID = structure.TypeID
		loc.SolarSystemID = structure.SolarSystemID

	default:
		return model.Location{}, fmt.Errorf("%w: unsupported location id %d", service.ErrLookupFailed, id)
	}

	if loc.SolarSystemName == "" && loc.SolarSystemID != 0 {
		var system systemResponse
		if _, err := c.get(ctx, fmt.Sprintf("/universe/systems/%d/", loc.SolarSystemID), nil, "", &system); err != nil {
			c.log.Warn().Err(err).Int64("location_id", id).Msg("solar system lookup failed")
		} else {
			loc.SolarSystemName = system.Name
		}
	}
	return loc, nil
}

func lookupError(id int64, err error) error {
	var se *statusError
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Status == http.StatusUnauthorized, se.Status == http.StatusForbidden, se.Status == http.StatusNotFound:
		return fmt.Errorf("%w: location %d: %v", service.ErrLookupFailed, id, se)
	case se.Status >= 500:
		return fmt.Errorf("%w: location %d: %v", service.ErrUnavailable, id, se)
	default:
		return fmt.Errorf("location %d: %w", id, err)
	}
}
