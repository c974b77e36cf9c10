package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nurpe/freight/internal/model"
)

type locationRow struct {
	ID              int64 `gorm:"primaryKey"`
	Name            string
	Category        int
	SolarSystemID   int64
	SolarSystemName string
	TypeID          int64
	UpdatedAt       time.Time
}

func (locationRow) TableName() string { return "locations" }

func (r locationRow) toModel() model.Location {
	return model.Location{
		ID:              r.ID,
		Name:            r.Name,
		Category:        model.LocationCategory(r.Category),
		SolarSystemID:   r.SolarSystemID,
		SolarSystemName: r.SolarSystemName,
		TypeID:          r.TypeID,
		UpdatedAt:       r.UpdatedAt,
	}
}

type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

func (r *LocationRepository) GetLocations(ctx context.Context, ids []int64) (map[int64]model.Location, error) {
	result := make(map[int64]model.Location, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var rows []locationRow
	if err := r.db.WithContext(ctx).Raw(`
		SELECT id, name, category, solar_system_id, solar_system_name, type_id, updated_at
		FROM locations
		WHERE id IN ?
	`, ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ID] = row.toModel()
	}
	return result, nil
}

// UpsertLocations inserts new locations and overwrites the metadata of
// existing ones, so the last writer wins.
func (r *LocationRepository) UpsertLocations(ctx context.Context, locations []model.Location) error {
	if len(locations) == 0 {
		return nil
	}
	rows := make([]locationRow, len(locations))
	for i, loc := range locations {
		updatedAt := loc.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		rows[i] = locationRow{
			ID:              loc.ID,
			Name:            loc.Name,
			Category:        int(loc.Category),
			SolarSystemID:   loc.SolarSystemID,
			SolarSystemName: loc.SolarSystemName,
			TypeID:          loc.TypeID,
			UpdatedAt:       updatedAt,
		}
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "category", "solar_system_id", "solar_system_name", "type_id", "updated_at"}),
	}).Create(&rows).Error
}

func (r *LocationRepository) ListLocations(ctx context.Context) ([]model.Location, error) {
	var rows []locationRow
	if err := r.db.WithContext(ctx).Raw(`
		SELECT id, name, category, solar_system_id, solar_system_name, type_id, updated_at
		FROM locations
		ORDER BY name ASC
	`).Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]model.Location, len(rows))
	for i, row := range rows {
		result[i] = row.toModel()
	}
	return result, nil
}
