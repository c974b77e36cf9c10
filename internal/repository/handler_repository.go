package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/freight/internal/model"
)

type HandlerRepository struct {
	db *gorm.DB
}

func NewHandlerRepository(db *gorm.DB) *HandlerRepository {
	return &HandlerRepository{db: db}
}

// GetHandler returns the single handler row of the deployment.
func (r *HandlerRepository) GetHandler(ctx context.Context) (*model.Handler, error) {
	var row struct {
		ID                     uuid.UUID
		OrganizationID         int64
		OrganizationName       string
		OrganizationCategory   string
		OperationMode          string
		CharacterID            *int64
		CharacterCorporationID *int64
		PricePerVolumeModifier decimal.NullDecimal
		LastSync               *time.Time
		LastError              string
		VersionHash            string
		CreatedAt              time.Time
	}
	if err := r.db.WithContext(ctx).Raw(`
		SELECT
			id,
			organization_id,
			organization_name,
			organization_category,
			operation_mode,
			character_id,
			character_corporation_id,
			price_per_volume_modifier,
			last_sync,
			last_error,
			version_hash,
			created_at
		FROM handlers
		LIMIT 1
	`).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}

	return &model.Handler{
		ID: row.ID,
		Organization: model.Organization{
			ID:       row.OrganizationID,
			Name:     row.OrganizationName,
			Category: model.OrganizationCategory(row.OrganizationCategory),
		},
		OperationMode:          model.OperationMode(row.OperationMode),
		CharacterID:            row.CharacterID,
		CharacterCorporationID: row.CharacterCorporationID,
		PricePerVolumeModifier: row.PricePerVolumeModifier,
		LastSync:               row.LastSync,
		LastError:              model.SyncError(row.LastError),
		VersionHash:            row.VersionHash,
		CreatedAt:              row.CreatedAt,
	}, nil
}

func (r *HandlerRepository) SaveSyncStatus(ctx context.Context, id uuid.UUID, status model.SyncStatus) error {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE handlers
		SET
			last_sync = ?,
			last_error = ?,
			version_hash = ?
		WHERE id = ?
	`, status.LastSync, string(status.LastError), status.VersionHash, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
