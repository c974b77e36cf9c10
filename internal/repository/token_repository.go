package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/nurpe/freight/internal/model"
)

type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) GetToken(ctx context.Context, characterID int64) (*model.Token, error) {
	var row struct {
		CharacterID  int64
		RefreshToken string
		AccessToken  string
		ExpiresAt    time.Time
		Scopes       string
		UpdatedAt    time.Time
	}
	if err := r.db.WithContext(ctx).Raw(`
		SELECT character_id, refresh_token, access_token, expires_at, scopes, updated_at
		FROM tokens
		WHERE character_id = ?
		LIMIT 1
	`, characterID).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.CharacterID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &model.Token{
		CharacterID:  row.CharacterID,
		RefreshToken: row.RefreshToken,
		AccessToken:  row.AccessToken,
		ExpiresAt:    row.ExpiresAt,
		Scopes:       strings.Fields(row.Scopes),
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

func (r *TokenRepository) SaveToken(ctx context.Context, token model.Token) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO tokens (character_id, refresh_token, access_token, expires_at, scopes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (character_id) DO UPDATE SET
			refresh_token = EXCLUDED.refresh_token,
			access_token = EXCLUDED.access_token,
			expires_at = EXCLUDED.expires_at,
			scopes = EXCLUDED.scopes,
			updated_at = EXCLUDED.updated_at
	`, token.CharacterID, token.RefreshToken, token.AccessToken, token.ExpiresAt, strings.Join(token.Scopes, " "), token.UpdatedAt).Error
}
