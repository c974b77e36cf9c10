package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/nurpe/freight/internal/model"
)

const selectContracts = `
	SELECT
		c.id,
		c.handler_id,
		c.contract_id,
		c.status,
		c.status_raw,
		c.issuer_id,
		c.issuer_corporation_id,
		c.acceptor_id,
		c.acceptor_corporation_id,
		c.assignee_id,
		c.start_location_id,
		c.end_location_id,
		c.volume,
		c.collateral,
		c.reward,
		c.price,
		c.expected_price,
		c.days_to_complete,
		c.for_corporation,
		c.availability,
		c.title,
		c.date_issued,
		c.date_expired,
		c.date_accepted,
		c.date_completed,
		c.pricing_id,
		COALESCE(c.issues, 'null'::jsonb) AS issues,
		c.date_notified,
		c.created_at,
		c.updated_at,
		sl.name AS start_name,
		sl.solar_system_name AS start_solar_system_name,
		el.name AS end_name,
		el.solar_system_name AS end_solar_system_name
	FROM contracts c
	LEFT JOIN locations sl ON sl.id = c.start_location_id
	LEFT JOIN locations el ON el.id = c.end_location_id
`

type contractRow struct {
	ID                    uuid.UUID
	HandlerID             uuid.UUID
	ContractID            int64
	Status                string
	StatusRaw             string
	IssuerID              int64
	IssuerCorporationID   int64
	AcceptorID            *int64
	AcceptorCorporationID *int64
	AssigneeID            int64
	StartLocationID       int64
	EndLocationID         int64
	Volume                decimal.Decimal
	Collateral            decimal.Decimal
	Reward                decimal.Decimal
	Price                 decimal.Decimal
	ExpectedPrice         decimal.NullDecimal
	DaysToComplete        int
	ForCorporation        bool
	Availability          string
	Title                 string
	DateIssued            time.Time
	DateExpired           time.Time
	DateAccepted          *time.Time
	DateCompleted         *time.Time
	PricingID             *uuid.UUID
	Issues                datatypes.JSON
	DateNotified          *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	StartName             *string
	StartSolarSystemName  *string
	EndName               *string
	EndSolarSystemName    *string
}

func (r contractRow) toModel() (model.Contract, error) {
	contract := model.Contract{
		ID:                    r.ID,
		HandlerID:             r.HandlerID,
		ContractID:            r.ContractID,
		Status:                model.ContractStatus(r.Status),
		StatusRaw:             r.StatusRaw,
		IssuerID:              r.IssuerID,
		IssuerCorporationID:   r.IssuerCorporationID,
		AcceptorID:            r.AcceptorID,
		AcceptorCorporationID: r.AcceptorCorporationID,
		AssigneeID:            r.AssigneeID,
		StartLocationID:       r.StartLocationID,
		EndLocationID:         r.EndLocationID,
		StartLocation:         joinedLocation(r.StartLocationID, r.StartName, r.StartSolarSystemName),
		EndLocation:           joinedLocation(r.EndLocationID, r.EndName, r.EndSolarSystemName),
		Volume:                r.Volume,
		Collateral:            r.Collateral,
		Reward:                r.Reward,
		Price:                 r.Price,
		ExpectedPrice:         r.ExpectedPrice,
		DaysToComplete:        r.DaysToComplete,
		ForCorporation:        r.ForCorporation,
		Availability:          model.ContractAvailability(r.Availability),
		Title:                 r.Title,
		DateIssued:            r.DateIssued,
		DateExpired:           r.DateExpired,
		DateAccepted:          r.DateAccepted,
		DateCompleted:         r.DateCompleted,
		PricingID:             r.PricingID,
		DateNotified:          r.DateNotified,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
	if len(r.Issues) > 0 {
		if err := json.Unmarshal(r.Issues, &contract.Issues); err != nil {
			return model.Contract{}, fmt.Errorf("contract %d issues: %w", r.ContractID, err)
		}
	}
	return contract, nil
}

func joinedLocation(id int64, name, solarSystemName *string) *model.Location {
	if name == nil {
		return nil
	}
	loc := &model.Location{ID: id, Name: *name}
	if solarSystemName != nil {
		loc.SolarSystemName = *solarSystemName
	}
	return loc
}

// issuesValue keeps nil issues as NULL and an empty list as [].
func issuesValue(issues []string) (datatypes.JSON, error) {
	if issues == nil {
		return nil, nil
	}
	data, err := json.Marshal(issues)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

type ContractRepository struct {
	db *gorm.DB
}

func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

func (r *ContractRepository) GetContract(ctx context.Context, handlerID uuid.UUID, contractID int64) (*model.Contract, error) {
	var row contractRow
	if err := r.db.WithContext(ctx).
		Raw(selectContracts+` WHERE c.handler_id = ? AND c.contract_id = ? LIMIT 1`, handlerID, contractID).
		Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	contract, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *ContractRepository) ListContracts(ctx context.Context, handlerID uuid.UUID, statuses []model.ContractStatus) ([]model.Contract, error) {
	query := selectContracts + ` WHERE c.handler_id = ?`
	args := []interface{}{handlerID}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i := range statuses {
			placeholders[i] = "?"
		}
		query += fmt.Sprintf(" AND c.status IN (%s)", strings.Join(placeholders, ","))
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY c.date_issued DESC, c.contract_id DESC"

	var rows []contractRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	contracts := make([]model.Contract, 0, len(rows))
	for _, row := range rows {
		contract, err := row.toModel()
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, contract)
	}
	return contracts, nil
}

// CreateContract fails with gorm.ErrDuplicatedKey when the contract exists.
func (r *ContractRepository) CreateContract(ctx context.Context, contract *model.Contract) error {
	issues, err := issuesValue(contract.Issues)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Exec(`
		INSERT INTO contracts (
			id,
			handler_id,
			contract_id,
			status,
			status_raw,
			issuer_id,
			issuer_corporation_id,
			acceptor_id,
			acceptor_corporation_id,
			assignee_id,
			start_location_id,
			end_location_id,
			volume,
			collateral,
			reward,
			price,
			expected_price,
			days_to_complete,
			for_corporation,
			availability,
			title,
			date_issued,
			date_expired,
			date_accepted,
			date_completed,
			pricing_id,
			issues,
			date_notified,
			created_at,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		contract.ID,
		contract.HandlerID,
		contract.ContractID,
		string(contract.Status),
		contract.StatusRaw,
		contract.IssuerID,
		contract.IssuerCorporationID,
		contract.AcceptorID,
		contract.AcceptorCorporationID,
		contract.AssigneeID,
		contract.StartLocationID,
		contract.EndLocationID,
		contract.Volume,
		contract.Collateral,
		contract.Reward,
		contract.Price,
		contract.ExpectedPrice,
		contract.DaysToComplete,
		contract.ForCorporation,
		string(contract.Availability),
		contract.Title,
		contract.DateIssued,
		contract.DateExpired,
		contract.DateAccepted,
		contract.DateCompleted,
		contract.PricingID,
		issues,
		contract.DateNotified,
		contract.CreatedAt,
		contract.UpdatedAt,
	).Error
	return translateError(err)
}

func (r *ContractRepository) UpdateContractState(ctx context.Context, contract *model.Contract) error {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE contracts
		SET
			status = ?,
			status_raw = ?,
			acceptor_id = ?,
			acceptor_corporation_id = ?,
			date_expired = ?,
			date_accepted = ?,
			date_completed = ?,
			updated_at = ?
		WHERE handler_id = ? AND contract_id = ?
	`,
		string(contract.Status),
		contract.StatusRaw,
		contract.AcceptorID,
		contract.AcceptorCorporationID,
		contract.DateExpired,
		contract.DateAccepted,
		contract.DateCompleted,
		contract.UpdatedAt,
		contract.HandlerID,
		contract.ContractID,
	)
	return affected(result)
}

// UpdateContractPricing writes only the pricing columns, so it never
// overwrites state written by a concurrent sync.
func (r *ContractRepository) UpdateContractPricing(ctx context.Context, contract *model.Contract) error {
	issues, err := issuesValue(contract.Issues)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Exec(`
		UPDATE contracts
		SET
			pricing_id = ?,
			expected_price = ?,
			issues = ?,
			updated_at = ?
		WHERE handler_id = ? AND contract_id = ?
	`,
		contract.PricingID,
		contract.ExpectedPrice,
		issues,
		contract.UpdatedAt,
		contract.HandlerID,
		contract.ContractID,
	)
	return affected(result)
}

func affected(result *gorm.DB) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
