package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/pricing"
)

type ContractStore interface {
	GetContract(ctx context.Context, handlerID uuid.UUID, contractID int64) (*model.Contract, error)
	ListContracts(ctx context.Context, handlerID uuid.UUID, statuses []model.ContractStatus) ([]model.Contract, error)
	// CreateContract fails with gorm.ErrDuplicatedKey when the contract
	// was inserted concurrently.
	CreateContract(ctx context.Context, contract *model.Contract) error
	UpdateContractState(ctx context.Context, contract *model.Contract) error
	UpdateContractPricing(ctx context.Context, contract *model.Contract) error
}

// Notifier receives contract events. Publish must not block.
type Notifier interface {
	Publish(event model.ContractEvent)
}

type ReconcileOutcome int

const (
	ReconcileUnchanged ReconcileOutcome = iota
	ReconcileCreated
	ReconcileUpdated
)

func (o ReconcileOutcome) String() string {
	switch o {
	case ReconcileCreated:
		return "created"
	case ReconcileUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

type ContractService struct {
	contracts ContractStore
	rules     PricingStore
	handlers  HandlerStore
	notifier  Notifier
	log       zerolog.Logger
	now       func() time.Time
}

func NewContractService(contracts ContractStore, rules PricingStore, handlers HandlerStore, notifier Notifier, log zerolog.Logger) *ContractService {
	return &ContractService{
		contracts: contracts,
		rules:     rules,
		handlers:  handlers,
		notifier:  notifier,
		log:       log.With().Str("component", "contracts").Logger(),
		now:       time.Now,
	}
}

// Reconcile mirrors one fetched contract into the store. A contract seen
// for the first time is created and priced; a known contract only has its
// status, dates and acceptor updated. An unrecognised status is stored as
// unknown and reported as ErrUnknownStatus after the contract was saved.
// A contract whose terms can not be priced is stored unpriced and the
// pricing error is returned alongside ReconcileCreated. locations may be
// nil; known entries are attached to the created contract.
func (s *ContractService) Reconcile(
	ctx context.Context,
	handler model.Handler,
	raw model.RawContract,
	rules []model.PricingRule,
	calc pricing.Calculator,
	locations map[int64]model.Location,
) (ReconcileOutcome, error) {
	status, statusErr := model.ParseContractStatus(raw.Status)

	existing, err := s.contracts.GetContract(ctx, handler.ID, raw.ContractID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		contract := newContract(handler, raw, status)
		attachLocations(&contract, locations)
		pricingErr := ResolvePricing(&contract, rules, calc)
		now := s.now()
		contract.CreatedAt, contract.UpdatedAt = now, now
		if s.notifier != nil {
			contract.DateNotified = &now
		}
		err := s.contracts.CreateContract(ctx, &contract)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, err = s.contracts.GetContract(ctx, handler.ID, raw.ContractID)
			if err != nil {
				return ReconcileUnchanged, err
			}
			return s.update(ctx, existing, raw, status, statusErr)
		}
		if err != nil {
			return ReconcileUnchanged, err
		}
		s.notify(model.NewContractEvent(model.EventContractCreated, contract, now))
		if pricingErr != nil {
			return ReconcileCreated, errors.Join(pricingErr, statusErr)
		}
		s.notify(model.NewContractEvent(model.EventContractPricingResolved, contract, now))
		return ReconcileCreated, statusErr
	case err != nil:
		return ReconcileUnchanged, err
	default:
		return s.update(ctx, existing, raw, status, statusErr)
	}
}

func (s *ContractService) update(
	ctx context.Context,
	contract *model.Contract,
	raw model.RawContract,
	status model.ContractStatus,
	statusErr error,
) (ReconcileOutcome, error) {
	oldStatus := contract.Status
	changed := applyState(contract, raw, status)
	if !changed {
		return ReconcileUnchanged, statusErr
	}

	now := s.now()
	contract.UpdatedAt = now
	if err := s.contracts.UpdateContractState(ctx, contract); err != nil {
		return ReconcileUnchanged, err
	}
	if oldStatus != contract.Status {
		event := model.NewContractEvent(model.EventContractStatusChanged, *contract, now)
		event.OldStatus = oldStatus
		s.notify(event)
	}
	return ReconcileUpdated, statusErr
}

// UpdatePricingForAll re-evaluates every stored contract against the
// current rule set without fetching anything. Only contracts whose pricing
// outcome changed are written. Returns the number of updated contracts.
func (s *ContractService) UpdatePricingForAll(ctx context.Context) (int, error) {
	handler, err := loadHandler(ctx, s.handlers)
	if err != nil {
		return 0, err
	}
	rules, err := s.rules.ListPricingRules(ctx, handler.ID)
	if err != nil {
		return 0, err
	}
	contracts, err := s.contracts.ListContracts(ctx, handler.ID, nil)
	if err != nil {
		return 0, err
	}

	calc := pricing.NewCalculator(handler.PricePerVolumeModifier)
	updated := 0
	for i := range contracts {
		contract := contracts[i]
		before := pricingState(contract)
		if err := ResolvePricing(&contract, rules, calc); err != nil {
			s.log.Error().Err(err).Int64("contract_id", contract.ContractID).Msg("resolve pricing failed")
			continue
		}
		if before.equal(pricingState(contract)) {
			continue
		}
		contract.UpdatedAt = s.now()
		if err := s.contracts.UpdateContractPricing(ctx, &contract); err != nil {
			return updated, err
		}
		updated++
		s.notify(model.NewContractEvent(model.EventContractPricingResolved, contract, contract.UpdatedAt))
	}
	return updated, nil
}

func (s *ContractService) List(ctx context.Context, statuses []model.ContractStatus) ([]model.Contract, error) {
	handler, err := loadHandler(ctx, s.handlers)
	if err != nil {
		return nil, err
	}
	return s.contracts.ListContracts(ctx, handler.ID, statuses)
}

func (s *ContractService) notify(event model.ContractEvent) {
	if s.notifier != nil {
		s.notifier.Publish(event)
	}
}

// ResolvePricing links the contract to the matching rule and records the
// issues found. The result depends only on the contract and rules, so
// resolving twice against the same rule set yields the same outcome.
// Without a matching rule, or when the terms are invalid, the contract is
// left unpriced with nil issues.
func ResolvePricing(contract *model.Contract, rules []model.PricingRule, calc pricing.Calculator) error {
	contract.PricingID = nil
	contract.ExpectedPrice = decimal.NullDecimal{}
	contract.Issues = nil

	rule := pricing.SelectRule(contract.StartLocationID, contract.EndLocationID, rules)
	if rule == nil {
		return nil
	}

	issues, expected, err := calc.CheckContract(*rule, pricing.ContractTerms{
		Volume:         contract.Volume,
		Collateral:     contract.Collateral,
		Reward:         contract.Reward,
		DaysToComplete: contract.DaysToComplete,
		DateIssued:     contract.DateIssued,
		DateExpired:    contract.DateExpired,
	})
	if err != nil {
		return fmt.Errorf("contract %d: %w", contract.ContractID, err)
	}
	id := rule.ID
	contract.PricingID = &id
	contract.ExpectedPrice = decimal.NullDecimal{Decimal: expected, Valid: true}
	contract.Issues = issues
	return nil
}

func attachLocations(contract *model.Contract, locations map[int64]model.Location) {
	if location, ok := locations[contract.StartLocationID]; ok {
		contract.StartLocation = &location
	}
	if location, ok := locations[contract.EndLocationID]; ok {
		contract.EndLocation = &location
	}
}

func newContract(handler model.Handler, raw model.RawContract, status model.ContractStatus) model.Contract {
	contract := model.Contract{
		ID:                  uuid.New(),
		HandlerID:           handler.ID,
		ContractID:          raw.ContractID,
		IssuerID:            raw.IssuerID,
		IssuerCorporationID: raw.IssuerCorporationID,
		AssigneeID:          raw.AssigneeID,
		StartLocationID:     raw.StartLocationID,
		EndLocationID:       raw.EndLocationID,
		Volume:              decimal.NewFromFloat(raw.Volume),
		Collateral:          decimal.NewFromFloat(raw.Collateral),
		Reward:              decimal.NewFromFloat(raw.Reward),
		Price:               decimal.NewFromFloat(raw.Price),
		DaysToComplete:      raw.DaysToComplete,
		ForCorporation:      raw.ForCorporation,
		Availability:        model.ContractAvailability(raw.Availability),
		Title:               raw.Title,
		DateIssued:          raw.DateIssued,
		DateExpired:         raw.DateExpired,
	}
	applyState(&contract, raw, status)
	return contract
}

// applyState copies the mutable fields and reports whether any changed.
func applyState(contract *model.Contract, raw model.RawContract, status model.ContractStatus) bool {
	changed := false
	if contract.Status != status || contract.StatusRaw != raw.Status {
		contract.Status = status
		contract.StatusRaw = raw.Status
		changed = true
	}
	if !raw.DateExpired.IsZero() && !contract.DateExpired.Equal(raw.DateExpired) {
		contract.DateExpired = raw.DateExpired
		changed = true
	}
	if !equalTime(contract.DateAccepted, raw.DateAccepted) {
		contract.DateAccepted = raw.DateAccepted
		changed = true
	}
	if !equalTime(contract.DateCompleted, raw.DateCompleted) {
		contract.DateCompleted = raw.DateCompleted
		changed = true
	}
	acceptor := optionalID(raw.AcceptorID)
	if !equalID(contract.AcceptorID, acceptor) {
		contract.AcceptorID = acceptor
		changed = true
	}
	acceptorCorp := optionalID(raw.AcceptorCorporationID)
	if acceptorCorp != nil && !equalID(contract.AcceptorCorporationID, acceptorCorp) {
		contract.AcceptorCorporationID = acceptorCorp
		changed = true
	}
	return changed
}

type pricingSnapshot struct {
	pricingID *uuid.UUID
	expected  decimal.NullDecimal
	issues    []string
}

func pricingState(contract model.Contract) pricingSnapshot {
	return pricingSnapshot{
		pricingID: contract.PricingID,
		expected:  contract.ExpectedPrice,
		issues:    contract.Issues,
	}
}

func (p pricingSnapshot) equal(other pricingSnapshot) bool {
	switch {
	case (p.pricingID == nil) != (other.pricingID == nil):
		return false
	case p.pricingID != nil && *p.pricingID != *other.pricingID:
		return false
	case p.expected.Valid != other.expected.Valid:
		return false
	case p.expected.Valid && !p.expected.Decimal.Equal(other.expected.Decimal):
		return false
	case (p.issues == nil) != (other.issues == nil):
		return false
	}
	return slices.Equal(p.issues, other.issues)
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func equalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
