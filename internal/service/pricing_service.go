package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/pricing"
)

type PricingStore interface {
	ListPricingRules(ctx context.Context, handlerID uuid.UUID) ([]model.PricingRule, error)
	GetPricingRule(ctx context.Context, id uuid.UUID) (*model.PricingRule, error)
	// SavePricingRule inserts or updates the rule after check accepted the
	// stored rules of the handler. Check and write are atomic with respect to
	// other saves. Saving a default rule clears the default flag of every
	// other rule of the handler.
	SavePricingRule(ctx context.Context, rule *model.PricingRule, check func(existing []model.PricingRule) error) error
}

type HandlerStore interface {
	GetHandler(ctx context.Context) (*model.Handler, error)
	SaveSyncStatus(ctx context.Context, id uuid.UUID, status model.SyncStatus) error
}

type PricingService struct {
	rules     PricingStore
	handlers  HandlerStore
	locations LocationStore
	changes   chan model.RulesChanged
	log       zerolog.Logger
	now       func() time.Time
}

func NewPricingService(rules PricingStore, handlers HandlerStore, locations LocationStore, log zerolog.Logger) *PricingService {
	return &PricingService{
		rules:     rules,
		handlers:  handlers,
		locations: locations,
		changes:   make(chan model.RulesChanged, 1),
		log:       log.With().Str("component", "pricing").Logger(),
		now:       time.Now,
	}
}

// Changes delivers a message after every successful create or update.
// Bursts are coalesced: at most one message is pending at a time.
func (s *PricingService) Changes() <-chan model.RulesChanged {
	return s.changes
}

func (s *PricingService) List(ctx context.Context) ([]model.PricingRule, error) {
	handler, err := loadHandler(ctx, s.handlers)
	if err != nil {
		return nil, err
	}
	return s.rules.ListPricingRules(ctx, handler.ID)
}

func (s *PricingService) Get(ctx context.Context, id uuid.UUID) (*model.PricingRule, error) {
	rule, err := s.rules.GetPricingRule(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rule, nil
}

func (s *PricingService) Create(ctx context.Context, rule model.PricingRule) (*model.PricingRule, error) {
	rule.ID = uuid.New()
	rule.CreatedAt = time.Time{}
	return s.save(ctx, rule)
}

func (s *PricingService) Update(ctx context.Context, id uuid.UUID, rule model.PricingRule) (*model.PricingRule, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.ID = current.ID
	rule.CreatedAt = current.CreatedAt
	return s.save(ctx, rule)
}

func (s *PricingService) save(ctx context.Context, rule model.PricingRule) (*model.PricingRule, error) {
	handler, err := loadHandler(ctx, s.handlers)
	if err != nil {
		return nil, err
	}
	rule.HandlerID = handler.ID

	if err := pricing.Validate(rule); err != nil {
		return nil, err
	}
	locations, err := s.locations.GetLocations(ctx, []int64{rule.StartLocationID, rule.EndLocationID})
	if err != nil {
		return nil, err
	}
	start, ok := locations[rule.StartLocationID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown location %d", ErrInvalidInput, rule.StartLocationID)
	}
	end, ok := locations[rule.EndLocationID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown location %d", ErrInvalidInput, rule.EndLocationID)
	}
	rule.StartLocation, rule.EndLocation = &start, &end

	now := s.now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	err = s.rules.SavePricingRule(ctx, &rule, func(existing []model.PricingRule) error {
		return pricing.ValidateRoute(rule, existing)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("pricing_id", rule.ID.String()).
		Str("route", pricing.RouteName(rule, false)).
		Msg("pricing saved")
	s.emit(model.RulesChanged{RuleID: rule.ID, At: now})
	return &rule, nil
}

func (s *PricingService) emit(event model.RulesChanged) {
	select {
	case s.changes <- event:
	default:
	}
}

// PricingQuote is the calculator result for one rule.
type PricingQuote struct {
	Rule   model.PricingRule `json:"rule"`
	Route  string            `json:"route"`
	Price  decimal.Decimal   `json:"price"`
	Issues []string          `json:"issues"`
}

// Quote prices a prospective contract on the rule identified by id.
func (s *PricingService) Quote(ctx context.Context, id uuid.UUID, volume, collateral decimal.NullDecimal) (*PricingQuote, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	handler, err := loadHandler(ctx, s.handlers)
	if err != nil {
		return nil, err
	}
	if pricing.RequiresVolume(*rule) && !volume.Valid {
		return nil, fmt.Errorf("%w: volume is required", ErrInvalidInput)
	}
	if pricing.RequiresCollateral(*rule) && !collateral.Valid {
		return nil, fmt.Errorf("%w: collateral is required", ErrInvalidInput)
	}

	calc := pricing.NewCalculator(handler.PricePerVolumeModifier)
	price, err := calc.ComputePrice(*rule, volume, collateral, nil)
	if err != nil {
		return nil, err
	}
	issues, err := pricing.CheckEligibility(*rule, volume.Decimal, collateral.Decimal, nil)
	if err != nil {
		return nil, err
	}
	return &PricingQuote{
		Rule:   *rule,
		Route:  pricing.RouteName(*rule, false),
		Price:  price,
		Issues: issues,
	}, nil
}

// ReResolver re-evaluates stored contracts after the pricing rule set
// changed. Messages arriving within the settle window are handled once.
type ReResolver struct {
	changes   <-chan model.RulesChanged
	contracts PricingUpdater
	settle    time.Duration
	log       zerolog.Logger
}

type PricingUpdater interface {
	UpdatePricingForAll(ctx context.Context) (int, error)
}

func NewReResolver(changes <-chan model.RulesChanged, contracts PricingUpdater, settle time.Duration, log zerolog.Logger) *ReResolver {
	return &ReResolver{
		changes:   changes,
		contracts: contracts,
		settle:    settle,
		log:       log.With().Str("component", "re_resolver").Logger(),
	}
}

func (r *ReResolver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-r.changes:
			if !r.wait(ctx) {
				return
			}
			updated, err := r.contracts.UpdatePricingForAll(ctx)
			if err != nil {
				r.log.Error().Err(err).Str("pricing_id", event.RuleID.String()).Msg("re-resolving contracts failed")
				continue
			}
			r.log.Info().Int("updated", updated).Str("pricing_id", event.RuleID.String()).Msg("contracts re-resolved")
		}
	}
}

// wait lets a burst of edits settle, draining messages that arrive meanwhile.
func (r *ReResolver) wait(ctx context.Context) bool {
	if r.settle <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(r.settle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-r.changes:
		case <-timer.C:
			return true
		}
	}
}

func loadHandler(ctx context.Context, handlers HandlerStore) (*model.Handler, error) {
	handler, err := handlers.GetHandler(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: contract handler is not configured", ErrNotFound)
		}
		return nil, err
	}
	return handler, nil
}
