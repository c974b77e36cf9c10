package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nurpe/freight/internal/metrics"
	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/pricing"
)

// SyncScopes are the scopes the sync character's token must carry.
var SyncScopes = []string{
	"esi-contracts.read_corporation_contracts.v1",
	"esi-universe.read_structures.v1",
}

// ContractSource delivers contract pages for a corporation. Pages are 1-indexed.
type ContractSource interface {
	GetContracts(ctx context.Context, token string, corporationID int64, page int) (model.ContractPage, error)
}

// TokenProvider returns a valid access token for the character. It fails
// with ErrTokenExpired, ErrTokenInvalid or ErrNoToken.
type TokenProvider interface {
	GetValidToken(ctx context.Context, characterID int64, scopes []string) (string, error)
}

// Lease provides mutual exclusion across processes. Acquire returns false
// when the key is held by someone else.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type SyncConfig struct {
	OperationMode model.OperationMode
	FetchTimeout  time.Duration
	TokenTimeout  time.Duration
	Workers       int
	LeaseTTL      time.Duration
	Grace         time.Duration
}

type SyncOptions struct {
	Force bool
}

type SyncReport struct {
	HandlerID           uuid.UUID       `json:"handler_id"`
	StartedAt           time.Time       `json:"started_at"`
	FinishedAt          time.Time       `json:"finished_at"`
	Pages               int             `json:"pages"`
	PagesFetched        int             `json:"pages_fetched"`
	Fetched             int             `json:"fetched"`
	InScope             int             `json:"in_scope"`
	Created             int             `json:"created"`
	Updated             int             `json:"updated"`
	Unchanged           int             `json:"unchanged"`
	Failed              int             `json:"failed"`
	Repriced            int             `json:"repriced"`
	Skipped             bool            `json:"skipped"`
	UnresolvedLocations []int64         `json:"unresolved_locations,omitempty"`
	LastError           model.SyncError `json:"last_error"`
	LastErrorMessage    string          `json:"last_error_message"`
}

type SyncService struct {
	handlers  HandlerStore
	rules     PricingStore
	source    ContractSource
	tokens    TokenProvider
	registry  *LocationRegistry
	contracts *ContractService
	lease     Lease
	metrics   *metrics.Metrics
	cfg       SyncConfig
	log       zerolog.Logger
	now       func() time.Time
}

func NewSyncService(
	handlers HandlerStore,
	rules PricingStore,
	source ContractSource,
	tokens TokenProvider,
	registry *LocationRegistry,
	contracts *ContractService,
	lease Lease,
	m *metrics.Metrics,
	cfg SyncConfig,
	log zerolog.Logger,
) *SyncService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &SyncService{
		handlers:  handlers,
		rules:     rules,
		source:    source,
		tokens:    tokens,
		registry:  registry,
		contracts: contracts,
		lease:     lease,
		metrics:   m,
		cfg:       cfg,
		log:       log.With().Str("component", "sync").Logger(),
		now:       time.Now,
	}
}

// Run executes one sync of the handler. It returns ErrSyncInProgress when
// another run holds the lease. For every other outcome a report is
// returned and the handler status is saved, even when err is not nil.
func (s *SyncService) Run(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	handler, err := loadHandler(ctx, s.handlers)
	if err != nil {
		return nil, err
	}

	key := "freight:sync:" + handler.ID.String()
	token, ok, err := s.lease.Acquire(ctx, key, s.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lease: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := s.lease.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn().Err(err).Msg("release sync lease failed")
		}
	}()

	report := &SyncReport{HandlerID: handler.ID, StartedAt: s.now()}
	hash, runErr := s.run(ctx, *handler, opts, report)

	report.LastError = ClassifySyncError(runErr)
	if runErr == nil && report.Failed > 0 {
		report.LastError = model.SyncErrorUnknown
	}
	report.LastErrorMessage = report.LastError.Message()
	report.FinishedAt = s.now()

	switch {
	case report.Failed > 0:
		// A stored hash would skip the failed contracts until the
		// upstream list changes.
		hash = ""
	case hash == "":
		hash = handler.VersionHash
	}
	status := model.SyncStatus{
		LastSync:    report.FinishedAt,
		LastError:   report.LastError,
		VersionHash: hash,
	}
	if err := s.handlers.SaveSyncStatus(context.WithoutCancel(ctx), handler.ID, status); err != nil {
		return report, fmt.Errorf("save sync status: %w", err)
	}
	s.metrics.ObserveSync(string(report.LastError), report.FinishedAt.Sub(report.StartedAt))

	event := s.log.Info()
	if report.LastError != model.SyncErrorNone {
		event = s.log.Warn().Err(runErr)
	}
	event.
		Str("last_error", string(report.LastError)).
		Int("fetched", report.Fetched).
		Int("in_scope", report.InScope).
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("failed", report.Failed).
		Int("repriced", report.Repriced).
		Bool("skipped", report.Skipped).
		Msg("sync finished")
	return report, runErr
}

// run performs the sync steps and returns the version hash of a complete
// fetch, or "" when the fetch did not complete.
func (s *SyncService) run(ctx context.Context, handler model.Handler, opts SyncOptions, report *SyncReport) (string, error) {
	if handler.OperationMode != s.cfg.OperationMode {
		return "", fmt.Errorf("%w: handler uses %s, deployment is configured for %s",
			ErrOperationModeMismatch, handler.OperationMode, s.cfg.OperationMode)
	}
	if handler.CharacterID == nil {
		return "", ErrNoCharacter
	}

	token, err := s.token(ctx, *handler.CharacterID)
	if err != nil {
		return "", err
	}

	raws, fetchErr := s.fetch(ctx, token, corporationOf(handler), report)
	report.Fetched = len(raws)

	hash := ""
	if fetchErr == nil {
		hash = versionHash(raws)
		if !opts.Force && hash == handler.VersionHash {
			report.Skipped = true
			return hash, nil
		}
	}

	scoped := make([]model.RawContract, 0, len(raws))
	for _, raw := range raws {
		if InScope(handler, raw) {
			scoped = append(scoped, raw)
		}
	}
	report.InScope = len(scoped)
	if len(scoped) == 0 {
		return hash, fetchErr
	}

	locationIDs := make([]int64, 0, len(scoped)*2)
	for _, raw := range scoped {
		locationIDs = append(locationIDs, raw.StartLocationID, raw.EndLocationID)
	}
	locations, failed, err := s.registry.Resolve(ctx, locationIDs, token)
	if err != nil {
		return "", fmt.Errorf("resolve locations: %w", err)
	}
	report.UnresolvedLocations = failed

	rules, err := s.rules.ListPricingRules(ctx, handler.ID)
	if err != nil {
		return "", fmt.Errorf("load pricing: %w", err)
	}
	calc := pricing.NewCalculator(handler.PricePerVolumeModifier)

	for _, result := range s.reconcileAll(ctx, handler, scoped, rules, calc, locations) {
		if result.err != nil {
			report.Failed++
			s.metrics.ContractFailed()
			s.log.Error().Err(result.err).Int64("contract_id", result.contractID).Msg("reconcile contract failed")
		}
		switch result.outcome {
		case ReconcileCreated:
			report.Created++
		case ReconcileUpdated:
			report.Updated++
		default:
			if result.err == nil {
				report.Unchanged++
			}
		}
		s.metrics.ContractReconciled(result.outcome.String())
	}

	if report.Created > 0 {
		if err := s.repriceIfRulesChanged(ctx, handler, rules, report); err != nil {
			return "", err
		}
	}
	return hash, fetchErr
}

// repriceIfRulesChanged re-resolves stored contracts when the rule set was
// edited while the run priced new contracts against the earlier one.
func (s *SyncService) repriceIfRulesChanged(ctx context.Context, handler model.Handler, used []model.PricingRule, report *SyncReport) error {
	current, err := s.rules.ListPricingRules(ctx, handler.ID)
	if err != nil {
		return fmt.Errorf("reload pricing: %w", err)
	}
	if sameRules(used, current) {
		return nil
	}
	repriced, err := s.contracts.UpdatePricingForAll(ctx)
	if err != nil {
		return fmt.Errorf("reprice contracts: %w", err)
	}
	report.Repriced = repriced
	return nil
}

func sameRules(a, b []model.PricingRule) bool {
	if len(a) != len(b) {
		return false
	}
	versions := make(map[uuid.UUID]time.Time, len(a))
	for _, rule := range a {
		versions[rule.ID] = rule.UpdatedAt
	}
	for _, rule := range b {
		at, ok := versions[rule.ID]
		if !ok || !at.Equal(rule.UpdatedAt) {
			return false
		}
	}
	return true
}

type reconcileResult struct {
	contractID int64
	outcome    ReconcileOutcome
	err        error
}

// reconcileAll reconciles every contract and collects one result per
// contract. A failing contract never stops the others.
func (s *SyncService) reconcileAll(
	ctx context.Context,
	handler model.Handler,
	raws []model.RawContract,
	rules []model.PricingRule,
	calc pricing.Calculator,
	locations map[int64]model.Location,
) []reconcileResult {
	results := make([]reconcileResult, len(raws))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i := range raws {
		raw := raws[i]
		g.Go(func() error {
			outcome, err := s.reconcileOne(ctx, handler, raw, rules, calc, locations)
			results[i] = reconcileResult{contractID: raw.ContractID, outcome: outcome, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *SyncService) reconcileOne(
	ctx context.Context,
	handler model.Handler,
	raw model.RawContract,
	rules []model.PricingRule,
	calc pricing.Calculator,
	locations map[int64]model.Location,
) (outcome ReconcileOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.contracts.Reconcile(ctx, handler, raw, rules, calc, locations)
}

func (s *SyncService) token(ctx context.Context, characterID int64) (string, error) {
	tctx, cancel := s.withTimeout(ctx, s.cfg.TokenTimeout)
	defer cancel()

	token, err := s.tokens.GetValidToken(tctx, characterID, SyncScopes)
	if err != nil {
		return "", timeoutError(tctx, err)
	}
	return token, nil
}

// fetch reads all pages sequentially. On a failing page it returns the
// contracts of the pages fetched so far together with the error.
func (s *SyncService) fetch(ctx context.Context, token string, corporationID int64, report *SyncReport) ([]model.RawContract, error) {
	var contracts []model.RawContract
	pages := 1
	for page := 1; page <= pages; page++ {
		result, err := s.fetchPage(ctx, token, corporationID, page)
		if err != nil {
			return contracts, fmt.Errorf("fetch contracts page %d: %w", page, err)
		}
		if page == 1 {
			pages = max(result.Pages, 1)
			report.Pages = pages
		}
		report.PagesFetched++
		s.metrics.PageFetched()
		contracts = append(contracts, result.Contracts...)
	}
	return contracts, nil
}

func (s *SyncService) fetchPage(ctx context.Context, token string, corporationID int64, page int) (model.ContractPage, error) {
	pctx, cancel := s.withTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	result, err := s.source.GetContracts(pctx, token, corporationID, page)
	if err != nil {
		return model.ContractPage{}, timeoutError(pctx, err)
	}
	return result, nil
}

func (s *SyncService) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// RefreshLocations looks up ids again with the sync character's token and
// overwrites the stored metadata.
func (s *SyncService) RefreshLocations(ctx context.Context, ids []int64) ([]model.Location, []int64, error) {
	if len(uniqueIDs(ids)) == 0 {
		return nil, nil, fmt.Errorf("%w: no location ids given", ErrInvalidInput)
	}
	handler, err := loadHandler(ctx, s.handlers)
	if err != nil {
		return nil, nil, err
	}
	if handler.CharacterID == nil {
		return nil, nil, ErrNoCharacter
	}
	token, err := s.token(ctx, *handler.CharacterID)
	if err != nil {
		return nil, nil, err
	}
	return s.registry.Refresh(ctx, ids, token)
}

// SyncHealth is the operator view of the handler.
type SyncHealth struct {
	Handler          model.Handler `json:"handler"`
	OperationMode    string        `json:"operation_mode"`
	Availability     string        `json:"availability"`
	LastErrorMessage string        `json:"last_error_message"`
	OK               bool          `json:"ok"`
}

// Health reports ok only for a clean last sync within the grace window.
func (s *SyncService) Health(ctx context.Context) (*SyncHealth, error) {
	handler, err := loadHandler(ctx, s.handlers)
	if err != nil {
		return nil, err
	}
	return &SyncHealth{
		Handler:          *handler,
		OperationMode:    handler.OperationMode.Label(),
		Availability:     handler.AvailabilityText(),
		LastErrorMessage: handler.LastError.Message(),
		OK:               handler.IsSyncOK(s.now(), s.cfg.Grace),
	}, nil
}

// InScope reports whether a fetched contract belongs to the handler under
// its operation mode. Only courier contracts are considered.
func InScope(handler model.Handler, raw model.RawContract) bool {
	if !strings.EqualFold(raw.Type, model.ContractTypeCourier) {
		return false
	}
	org := handler.Organization.ID
	assigned := raw.AssigneeID == org || raw.AcceptorID == org

	switch handler.OperationMode {
	case model.OperationModeMyAlliance, model.OperationModeMyCorporation:
		return assigned
	case model.OperationModeCorpInAlliance:
		return assigned || (raw.IssuerCorporationID == org && raw.ForCorporation)
	case model.OperationModeCorpPublic:
		if raw.AssigneeID == org {
			return true
		}
		return model.ContractAvailability(raw.Availability) == model.AvailabilityPublic &&
			(raw.IssuerCorporationID == org || raw.AcceptorID == org)
	default:
		return false
	}
}

func corporationOf(handler model.Handler) int64 {
	if handler.CharacterCorporationID != nil {
		return *handler.CharacterCorporationID
	}
	return handler.Organization.ID
}

func versionHash(raws []model.RawContract) string {
	sorted := make([]model.RawContract, len(raws))
	copy(sorted, raws)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ContractID < sorted[j].ContractID })

	sum := sha256.New()
	encoder := json.NewEncoder(sum)
	for _, raw := range sorted {
		_ = encoder.Encode(raw)
	}
	return hex.EncodeToString(sum.Sum(nil))
}

func timeoutError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
