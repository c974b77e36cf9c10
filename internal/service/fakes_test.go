package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"github.com/nurpe/freight/internal/model"
)

// memStore keeps every entity in memory and satisfies all store interfaces.
type memStore struct {
	mu        sync.Mutex
	handler   *model.Handler
	statuses  []model.SyncStatus
	locations map[int64]model.Location
	rules     []model.PricingRule
	contracts map[int64]model.Contract

	failCreate    map[int64]error
	pricingWrites int
}

func newMemStore() *memStore {
	return &memStore{
		locations:  make(map[int64]model.Location),
		contracts:  make(map[int64]model.Contract),
		failCreate: make(map[int64]error),
	}
}

func (s *memStore) GetHandler(_ context.Context) (*model.Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return nil, gorm.ErrRecordNotFound
	}
	handler := *s.handler
	return &handler, nil
}

func (s *memStore) SaveSyncStatus(_ context.Context, id uuid.UUID, status model.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil || s.handler.ID != id {
		return gorm.ErrRecordNotFound
	}
	lastSync := status.LastSync
	s.handler.LastSync = &lastSync
	s.handler.LastError = status.LastError
	s.handler.VersionHash = status.VersionHash
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *memStore) GetLocations(_ context.Context, ids []int64) (map[int64]model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[int64]model.Location)
	for _, id := range ids {
		if loc, ok := s.locations[id]; ok {
			result[id] = loc
		}
	}
	return result, nil
}

func (s *memStore) UpsertLocations(_ context.Context, locations []model.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, loc := range locations {
		s.locations[loc.ID] = loc
	}
	return nil
}

func (s *memStore) ListLocations(_ context.Context) ([]model.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]model.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		result = append(result, loc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *memStore) ListPricingRules(_ context.Context, handlerID uuid.UUID) ([]model.PricingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.PricingRule
	for _, rule := range s.rules {
		if rule.HandlerID == handlerID {
			result = append(result, rule)
		}
	}
	return result, nil
}

func (s *memStore) GetPricingRule(_ context.Context, id uuid.UUID) (*model.PricingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rule := range s.rules {
		if rule.ID == id {
			found := rule
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memStore) SavePricingRule(_ context.Context, rule *model.PricingRule, check func([]model.PricingRule) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if check != nil {
		var existing []model.PricingRule
		for _, stored := range s.rules {
			if stored.HandlerID == rule.HandlerID {
				existing = append(existing, stored)
			}
		}
		if err := check(existing); err != nil {
			return err
		}
	}
	if rule.IsDefault {
		for i := range s.rules {
			if s.rules[i].HandlerID == rule.HandlerID {
				s.rules[i].IsDefault = false
			}
		}
	}
	for i := range s.rules {
		if s.rules[i].ID == rule.ID {
			s.rules[i] = *rule
			return nil
		}
	}
	s.rules = append(s.rules, *rule)
	return nil
}

func (s *memStore) GetContract(_ context.Context, handlerID uuid.UUID, contractID int64) (*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contract, ok := s.contracts[contractID]
	if !ok || contract.HandlerID != handlerID {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneContract(contract), nil
}

func (s *memStore) ListContracts(_ context.Context, handlerID uuid.UUID, statuses []model.ContractStatus) ([]model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Contract
	for _, contract := range s.contracts {
		if contract.HandlerID != handlerID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, contract.Status) {
			continue
		}
		result = append(result, *cloneContract(contract))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ContractID < result[j].ContractID })
	return result, nil
}

func (s *memStore) CreateContract(_ context.Context, contract *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failCreate[contract.ContractID]; err != nil {
		return err
	}
	if _, ok := s.contracts[contract.ContractID]; ok {
		return gorm.ErrDuplicatedKey
	}
	s.contracts[contract.ContractID] = *cloneContract(*contract)
	return nil
}

func (s *memStore) UpdateContractState(_ context.Context, contract *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.contracts[contract.ContractID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Status = contract.Status
	stored.StatusRaw = contract.StatusRaw
	stored.DateExpired = contract.DateExpired
	stored.DateAccepted = contract.DateAccepted
	stored.DateCompleted = contract.DateCompleted
	stored.AcceptorID = contract.AcceptorID
	stored.AcceptorCorporationID = contract.AcceptorCorporationID
	stored.UpdatedAt = contract.UpdatedAt
	s.contracts[contract.ContractID] = stored
	return nil
}

func (s *memStore) UpdateContractPricing(_ context.Context, contract *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.contracts[contract.ContractID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.PricingID = contract.PricingID
	stored.ExpectedPrice = contract.ExpectedPrice
	stored.Issues = append([]string(nil), contract.Issues...)
	if contract.Issues != nil && stored.Issues == nil {
		stored.Issues = []string{}
	}
	stored.UpdatedAt = contract.UpdatedAt
	s.contracts[contract.ContractID] = stored
	s.pricingWrites++
	return nil
}

func (s *memStore) contract(id int64) (model.Contract, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contract, ok := s.contracts[id]
	return contract, ok
}

func cloneContract(contract model.Contract) *model.Contract {
	clone := contract
	if contract.Issues != nil {
		clone.Issues = append([]string{}, contract.Issues...)
	}
	return &clone
}

func containsStatus(statuses []model.ContractStatus, status model.ContractStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.ContractEvent
}

func (n *recordingNotifier) Publish(event model.ContractEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) kinds() map[model.EventKind]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make(map[model.EventKind]int)
	for _, event := range n.events {
		result[event.Kind]++
	}
	return result
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) GetContracts(ctx context.Context, token string, corporationID int64, page int) (model.ContractPage, error) {
	args := m.Called(ctx, token, corporationID, page)
	return args.Get(0).(model.ContractPage), args.Error(1)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) GetValidToken(ctx context.Context, characterID int64, scopes []string) (string, error) {
	args := m.Called(ctx, characterID, scopes)
	return args.String(0), args.Error(1)
}

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) LookupLocation(ctx context.Context, token string, id int64) (model.Location, error) {
	args := m.Called(ctx, token, id)
	return args.Get(0).(model.Location), args.Error(1)
}

type fakeLease struct {
	mu   sync.Mutex
	held map[string]string
}

func newFakeLease() *fakeLease {
	return &fakeLease{held: make(map[string]string)}
}

func (l *fakeLease) Acquire(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, true, nil
}

func (l *fakeLease) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("lease not held")
	}
	delete(l.held, key)
	return nil
}
