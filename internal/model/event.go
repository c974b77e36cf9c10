package model

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventContractCreated         EventKind = "contract_created"
	EventContractStatusChanged   EventKind = "contract_status_changed"
	EventContractPricingResolved EventKind = "contract_pricing_resolved"
)

// ContractEvent is handed to the notification dispatcher after a contract
// was created, changed status or had its pricing resolved.
type ContractEvent struct {
	ID         uuid.UUID      `json:"id"`
	Kind       EventKind      `json:"kind"`
	ContractID int64          `json:"contract_id"`
	OldStatus  ContractStatus `json:"old_status,omitempty"`
	NewStatus  ContractStatus `json:"new_status,omitempty"`
	Issues     []string       `json:"issues,omitempty"`
	Contract   Contract       `json:"contract"`
	At         time.Time      `json:"at"`
}

func NewContractEvent(kind EventKind, contract Contract, at time.Time) ContractEvent {
	return ContractEvent{
		ID:         uuid.New(),
		Kind:       kind,
		ContractID: contract.ContractID,
		NewStatus:  contract.Status,
		Issues:     contract.Issues,
		Contract:   contract,
		At:         at,
	}
}
