package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ContractStatus string

const (
	ContractStatusOutstanding        ContractStatus = "outstanding"
	ContractStatusInProgress         ContractStatus = "in_progress"
	ContractStatusFinishedIssuer     ContractStatus = "finished_issuer"
	ContractStatusFinishedContractor ContractStatus = "finished_contractor"
	ContractStatusFinished           ContractStatus = "finished"
	ContractStatusFailed             ContractStatus = "failed"
	ContractStatusCancelled          ContractStatus = "cancelled"
	ContractStatusRejected           ContractStatus = "rejected"
	ContractStatusDeleted            ContractStatus = "deleted"
	ContractStatusReversed           ContractStatus = "reversed"
	ContractStatusExpired            ContractStatus = "expired"
	// ContractStatusUnknown marks a status the external source reported but we
	// do not recognise. The raw value is kept in Contract.StatusRaw.
	ContractStatusUnknown ContractStatus = "unknown"
)

var knownContractStatuses = map[ContractStatus]struct{}{
	ContractStatusOutstanding:        {},
	ContractStatusInProgress:         {},
	ContractStatusFinishedIssuer:     {},
	ContractStatusFinishedContractor: {},
	ContractStatusFinished:           {},
	ContractStatusFailed:             {},
	ContractStatusCancelled:          {},
	ContractStatusRejected:           {},
	ContractStatusDeleted:            {},
	ContractStatusReversed:           {},
	ContractStatusExpired:            {},
}

var ErrUnknownContractStatus = errors.New("unknown contract status")

// ParseContractStatus never fails silently: an unrecognised value yields
// ContractStatusUnknown together with ErrUnknownContractStatus.
func ParseContractStatus(raw string) (ContractStatus, error) {
	status := ContractStatus(raw)
	if _, ok := knownContractStatuses[status]; ok {
		return status, nil
	}
	return ContractStatusUnknown, fmt.Errorf("%w: %q", ErrUnknownContractStatus, raw)
}

func (s ContractStatus) IsKnown() bool {
	_, ok := knownContractStatuses[s]
	return ok
}

type ContractAvailability string

const (
	AvailabilityPublic      ContractAvailability = "public"
	AvailabilityPersonal    ContractAvailability = "personal"
	AvailabilityCorporation ContractAvailability = "corporation"
	AvailabilityAlliance    ContractAvailability = "alliance"
)

type Contract struct {
	ID                    uuid.UUID            `json:"id"`
	HandlerID             uuid.UUID            `json:"handler_id"`
	ContractID            int64                `json:"contract_id"`
	Status                ContractStatus       `json:"status"`
	StatusRaw             string               `json:"status_raw"`
	IssuerID              int64                `json:"issuer_id"`
	IssuerCorporationID   int64                `json:"issuer_corporation_id"`
	AcceptorID            *int64               `json:"acceptor_id,omitempty"`
	AcceptorCorporationID *int64               `json:"acceptor_corporation_id,omitempty"`
	AssigneeID            int64                `json:"assignee_id"`
	StartLocationID       int64                `json:"start_location_id"`
	EndLocationID         int64                `json:"end_location_id"`
	StartLocation         *Location            `json:"start_location,omitempty"`
	EndLocation           *Location            `json:"end_location,omitempty"`
	Volume                decimal.Decimal      `json:"volume"`
	Collateral            decimal.Decimal      `json:"collateral"`
	Reward                decimal.Decimal      `json:"reward"`
	Price                 decimal.Decimal      `json:"price"`
	ExpectedPrice         decimal.NullDecimal  `json:"expected_price"`
	DaysToComplete        int                  `json:"days_to_complete"`
	ForCorporation        bool                 `json:"for_corporation"`
	Availability          ContractAvailability `json:"availability"`
	Title                 string               `json:"title"`
	DateIssued            time.Time            `json:"date_issued"`
	DateExpired           time.Time            `json:"date_expired"`
	DateAccepted          *time.Time           `json:"date_accepted,omitempty"`
	DateCompleted         *time.Time           `json:"date_completed,omitempty"`
	PricingID             *uuid.UUID           `json:"pricing_id,omitempty"`
	// Issues is nil until pricing was evaluated; an empty slice means compliant.
	Issues       []string   `json:"issues"`
	DateNotified *time.Time `json:"date_notified,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DateLatest returns the most recent lifecycle date of the contract.
func (c Contract) DateLatest() time.Time {
	switch {
	case c.DateCompleted != nil:
		return *c.DateCompleted
	case c.DateAccepted != nil:
		return *c.DateAccepted
	default:
		return c.DateIssued
	}
}

// HasStaleStatus reports whether the contract did not change for longer than hours.
func (c Contract) HasStaleStatus(now time.Time, hours int) bool {
	return now.Sub(c.DateLatest()) > time.Duration(hours)*time.Hour
}

// HoursIssuedToCompleted returns nil while the contract is not completed.
func (c Contract) HoursIssuedToCompleted() *float64 {
	if c.DateCompleted == nil {
		return nil
	}
	hours := c.DateCompleted.Sub(c.DateIssued).Hours()
	return &hours
}

func (c Contract) HasPricing() bool {
	return c.PricingID != nil
}

func (c Contract) HasIssues() bool {
	return len(c.Issues) > 0
}

// RawContract is a courier contract record as delivered by the external source.
type RawContract struct {
	ContractID          int64      `json:"contract_id"`
	Type                string     `json:"type"`
	Status              string     `json:"status"`
	IssuerID            int64      `json:"issuer_id"`
	IssuerCorporationID int64      `json:"issuer_corporation_id"`
	AcceptorID          int64      `json:"acceptor_id"`
	AssigneeID          int64      `json:"assignee_id"`
	StartLocationID     int64      `json:"start_location_id"`
	EndLocationID       int64      `json:"end_location_id"`
	Volume              float64    `json:"volume"`
	Collateral          float64    `json:"collateral"`
	Reward              float64    `json:"reward"`
	Price               float64    `json:"price"`
	DaysToComplete      int        `json:"days_to_complete"`
	ForCorporation      bool       `json:"for_corporation"`
	Availability        string     `json:"availability"`
	Title               string     `json:"title"`
	DateIssued          time.Time  `json:"date_issued"`
	DateExpired         time.Time  `json:"date_expired"`
	DateAccepted        *time.Time `json:"date_accepted,omitempty"`
	DateCompleted       *time.Time `json:"date_completed,omitempty"`
	// AcceptorCorporationID is not part of the contract payload; it is
	// filled in by the source when the acceptor is known.
	AcceptorCorporationID int64 `json:"-"`
}

const ContractTypeCourier = "courier"

// ContractPage is one page of raw contracts plus the total page count.
type ContractPage struct {
	Contracts []RawContract
	Pages     int
}
