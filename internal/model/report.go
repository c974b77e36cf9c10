package model

import (
	"time"

	"github.com/google/uuid"
)

// ContractReport is the input of the contracts spreadsheet export.
type ContractReport struct {
	Handler     Handler
	GeneratedAt time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time
	Contracts   []Contract
	Rules       map[uuid.UUID]PricingRule
	// FullRouteNames renders locations with their full names.
	FullRouteNames bool
}

// PricingSheet is the input of the pricing pdf export.
type PricingSheet struct {
	Handler        Handler
	GeneratedAt    time.Time
	Rules          []PricingRule
	FullRouteNames bool
}
