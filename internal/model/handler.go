package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OperationMode string

const (
	OperationModeMyAlliance     OperationMode = "my_alliance"
	OperationModeMyCorporation  OperationMode = "my_corporation"
	OperationModeCorpInAlliance OperationMode = "corp_in_alliance"
	OperationModeCorpPublic     OperationMode = "corp_public"
)

var operationModeLabels = map[OperationMode]string{
	OperationModeMyAlliance:     "My Alliance",
	OperationModeMyCorporation:  "My Corporation",
	OperationModeCorpInAlliance: "Corporation in my Alliance",
	OperationModeCorpPublic:     "Corporation public",
}

func ParseOperationMode(raw string) (OperationMode, error) {
	mode := OperationMode(raw)
	if _, ok := operationModeLabels[mode]; !ok {
		return "", fmt.Errorf("unknown operation mode %q", raw)
	}
	return mode, nil
}

func (m OperationMode) Label() string {
	if label, ok := operationModeLabels[m]; ok {
		return label
	}
	return string(m)
}

// SyncError is the last error kind recorded for a handler.
type SyncError string

const (
	SyncErrorNone                    SyncError = ""
	SyncErrorTokenInvalid            SyncError = "token_invalid"
	SyncErrorTokenExpired            SyncError = "token_expired"
	SyncErrorInsufficientPermissions SyncError = "insufficient_permissions"
	SyncErrorNoCharacter             SyncError = "no_character"
	SyncErrorESIUnavailable          SyncError = "esi_unavailable"
	SyncErrorOperationModeMismatch   SyncError = "operation_mode_mismatch"
	SyncErrorTimeout                 SyncError = "timeout"
	SyncErrorNoToken                 SyncError = "no_token"
	SyncErrorUnknown                 SyncError = "unknown"
)

func (e SyncError) Message() string {
	switch e {
	case SyncErrorNone:
		return "No error"
	case SyncErrorTokenInvalid:
		return "Invalid token"
	case SyncErrorTokenExpired:
		return "Expired token"
	case SyncErrorInsufficientPermissions:
		return "Insufficient permissions"
	case SyncErrorNoCharacter:
		return "No character set for fetching contracts"
	case SyncErrorESIUnavailable:
		return "ESI API is currently unavailable"
	case SyncErrorOperationModeMismatch:
		return "Operation mode does not match with current setting"
	case SyncErrorTimeout:
		return "Timed out while talking to ESI"
	case SyncErrorNoToken:
		return "No valid token found for the sync character"
	default:
		return "Unknown error"
	}
}

// Handler owns the sync session of the deployment. Only one row exists.
type Handler struct {
	ID                     uuid.UUID           `json:"id"`
	Organization           Organization        `json:"organization"`
	OperationMode          OperationMode       `json:"operation_mode"`
	CharacterID            *int64              `json:"character_id"`
	CharacterCorporationID *int64              `json:"character_corporation_id"`
	PricePerVolumeModifier decimal.NullDecimal `json:"price_per_volume_modifier"`
	LastSync               *time.Time          `json:"last_sync"`
	LastError              SyncError           `json:"last_error"`
	VersionHash            string              `json:"version_hash"`
	CreatedAt              time.Time           `json:"created_at"`
}

// IsSyncOK reports whether the last sync finished cleanly within the grace window.
func (h Handler) IsSyncOK(now time.Time, grace time.Duration) bool {
	if h.LastError != SyncErrorNone || h.LastSync == nil {
		return false
	}
	return now.Sub(*h.LastSync) <= grace
}

// AvailabilityText describes to whom contracts should be made available.
func (h Handler) AvailabilityText() string {
	text := fmt.Sprintf("Private (%s)", h.Organization.Name)
	if h.OperationMode != OperationModeCorpPublic {
		text += fmt.Sprintf(" [%s]", h.OperationMode.Label())
	}
	return text
}

// SyncStatus is the outcome of a sync run persisted on the handler.
type SyncStatus struct {
	LastSync    time.Time
	LastError   SyncError
	VersionHash string
}
