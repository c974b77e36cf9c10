package model

type OrganizationCategory string

const (
	OrganizationAlliance    OrganizationCategory = "alliance"
	OrganizationCorporation OrganizationCategory = "corporation"
)

type Organization struct {
	ID       int64                `json:"id"`
	Name     string               `json:"name"`
	Category OrganizationCategory `json:"category"`
}
