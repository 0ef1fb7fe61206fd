package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

type OperationType string

const (
	OperationTypeCSV        OperationType = "csv"
	OperationTypeMapsImport OperationType = "maps-import"
	OperationTypeAPI        OperationType = "api"
)

// ImportMetadata is the free-form detail stored with a ledger entry.
type ImportMetadata struct {
	Filename         string         `json:"filename,omitempty"`
	OverrideLocation bool           `json:"override_location"`
	Defaults         ImportDefaults `json:"defaults"`
	NewCount         int            `json:"new_count"`
	MergedCount      int            `json:"merged_count"`
	SkippedCount     int            `json:"skipped_count"`
	InvalidCount     int            `json:"invalid_count"`
}

// ImportOperation is one ledger entry. Once RevertedAt is set the entry is terminal.
type ImportOperation struct {
	ID            string                          `json:"id" db:"id"`
	UserID        string                          `json:"user_id" db:"user_id"`
	OperationType OperationType                   `json:"operation_type" db:"operation_type"`
	Source        string                          `json:"source" db:"source"`
	LeadCount     int                             `json:"lead_count" db:"lead_count"`
	Metadata      database.JSONB[ImportMetadata] `json:"metadata" db:"metadata"`
	CreatedAt     time.Time                       `json:"created_at" db:"created_at"`
	RevertedAt    *time.Time                      `json:"reverted_at,omitempty" db:"reverted_at"`
	RevertedBy    *string                         `json:"reverted_by,omitempty" db:"reverted_by"`
}

func (o *ImportOperation) IsReverted() bool {
	return o.RevertedAt != nil
}
