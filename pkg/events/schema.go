package events

// EventType defines the type of event
type EventType string

const (
	EventTypeImportCompleted EventType = "import.completed"
	EventTypeImportReverted  EventType = "import.reverted"
	EventTypeLeadsMerged     EventType = "leads.merged"
)

// ImportCompletedEvent is emitted after an import run finishes, including partial failures.
type ImportCompletedEvent struct {
	OperationID   string `json:"operation_id,omitempty"`
	OperationType string `json:"operation_type"`
	Source        string `json:"source"`
	NewCount      int    `json:"new_count"`
	MergedCount   int    `json:"merged_count"`
	SkippedCount  int    `json:"skipped_count"`
	InvalidCount  int    `json:"invalid_count"`
	FailedCount   int    `json:"failed_count"`
}

// ImportRevertedEvent is emitted when an import operation is undone.
type ImportRevertedEvent struct {
	OperationID  string `json:"operation_id"`
	RevertedBy   string `json:"reverted_by"`
	DeletedCount int    `json:"deleted_count"`
}

// LeadsMergedEvent is emitted when duplicate leads are folded into a master.
type LeadsMergedEvent struct {
	MasterID  string   `json:"master_id"`
	MergedIDs []string `json:"merged_ids"`
}
