package models

import (
	"time"

	"github.com/gatherhq/laurel/internal/platform/database"
)

// PersonSnapshot captures the identity fields of a person at merge time so an
// undo can restore them.
type PersonSnapshot struct {
	PersonID    string     `json:"person_id"`
	FirstName   *string    `json:"first_name,omitempty"`
	LastName    *string    `json:"last_name,omitempty"`
	GoesBy      *string    `json:"goes_by,omitempty"`
	DisplayName *string    `json:"display_name,omitempty"`
	CanonicalID *string    `json:"canonical_id,omitempty"`
	MergedAt    *time.Time `json:"merged_at,omitempty"`
	IsActive    bool       `json:"is_active"`
}

// FieldResolution records which value won for a field where the two records
// disagreed.
type FieldResolution struct {
	Field         string `json:"field"`
	SurvivorValue string `json:"survivor_value"`
	MergedValue   string `json:"merged_value"`
	Resolution    string `json:"resolution"` // kept_survivor, adopted_merged
}

// TransferredRecords counts related rows moved or dropped per table.
type TransferredRecords struct {
	Table       string `json:"table"`
	Transferred int    `json:"transferred"`
	Deleted     int    `json:"deleted"`
}

// MergeEvent is the audit record of a completed merge.
type MergeEvent struct {
	ID                 string                               `json:"id" db:"id"`
	TenantID           string                               `json:"tenant_id" db:"tenant_id"`
	SurvivorID         string                               `json:"survivor_id" db:"survivor_id"`
	MergedIDs          database.JSONB[[]string]             `json:"merged_ids" db:"merged_ids"`
	MergedSnapshots    database.JSONB[[]PersonSnapshot]     `json:"merged_snapshots" db:"merged_snapshots"`
	FieldResolutions   database.JSONB[[]FieldResolution]    `json:"field_resolutions" db:"field_resolutions"`
	TransferredRecords database.JSONB[[]TransferredRecords] `json:"transferred_records" db:"transferred_records"`
	IdentityLinkID     *string                              `json:"identity_link_id,omitempty" db:"identity_link_id"`
	Reason             *string                              `json:"reason,omitempty" db:"reason"`
	PerformedBy        string                               `json:"performed_by" db:"performed_by"`
	PerformedAt        time.Time                            `json:"performed_at" db:"performed_at"`
	UndoneAt           *time.Time                           `json:"undone_at,omitempty" db:"undone_at"`
	UndoneBy           *string                              `json:"undone_by,omitempty" db:"undone_by"`
	UndoReason         *string                              `json:"undo_reason,omitempty" db:"undo_reason"`
}

// IsUndone reports whether this merge has already been reversed.
func (e *MergeEvent) IsUndone() bool {
	return e.UndoneAt != nil
}

// MergeRequest merges a specific pair of people, survivor first.
// FieldResolutions maps an identity field name to "survivor" or "merged",
// choosing whose value the surviving record keeps.
type MergeRequest struct {
	SurvivorID       string            `json:"survivor_id" validate:"required,uuid"`
	MergedID         string            `json:"merged_id" validate:"required,uuid"`
	FieldResolutions map[string]string `json:"field_resolutions,omitempty" validate:"omitempty,dive,oneof=survivor merged"`
	Reason           *string           `json:"reason,omitempty"`
}

// MergeLinkRequest merges the pair behind an identity link.
type MergeLinkRequest struct {
	SurvivorID       string            `json:"survivor_id" validate:"required,uuid"`
	FieldResolutions map[string]string `json:"field_resolutions,omitempty" validate:"omitempty,dive,oneof=survivor merged"`
	Reason           *string           `json:"reason,omitempty"`
}

// MergeResult summarizes a completed merge.
type MergeResult struct {
	MergeEvent       *MergeEvent          `json:"merge_event"`
	SurvivorID       string               `json:"survivor_id"`
	MergedID         string               `json:"merged_id"`
	FieldResolutions []FieldResolution    `json:"field_resolutions"`
	Transferred      []TransferredRecords `json:"transferred"`
	ClosedLinks      int                  `json:"closed_links"`
}

// UndoRequest reverses a merge.
type UndoRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// UndoResult summarizes an undone merge. Warning always carries the notice
// that relationship transfers performed by the merge are not reversed.
type UndoResult struct {
	MergeEvent  *MergeEvent `json:"merge_event"`
	RestoredIDs []string    `json:"restored_ids"`
	Warning     string      `json:"warning"`
}

// MergeEventListResponse is the response for listing merge history
type MergeEventListResponse struct {
	Items      []MergeEvent `json:"items"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}
