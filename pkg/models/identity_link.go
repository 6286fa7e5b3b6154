package models

import (
	"time"

	"github.com/gatherhq/laurel/internal/platform/database"
)

// LinkStatus is the review state of an identity link
type LinkStatus string

const (
	// LinkStatusSuggested means the pair was produced by a scan and awaits review
	LinkStatusSuggested LinkStatus = "suggested"
	// LinkStatusConfirmed means a reviewer agreed the pair is the same person
	LinkStatusConfirmed LinkStatus = "confirmed"
	// LinkStatusNotMatch means a reviewer rejected the pair
	LinkStatusNotMatch LinkStatus = "not_match"
	// LinkStatusMerged means the pair was resolved by a merge
	LinkStatusMerged LinkStatus = "merged"
)

// IsValid reports whether s is one of the known statuses.
func (s LinkStatus) IsValid() bool {
	switch s {
	case LinkStatusSuggested, LinkStatusConfirmed, LinkStatusNotMatch, LinkStatusMerged:
		return true
	}
	return false
}

// IdentityLink records a scored pair of person records suspected to be the
// same human. person_a_id < person_b_id always holds so a pair exists once.
type IdentityLink struct {
	ID              string                   `json:"id" db:"id"`
	TenantID        string                   `json:"tenant_id" db:"tenant_id"`
	PersonAID       string                   `json:"person_a_id" db:"person_a_id"`
	PersonBID       string                   `json:"person_b_id" db:"person_b_id"`
	ConfidenceScore float64                  `json:"confidence_score" db:"confidence_score"`
	MatchReasons    database.JSONB[[]string] `json:"match_reasons" db:"match_reasons"`
	Status          LinkStatus               `json:"status" db:"status"`
	DetectedAt      time.Time                `json:"detected_at" db:"detected_at"`
	DetectedBy      string                   `json:"detected_by" db:"detected_by"`
	ReviewedAt      *time.Time               `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewedBy      *string                  `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewNotes     *string                  `json:"review_notes,omitempty" db:"review_notes"`
	SuppressedUntil *time.Time               `json:"suppressed_until,omitempty" db:"suppressed_until"`
	CreatedAt       time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at" db:"updated_at"`
}

// Involves reports whether personID is one side of the link.
func (l *IdentityLink) Involves(personID string) bool {
	return l.PersonAID == personID || l.PersonBID == personID
}

// OtherSide returns the person on the opposite side of the link from personID.
func (l *IdentityLink) OtherSide(personID string) string {
	if l.PersonAID == personID {
		return l.PersonBID
	}
	return l.PersonAID
}

// IdentityLinkDetail is a link joined with the display fields of both people.
type IdentityLinkDetail struct {
	IdentityLink
	PersonAName string `json:"person_a_name" db:"person_a_name"`
	PersonBName string `json:"person_b_name" db:"person_b_name"`
}

// ReviewLinkRequest is the request to confirm or reject a suggested link
type ReviewLinkRequest struct {
	Status       LinkStatus `json:"status" validate:"required,oneof=confirmed not_match"`
	Notes        *string    `json:"notes,omitempty"`
	SuppressDays *int       `json:"suppress_days,omitempty" validate:"omitempty,min=1,max=3650"`
}

// ScanRequest triggers duplicate detection across a tenant
type ScanRequest struct {
	MinScore *float64 `json:"min_score,omitempty" validate:"omitempty,min=0,max=100"`
	Limit    *int     `json:"limit,omitempty" validate:"omitempty,min=1,max=5000"`
}

// ScanResponse summarizes a completed scan
type ScanResponse struct {
	PeopleScanned   int   `json:"people_scanned"`
	PairsCompared   int   `json:"pairs_compared"`
	CandidatesFound int   `json:"candidates_found"`
	NewLinks        int   `json:"new_links"`
	DurationMS      int64 `json:"duration_ms"`
}

// IdentityLinkListResponse is the response for listing identity links
type IdentityLinkListResponse struct {
	Items      []IdentityLinkDetail `json:"items"`
	TotalCount int                  `json:"total_count"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
}
