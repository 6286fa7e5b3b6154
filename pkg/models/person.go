package models

import (
	"time"
)

// Person is the identity record duplicate detection and merging operate on.
// Only the identity fields touched by merge/undo are mapped here; the people
// table carries more columns owned by other services.
type Person struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	FirstName   *string    `json:"first_name,omitempty" db:"first_name"`
	LastName    *string    `json:"last_name,omitempty" db:"last_name"`
	GoesBy      *string    `json:"goes_by,omitempty" db:"goes_by"`
	DisplayName *string    `json:"display_name,omitempty" db:"display_name"`
	CanonicalID *string    `json:"canonical_id,omitempty" db:"canonical_id"`
	MergedAt    *time.Time `json:"merged_at,omitempty" db:"merged_at"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName returns "First Last" with missing parts dropped.
func (p *Person) FullName() string {
	first := ""
	if p.FirstName != nil {
		first = *p.FirstName
	}
	last := ""
	if p.LastName != nil {
		last = *p.LastName
	}
	if first == "" {
		return last
	}
	if last == "" {
		return first
	}
	return first + " " + last
}

// IsMerged reports whether this person has been folded into another record.
func (p *Person) IsMerged() bool {
	return p.MergedAt != nil
}

// ContactMethod is a person's email or phone entry.
type ContactMethod struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	PersonID  string    `json:"person_id" db:"person_id"`
	Type      string    `json:"type" db:"type"` // email, phone
	Value     string    `json:"value" db:"value"`
	IsPrimary bool      `json:"is_primary" db:"is_primary"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FamilyMember links a person to a family unit.
type FamilyMember struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	FamilyID string `json:"family_id" db:"family_id"`
	PersonID string `json:"person_id" db:"person_id"`
	Role     string `json:"role" db:"role"`
}

// PersonAlias preserves a searchable name for a merged-away record.
type PersonAlias struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	PersonID  string    `json:"person_id" db:"person_id"`
	FirstName *string   `json:"first_name,omitempty" db:"first_name"`
	LastName  *string   `json:"last_name,omitempty" db:"last_name"`
	Source    string    `json:"source" db:"source"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MatchProfile is the denormalized view of a person the scan engine works
// from: identity fields plus flattened contact values and family membership.
type MatchProfile struct {
	PersonID  string
	FirstName string
	LastName  string
	GoesBy    string
	Emails    []string
	Phones    []string
	FamilyIDs []string
}
