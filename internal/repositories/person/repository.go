// Package person persists the identity fields of people and their aliases.
package person

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/gatherhq/laurel/internal/platform/database"
	"github.com/gatherhq/laurel/internal/platform/tracing"
	"github.com/gatherhq/laurel/pkg/models"
)

// Repository handles person persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transaction management
func (r *Repository) DB() database.DB {
	return r.db
}

var personColumns = []string{
	"id", "tenant_id", "first_name", "last_name", "goes_by", "display_name",
	"canonical_id", "merged_at", "is_active", "created_at", "updated_at",
}

// Get retrieves a person by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(personColumns...)
	sb.From("people")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("person %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person")
	}

	return &person, nil
}

// GetForUpdate retrieves a person with a row lock. Must run inside a
// context-carried transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tenantID, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.GetForUpdate")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(personColumns...)
	sb.From("people")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	query += " FOR UPDATE"

	var person models.Person
	if err := tx.GetContext(ctx, &person, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("person %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock person row")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock person row")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit transaction")
	}

	return &person, nil
}

// ListForMatching loads every active, non-merged person in the tenant with
// their contact values and family memberships flattened for the scan engine.
func (r *Repository) ListForMatching(ctx context.Context, tenantID string) ([]*models.MatchProfile, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ListForMatching")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "COALESCE(first_name, '') AS first_name", "COALESCE(last_name, '') AS last_name", "COALESCE(goes_by, '') AS goes_by")
	sb.From("people")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("is_active", true),
		sb.IsNull("merged_at"),
	)

	query, args := sb.Build()
	var rows []struct {
		ID        string `db:"id"`
		FirstName string `db:"first_name"`
		LastName  string `db:"last_name"`
		GoesBy    string `db:"goes_by"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list people for matching")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list people")
	}

	profiles := make([]*models.MatchProfile, 0, len(rows))
	byID := make(map[string]*models.MatchProfile, len(rows))
	for _, row := range rows {
		profile := &models.MatchProfile{
			PersonID:  row.ID,
			FirstName: row.FirstName,
			LastName:  row.LastName,
			GoesBy:    row.GoesBy,
		}
		profiles = append(profiles, profile)
		byID[row.ID] = profile
	}

	if err := r.attachContacts(ctx, tenantID, byID); err != nil {
		return nil, err
	}
	if err := r.attachFamilies(ctx, tenantID, byID); err != nil {
		return nil, err
	}

	return profiles, nil
}

func (r *Repository) attachContacts(ctx context.Context, tenantID string, byID map[string]*models.MatchProfile) error {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("cm.person_id", "cm.type", "cm.value")
	sb.From("contact_methods cm")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "people p", "p.id = cm.person_id")
	sb.Where(
		sb.Equal("cm.tenant_id", tenantID),
		sb.Equal("p.is_active", true),
		sb.IsNull("p.merged_at"),
	)

	query, args := sb.Build()
	var rows []struct {
		PersonID string `db:"person_id"`
		Type     string `db:"type"`
		Value    string `db:"value"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load contact methods for matching")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to load contact methods")
	}

	for _, row := range rows {
		profile, ok := byID[row.PersonID]
		if !ok {
			continue
		}
		switch row.Type {
		case "email":
			profile.Emails = append(profile.Emails, row.Value)
		case "phone":
			profile.Phones = append(profile.Phones, row.Value)
		}
	}
	return nil
}

func (r *Repository) attachFamilies(ctx context.Context, tenantID string, byID map[string]*models.MatchProfile) error {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("person_id", "family_id")
	sb.From("family_members")
	sb.Where(sb.Equal("tenant_id", tenantID))

	query, args := sb.Build()
	var rows []struct {
		PersonID string `db:"person_id"`
		FamilyID string `db:"family_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load family members for matching")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to load family members")
	}

	for _, row := range rows {
		if profile, ok := byID[row.PersonID]; ok {
			profile.FamilyIDs = append(profile.FamilyIDs, row.FamilyID)
		}
	}
	return nil
}

// UpdateIdentityFields writes the given field values onto a person. Fields
// is a map of column name to new value built by the merge orchestrator from
// its resolution step, never from caller-controlled strings.
func (r *Repository) UpdateIdentityFields(ctx context.Context, tenantID, id string, fields map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.UpdateIdentityFields")
	defer span.End()

	if len(fields) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}
	defer tx.Rollback(ctx)

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("people")
	assignments := []string{ub.Assign("updated_at", time.Now().UTC())}
	for field, value := range fields {
		assignments = append(assignments, ub.Assign(field, value))
	}
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
	)

	query, args := ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": id}).Error("Failed to update person fields")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update person")
	}

	return tx.Commit(ctx)
}

// MarkMerged retires a person into the survivor. Name fields are left
// untouched so the live row still matches the merge snapshot.
func (r *Repository) MarkMerged(ctx context.Context, tenantID, id, survivorID string, mergedAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.MarkMerged")
	defer span.End()

	return r.UpdateIdentityFields(ctx, tenantID, id, map[string]any{
		"canonical_id": survivorID,
		"merged_at":    mergedAt,
		"is_active":    false,
	})
}

// InsertAlias records a former name on a person so search still finds it.
func (r *Repository) InsertAlias(ctx context.Context, alias *models.PersonAlias) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.InsertAlias")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}
	defer tx.Rollback(ctx)

	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	alias.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("person_aliases")
	sb.Cols("id", "tenant_id", "person_id", "first_name", "last_name", "source", "created_at")
	sb.Values(alias.ID, alias.TenantID, alias.PersonID, alias.FirstName, alias.LastName, alias.Source, alias.CreatedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert person alias")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert person alias")
	}

	return tx.Commit(ctx)
}

// DeleteMergeAliases removes the aliases a specific merge stamped onto the
// survivor, identified by the merge-tagged source value.
func (r *Repository) DeleteMergeAliases(ctx context.Context, tenantID, personID, source string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.DeleteMergeAliases")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}
	defer tx.Rollback(ctx)

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("person_aliases")
	db.Where(
		db.Equal("tenant_id", tenantID),
		db.Equal("person_id", personID),
		db.Equal("source", source),
	)

	query, args := db.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete merge aliases")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete merge aliases")
	}

	return tx.Commit(ctx)
}
