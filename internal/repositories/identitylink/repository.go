// Package identitylink persists scored duplicate pairs and their review
// lifecycle.
package identitylink

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

// Repository handles identity link persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new identity link repository
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

var linkColumns = []string{
	"id", "tenant_id", "person_a_id", "person_b_id", "confidence_score",
	"match_reasons", "status", "detected_at", "detected_by", "reviewed_at",
	"reviewed_by", "review_notes", "suppressed_until", "created_at", "updated_at",
}

// Get retrieves an identity link by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.IdentityLink, error) {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(linkColumns...)
	sb.From("identity_links")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var link models.IdentityLink
	if err := r.db.GetContext(ctx, &link, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("identity link %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get identity link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get identity link")
	}

	return &link, nil
}

// UpsertCandidate inserts a newly detected pair or refreshes the score of an
// existing one. The pair identity (tenant, person_a, person_b) is the
// conflict key, so concurrent scans never create duplicate links. Review
// fields of already-reviewed links are left alone.
func (r *Repository) UpsertCandidate(ctx context.Context, link *models.IdentityLink) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.UpsertCandidate")
	defer span.End()

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	link.CreatedAt = now
	link.UpdatedAt = now
	if link.Status == "" {
		link.Status = models.LinkStatusSuggested
	}
	if link.DetectedAt.IsZero() {
		link.DetectedAt = now
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("identity_links")
	sb.Cols("id", "tenant_id", "person_a_id", "person_b_id", "confidence_score", "match_reasons", "status", "detected_at", "detected_by", "created_at", "updated_at")
	sb.Values(link.ID, link.TenantID, link.PersonAID, link.PersonBID, link.ConfidenceScore, link.MatchReasons, link.Status, link.DetectedAt, link.DetectedBy, link.CreatedAt, link.UpdatedAt)

	query, args := sb.Build()
	// a not_match pair becomes proposable again once its suppression window
	// has elapsed; reviewed/merged pairs stay untouched
	query += ` ON CONFLICT (tenant_id, person_a_id, person_b_id) DO UPDATE
		SET confidence_score = EXCLUDED.confidence_score,
		    match_reasons = EXCLUDED.match_reasons,
		    status = 'suggested',
		    suppressed_until = NULL,
		    reviewed_at = NULL,
		    reviewed_by = NULL,
		    review_notes = NULL,
		    detected_at = EXCLUDED.detected_at,
		    updated_at = EXCLUDED.updated_at
		WHERE identity_links.status = 'suggested'
		   OR (identity_links.status = 'not_match'
		       AND (identity_links.suppressed_until IS NULL OR identity_links.suppressed_until <= now()))
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	if err := r.db.GetContext(ctx, &inserted, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			// reviewed link untouched by the conditional update
			return false, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to upsert identity link")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert identity link")
	}

	return inserted, nil
}

// ExcludedPairKeys returns the "<a>:<b>" keys a scan must not re-propose:
// every pair with a link that is not an expired not_match verdict.
func (r *Repository) ExcludedPairKeys(ctx context.Context, tenantID string) (map[string]bool, error) {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.ExcludedPairKeys")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("person_a_id", "person_b_id")
	sb.From("identity_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(
			sb.NotEqual("status", string(models.LinkStatusNotMatch)),
			sb.GreaterThan("suppressed_until", time.Now().UTC()),
		),
	)

	query, args := sb.Build()
	var rows []struct {
		PersonAID string `db:"person_a_id"`
		PersonBID string `db:"person_b_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load existing identity link pairs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load existing identity links")
	}

	pairs := make(map[string]bool, len(rows))
	for _, row := range rows {
		pairs[row.PersonAID+":"+row.PersonBID] = true
	}
	return pairs, nil
}

// ListFilter narrows List results
type ListFilter struct {
	Status   models.LinkStatus
	MinScore float64
	Page     int
	PageSize int
}

// List returns links sorted by score then detection time, newest first,
// joined with both people's display fields. Links inside an active
// suppression window are excluded.
func (r *Repository) List(ctx context.Context, tenantID string, filter ListFilter) ([]models.IdentityLinkDetail, int, error) {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.List")
	defer span.End()

	build := func(sb *sqlbuilder.SelectBuilder) {
		sb.From("identity_links l")
		sb.Where(sb.Equal("l.tenant_id", tenantID))
		sb.Where(sb.Or(
			sb.IsNull("l.suppressed_until"),
			sb.LessEqualThan("l.suppressed_until", time.Now().UTC()),
		))
		if filter.Status != "" {
			sb.Where(sb.Equal("l.status", string(filter.Status)))
		}
		if filter.MinScore > 0 {
			sb.Where(sb.GreaterEqualThan("l.confidence_score", filter.MinScore))
		}
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	build(countSb)

	countQuery, countArgs := countSb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count identity links")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count identity links")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cols := make([]string, 0, len(linkColumns)+2)
	for _, col := range linkColumns {
		cols = append(cols, "l."+col)
	}
	cols = append(cols,
		"COALESCE(pa.display_name, TRIM(CONCAT(pa.first_name, ' ', pa.last_name))) AS person_a_name",
		"COALESCE(pb.display_name, TRIM(CONCAT(pb.first_name, ' ', pb.last_name))) AS person_b_name",
	)
	sb.Select(cols...)
	build(sb)
	sb.JoinWithOption(sqlbuilder.InnerJoin, "people pa", "pa.id = l.person_a_id")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "people pb", "pb.id = l.person_b_id")
	sb.OrderBy("l.confidence_score DESC", "l.detected_at DESC")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var links []models.IdentityLinkDetail
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list identity links")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identity links")
	}

	return links, total, nil
}

// ListActiveForPerson returns every suggested or confirmed link that names
// personID on either side.
func (r *Repository) ListActiveForPerson(ctx context.Context, tenantID, personID string) ([]models.IdentityLink, error) {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.ListActiveForPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(linkColumns...)
	sb.From("identity_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(sb.Equal("person_a_id", personID), sb.Equal("person_b_id", personID)),
		sb.In("status", string(models.LinkStatusSuggested), string(models.LinkStatusConfirmed)),
	)

	query, args := sb.Build()
	var links []models.IdentityLink
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list identity links for person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identity links")
	}

	return links, nil
}

// Review transitions a suggested link to confirmed or not_match. A not_match
// verdict sets the suppression window so re-scans skip the pair until it
// elapses.
func (r *Repository) Review(ctx context.Context, tenantID, id string, status models.LinkStatus, reviewedBy string, notes *string, suppressedUntil *time.Time) (*models.IdentityLink, error) {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.Review")
	defer span.End()

	link, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if link.Status != models.LinkStatusSuggested {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("identity link %s has already been reviewed (status %s)", id, link.Status))
	}

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("identity_links")
	assignments := []string{
		ub.Assign("status", string(status)),
		ub.Assign("reviewed_at", now),
		ub.Assign("reviewed_by", reviewedBy),
		ub.Assign("updated_at", now),
	}
	if notes != nil {
		assignments = append(assignments, ub.Assign("review_notes", *notes))
	}
	if suppressedUntil != nil {
		assignments = append(assignments, ub.Assign("suppressed_until", *suppressedUntil))
	}
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to review identity link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to review identity link")
	}

	return r.Get(ctx, tenantID, id)
}

// Delete removes a link, allowed only while it is still suggested so review
// history is never destroyed.
func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.Delete")
	defer span.End()

	link, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if link.Status != models.LinkStatusSuggested {
		return httperror.NewHTTPError(http.StatusConflict, "only suggested identity links can be deleted")
	}

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("identity_links")
	db.Where(
		db.Equal("id", id),
		db.Equal("tenant_id", tenantID),
		db.Equal("status", string(models.LinkStatusSuggested)),
	)

	query, args := db.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete identity link")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete identity link")
	}

	return nil
}

// SetStatus updates a link's status with an optional appended note. Runs
// inside a context-carried transaction when one is present.
func (r *Repository) SetStatus(ctx context.Context, tenantID, id string, status models.LinkStatus, note string) error {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.SetStatus")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}
	defer tx.Rollback(ctx)

	query := `UPDATE identity_links
		SET status = $1,
		    review_notes = CASE WHEN $2 = '' THEN review_notes
		                        ELSE TRIM(CONCAT(COALESCE(review_notes, ''), ' ', $2)) END,
		    updated_at = $3
		WHERE id = $4 AND tenant_id = $5`
	if _, err := tx.ExecContext(ctx, query, string(status), note, time.Now().UTC(), id, tenantID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update identity link status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update identity link status")
	}

	return tx.Commit(ctx)
}

// CloseActiveForPerson marks every suggested or confirmed link naming
// personID as merged, excluding excludeLinkID, with a system note. Returns
// the number of links closed.
func (r *Repository) CloseActiveForPerson(ctx context.Context, tenantID, personID, excludeLinkID, note string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "identitylink.Repository.CloseActiveForPerson")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}
	defer tx.Rollback(ctx)

	query := `UPDATE identity_links
		SET status = $1,
		    review_notes = TRIM(CONCAT(COALESCE(review_notes, ''), ' ', $2)),
		    updated_at = $3
		WHERE tenant_id = $4
		  AND (person_a_id = $5 OR person_b_id = $5)
		  AND id <> $6
		  AND status IN ('suggested', 'confirmed')`
	result, err := tx.ExecContext(ctx, query, string(models.LinkStatusMerged), note, time.Now().UTC(), tenantID, personID, excludeLinkID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to close identity links for merged person")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to close identity links")
	}

	closed, _ := result.RowsAffected()
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return int(closed), nil
}
