// Package mergeevent persists the immutable audit records of person merges.
package mergeevent

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

// Repository handles merge event persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge event repository
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

var eventColumns = []string{
	"id", "tenant_id", "survivor_id", "merged_ids", "merged_snapshots",
	"field_resolutions", "transferred_records", "identity_link_id", "reason",
	"performed_by", "performed_at", "undone_at", "undone_by", "undo_reason",
}

// Insert writes a merge event. Runs inside a context-carried transaction
// when one is present.
func (r *Repository) Insert(ctx context.Context, event *models.MergeEvent) error {
	ctx, span := tracing.StartSpan(ctx, "mergeevent.Repository.Insert")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}
	defer tx.Rollback(ctx)

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.PerformedAt.IsZero() {
		event.PerformedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_events")
	sb.Cols("id", "tenant_id", "survivor_id", "merged_ids", "merged_snapshots", "field_resolutions", "transferred_records", "identity_link_id", "reason", "performed_by", "performed_at")
	sb.Values(event.ID, event.TenantID, event.SurvivorID, event.MergedIDs, event.MergedSnapshots, event.FieldResolutions, event.TransferredRecords, event.IdentityLinkID, event.Reason, event.PerformedBy, event.PerformedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert merge event")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert merge event")
	}

	return tx.Commit(ctx)
}

// Get retrieves a merge event by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.MergeEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeevent.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns...)
	sb.From("merge_events")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var event models.MergeEvent
	if err := r.db.GetContext(ctx, &event, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("merge event %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge event")
	}

	return &event, nil
}

// GetForUpdate retrieves a merge event with a row lock so undo cannot race
// itself. Must run inside a context-carried transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tenantID, id string) (*models.MergeEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeevent.Repository.GetForUpdate")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns...)
	sb.From("merge_events")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	query += " FOR UPDATE"

	var event models.MergeEvent
	if err := tx.GetContext(ctx, &event, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("merge event %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock merge event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock merge event")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &event, nil
}

// List returns merge history newest first. Undone merges are excluded unless
// includeUndone is set.
func (r *Repository) List(ctx context.Context, tenantID string, includeUndone bool, page, pageSize int) ([]models.MergeEvent, int, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeevent.Repository.List")
	defer span.End()

	build := func(sb *sqlbuilder.SelectBuilder) {
		sb.From("merge_events")
		sb.Where(sb.Equal("tenant_id", tenantID))
		if !includeUndone {
			sb.Where(sb.IsNull("undone_at"))
		}
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	build(countSb)

	countQuery, countArgs := countSb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count merge events")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count merge events")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns...)
	build(sb)
	sb.OrderBy("performed_at DESC")

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var events []models.MergeEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge events")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge events")
	}

	return events, total, nil
}

// MarkUndone stamps an event as reversed. Runs inside a context-carried
// transaction when one is present.
func (r *Repository) MarkUndone(ctx context.Context, tenantID, id, undoneBy string, reason *string) error {
	ctx, span := tracing.StartSpan(ctx, "mergeevent.Repository.MarkUndone")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get transaction")
	}
	defer tx.Rollback(ctx)

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("merge_events")
	ub.Set(
		ub.Assign("undone_at", time.Now().UTC()),
		ub.Assign("undone_by", undoneBy),
		ub.Assign("undo_reason", reason),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("tenant_id", tenantID),
		ub.IsNull("undone_at"),
	)

	query, args := ub.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark merge event undone")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark merge event undone")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("merge event %s has already been undone", id))
	}

	return tx.Commit(ctx)
}
