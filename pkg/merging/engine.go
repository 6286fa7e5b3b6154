// Package merging performs person merges and their reversal. A merge folds a
// duplicate record into a surviving one inside a single transaction: identity
// fields are resolved, related records move to the survivor, the duplicate is
// deactivated, and an audit event captures enough state to undo the field
// changes later.
package merging

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/gatherhq/laurel/internal/platform/database"
	"github.com/gatherhq/laurel/internal/repositories/identitylink"
	"github.com/gatherhq/laurel/internal/repositories/mergeevent"
	"github.com/gatherhq/laurel/internal/repositories/person"
	"github.com/gatherhq/laurel/pkg/events"
	"github.com/gatherhq/laurel/internal/platform/tracing"
	"github.com/gatherhq/laurel/pkg/metrics"
	"github.com/gatherhq/laurel/pkg/models"
)

// resolvableFields is the allowlist of identity columns a caller may resolve.
// Field names from the request are only ever matched against this set, never
// interpolated into SQL.
var resolvableFields = map[string]bool{
	"first_name":   true,
	"last_name":    true,
	"goes_by":      true,
	"display_name": true,
}

// Engine orchestrates merges and undos.
type Engine struct {
	logger     ectologger.Logger
	personRepo *person.Repository
	linkRepo   *identitylink.Repository
	eventRepo  *mergeevent.Repository
	emitter    *events.Emitter

	// beforeEventInsert runs inside the merge transaction, after related
	// records transfer but before the audit event is written. Tests use it
	// to prove a late failure rolls the whole merge back.
	beforeEventInsert func(ctx context.Context) error
}

// NewEngine creates a merge engine. The emitter may be nil when event
// emission is disabled.
func NewEngine(logger ectologger.Logger, personRepo *person.Repository, linkRepo *identitylink.Repository, eventRepo *mergeevent.Repository, emitter *events.Emitter) *Engine {
	return &Engine{
		logger:     logger,
		personRepo: personRepo,
		linkRepo:   linkRepo,
		eventRepo:  eventRepo,
		emitter:    emitter,
	}
}

// Merge folds mergedID into survivorID for a tenant. When linkID is non-nil
// the merge is attributed to that identity link, the link is closed, and any
// other open links naming the merged person are auto-closed.
func (e *Engine) Merge(ctx context.Context, tenantID string, linkID *string, req *models.MergeRequest, performedBy string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	if req.SurvivorID == req.MergedID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "survivor and merged person must differ")
	}
	for field := range req.FieldResolutions {
		if !resolvableFields[field] {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "unknown field in field_resolutions: "+field)
		}
	}

	ctxTx, tx, err := e.personRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		metrics.MergesTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctxTx)

	result, err := e.mergeInTx(ctxTx, tx, tenantID, linkID, req, performedBy)
	if err != nil {
		metrics.MergesTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to commit merge transaction")
		metrics.MergesTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit merge")
	}

	metrics.MergesTotal.WithLabelValues(tenantID, "success").Inc()

	if e.emitter != nil {
		if err := e.emitter.EmitPersonMerged(ctx, result); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Merge committed but event emission failed")
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"survivor_id": result.SurvivorID,
		"merged_id":   result.MergedID,
		"event_id":    result.MergeEvent.ID,
	}).Info("Merged person records")

	return result, nil
}

func (e *Engine) mergeInTx(ctx context.Context, tx database.Tx, tenantID string, linkID *string, req *models.MergeRequest, performedBy string) (*models.MergeResult, error) {
	// Lock in a fixed order so two concurrent merges over the same pair
	// cannot deadlock.
	firstID, secondID := req.SurvivorID, req.MergedID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}

	first, err := e.personRepo.GetForUpdate(ctx, tenantID, firstID)
	if err != nil {
		return nil, err
	}
	second, err := e.personRepo.GetForUpdate(ctx, tenantID, secondID)
	if err != nil {
		return nil, err
	}

	survivor, merged := first, second
	if survivor.ID != req.SurvivorID {
		survivor, merged = second, first
	}

	if survivor.IsMerged() {
		return nil, httperror.NewHTTPError(http.StatusConflict, "survivor has already been merged into another record")
	}
	if merged.IsMerged() {
		return nil, httperror.NewHTTPError(http.StatusConflict, "person has already been merged")
	}

	var link *models.IdentityLink
	if linkID != nil {
		link, err = e.linkRepo.Get(ctx, tenantID, *linkID)
		if err != nil {
			return nil, err
		}
		if !link.Involves(survivor.ID) || !link.Involves(merged.ID) {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "survivor is not part of this duplicate pair")
		}
		if link.Status != models.LinkStatusSuggested && link.Status != models.LinkStatusConfirmed {
			return nil, httperror.NewHTTPError(http.StatusConflict, "link has already been resolved")
		}
	}

	snapshot := snapshotPerson(merged)

	updates, resolutions := resolveIdentityFields(survivor, merged, req.FieldResolutions)
	if len(updates) > 0 {
		if err := e.personRepo.UpdateIdentityFields(ctx, tenantID, survivor.ID, updates); err != nil {
			return nil, err
		}
	}

	transferred, err := transferRelatedRecords(ctx, tx, tenantID, survivor.ID, merged.ID)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to transfer related records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to transfer related records")
	}

	now := time.Now().UTC()
	if err := e.personRepo.MarkMerged(ctx, tenantID, merged.ID, survivor.ID, now); err != nil {
		return nil, err
	}

	// Keep the duplicate's name searchable on the survivor. The source tag
	// ties the alias to this merge so an undo can remove exactly these rows.
	if merged.FirstName != nil || merged.LastName != nil {
		alias := &models.PersonAlias{
			TenantID:  tenantID,
			PersonID:  survivor.ID,
			FirstName: merged.FirstName,
			LastName:  merged.LastName,
			Source:    "merge:" + merged.ID,
		}
		if err := e.personRepo.InsertAlias(ctx, alias); err != nil {
			return nil, err
		}
	}

	if e.beforeEventInsert != nil {
		if err := e.beforeEventInsert(ctx); err != nil {
			return nil, err
		}
	}

	event := &models.MergeEvent{
		TenantID:           tenantID,
		SurvivorID:         survivor.ID,
		MergedIDs:          database.NewJSONB([]string{merged.ID}),
		MergedSnapshots:    database.NewJSONB([]models.PersonSnapshot{snapshot}),
		FieldResolutions:   database.NewJSONB(resolutions),
		TransferredRecords: database.NewJSONB(transferred),
		IdentityLinkID:     linkID,
		Reason:             req.Reason,
		PerformedBy:        performedBy,
		PerformedAt:        now,
	}
	if err := e.eventRepo.Insert(ctx, event); err != nil {
		return nil, err
	}

	closed := 0
	if link != nil {
		if err := e.linkRepo.SetStatus(ctx, tenantID, link.ID, models.LinkStatusMerged, ""); err != nil {
			return nil, err
		}
		closed, err = e.linkRepo.CloseActiveForPerson(ctx, tenantID, merged.ID, link.ID, "Auto-closed: person was merged")
		if err != nil {
			return nil, err
		}
	} else {
		closed, err = e.linkRepo.CloseActiveForPerson(ctx, tenantID, merged.ID, uuid.Nil.String(), "Auto-closed: person was merged")
		if err != nil {
			return nil, err
		}
	}

	return &models.MergeResult{
		MergeEvent:       event,
		SurvivorID:       survivor.ID,
		MergedID:         merged.ID,
		FieldResolutions: resolutions,
		Transferred:      transferred,
		ClosedLinks:      closed,
	}, nil
}

func snapshotPerson(p *models.Person) models.PersonSnapshot {
	return models.PersonSnapshot{
		PersonID:    p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		GoesBy:      p.GoesBy,
		DisplayName: p.DisplayName,
		CanonicalID: p.CanonicalID,
		MergedAt:    p.MergedAt,
		IsActive:    p.IsActive,
	}
}

// resolveIdentityFields decides which identity values the survivor keeps.
// Explicit resolutions win; otherwise the survivor keeps its own value,
// except goes_by which is adopted from the merged record when the survivor
// has none. Only fields where the two records actually differ produce a
// resolution entry.
func resolveIdentityFields(survivor, merged *models.Person, explicit map[string]string) (map[string]any, []models.FieldResolution) {
	type fieldPair struct {
		name          string
		survivorValue *string
		mergedValue   *string
	}
	pairs := []fieldPair{
		{"first_name", survivor.FirstName, merged.FirstName},
		{"last_name", survivor.LastName, merged.LastName},
		{"goes_by", survivor.GoesBy, merged.GoesBy},
		{"display_name", survivor.DisplayName, merged.DisplayName},
	}

	updates := map[string]any{}
	resolutions := make([]models.FieldResolution, 0, len(pairs))

	for _, p := range pairs {
		sv := derefString(p.survivorValue)
		mv := derefString(p.mergedValue)
		if sv == mv {
			continue
		}

		resolution := "kept_survivor"
		switch {
		case explicit[p.name] == "merged":
			resolution = "adopted_merged"
		case explicit[p.name] == "survivor":
			// explicit keep, nothing to change
		case p.name == "goes_by" && sv == "" && mv != "":
			resolution = "adopted_merged"
		}

		if resolution == "adopted_merged" {
			updates[p.name] = p.mergedValue
		}
		resolutions = append(resolutions, models.FieldResolution{
			Field:         p.name,
			SurvivorValue: sv,
			MergedValue:   mv,
			Resolution:    resolution,
		})
	}

	return updates, resolutions
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
