package merging

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/gatherhq/laurel/internal/platform/tracing"
	"github.com/gatherhq/laurel/pkg/metrics"
	"github.com/gatherhq/laurel/pkg/models"
)

// TransfersNotReversedWarning is attached to every undo response. Related
// records moved by the merge stay with the survivor; only identity fields
// and record status are restored.
const TransfersNotReversedWarning = "Related records transferred during the merge were not moved back. Assignments, family memberships, and contact methods remain with the surviving person and must be reassigned manually if needed."

// Undo reverses a merge event: each merged person is reactivated with its
// snapshotted identity fields, the aliases the merge stamped onto the
// survivor are removed, and the originating link is reopened as confirmed.
// Relationship transfers are not reversed.
func (e *Engine) Undo(ctx context.Context, tenantID, eventID string, req *models.UndoRequest, undoneBy string) (*models.UndoResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Undo")
	defer span.End()

	ctxTx, tx, err := e.personRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		metrics.UndosTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer tx.Rollback(ctxTx)

	result, err := e.undoInTx(ctxTx, tenantID, eventID, req, undoneBy)
	if err != nil {
		metrics.UndosTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to commit undo transaction")
		metrics.UndosTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit undo")
	}

	metrics.UndosTotal.WithLabelValues(tenantID, "success").Inc()

	if e.emitter != nil {
		if err := e.emitter.EmitMergeUndone(ctx, result); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Undo committed but event emission failed")
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"event_id":  eventID,
		"restored":  len(result.RestoredIDs),
	}).Info("Undid person merge")

	return result, nil
}

func (e *Engine) undoInTx(ctx context.Context, tenantID, eventID string, req *models.UndoRequest, undoneBy string) (*models.UndoResult, error) {
	event, err := e.eventRepo.GetForUpdate(ctx, tenantID, eventID)
	if err != nil {
		return nil, err
	}
	if event.IsUndone() {
		return nil, httperror.NewHTTPError(http.StatusConflict, "merge has already been undone")
	}

	snapshots := event.MergedSnapshots.GetValue()

	restored := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		fields := map[string]any{
			"canonical_id": nil,
			"merged_at":    nil,
			"is_active":    true,
			"first_name":   snap.FirstName,
			"last_name":    snap.LastName,
			"goes_by":      snap.GoesBy,
			"display_name": snap.DisplayName,
		}
		if err := e.personRepo.UpdateIdentityFields(ctx, tenantID, snap.PersonID, fields); err != nil {
			return nil, err
		}
		if err := e.personRepo.DeleteMergeAliases(ctx, tenantID, event.SurvivorID, "merge:"+snap.PersonID); err != nil {
			return nil, err
		}
		restored = append(restored, snap.PersonID)
	}

	if event.IdentityLinkID != nil {
		if err := e.linkRepo.SetStatus(ctx, tenantID, *event.IdentityLinkID, models.LinkStatusConfirmed, "Merge was undone"); err != nil {
			return nil, err
		}
	}

	if err := e.eventRepo.MarkUndone(ctx, tenantID, eventID, undoneBy, req.Reason); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	event.UndoneAt = &now
	event.UndoneBy = &undoneBy
	event.UndoReason = req.Reason

	return &models.UndoResult{
		MergeEvent:  event,
		RestoredIDs: restored,
		Warning:     TransfersNotReversedWarning,
	}, nil
}
