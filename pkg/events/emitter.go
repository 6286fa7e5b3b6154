// Package events emits person lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/gatherhq/laurel/internal/platform/tracing"
	"github.com/gatherhq/laurel/pkg/kafka"
	"github.com/gatherhq/laurel/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	EventTypePersonMerged = "person.merged"
	EventTypeMergeUndone  = "person.merge_undone"
)

// Emitter publishes merge lifecycle events.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

type personMergedPayload struct {
	SurvivorID   string                      `json:"survivor_id"`
	MergedID     string                      `json:"merged_id"`
	MergeEventID string                      `json:"merge_event_id"`
	Resolutions  []models.FieldResolution    `json:"field_resolutions,omitempty"`
	Transferred  []models.TransferredRecords `json:"transferred,omitempty"`
}

// EmitPersonMerged emits a person.merged event after a merge commits.
func (e *Emitter) EmitPersonMerged(ctx context.Context, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitPersonMerged")
	defer span.End()

	payload, err := json.Marshal(personMergedPayload{
		SurvivorID:   result.SurvivorID,
		MergedID:     result.MergedID,
		MergeEventID: result.MergeEvent.ID,
		Resolutions:  result.FieldResolutions,
		Transferred:  result.Transferred,
	})
	if err != nil {
		return err
	}

	event := &kafka.PersonEvent{
		EventType:     EventTypePersonMerged,
		SchemaVersion: SchemaVersion,
		TenantID:      result.MergeEvent.TenantID,
		PersonID:      result.SurvivorID,
		Data:          payload,
	}

	if err := e.producer.PublishPersonEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit person.merged event")
		return err
	}

	return nil
}

type mergeUndonePayload struct {
	SurvivorID   string   `json:"survivor_id"`
	RestoredIDs  []string `json:"restored_ids"`
	MergeEventID string   `json:"merge_event_id"`
}

// EmitMergeUndone emits a person.merge_undone event after an undo commits.
func (e *Emitter) EmitMergeUndone(ctx context.Context, result *models.UndoResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMergeUndone")
	defer span.End()

	payload, err := json.Marshal(mergeUndonePayload{
		SurvivorID:   result.MergeEvent.SurvivorID,
		RestoredIDs:  result.RestoredIDs,
		MergeEventID: result.MergeEvent.ID,
	})
	if err != nil {
		return err
	}

	event := &kafka.PersonEvent{
		EventType:     EventTypeMergeUndone,
		SchemaVersion: SchemaVersion,
		TenantID:      result.MergeEvent.TenantID,
		PersonID:      result.MergeEvent.SurvivorID,
		Data:          payload,
	}

	if err := e.producer.PublishPersonEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit person.merge_undone event")
		return err
	}

	return nil
}
