package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/gatherhq/laurel/internal/platform/tracing"
	"github.com/gatherhq/laurel/internal/repositories/mergeevent"
	"github.com/gatherhq/laurel/pkg/merging"
	"github.com/gatherhq/laurel/pkg/models"
	"github.com/gatherhq/laurel/pkg/utils"
)

// MergesHandler serves merge execution, history, and undo endpoints.
type MergesHandler struct {
	merger    *merging.Engine
	eventRepo *mergeevent.Repository
	logger    ectologger.Logger
}

// NewMergesHandler creates a new merges handler
func NewMergesHandler(merger *merging.Engine, eventRepo *mergeevent.Repository, logger ectologger.Logger) *MergesHandler {
	return &MergesHandler{
		merger:    merger,
		eventRepo: eventRepo,
		logger:    logger,
	}
}

// Register registers merge routes
func (h *MergesHandler) Register(g *echo.Group) {
	g.POST("", h.Merge)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/undo", h.Undo)
}

// Merge folds one person record into another without a prior suggestion.
func (h *MergesHandler) Merge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MergesHandler.Merge")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := RequireTenantID(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[models.MergeRequest](c)
	if err != nil {
		return err
	}

	result, err := h.merger.Merge(ctx, tenantID, nil, &req, Actor(c))
	if err != nil {
		return err
	}

	return CreatedResponse(c, result)
}

// List returns merge history, newest first. Undone merges are included only
// when include_undone=true.
func (h *MergesHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MergesHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := RequireTenantID(c)
	if err != nil {
		return err
	}

	includeUndone := c.QueryParam("include_undone") == "true"
	page := parseIntParam(c, "page", 1)
	pageSize := parseIntParam(c, "page_size", 50)

	items, total, err := h.eventRepo.List(ctx, tenantID, includeUndone, page, pageSize)
	if err != nil {
		return err
	}

	return SuccessResponse(c, models.MergeEventListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns a single merge event
func (h *MergesHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MergesHandler.Get")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := RequireTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	event, err := h.eventRepo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, event)
}

// Undo reverses a merge. The response carries a warning that related records
// transferred by the merge stay with the survivor.
func (h *MergesHandler) Undo(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MergesHandler.Undo")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := RequireTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[models.UndoRequest](c)
	if err != nil {
		return err
	}

	result, err := h.merger.Undo(ctx, tenantID, id, &req, Actor(c))
	if err != nil {
		return err
	}

	return SuccessResponse(c, result)
}
