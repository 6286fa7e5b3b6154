package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/gatherhq/laurel/config"
	"github.com/gatherhq/laurel/internal/platform/redis"
	"github.com/gatherhq/laurel/internal/platform/tracing"
	"github.com/gatherhq/laurel/internal/repositories/identitylink"
	"github.com/gatherhq/laurel/pkg/matching"
	"github.com/gatherhq/laurel/pkg/merging"
	"github.com/gatherhq/laurel/pkg/models"
	"github.com/gatherhq/laurel/pkg/utils"
)

// DuplicatesHandler serves duplicate detection and review endpoints.
type DuplicatesHandler struct {
	scanner  *matching.Engine
	merger   *merging.Engine
	linkRepo *identitylink.Repository
	locker   *redis.Locker
	cfg      *config.Config
	logger   ectologger.Logger
}

// NewDuplicatesHandler creates a new duplicates handler
func NewDuplicatesHandler(
	scanner *matching.Engine,
	merger *merging.Engine,
	linkRepo *identitylink.Repository,
	locker *redis.Locker,
	cfg *config.Config,
	logger ectologger.Logger,
) *DuplicatesHandler {
	return &DuplicatesHandler{
		scanner:  scanner,
		merger:   merger,
		linkRepo: linkRepo,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Register registers duplicate routes
func (h *DuplicatesHandler) Register(g *echo.Group) {
	g.POST("/scan", h.Scan)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Review)
	g.DELETE("/:id", h.Dismiss)
	g.POST("/:id/merge", h.MergeLink)
}

// RegisterPersonRoutes registers person-scoped duplicate routes
func (h *DuplicatesHandler) RegisterPersonRoutes(g *echo.Group) {
	g.GET("/:id/duplicates", h.ListForPerson)
}

// Scan runs duplicate detection across the tenant. Only one scan per tenant
// runs at a time; a second request while one is in flight gets a 409.
func (h *DuplicatesHandler) Scan(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DuplicatesHandler.Scan")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := RequireTenantID(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[models.ScanRequest](c)
	if err != nil {
		return err
	}

	lock, err := h.locker.Acquire(ctx, "scan:"+tenantID, h.cfg.ScanLockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return httperror.NewHTTPError(http.StatusConflict, "a scan is already running for this tenant")
		}
		h.logger.WithContext(ctx).WithError(err).Error("Failed to acquire scan lock")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to acquire scan lock")
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			h.logger.WithContext(ctx).WithError(err).Warn("Failed to release scan lock")
		}
	}()

	resp, err := h.scanner.Scan(ctx, tenantID, &req, Actor(c))
	if err != nil {
		return err
	}

	return SuccessResponse(c, resp)
}

// List returns duplicate suggestions for review, highest score first.
func (h *DuplicatesHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DuplicatesHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	tenantID, err := RequireTenantID(c)
	if err != nil {
		return err
	}

	filter := identitylink.ListFilter{
		Page:     parseIntParam(c, "page", 1),
		PageSize: parseIntParam(c, "page_size", 50),
	}
	if status := c.QueryParam("status"); status != "" {
		ls := models.LinkStatus(status)
		if !ls.IsValid() {
			return BadRequest("invalid status filter")
		}
		filter.Status = ls
	} else {
		filter.Status = models.LinkStatusSuggested
	}
	if raw := c.QueryParam("min_score"); raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil || score < 0 || score > 100 {
			return BadRequest("min_score must be between 0 and 100")
		}
		filter.MinScore = score
	}

	items, total, err := h.linkRepo.List(ctx, tenantID, filter)
	if err != nil {
		return err
	}

	return SuccessResponse(c, models.IdentityLinkListResponse{
		Items:      items,
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	})
}

// Get returns a single duplicate suggestion
func (h *DuplicatesHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DuplicatesHandler.Get")
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

	link, err := h.linkRepo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, link)
}

// Review confirms or rejects a suggested link. Rejection suppresses the pair
// from future scans until the suppression window lapses.
func (h *DuplicatesHandler) Review(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DuplicatesHandler.Review")
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

	req, err := utils.BindRequest[models.ReviewLinkRequest](c)
	if err != nil {
		return err
	}

	var suppressedUntil *time.Time
	if req.Status == models.LinkStatusNotMatch {
		days := h.cfg.SuppressDefaultDays
		if req.SuppressDays != nil {
			days = *req.SuppressDays
		}
		until := time.Now().UTC().AddDate(0, 0, days)
		suppressedUntil = &until
	}

	link, err := h.linkRepo.Review(ctx, tenantID, id, req.Status, Actor(c), req.Notes, suppressedUntil)
	if err != nil {
		return err
	}

	return SuccessResponse(c, link)
}

// Dismiss deletes a suggested link outright. Reviewed links cannot be
// dismissed.
func (h *DuplicatesHandler) Dismiss(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DuplicatesHandler.Dismiss")
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

	if err := h.linkRepo.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// MergeLink merges the pair behind a duplicate suggestion
func (h *DuplicatesHandler) MergeLink(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DuplicatesHandler.MergeLink")
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

	req, err := utils.BindRequest[models.MergeLinkRequest](c)
	if err != nil {
		return err
	}

	link, err := h.linkRepo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !link.Involves(req.SurvivorID) {
		return BadRequest("survivor_id is not part of this duplicate pair")
	}

	mergeReq := &models.MergeRequest{
		SurvivorID:       req.SurvivorID,
		MergedID:         link.OtherSide(req.SurvivorID),
		FieldResolutions: req.FieldResolutions,
		Reason:           req.Reason,
	}

	result, err := h.merger.Merge(ctx, tenantID, &id, mergeReq, Actor(c))
	if err != nil {
		return err
	}

	return SuccessResponse(c, result)
}

// ListForPerson returns the open duplicate links naming a person. With
// live=true it rescans the person against the tenant instead of reading
// persisted links, without writing anything.
func (h *DuplicatesHandler) ListForPerson(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DuplicatesHandler.ListForPerson")
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

	if c.QueryParam("live") == "true" {
		matches, err := h.scanner.FindForPerson(ctx, tenantID, id, h.cfg.LookupMinScore, parseIntParam(c, "limit", 20))
		if err != nil {
			return err
		}
		return SuccessResponse(c, matches)
	}

	links, err := h.linkRepo.ListActiveForPerson(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, links)
}
