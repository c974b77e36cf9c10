package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/freight/internal/http/middleware"
	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/pricing"
	"github.com/nurpe/freight/internal/service"
)

type SyncService interface {
	Run(ctx context.Context, opts service.SyncOptions) (*service.SyncReport, error)
	Health(ctx context.Context) (*service.SyncHealth, error)
	RefreshLocations(ctx context.Context, ids []int64) ([]model.Location, []int64, error)
}

type ContractService interface {
	List(ctx context.Context, statuses []model.ContractStatus) ([]model.Contract, error)
	UpdatePricingForAll(ctx context.Context) (int, error)
}

type PricingService interface {
	List(ctx context.Context) ([]model.PricingRule, error)
	Get(ctx context.Context, id uuid.UUID) (*model.PricingRule, error)
	Create(ctx context.Context, rule model.PricingRule) (*model.PricingRule, error)
	Update(ctx context.Context, id uuid.UUID, rule model.PricingRule) (*model.PricingRule, error)
	Quote(ctx context.Context, id uuid.UUID, volume, collateral decimal.NullDecimal) (*service.PricingQuote, error)
}

type ReportService interface {
	ExportContracts(ctx context.Context, input service.ExportContractsInput) (*service.ExportResult, error)
	ExportPricing(ctx context.Context) (*service.ExportResult, error)
}

type LocationService interface {
	List(ctx context.Context) ([]model.Location, error)
}

type Services struct {
	Sync      SyncService
	Contracts ContractService
	Pricing   PricingService
	Reports   ReportService
	Locations LocationService
	// Events serves the live contract event stream.
	Events http.Handler
}

type Handler struct {
	services   Services
	staleHours int
	log        zerolog.Logger
	now        func() time.Time
}

func NewHandler(services Services, staleHours int, log zerolog.Logger) *Handler {
	return &Handler{services: services, staleHours: staleHours, log: log, now: time.Now}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.GET("/handler", h.getHandler)
	protected.POST("/sync", h.startSync)

	protected.GET("/contracts", h.listContracts)
	protected.GET("/contracts/export", h.exportContracts)

	protected.GET("/pricing", h.listPricing)
	protected.POST("/pricing", h.createPricing)
	protected.POST("/pricing/update", h.updatePricingForAll)
	protected.GET("/pricing/export/pdf", h.exportPricing)
	protected.GET("/pricing/:id", h.getPricing)
	protected.PUT("/pricing/:id", h.updatePricing)
	protected.POST("/pricing/:id/quote", h.quotePricing)

	protected.GET("/locations", h.listLocations)
	protected.POST("/locations/refresh", h.refreshLocations)

	if h.services.Events != nil {
		protected.GET("/events/ws", gin.WrapH(h.services.Events))
	}
}

func (h *Handler) getHandler(c *gin.Context) {
	health, err := h.services.Sync.Health(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, health)
}

type startSyncRequest struct {
	Force bool `json:"force"`
}

// startSync reports the outcome of a finished run with 200 even when the
// run failed; the failure kind is in last_error.
func (h *Handler) startSync(c *gin.Context) {
	var req startSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	principal, _ := middleware.MustPrincipal(c)
	h.log.Info().Str("operator", principal.Subject).Bool("force", req.Force).Msg("sync requested")

	report, err := h.services.Sync.Run(c.Request.Context(), service.SyncOptions{Force: req.Force})
	if report != nil {
		c.JSON(http.StatusOK, report)
		return
	}
	h.handleError(c, err)
}

type contractView struct {
	model.Contract
	Route                  string   `json:"route"`
	HasStaleStatus         bool     `json:"has_stale_status"`
	HoursIssuedToCompleted *float64 `json:"hours_issued_to_completed"`
}

func (h *Handler) listContracts(c *gin.Context) {
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	contracts, err := h.services.Contracts.List(c.Request.Context(), statuses)
	if err != nil {
		h.handleError(c, err)
		return
	}

	now := h.now()
	views := make([]contractView, len(contracts))
	for i, contract := range contracts {
		views[i] = contractView{
			Contract:               contract,
			Route:                  contractRoute(contract),
			HasStaleStatus:         contract.HasStaleStatus(now, h.staleHours),
			HoursIssuedToCompleted: contract.HoursIssuedToCompleted(),
		}
	}
	c.JSON(http.StatusOK, gin.H{"contracts": views})
}

func (h *Handler) exportContracts(c *gin.Context) {
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	start, err := parseOptionalDate(c.Query("period_start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_start"})
		return
	}
	end, err := parseOptionalDate(c.Query("period_end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_end"})
		return
	}

	result, err := h.services.Reports.ExportContracts(c.Request.Context(), service.ExportContractsInput{
		Statuses:    statuses,
		PeriodStart: start,
		PeriodEnd:   end,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", result.Content)
}

func (h *Handler) listPricing(c *gin.Context) {
	rules, err := h.services.Pricing.List(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pricing": rules})
}

func (h *Handler) getPricing(c *gin.Context) {
	id, ok := h.pricingID(c)
	if !ok {
		return
	}
	rule, err := h.services.Pricing.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

type pricingRequest struct {
	StartLocationID           int64               `json:"start_location_id" binding:"required"`
	EndLocationID             int64               `json:"end_location_id" binding:"required"`
	IsBidirectional           *bool               `json:"is_bidirectional"`
	IsActive                  *bool               `json:"is_active"`
	IsDefault                 bool                `json:"is_default"`
	PriceBase                 decimal.NullDecimal `json:"price_base"`
	PriceMin                  decimal.NullDecimal `json:"price_min"`
	PricePerVolume            decimal.NullDecimal `json:"price_per_volume"`
	UsePricePerVolumeModifier bool                `json:"use_price_per_volume_modifier"`
	PricePerCollateralPercent decimal.NullDecimal `json:"price_per_collateral_percent"`
	VolumeMin                 decimal.NullDecimal `json:"volume_min"`
	VolumeMax                 decimal.NullDecimal `json:"volume_max"`
	CollateralMin             decimal.NullDecimal `json:"collateral_min"`
	CollateralMax             decimal.NullDecimal `json:"collateral_max"`
	DaysToComplete            *int                `json:"days_to_complete"`
	DaysToExpire              *int                `json:"days_to_expire"`
	Details                   string              `json:"details"`
}

func (r pricingRequest) toModel() model.PricingRule {
	rule := model.PricingRule{
		StartLocationID:           r.StartLocationID,
		EndLocationID:             r.EndLocationID,
		IsBidirectional:           true,
		IsActive:                  true,
		IsDefault:                 r.IsDefault,
		PriceBase:                 r.PriceBase,
		PriceMin:                  r.PriceMin,
		PricePerVolume:            r.PricePerVolume,
		UsePricePerVolumeModifier: r.UsePricePerVolumeModifier,
		PricePerCollateralPercent: r.PricePerCollateralPercent,
		VolumeMin:                 r.VolumeMin,
		VolumeMax:                 r.VolumeMax,
		CollateralMin:             r.CollateralMin,
		CollateralMax:             r.CollateralMax,
		DaysToComplete:            r.DaysToComplete,
		DaysToExpire:              r.DaysToExpire,
		Details:                   strings.TrimSpace(r.Details),
	}
	if r.IsBidirectional != nil {
		rule.IsBidirectional = *r.IsBidirectional
	}
	if r.IsActive != nil {
		rule.IsActive = *r.IsActive
	}
	return rule
}

func (h *Handler) createPricing(c *gin.Context) {
	var req pricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.services.Pricing.Create(c.Request.Context(), req.toModel())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) updatePricing(c *gin.Context) {
	id, ok := h.pricingID(c)
	if !ok {
		return
	}
	var req pricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.services.Pricing.Update(c.Request.Context(), id, req.toModel())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

type quoteRequest struct {
	Volume     decimal.NullDecimal `json:"volume"`
	Collateral decimal.NullDecimal `json:"collateral"`
}

func (h *Handler) quotePricing(c *gin.Context) {
	id, ok := h.pricingID(c)
	if !ok {
		return
	}
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quote, err := h.services.Pricing.Quote(c.Request.Context(), id, req.Volume, req.Collateral)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) updatePricingForAll(c *gin.Context) {
	updated, err := h.services.Contracts.UpdatePricingForAll(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) exportPricing(c *gin.Context) {
	result, err := h.services.Reports.ExportPricing(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/pdf", result.Content)
}

func (h *Handler) listLocations(c *gin.Context) {
	locations, err := h.services.Locations.List(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": locations})
}

type refreshLocationsRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

func (h *Handler) refreshLocations(c *gin.Context) {
	var req refreshLocationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	refreshed, failed, err := h.services.Sync.RefreshLocations(c.Request.Context(), req.IDs)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if failed == nil {
		failed = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"locations": refreshed, "failed": failed})
}

func (h *Handler) pricingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSyncInProgress), errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case service.IsSyncPrecondition(err):
		kind := service.ClassifySyncError(err)
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": kind.Message(), "last_error": kind})
	case errors.Is(err, service.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseStatuses(raw string) ([]model.ContractStatus, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var statuses []model.ContractStatus
	for _, item := range strings.Split(raw, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		status := model.ContractStatus(item)
		if !status.IsKnown() && status != model.ContractStatusUnknown {
			return nil, fmt.Errorf("%w: status %q", service.ErrInvalidInput, item)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func parseOptionalDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}

func contractRoute(contract model.Contract) string {
	return pricing.RouteName(model.PricingRule{
		StartLocationID: contract.StartLocationID,
		EndLocationID:   contract.EndLocationID,
		StartLocation:   contract.StartLocation,
		EndLocation:     contract.EndLocation,
	}, false)
}
