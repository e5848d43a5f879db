package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/rto-permits/internal/http/middleware"
	"github.com/nurpe/rto-permits/internal/model"
	"github.com/nurpe/rto-permits/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type PermitService interface {
	CreatePermit(ctx context.Context, input service.CreatePermitInput) (*service.CreatePermitResult, error)
	RenewPartA(ctx context.Context, input service.RenewPartAInput) (*service.RenewPartAResult, error)
	RenewPartB(ctx context.Context, input service.RenewPartBInput) (*service.RenewPartBResult, error)
	DeletePermit(ctx context.Context, anchorID uuid.UUID, principal model.Principal) (*service.DeletePermitResult, error)
	ListPermits(ctx context.Context, input service.ListPermitsInput) (*service.PermitList, error)
	ExportPermits(ctx context.Context, input service.ListPermitsInput) (*service.ExportResult, error)
	GetPermit(ctx context.Context, anchorID uuid.UUID) (*service.PermitChain, error)
	BillPDF(ctx context.Context, part service.PermitPart, rowID uuid.UUID) (*service.BillDocument, error)
	RefreshStatuses(ctx context.Context) (*service.RefreshResult, error)
}

type Handler struct {
	permits PermitService
	log     zerolog.Logger
}

func NewHandler(permits PermitService, log zerolog.Logger) *Handler {
	return &Handler{permits: permits, log: log}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/national-permits")
	protected.Use(authMiddleware)
	protected.POST("", h.createPermit)
	protected.GET("", h.listPermits)
	protected.GET("/export", h.exportPermits)
	protected.POST("/refresh-status", h.refreshStatuses)
	protected.GET("/part-b/:id/bill/pdf", h.partBBillPDF)
	protected.GET("/:id", h.getPermit)
	protected.DELETE("/:id", h.deletePermit)
	protected.POST("/:id/renew-part-a", h.renewPartA)
	protected.POST("/:id/renew-part-b", h.renewPartB)
	protected.GET("/:id/bill/pdf", h.partABillPDF)
}

type createPermitRequest struct {
	VehicleNumber  string           `json:"vehicleNumber"`
	PermitNumber   string           `json:"permitNumber"`
	HolderName     string           `json:"permitHolderName"`
	FatherName     string           `json:"fatherName"`
	Address        string           `json:"address"`
	Mobile         string           `json:"mobileNumber"`
	Email          string           `json:"email"`
	PartAValidFrom string           `json:"validFrom"`
	PartAValidTo   string           `json:"validTo"`
	PartBNumber    string           `json:"authorizationNumber"`
	PartBValidFrom string           `json:"typeBValidFrom"`
	PartBValidTo   string           `json:"typeBValidTo"`
	TotalFee       *decimal.Decimal `json:"totalFee"`
	Paid           *decimal.Decimal `json:"paid"`
	Balance        *decimal.Decimal `json:"balance"`
	Notes          string           `json:"notes"`
	Images         []string         `json:"documents"`
}

type renewPartARequest struct {
	ValidFrom      string           `json:"validFrom"`
	ValidTo        string           `json:"validTo"`
	TotalFee       *decimal.Decimal `json:"totalFee"`
	Paid           *decimal.Decimal `json:"paid"`
	Balance        *decimal.Decimal `json:"balance"`
	PartBNumber    string           `json:"authorizationNumber"`
	PartBValidFrom string           `json:"typeBValidFrom"`
	PartBValidTo   string           `json:"typeBValidTo"`
	Notes          string           `json:"notes"`
}

type renewPartBRequest struct {
	PartBNumber string           `json:"authorizationNumber"`
	ValidFrom   string           `json:"validFrom"`
	ValidTo     string           `json:"validTo"`
	TotalFee    *decimal.Decimal `json:"totalFee"`
	Paid        *decimal.Decimal `json:"paid"`
	Balance     *decimal.Decimal `json:"balance"`
	Notes       string           `json:"notes"`
}

func (h *Handler) createPermit(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req createPermitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.permits.CreatePermit(c.Request.Context(), service.CreatePermitInput{
		VehicleNumber:  req.VehicleNumber,
		PermitNumber:   req.PermitNumber,
		HolderName:     req.HolderName,
		FatherName:     req.FatherName,
		Address:        req.Address,
		Mobile:         req.Mobile,
		Email:          req.Email,
		PartAValidFrom: req.PartAValidFrom,
		PartAValidTo:   req.PartAValidTo,
		PartBNumber:    req.PartBNumber,
		PartBValidFrom: req.PartBValidFrom,
		PartBValidTo:   req.PartBValidTo,
		Fees:           service.FeeInput{TotalFee: req.TotalFee, Paid: req.Paid, Balance: req.Balance},
		Notes:          req.Notes,
		Images:         req.Images,
		Principal:      principal,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "national permit created",
		"partA":   result.PartA,
		"partB":   result.PartB,
		"bill":    result.Bill,
	})
}

func (h *Handler) renewPartA(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req renewPartARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.permits.RenewPartA(c.Request.Context(), service.RenewPartAInput{
		PartAID:        id,
		ValidFrom:      req.ValidFrom,
		ValidTo:        req.ValidTo,
		Fees:           service.FeeInput{TotalFee: req.TotalFee, Paid: req.Paid, Balance: req.Balance},
		PartBNumber:    req.PartBNumber,
		PartBValidFrom: req.PartBValidFrom,
		PartBValidTo:   req.PartBValidTo,
		Notes:          req.Notes,
		Principal:      principal,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":           "part A renewed",
		"partA":             result.PartA,
		"partB":             result.PartB,
		"bill":              result.Bill,
		"usedExistingPartB": result.UsedExistingPartB,
	})
}

func (h *Handler) renewPartB(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req renewPartBRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.permits.RenewPartB(c.Request.Context(), service.RenewPartBInput{
		PartAID:     id,
		PartBNumber: req.PartBNumber,
		ValidFrom:   req.ValidFrom,
		ValidTo:     req.ValidTo,
		TotalFee:    req.TotalFee,
		Paid:        req.Paid,
		Balance:     req.Balance,
		Notes:       req.Notes,
		Principal:   principal,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "part B renewed",
		"partB":   result.PartB,
		"bill":    result.Bill,
	})
}

func (h *Handler) deletePermit(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	result, err := h.permits.DeletePermit(c.Request.Context(), id, principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "national permit deleted",
		"deleted": gin.H{
			"partA":        result.PartADeleted,
			"partB":        result.PartBDeleted,
			"bills":        result.BillsDeleted,
			"filesRemoved": result.FilesRemoved,
		},
	})
}

func (h *Handler) listPermits(c *gin.Context) {
	result, err := h.permits.ListPermits(c.Request.Context(), listInput(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result.Items,
		"pagination": gin.H{
			"total":      result.Total,
			"page":       result.Page,
			"limit":      result.Limit,
			"totalPages": result.TotalPages,
		},
	})
}

func (h *Handler) exportPermits(c *gin.Context) {
	result, err := h.permits.ExportPermits(c.Request.Context(), listInput(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, xlsxContentType, result.Content)
}

func (h *Handler) getPermit(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	chain, err := h.permits.GetPermit(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"permit":       chain.Anchor,
		"currentPartA": chain.CurrentPartA,
		"currentPartB": chain.CurrentPartB,
		"partAHistory": chain.PartA,
		"partBHistory": chain.PartB,
		"bills":        chain.Bills,
	})
}

func (h *Handler) partABillPDF(c *gin.Context) {
	h.billPDF(c, service.PartA)
}

func (h *Handler) partBBillPDF(c *gin.Context) {
	h.billPDF(c, service.PartB)
}

func (h *Handler) billPDF(c *gin.Context, part service.PermitPart) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	doc, err := h.permits.BillPDF(c.Request.Context(), part, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.FileAttachment(doc.Path, doc.FileName)
}

func (h *Handler) refreshStatuses(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	if !principal.CanWrite() {
		h.handleError(c, service.ErrPermissionDenied)
		return
	}

	result, err := h.permits.RefreshStatuses(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "permit statuses refreshed",
		"partA":   gin.H{"checked": result.PartAChecked, "updated": result.PartAUpdated},
		"partB":   gin.H{"checked": result.PartBChecked, "updated": result.PartBUpdated},
	})
}

func (h *Handler) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
	case errors.Is(err, service.ErrPermitExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("national permit request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")
}

func listInput(c *gin.Context) service.ListPermitsInput {
	return service.ListPermitsInput{
		Search:     c.Query("search"),
		Status:     c.Query("status"),
		DateFilter: c.Query("dateFilter"),
		Page:       queryInt(c, "page"),
		Limit:      queryInt(c, "limit"),
	}
}

func queryInt(c *gin.Context, key string) int {
	value, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return 0
	}
	return value
}
