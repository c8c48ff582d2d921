package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/soukly/promotion/pkg/errors"
	"github.com/soukly/promotion/pkg/httputil"
	"github.com/soukly/promotion/pkg/pagination"
	"github.com/soukly/promotion/pkg/validator"

	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/repository"
	"github.com/soukly/promotion/internal/service"
)

// AdminHandler handles the management endpoints for flash-sale campaigns
// and special offers.
type AdminHandler struct {
	admin  *service.AdminService
	logger *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(admin *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

// --- Request DTOs ---

// CreateFlashSaleRequest is the JSON request body for creating a campaign.
type CreateFlashSaleRequest struct {
	Name          string `json:"name" validate:"required,min=1,max=255"`
	NameAr        string `json:"name_ar" validate:"max=255"`
	Description   string `json:"description"`
	DescriptionAr string `json:"description_ar"`
	BannerURL     string `json:"banner_url" validate:"omitempty,url"`
	Priority      int    `json:"priority" validate:"gte=0"`
	StartTime     string `json:"start_time" validate:"required"`
	EndTime       string `json:"end_time" validate:"required"`
	PerUserCap    int    `json:"per_user_cap" validate:"gte=0"`
	GlobalCap     int    `json:"global_cap" validate:"gte=0"`
}

// AddFlashSaleEntryRequest is the JSON request body for adding a
// per-product entry to a campaign.
type AddFlashSaleEntryRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	DiscountType  string `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue int64  `json:"discount_value" validate:"required,gt=0"`
	QuantityLimit int    `json:"quantity_limit" validate:"gte=0"`
}

// CreateSpecialOfferRequest is the JSON request body for creating an offer.
type CreateSpecialOfferRequest struct {
	Name                 string   `json:"name" validate:"required,min=1,max=255"`
	NameAr               string   `json:"name_ar" validate:"max=255"`
	Description          string   `json:"description"`
	DescriptionAr        string   `json:"description_ar"`
	BannerURL            string   `json:"banner_url" validate:"omitempty,url"`
	Priority             int      `json:"priority" validate:"gte=0"`
	OfferType            string   `json:"offer_type" validate:"required,oneof=buy_x_get_y_free buy_x_get_discount buy_x_free_shipping bundle_discount"`
	BuyQuantity          int      `json:"buy_quantity" validate:"gte=0"`
	FreeQuantity         int      `json:"free_quantity" validate:"gte=0"`
	DiscountType         string   `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue        int64    `json:"discount_value" validate:"gte=0"`
	ApplicableProducts   []string `json:"applicable_products"`
	ApplicableCategories []string `json:"applicable_categories"`
	StartTime            string   `json:"start_time" validate:"required"`
	EndTime              *string  `json:"end_time"`
	PerUserCap           int      `json:"per_user_cap" validate:"gte=0"`
	GlobalCap            int      `json:"global_cap" validate:"gte=0"`
	MinOrderAmount       int64    `json:"min_order_amount" validate:"gte=0"`
}

// flashSaleResponse pairs a campaign with its entries.
type flashSaleResponse struct {
	Campaign *domain.FlashSaleCampaign `json:"campaign"`
	Entries  []domain.FlashSaleEntry   `json:"entries"`
}

// --- Flash sale handlers ---

// CreateFlashSale handles POST /api/v1/flash-sales
func (h *AdminHandler) CreateFlashSale(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req CreateFlashSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("start_time must be in RFC3339 format"), h.logger)
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("end_time must be in RFC3339 format"), h.logger)
		return
	}

	input := &service.CreateFlashSaleInput{
		Name:          req.Name,
		NameAr:        req.NameAr,
		Description:   req.Description,
		DescriptionAr: req.DescriptionAr,
		BannerURL:     req.BannerURL,
		Priority:      req.Priority,
		StartTime:     startTime,
		EndTime:       endTime,
		PerUserCap:    req.PerUserCap,
		GlobalCap:     req.GlobalCap,
	}

	campaign, err := h.admin.CreateFlashSale(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: campaign})
}

// ListFlashSales handles GET /api/v1/flash-sales
func (h *AdminHandler) ListFlashSales(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.FlashSaleFilter{
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("active must be true or false"), h.logger)
			return
		}
		filter.Active = &active
	}

	campaigns, total, err := h.admin.ListFlashSales(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(campaigns, total, params))
}

// GetFlashSale handles GET /api/v1/flash-sales/{id}
func (h *AdminHandler) GetFlashSale(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("campaign id is required"), h.logger)
		return
	}

	campaign, entries, err := h.admin.GetFlashSale(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: flashSaleResponse{
		Campaign: campaign,
		Entries:  entries,
	}})
}

// AddFlashSaleEntry handles POST /api/v1/flash-sales/{id}/entries
func (h *AdminHandler) AddFlashSaleEntry(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("campaign id is required"), h.logger)
		return
	}

	var req AddFlashSaleEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := &service.AddFlashSaleEntryInput{
		ProductID:     req.ProductID,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		QuantityLimit: req.QuantityLimit,
	}

	entry, err := h.admin.AddFlashSaleEntry(r.Context(), id, input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: entry})
}

// ActivateFlashSale handles POST /api/v1/flash-sales/{id}/activate
func (h *AdminHandler) ActivateFlashSale(w http.ResponseWriter, r *http.Request) {
	h.setFlashSaleActive(w, r, true)
}

// DeactivateFlashSale handles POST /api/v1/flash-sales/{id}/deactivate
func (h *AdminHandler) DeactivateFlashSale(w http.ResponseWriter, r *http.Request) {
	h.setFlashSaleActive(w, r, false)
}

func (h *AdminHandler) setFlashSaleActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("campaign id is required"), h.logger)
		return
	}

	campaign, err := h.admin.SetFlashSaleActive(r.Context(), id, active)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: campaign})
}

// --- Special offer handlers ---

// CreateSpecialOffer handles POST /api/v1/special-offers
func (h *AdminHandler) CreateSpecialOffer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req CreateSpecialOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("start_time must be in RFC3339 format"), h.logger)
		return
	}

	input := &service.CreateSpecialOfferInput{
		Name:                 req.Name,
		NameAr:               req.NameAr,
		Description:          req.Description,
		DescriptionAr:        req.DescriptionAr,
		BannerURL:            req.BannerURL,
		Priority:             req.Priority,
		OfferType:            req.OfferType,
		BuyQuantity:          req.BuyQuantity,
		FreeQuantity:         req.FreeQuantity,
		DiscountType:         req.DiscountType,
		DiscountValue:        req.DiscountValue,
		ApplicableProducts:   req.ApplicableProducts,
		ApplicableCategories: req.ApplicableCategories,
		StartTime:            startTime,
		PerUserCap:           req.PerUserCap,
		GlobalCap:            req.GlobalCap,
		MinOrderAmount:       req.MinOrderAmount,
	}

	if req.EndTime != nil {
		endTime, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("end_time must be in RFC3339 format"), h.logger)
			return
		}
		input.EndTime = &endTime
	}

	offer, err := h.admin.CreateSpecialOffer(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: offer})
}

// ListSpecialOffers handles GET /api/v1/special-offers
func (h *AdminHandler) ListSpecialOffers(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.SpecialOfferFilter{
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("active must be true or false"), h.logger)
			return
		}
		filter.Active = &active
	}
	if v := r.URL.Query().Get("offer_type"); v != "" {
		filter.OfferType = &v
	}

	offers, total, err := h.admin.ListSpecialOffers(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(offers, total, params))
}

// GetSpecialOffer handles GET /api/v1/special-offers/{id}
func (h *AdminHandler) GetSpecialOffer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("offer id is required"), h.logger)
		return
	}

	offer, err := h.admin.GetSpecialOffer(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: offer})
}

// ActivateSpecialOffer handles POST /api/v1/special-offers/{id}/activate
func (h *AdminHandler) ActivateSpecialOffer(w http.ResponseWriter, r *http.Request) {
	h.setSpecialOfferActive(w, r, true)
}

// DeactivateSpecialOffer handles POST /api/v1/special-offers/{id}/deactivate
func (h *AdminHandler) DeactivateSpecialOffer(w http.ResponseWriter, r *http.Request) {
	h.setSpecialOfferActive(w, r, false)
}

func (h *AdminHandler) setSpecialOfferActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("offer id is required"), h.logger)
		return
	}

	offer, err := h.admin.SetSpecialOfferActive(r.Context(), id, active)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: offer})
}
