package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/soukly/promotion/pkg/errors"
	"github.com/soukly/promotion/pkg/httputil"
	"github.com/soukly/promotion/pkg/validator"

	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/service"
)

// PromotionHandler handles the checkout-facing endpoints: cart evaluation,
// per-product offer lookups and the usage ledger.
type PromotionHandler struct {
	evaluation *service.EvaluationService
	usage      *service.UsageService
	logger     *slog.Logger
}

// NewPromotionHandler creates a new promotion HTTP handler.
func NewPromotionHandler(evaluation *service.EvaluationService, usage *service.UsageService, logger *slog.Logger) *PromotionHandler {
	return &PromotionHandler{
		evaluation: evaluation,
		usage:      usage,
		logger:     logger,
	}
}

// --- Request DTOs ---

// CartItemRequest is one cart line in an evaluation request.
type CartItemRequest struct {
	ProductID  string `json:"product_id" validate:"required"`
	CategoryID string `json:"category_id"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice  int64  `json:"unit_price" validate:"gte=0"`
}

// EvaluateRequest is the JSON request body for evaluating a cart.
type EvaluateRequest struct {
	UserID string            `json:"user_id"`
	Items  []CartItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ConsumedItemRequest is a per-product flash-sale consumption.
type ConsumedItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// RecordUsageRequest is the JSON request body for recording a redemption.
type RecordUsageRequest struct {
	OfferKind      string                `json:"offer_kind" validate:"required,oneof=flash_sale special_offer"`
	OfferID        string                `json:"offer_id" validate:"required"`
	UserID         string                `json:"user_id" validate:"required"`
	OrderID        string                `json:"order_id" validate:"required"`
	DiscountAmount int64                 `json:"discount_amount" validate:"gte=0"`
	FreeShipping   bool                  `json:"free_shipping"`
	FreeItems      []domain.FreeItem     `json:"free_items"`
	OrderTotal     int64                 `json:"order_total" validate:"gte=0"`
	ConsumedItems  []ConsumedItemRequest `json:"consumed_items" validate:"dive"`
}

// --- Handlers ---

// Evaluate handles POST /api/v1/promotions/evaluate
func (h *PromotionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := &service.EvaluateInput{
		UserID: req.UserID,
		Items:  make([]service.CartItemInput, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, service.CartItemInput{
			ProductID:  item.ProductID,
			CategoryID: item.CategoryID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}

	selection, err := h.evaluation.Evaluate(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: selection})
}

// GetProductOffers handles GET /api/v1/promotions/products/{productID}
//
// Optional query params: category_id, quantity (defaults to 1) and
// user_id, which together drive the best_discount computation.
func (h *PromotionHandler) GetProductOffers(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("product id is required"), h.logger)
		return
	}

	query := r.URL.Query()
	input := &service.CheckProductInput{
		ProductID:  productID,
		CategoryID: query.Get("category_id"),
		UserID:     query.Get("user_id"),
		Quantity:   1,
	}
	if raw := query.Get("quantity"); raw != "" {
		quantity, err := strconv.Atoi(raw)
		if err != nil || quantity <= 0 {
			httputil.WriteError(w, r, apperrors.InvalidInput("quantity must be a positive integer"), h.logger)
			return
		}
		input.Quantity = quantity
	}

	offers, err := h.evaluation.CheckProductOffers(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: offers})
}

// CheckActiveOffers handles GET /api/v1/promotions/products/{productID}/active
//
// The coupon service calls this before applying a coupon: an active
// promotion on any cart product blocks coupon stacking.
func (h *PromotionHandler) CheckActiveOffers(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("product id is required"), h.logger)
		return
	}

	categoryID := r.URL.Query().Get("category_id")

	active, err := h.evaluation.HasActiveOffers(r.Context(), productID, categoryID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"product_id": productID,
		"active":     active,
	}})
}

// ListRunningFlashSales handles GET /api/v1/flash-sales/running
func (h *PromotionHandler) ListRunningFlashSales(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.evaluation.ListRunningFlashSales(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: snapshot})
}

// ListRunningSpecialOffers handles GET /api/v1/special-offers/running
func (h *PromotionHandler) ListRunningSpecialOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.evaluation.ListRunningSpecialOffers(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: offers})
}

// RecordUsage handles POST /api/v1/usages
func (h *PromotionHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req RecordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := &service.RecordUsageInput{
		OfferKind:      req.OfferKind,
		OfferID:        req.OfferID,
		UserID:         req.UserID,
		OrderID:        req.OrderID,
		DiscountAmount: req.DiscountAmount,
		FreeShipping:   req.FreeShipping,
		FreeItems:      req.FreeItems,
		OrderTotal:     req.OrderTotal,
	}
	for _, item := range req.ConsumedItems {
		input.ConsumedItems = append(input.ConsumedItems, service.ConsumedItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	usage, err := h.usage.RecordUsage(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: usage})
}

// GetOrderUsages handles GET /api/v1/usages/{orderID}
func (h *PromotionHandler) GetOrderUsages(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("order id is required"), h.logger)
		return
	}

	records, err := h.usage.GetOrderUsages(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: records})
}

// ReleaseUsage handles POST /api/v1/usages/{orderID}/release
func (h *PromotionHandler) ReleaseUsage(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("order id is required"), h.logger)
		return
	}

	records, err := h.usage.ReleaseUsage(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: records})
}
