package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/soukly/promotion/pkg/errors"
	"github.com/soukly/promotion/pkg/pagination"

	"github.com/soukly/promotion/internal/domain"
	"github.com/soukly/promotion/internal/repository"
	"github.com/soukly/promotion/internal/service"
)

// setupAdminRouter creates a chi router matching the production route
// layout for the management endpoints.
func setupAdminRouter(flashRepo *mockFlashSaleRepository, offerRepo *mockSpecialOfferRepository) *chi.Mux {
	logger := testLogger()
	admin := service.NewAdminService(flashRepo, offerRepo, nil, testProducer(), logger)
	handler := NewAdminHandler(admin, logger)

	r := chi.NewRouter()
	r.Route("/api/v1/flash-sales", func(r chi.Router) {
		r.Post("/", handler.CreateFlashSale)
		r.Get("/", handler.ListFlashSales)
		r.Get("/{id}", handler.GetFlashSale)
		r.Post("/{id}/entries", handler.AddFlashSaleEntry)
		r.Post("/{id}/activate", handler.ActivateFlashSale)
		r.Post("/{id}/deactivate", handler.DeactivateFlashSale)
	})
	r.Route("/api/v1/special-offers", func(r chi.Router) {
		r.Post("/", handler.CreateSpecialOffer)
		r.Get("/", handler.ListSpecialOffers)
		r.Get("/{id}", handler.GetSpecialOffer)
		r.Post("/{id}/activate", handler.ActivateSpecialOffer)
		r.Post("/{id}/deactivate", handler.DeactivateSpecialOffer)
	})
	return r
}

func validCreateFlashSaleRequest() CreateFlashSaleRequest {
	now := time.Now().UTC()
	return CreateFlashSaleRequest{
		Name:       "Ramadan Flash Sale",
		NameAr:     "تخفيضات رمضان",
		Priority:   10,
		StartTime:  now.Add(time.Hour).Format(time.RFC3339),
		EndTime:    now.Add(25 * time.Hour).Format(time.RFC3339),
		PerUserCap: 2,
		GlobalCap:  1000,
	}
}

func validCreateSpecialOfferRequest() CreateSpecialOfferRequest {
	now := time.Now().UTC()
	return CreateSpecialOfferRequest{
		Name:               "Buy 3 Get 1 Free",
		OfferType:          domain.OfferTypeBuyXGetYFree,
		BuyQuantity:        3,
		FreeQuantity:       1,
		ApplicableProducts: []string{"prod-1", "prod-2"},
		StartTime:          now.Add(time.Hour).Format(time.RFC3339),
	}
}

// --- POST /api/v1/flash-sales ---

func TestCreateFlashSale_Success(t *testing.T) {
	flashRepo := new(mockFlashSaleRepository)
	offerRepo := new(mockSpecialOfferRepository)
	router := setupAdminRouter(flashRepo, offerRepo)

	flashRepo.On("CreateCampaign", mock.Anything, mock.MatchedBy(func(c *domain.FlashSaleCampaign) bool {
		return c.Slug == "ramadan-flash-sale" && !c.IsActive
	})).Return(nil)

	rec := postJSON(t, router, "/api/v1/flash-sales", validCreateFlashSaleRequest())

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "ramadan-flash-sale", data["slug"])
	flashRepo.AssertExpectations(t)
}

func TestCreateFlashSale_InvalidJSON(t *testing.T) {
	router := setupAdminRouter(new(mockFlashSaleRepository), new(mockSpecialOfferRepository))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/flash-sales", bytes.NewReader([]byte(`{bad`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "invalid request body")
}

func TestCreateFlashSale_ValidationError_MissingName(t *testing.T) {
	router := setupAdminRouter(new(mockFlashSaleRepository), new(mockSpecialOfferRepository))

	reqBody := validCreateFlashSaleRequest()
	reqBody.Name = ""

	rec := postJSON(t, router, "/api/v1/flash-sales", reqBody)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCreateFlashSale_InvalidStartTimeFormat(t *testing.T) {
	router := setupAdminRouter(new(mockFlashSaleRepository), new(mockSpecialOfferRepository))

	reqBody := validCreateFlashSaleRequest()
	reqBody.StartTime = "2026-08-01" // not RFC3339

	rec := postJSON(t, router, "/api/v1/flash-sales", reqBody)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "start_time must be in RFC3339 format")
}

func TestCreateFlashSale_EndBeforeStart(t *testing.T) {
	router := setupAdminRouter(new(mockFlashSaleRepository), new(mockSpecialOfferRepository))

	now := time.Now().UTC()
	reqBody := validCreateFlashSaleRequest()
	reqBody.StartTime = now.Add(48 * time.Hour).Format(time.RFC3339)
	reqBody.EndTime = now.Add(24 * time.Hour).Format(time.RFC3339)

	rec := postJSON(t, router, "/api/v1/flash-sales", reqBody)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "end time must be after start time")
}

// --- GET /api/v1/flash-sales ---

func TestListFlashSales_Success(t *testing.T) {
	flashRepo := new(mockFlashSaleRepository)
	router := setupAdminRouter(flashRepo, new(mockSpecialOfferRepository))

	campaigns := []domain.FlashSaleCampaign{{ID: "camp-1", Name: "Ramadan Flash Sale"}}
	expectedFilter := repository.FlashSaleFilter{Page: 1, PerPage: 20}
	flashRepo.On("ListCampaigns", mock.Anything, expectedFilter).Return(campaigns, 1, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flash-sales", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var listResp pagination.Result[domain.FlashSaleCampaign]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listResp))
	assert.Equal(t, 1, listResp.TotalCount)
	assert.Equal(t, 1, listResp.Page)
	assert.Equal(t, 20, listResp.PerPage)
	assert.Len(t, listResp.Data, 1)
	flashRepo.AssertExpectations(t)
}

func TestListFlashSales_FilterByActive(t *testing.T) {
	flashRepo := new(mockFlashSaleRepository)
	router := setupAdminRouter(flashRepo, new(mockSpecialOfferRepository))

	active := true
	expectedFilter := repository.FlashSaleFilter{Active: &active, Page: 2, PerPage: 10}
	flashRepo.On("ListCampaigns", mock.Anything, expectedFilter).
		Return([]domain.FlashSaleCampaign{}, 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flash-sales?active=true&page=2&per_page=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	flashRepo.AssertExpectations(t)
}

func TestListFlashSales_InvalidActiveParam(t *testing.T) {
	router := setupAdminRouter(new(mockFlashSaleRepository), new(mockSpecialOfferRepository))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flash-sales?active=maybe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

// --- GET /api/v1/flash-sales/{id} ---

func TestGetFlashSale_Success(t *testing.T) {
	flashRepo := new(mockFlashSaleRepository)
	router := setupAdminRouter(flashRepo, new(mockSpecialOfferRepository))

	campaign := &domain.FlashSaleCampaign{ID: "camp-1", Name: "Ramadan Flash Sale"}
	entries := map[string][]domain.FlashSaleEntry{
		"camp-1": {{ID: "entry-1", CampaignID: "camp-1", ProductID: "prod-1"}},
	}
	flashRepo.On("GetCampaign", mock.Anything, "camp-1").Return(campaign, nil)
	flashRepo.On("ListEntries", mock.Anything, []string{"camp-1"}).Return(entries, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flash-sales/camp-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	require.NotNil(t, data["campaign"])
	assert.Len(t, data["entries"], 1)
	flashRepo.AssertExpectations(t)
}

func TestGetFlashSale_NotFound(t *testing.T) {
	flashRepo := new(mockFlashSaleRepository)
	router := setupAdminRouter(flashRepo, new(mockSpecialOfferRepository))

	flashRepo.On("GetCampaign", mock.Anything, "camp-x").
		Return(nil, apperrors.NotFound("flash sale campaign", "camp-x"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/flash-sales/camp-x", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

// --- POST /api/v1/flash-sales/{id}/entries ---

func TestAddFlashSaleEntry_Created(t *testing.T) {
	flashRepo := new(mockFlashSaleRepository)
	router := setupAdminRouter(flashRepo, new(mockSpecialOfferRepository))

	campaign := &domain.FlashSaleCampaign{ID: "camp-1", Name: "Ramadan Flash Sale"}
	flashRepo.On("GetCampaign", mock.Anything, "camp-1").Return(campaign, nil)
	flashRepo.On("CreateEntry", mock.Anything, mock.MatchedBy(func(e *domain.FlashSaleEntry) bool {
		return e.CampaignID == "camp-1" && e.ProductID == "prod-1"
	})).Return(nil)

	rec := postJSON(t, router, "/api/v1/flash-sales/camp-1/entries", AddFlashSaleEntryRequest{
		ProductID:     "prod-1",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 1000,
		QuantityLimit: 100,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	flashRepo.AssertExpectations(t)
}

func TestAddFlashSaleEntry_CampaignNotFound(t *testing.T) {
	flashRepo := new(mockFlashSaleRepository)
	router := setupAdminRouter(flashRepo, new(mockSpecialOfferRepository))

	flashRepo.On("GetCampaign", mock.Anything, "camp-x").
		Return(nil, apperrors.NotFound("flash sale campaign", "camp-x"))

	rec := postJSON(t, router, "/api/v1/flash-sales/camp-x/entries", AddFlashSaleEntryRequest{
		ProductID:     "prod-1",
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 500,
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddFlashSaleEntry_InvalidDiscountType(t *testing.T) {
	router := setupAdminRouter(new(mockFlashSaleRepository), new(mockSpecialOfferRepository))

	rec := postJSON(t, router, "/api/v1/flash-sales/camp-1/entries", AddFlashSaleEntryRequest{
		ProductID:     "prod-1",
		DiscountType:  "bogus",
		DiscountValue: 1000,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

// --- POST /api/v1/flash-sales/{id}/activate|deactivate ---

func TestActivateFlashSale_Success(t *testing.T) {
	flashRepo := new(mockFlashSaleRepository)
	router := setupAdminRouter(flashRepo, new(mockSpecialOfferRepository))

	campaign := &domain.FlashSaleCampaign{ID: "camp-1", Name: "Ramadan Flash Sale", IsActive: true}
	flashRepo.On("SetActive", mock.Anything, "camp-1", true).Return(nil)
	flashRepo.On("GetCampaign", mock.Anything, "camp-1").Return(campaign, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/flash-sales/camp-1/activate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["is_active"])
	flashRepo.AssertExpectations(t)
}

func TestDeactivateFlashSale_NotFound(t *testing.T) {
	flashRepo := new(mockFlashSaleRepository)
	router := setupAdminRouter(flashRepo, new(mockSpecialOfferRepository))

	flashRepo.On("SetActive", mock.Anything, "camp-x", false).
		Return(apperrors.NotFound("flash sale campaign", "camp-x"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/flash-sales/camp-x/deactivate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- POST /api/v1/special-offers ---

func TestCreateSpecialOffer_Success(t *testing.T) {
	offerRepo := new(mockSpecialOfferRepository)
	router := setupAdminRouter(new(mockFlashSaleRepository), offerRepo)

	offerRepo.On("Create", mock.Anything, mock.MatchedBy(func(o *domain.SpecialOffer) bool {
		return o.Slug == "buy-3-get-1-free" && !o.IsActive
	})).Return(nil)

	rec := postJSON(t, router, "/api/v1/special-offers", validCreateSpecialOfferRequest())

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "buy-3-get-1-free", data["slug"])
	offerRepo.AssertExpectations(t)
}

func TestCreateSpecialOffer_UnknownOfferType(t *testing.T) {
	router := setupAdminRouter(new(mockFlashSaleRepository), new(mockSpecialOfferRepository))

	reqBody := validCreateSpecialOfferRequest()
	reqBody.OfferType = "mystery_box"

	rec := postJSON(t, router, "/api/v1/special-offers", reqBody)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCreateSpecialOffer_MissingQuantities(t *testing.T) {
	router := setupAdminRouter(new(mockFlashSaleRepository), new(mockSpecialOfferRepository))

	reqBody := validCreateSpecialOfferRequest()
	reqBody.BuyQuantity = 0
	reqBody.FreeQuantity = 0

	rec := postJSON(t, router, "/api/v1/special-offers", reqBody)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "buy_x_get_y_free requires positive buy and free quantities")
}

func TestCreateSpecialOffer_InvalidEndTimeFormat(t *testing.T) {
	router := setupAdminRouter(new(mockFlashSaleRepository), new(mockSpecialOfferRepository))

	badEnd := "next week"
	reqBody := validCreateSpecialOfferRequest()
	reqBody.EndTime = &badEnd

	rec := postJSON(t, router, "/api/v1/special-offers", reqBody)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "end_time must be in RFC3339 format")
}

// --- GET /api/v1/special-offers ---

func TestListSpecialOffers_FilterByType(t *testing.T) {
	offerRepo := new(mockSpecialOfferRepository)
	router := setupAdminRouter(new(mockFlashSaleRepository), offerRepo)

	offerType := domain.OfferTypeBundleDiscount
	expectedFilter := repository.SpecialOfferFilter{OfferType: &offerType, Page: 1, PerPage: 20}
	offerRepo.On("List", mock.Anything, expectedFilter).
		Return([]domain.SpecialOffer{{ID: "offer-1", OfferType: offerType}}, 1, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/special-offers?offer_type=bundle_discount", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var listResp pagination.Result[domain.SpecialOffer]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listResp))
	assert.Equal(t, 1, listResp.TotalCount)
	offerRepo.AssertExpectations(t)
}

func TestListSpecialOffers_UnknownTypeRejected(t *testing.T) {
	router := setupAdminRouter(new(mockFlashSaleRepository), new(mockSpecialOfferRepository))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/special-offers?offer_type=mystery_box", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

// --- GET /api/v1/special-offers/{id} ---

func TestGetSpecialOffer_Success(t *testing.T) {
	offerRepo := new(mockSpecialOfferRepository)
	router := setupAdminRouter(new(mockFlashSaleRepository), offerRepo)

	offer := &domain.SpecialOffer{ID: "offer-1", Name: "Buy 3 Get 1 Free"}
	offerRepo.On("GetByID", mock.Anything, "offer-1").Return(offer, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/special-offers/offer-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	offerRepo.AssertExpectations(t)
}

func TestGetSpecialOffer_NotFound(t *testing.T) {
	offerRepo := new(mockSpecialOfferRepository)
	router := setupAdminRouter(new(mockFlashSaleRepository), offerRepo)

	offerRepo.On("GetByID", mock.Anything, "offer-x").
		Return(nil, apperrors.NotFound("special offer", "offer-x"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/special-offers/offer-x", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- POST /api/v1/special-offers/{id}/activate ---

func TestActivateSpecialOffer_Success(t *testing.T) {
	offerRepo := new(mockSpecialOfferRepository)
	router := setupAdminRouter(new(mockFlashSaleRepository), offerRepo)

	offer := &domain.SpecialOffer{ID: "offer-1", Name: "Buy 3 Get 1 Free", IsActive: true}
	offerRepo.On("SetActive", mock.Anything, "offer-1", true).Return(nil)
	offerRepo.On("GetByID", mock.Anything, "offer-1").Return(offer, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/special-offers/offer-1/activate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["is_active"])
	offerRepo.AssertExpectations(t)
}
