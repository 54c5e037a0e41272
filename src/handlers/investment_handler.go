package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/portfoliodesk/backend/src/database"
	"github.com/username/portfoliodesk/backend/src/logger"
	"github.com/username/portfoliodesk/backend/src/model"
	"github.com/username/portfoliodesk/backend/src/security/validation"
	"github.com/username/portfoliodesk/backend/src/services"
	"github.com/username/portfoliodesk/backend/src/utils"
)

type InvestmentHandler struct {
	dashboardService *services.DashboardService
}

func NewInvestmentHandler(dashboardService *services.DashboardService) *InvestmentHandler {
	return &InvestmentHandler{dashboardService: dashboardService}
}

// parseDate accepts RFC3339 timestamps or bare dates.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

type investmentPayload struct {
	ClientID        *int64               `json:"clientId"`
	StockName       *string              `json:"stockName"`
	StockSymbol     *string              `json:"stockSymbol"`
	BrokerageFirm   *string              `json:"brokerageFirm"`
	AcquisitionDate *string              `json:"acquisitionDate"`
	QuantityLots    *decimal.Decimal     `json:"quantityLots"`
	AcquisitionCost *decimal.Decimal     `json:"acquisitionCost"`
	CurrentValue    *decimal.NullDecimal `json:"currentValue"`
	Notes           *string              `json:"notes"`
}

// apply copies permitted fields onto inv. ClientID and QuantityLots are
// deliberately absent: positions move through transactions only, and an
// investment cannot change owner.
func (p *investmentPayload) apply(inv *model.Investment) error {
	if p.StockName != nil {
		inv.StockName = validation.CleanFreeText(*p.StockName)
	}
	if p.StockSymbol != nil {
		inv.StockSymbol = validation.StripUnprintable(*p.StockSymbol)
	}
	if p.BrokerageFirm != nil {
		inv.BrokerageFirm = validation.CleanFreeText(*p.BrokerageFirm)
	}
	if p.AcquisitionDate != nil {
		t, err := parseDate(*p.AcquisitionDate)
		if err != nil {
			return jsonFieldError("acquisitionDate must be an RFC3339 timestamp or YYYY-MM-DD")
		}
		inv.AcquisitionDate = t
	}
	if p.AcquisitionCost != nil {
		if p.AcquisitionCost.IsNegative() {
			return jsonFieldError("acquisitionCost cannot be negative")
		}
		inv.AcquisitionCost = *p.AcquisitionCost
	}
	if p.CurrentValue != nil {
		if p.CurrentValue.Valid && p.CurrentValue.Decimal.IsNegative() {
			return jsonFieldError("currentValue cannot be negative")
		}
		inv.CurrentValue = *p.CurrentValue
	}
	if p.Notes != nil {
		inv.Notes = validation.CleanFreeText(*p.Notes)
	}
	return nil
}

func (h *InvestmentHandler) CreateInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload investmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.ClientID == nil {
		utils.SendJSONError(w, "clientId is required", http.StatusBadRequest)
		return
	}

	// Ownership check before anything is written.
	if _, err := model.GetClientByID(database.DB, *payload.ClientID, userID); err != nil {
		if err == model.ErrNotFound {
			utils.SendJSONError(w, "Client not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to verify client ownership", "clientID", *payload.ClientID, "error", err)
		utils.SendJSONError(w, "Failed to create investment", http.StatusInternalServerError)
		return
	}

	inv := &model.Investment{
		ClientID:        *payload.ClientID,
		AcquisitionDate: time.Now(),
	}
	if err := payload.apply(inv); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if inv.StockName == "" {
		utils.SendJSONError(w, "stockName is required", http.StatusBadRequest)
		return
	}

	// The opening position is set once at creation. Every later change to
	// quantityLots goes through a transaction.
	if payload.QuantityLots != nil {
		if payload.QuantityLots.IsNegative() {
			utils.SendJSONError(w, "quantityLots cannot be negative", http.StatusBadRequest)
			return
		}
		inv.QuantityLots = *payload.QuantityLots
	}

	if err := model.CreateInvestment(database.DB, inv); err != nil {
		logger.FromContext(r.Context()).Error("Failed to create investment", "clientID", inv.ClientID, "error", err)
		utils.SendJSONError(w, "Failed to create investment", http.StatusInternalServerError)
		return
	}

	h.dashboardService.Invalidate(userID)
	utils.SendJSON(w, inv, http.StatusCreated)
}

func (h *InvestmentHandler) ListInvestmentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	investments, err := model.ListInvestmentsByUser(database.DB, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list investments", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to list investments", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, investments, http.StatusOK)
}

func (h *InvestmentHandler) ListClientInvestmentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	clientID, err := parseIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid client ID", http.StatusBadRequest)
		return
	}

	if _, err := model.GetClientByID(database.DB, clientID, userID); err != nil {
		if err == model.ErrNotFound {
			utils.SendJSONError(w, "Client not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to verify client ownership", "clientID", clientID, "error", err)
		utils.SendJSONError(w, "Failed to list investments", http.StatusInternalServerError)
		return
	}

	investments, err := model.ListInvestmentsByClient(database.DB, clientID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list client investments", "clientID", clientID, "error", err)
		utils.SendJSONError(w, "Failed to list investments", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, investments, http.StatusOK)
}

func (h *InvestmentHandler) GetInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid investment ID", http.StatusBadRequest)
		return
	}

	inv, err := model.GetInvestmentByID(database.DB, id, userID)
	if err != nil {
		if err == model.ErrNotFound {
			utils.SendJSONError(w, "Investment not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to fetch investment", "investmentID", id, "error", err)
		utils.SendJSONError(w, "Failed to fetch investment", http.StatusInternalServerError)
		return
	}

	transactions, err := model.ListTransactionsByInvestment(database.DB, inv.ID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list investment transactions", "investmentID", id, "error", err)
		utils.SendJSONError(w, "Failed to fetch investment", http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, struct {
		*model.Investment
		Transactions []model.Transaction `json:"transactions"`
	}{inv, transactions}, http.StatusOK)
}

func (h *InvestmentHandler) UpdateInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid investment ID", http.StatusBadRequest)
		return
	}

	var payload investmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.QuantityLots != nil {
		utils.SendJSONError(w, "quantityLots cannot be edited directly; record a transaction instead", http.StatusBadRequest)
		return
	}
	if payload.ClientID != nil {
		utils.SendJSONError(w, "clientId cannot be changed", http.StatusBadRequest)
		return
	}

	inv, err := model.GetInvestmentByID(database.DB, id, userID)
	if err != nil {
		if err == model.ErrNotFound {
			utils.SendJSONError(w, "Investment not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to fetch investment for update", "investmentID", id, "error", err)
		utils.SendJSONError(w, "Failed to update investment", http.StatusInternalServerError)
		return
	}

	if err := payload.apply(inv); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if inv.StockName == "" {
		utils.SendJSONError(w, "stockName cannot be empty", http.StatusBadRequest)
		return
	}

	if err := model.UpdateInvestment(database.DB, inv, userID); err != nil {
		if err == model.ErrNotFound {
			utils.SendJSONError(w, "Investment not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to update investment", "investmentID", id, "error", err)
		utils.SendJSONError(w, "Failed to update investment", http.StatusInternalServerError)
		return
	}

	h.dashboardService.Invalidate(userID)
	utils.SendJSON(w, inv, http.StatusOK)
}

func (h *InvestmentHandler) DeleteInvestmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid investment ID", http.StatusBadRequest)
		return
	}

	if err := model.DeleteInvestment(database.DB, id, userID); err != nil {
		if err == model.ErrNotFound {
			utils.SendJSONError(w, "Investment not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to delete investment", "investmentID", id, "error", err)
		utils.SendJSONError(w, "Failed to delete investment", http.StatusInternalServerError)
		return
	}

	h.dashboardService.Invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}
