package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/username/portfoliodesk/backend/src/database"
	"github.com/username/portfoliodesk/backend/src/logger"
	"github.com/username/portfoliodesk/backend/src/model"
	"github.com/username/portfoliodesk/backend/src/position"
	"github.com/username/portfoliodesk/backend/src/security/validation"
	"github.com/username/portfoliodesk/backend/src/services"
	"github.com/username/portfoliodesk/backend/src/utils"
)

type TransactionHandler struct {
	transactionService *services.TransactionService
	dashboardService   *services.DashboardService
}

func NewTransactionHandler(transactionService *services.TransactionService, dashboardService *services.DashboardService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		dashboardService:   dashboardService,
	}
}

type transactionPayload struct {
	InvestmentID    int64            `json:"investmentId"`
	Type            string           `json:"type"`
	QuantityLots    decimal.Decimal  `json:"quantityLots"`
	PricePerLot     decimal.Decimal  `json:"pricePerLot"`
	TotalAmount     *decimal.Decimal `json:"totalAmount"`
	TransactionDate string           `json:"transactionDate"`
	Notes           string           `json:"notes"`
}

func (p transactionPayload) toInput() (services.TransactionInput, error) {
	date := time.Now()
	if p.TransactionDate != "" {
		parsed, err := parseDate(p.TransactionDate)
		if err != nil {
			return services.TransactionInput{}, jsonFieldError("transactionDate must be an RFC3339 timestamp or YYYY-MM-DD")
		}
		date = parsed
	}

	// totalAmount defaults to quantity times price when the caller omits it.
	total := p.QuantityLots.Mul(p.PricePerLot)
	if p.TotalAmount != nil {
		total = *p.TotalAmount
	}

	return services.TransactionInput{
		InvestmentID:    p.InvestmentID,
		Type:            p.Type,
		QuantityLots:    p.QuantityLots,
		PricePerLot:     p.PricePerLot,
		TotalAmount:     total,
		TransactionDate: date,
		Notes:           validation.CleanFreeText(p.Notes),
	}, nil
}

// writeTransactionError maps service and reconciliation errors onto HTTP
// statuses. Anything unrecognized is logged and reported as a 500.
func writeTransactionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, position.ErrInsufficientPosition),
		errors.Is(err, position.ErrInvalidQuantity),
		errors.Is(err, position.ErrInvalidType),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvestmentMismatch):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNotFound), errors.Is(err, model.ErrNotFound):
		utils.SendJSONError(w, "Not found", http.StatusNotFound)
	default:
		logger.FromContext(r.Context()).Error("Transaction operation failed", "error", err)
		utils.SendJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *TransactionHandler) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload transactionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	input, err := payload.toInput()
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.transactionService.CreateTransaction(userID, input)
	if err != nil {
		writeTransactionError(w, r, err)
		return
	}

	h.dashboardService.Invalidate(userID)
	utils.SendJSON(w, tx, http.StatusCreated)
}

func (h *TransactionHandler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	transactions, err := h.transactionService.ListTransactions(userID)
	if err != nil {
		writeTransactionError(w, r, err)
		return
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}

func (h *TransactionHandler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	tx, err := h.transactionService.GetTransaction(userID, id)
	if err != nil {
		writeTransactionError(w, r, err)
		return
	}
	utils.SendJSON(w, tx, http.StatusOK)
}

func (h *TransactionHandler) ListClientTransactionsHandler(w http.ResponseWriter, r *http.Request) {
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
		utils.SendJSONError(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}

	transactions, err := model.ListTransactionsByClient(database.DB, clientID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list client transactions", "clientID", clientID, "error", err)
		utils.SendJSONError(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}

func (h *TransactionHandler) UpdateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	var payload transactionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	input, err := payload.toInput()
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.transactionService.UpdateTransaction(userID, id, input)
	if err != nil {
		writeTransactionError(w, r, err)
		return
	}

	h.dashboardService.Invalidate(userID)
	utils.SendJSON(w, tx, http.StatusOK)
}

func (h *TransactionHandler) DeleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	if err := h.transactionService.DeleteTransaction(userID, id); err != nil {
		writeTransactionError(w, r, err)
		return
	}

	h.dashboardService.Invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}
