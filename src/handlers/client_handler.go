package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/username/portfoliodesk/backend/src/database"
	"github.com/username/portfoliodesk/backend/src/logger"
	"github.com/username/portfoliodesk/backend/src/model"
	"github.com/username/portfoliodesk/backend/src/security/validation"
	"github.com/username/portfoliodesk/backend/src/services"
	"github.com/username/portfoliodesk/backend/src/utils"
)

type ClientHandler struct {
	dashboardService *services.DashboardService
}

func NewClientHandler(dashboardService *services.DashboardService) *ClientHandler {
	return &ClientHandler{dashboardService: dashboardService}
}

// parseIDParam reads the {id} path segment shared by all entity routes.
func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

type clientPayload struct {
	FullName       *string          `json:"fullName"`
	PhoneNumber    *string          `json:"phoneNumber"`
	City           *string          `json:"city"`
	BrokerageFirms *string          `json:"brokerageFirms"`
	ReferralSource *string          `json:"referralSource"`
	Notes          *string          `json:"notes"`
	CashPosition   *decimal.Decimal `json:"cashPosition"`
}

// apply copies the fields present in the payload onto c, sanitizing the
// free-text ones.
func (p *clientPayload) apply(c *model.Client) error {
	if p.FullName != nil {
		c.FullName = validation.CleanFreeText(*p.FullName)
	}
	if p.PhoneNumber != nil {
		c.PhoneNumber = validation.StripUnprintable(*p.PhoneNumber)
	}
	if p.City != nil {
		c.City = validation.CleanFreeText(*p.City)
	}
	if p.BrokerageFirms != nil {
		if *p.BrokerageFirms != "" {
			var firms []any
			if err := json.Unmarshal([]byte(*p.BrokerageFirms), &firms); err != nil {
				return errInvalidBrokerageFirms
			}
		}
		c.BrokerageFirms = *p.BrokerageFirms
	}
	if p.ReferralSource != nil {
		c.ReferralSource = validation.CleanFreeText(*p.ReferralSource)
	}
	if p.Notes != nil {
		c.Notes = validation.CleanFreeText(*p.Notes)
	}
	if p.CashPosition != nil {
		if p.CashPosition.IsNegative() {
			return errNegativeCashPosition
		}
		c.CashPosition = *p.CashPosition
	}
	return nil
}

var (
	errInvalidBrokerageFirms = jsonFieldError("brokerageFirms must be a JSON array")
	errNegativeCashPosition  = jsonFieldError("cashPosition cannot be negative")
)

type jsonFieldError string

func (e jsonFieldError) Error() string { return string(e) }

func (h *ClientHandler) CreateClientHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload clientPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	client := &model.Client{UserID: userID, BrokerageFirms: "[]"}
	if err := payload.apply(client); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if client.FullName == "" {
		utils.SendJSONError(w, "fullName is required", http.StatusBadRequest)
		return
	}

	if err := model.CreateClient(database.DB, client); err != nil {
		logger.FromContext(r.Context()).Error("Failed to create client", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to create client", http.StatusInternalServerError)
		return
	}

	h.dashboardService.Invalidate(userID)
	utils.SendJSON(w, client, http.StatusCreated)
}

func (h *ClientHandler) ListClientsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	clients, err := model.ListClientsByUser(database.DB, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list clients", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to list clients", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, clients, http.StatusOK)
}

func (h *ClientHandler) GetClientHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid client ID", http.StatusBadRequest)
		return
	}

	client, err := model.GetClientByID(database.DB, id, userID)
	if err != nil {
		if err == model.ErrNotFound {
			utils.SendJSONError(w, "Client not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to fetch client", "clientID", id, "error", err)
		utils.SendJSONError(w, "Failed to fetch client", http.StatusInternalServerError)
		return
	}

	investments, err := model.ListInvestmentsByClient(database.DB, client.ID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list client investments", "clientID", id, "error", err)
		utils.SendJSONError(w, "Failed to fetch client", http.StatusInternalServerError)
		return
	}
	transactions, err := model.ListTransactionsByClient(database.DB, client.ID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list client transactions", "clientID", id, "error", err)
		utils.SendJSONError(w, "Failed to fetch client", http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, struct {
		*model.Client
		Investments  []model.Investment  `json:"investments"`
		Transactions []model.Transaction `json:"transactions"`
	}{client, investments, transactions}, http.StatusOK)
}

func (h *ClientHandler) UpdateClientHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid client ID", http.StatusBadRequest)
		return
	}

	var payload clientPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	client, err := model.GetClientByID(database.DB, id, userID)
	if err != nil {
		if err == model.ErrNotFound {
			utils.SendJSONError(w, "Client not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to fetch client for update", "clientID", id, "error", err)
		utils.SendJSONError(w, "Failed to update client", http.StatusInternalServerError)
		return
	}

	if err := payload.apply(client); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if client.FullName == "" {
		utils.SendJSONError(w, "fullName cannot be empty", http.StatusBadRequest)
		return
	}

	if err := model.UpdateClient(database.DB, client); err != nil {
		if err == model.ErrNotFound {
			utils.SendJSONError(w, "Client not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to update client", "clientID", id, "error", err)
		utils.SendJSONError(w, "Failed to update client", http.StatusInternalServerError)
		return
	}

	h.dashboardService.Invalidate(userID)
	utils.SendJSON(w, client, http.StatusOK)
}

func (h *ClientHandler) DeleteClientHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		utils.SendJSONError(w, "Invalid client ID", http.StatusBadRequest)
		return
	}

	if err := model.DeleteClient(database.DB, id, userID); err != nil {
		if err == model.ErrNotFound {
			utils.SendJSONError(w, "Client not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to delete client", "clientID", id, "error", err)
		utils.SendJSONError(w, "Failed to delete client", http.StatusInternalServerError)
		return
	}

	h.dashboardService.Invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}
