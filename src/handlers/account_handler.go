package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/username/folioimport/src/database"
	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/models"
	"github.com/username/folioimport/src/services"
	"github.com/username/folioimport/src/utils"
)

type AccountHandler struct {
	accounts *database.AccountStore
}

func NewAccountHandler(accounts *database.AccountStore) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type createAccountRequest struct {
	Broker        string `json:"broker"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
}

func (h *AccountHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Broker = strings.ToLower(strings.TrimSpace(req.Broker))
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		utils.SendJSONError(w, "account name is required", http.StatusBadRequest)
		return
	}
	if _, err := services.PolicyFor(req.Broker); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	account := &models.BrokerAccount{
		Broker:        req.Broker,
		Name:          req.Name,
		AccountNumber: req.AccountNumber,
	}
	if _, err := h.accounts.Save(account); err != nil {
		logger.L.Error("Failed to create broker account", "error", err)
		utils.SendJSONError(w, "failed to create account", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, account, http.StatusCreated)
}

func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.GetAll()
	if err != nil {
		logger.L.Error("Failed to list broker accounts", "error", err)
		utils.SendJSONError(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []*models.BrokerAccount{}
	}
	utils.SendJSON(w, accounts, http.StatusOK)
}
