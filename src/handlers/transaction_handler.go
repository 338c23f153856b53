package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/cointax/backend/src/database"
	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/services"
	"github.com/username/cointax/backend/src/utils"
)

type TransactionHandler struct {
	uploadService services.UploadService
}

func NewTransactionHandler(uploadService services.UploadService) *TransactionHandler {
	return &TransactionHandler{uploadService: uploadService}
}

// HandleGetTransactions serves GET /api/transactions: the full stored
// ledger in replay order.
func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	records, err := database.LoadTransactions()
	if err != nil {
		logger.L.Error("Failed to load transactions", "error", err)
		utils.SendJSONError(w, "Error querying transactions", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.TransactionRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		logger.L.Error("Error generating JSON response for transactions", "error", err)
	}
}

// HandleDeleteAllTransactions serves DELETE /api/transactions/all.
func (h *TransactionHandler) HandleDeleteAllTransactions(w http.ResponseWriter, r *http.Request) {
	if err := h.uploadService.DeleteAllTransactions(); err != nil {
		logger.L.Error("Failed to delete transactions", "error", err)
		utils.SendJSONError(w, "Error deleting transactions", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
