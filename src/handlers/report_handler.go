package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/models"
	"github.com/username/cointax/backend/src/services"
	"github.com/username/cointax/backend/src/utils"
)

type TaxReportHandler struct {
	taxService services.TaxReportService
}

func NewTaxReportHandler(taxService services.TaxReportService) *TaxReportHandler {
	return &TaxReportHandler{taxService: taxService}
}

// taxYearResponse wraps the exact-decimal result with display strings. Two
// decimal rounding happens only here, at the outermost boundary.
type taxYearResponse struct {
	*models.TaxYearResult
	Display struct {
		NetShortTerm string `json:"net_short_term"`
		NetLongTerm  string `json:"net_long_term"`
		TotalIncome  string `json:"total_income"`
	} `json:"display"`
}

func newTaxYearResponse(result *models.TaxYearResult) taxYearResponse {
	resp := taxYearResponse{TaxYearResult: result}
	resp.Display.NetShortTerm = result.NetShortTerm.StringFixed(2)
	resp.Display.NetLongTerm = result.NetLongTerm.StringFixed(2)
	resp.Display.TotalIncome = result.TotalIncome.StringFixed(2)
	return resp
}

func yearFromPath(r *http.Request) (int, error) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 2009 || year > time.Now().Year()+1 {
		return 0, errors.New("invalid year")
	}
	return year, nil
}

// HandleGetTaxYear serves GET /api/taxyear/{year}. Results are ETagged so a
// polling frontend can cheaply confirm nothing changed.
func (h *TaxReportHandler) HandleGetTaxYear(w http.ResponseWriter, r *http.Request) {
	year, err := yearFromPath(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.taxService.GetYear(r.Context(), year)
	if err != nil {
		if errors.Is(err, services.ErrNoTransactions) {
			utils.SendJSONError(w, "No transactions uploaded yet", http.StatusNotFound)
			return
		}
		logger.L.Error("Tax year computation failed", "year", year, "error", err)
		utils.SendJSONError(w, "Failed to compute tax year", http.StatusInternalServerError)
		return
	}

	resp := newTaxYearResponse(result)
	if etag, err := utils.GenerateETag(resp); err == nil {
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleComputeTaxYear serves POST /api/taxyear/{year}/compute, forcing a
// fresh computation even when a cached result exists.
func (h *TaxReportHandler) HandleComputeTaxYear(w http.ResponseWriter, r *http.Request) {
	year, err := yearFromPath(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.taxService.ComputeYear(r.Context(), year)
	if err != nil {
		if errors.Is(err, services.ErrNoTransactions) {
			utils.SendJSONError(w, "No transactions uploaded yet", http.StatusNotFound)
			return
		}
		logger.L.Error("Tax year computation failed", "year", year, "error", err)
		utils.SendJSONError(w, "Failed to compute tax year", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newTaxYearResponse(result))
}

// HandleGetHoldings serves GET /api/holdings/{year}: the open lots still
// held at the end of that year.
func (h *TaxReportHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	year, err := yearFromPath(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snaps, err := h.taxService.LotSnapshots(r.Context(), year)
	if err != nil {
		if errors.Is(err, services.ErrNoTransactions) {
			utils.SendJSONError(w, "No transactions uploaded yet", http.StatusNotFound)
			return
		}
		logger.L.Error("Holdings lookup failed", "year", year, "error", err)
		utils.SendJSONError(w, "Failed to load holdings", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []models.LotSnapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snaps)
}
