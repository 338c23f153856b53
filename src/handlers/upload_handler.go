package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/cointax/backend/src/config"
	"github.com/username/cointax/backend/src/logger"
	"github.com/username/cointax/backend/src/services"
	"github.com/username/cointax/backend/src/utils"
)

type UploadHandler struct {
	uploadService services.UploadService
}

func NewUploadHandler(uploadService services.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// HandleUpload ingests one multipart CSV upload. The "source" form field
// selects the parser; it defaults to the generic column layout.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxUploadSizeBytes)
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Upload too large or malformed: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.SendJSONError(w, "Missing 'file' form field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	source := r.FormValue("source")
	if source == "" {
		source = "generic"
	}

	clientID, _ := GetClientIDFromContext(r.Context())
	logger.L.Info("Upload received", "filename", header.Filename, "size", header.Size, "source", source, "client", clientID)

	result, err := h.uploadService.ProcessUpload(file, source)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) {
			utils.SendJSONError(w, fmt.Sprintf("Could not parse upload: %v", err), http.StatusBadRequest)
			return
		}
		logger.L.Error("Upload processing failed", "filename", header.Filename, "error", err)
		utils.SendJSONError(w, "Failed to process upload", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
