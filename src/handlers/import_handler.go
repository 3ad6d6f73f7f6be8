// Package handlers exposes the import pipeline over HTTP. Imports run in
// the background; clients poll the status endpoint.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/username/folioimport/src/config"
	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/security/validation"
	"github.com/username/folioimport/src/services"
	"github.com/username/folioimport/src/session"
	"github.com/username/folioimport/src/utils"
)

type ImportHandler struct {
	service services.ImportService
}

func NewImportHandler(service services.ImportService) *ImportHandler {
	return &ImportHandler{service: service}
}

// HandleStartImport accepts a multipart statement upload and starts the
// import in the background. The response is 202; progress is polled
// through HandleStatus.
func (h *ImportHandler) HandleStartImport(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(10 * 1024 * 1024)
	if config.Cfg != nil {
		maxBytes = config.Cfg.MaxUploadSizeBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("upload too large or malformed: %v", err), http.StatusRequestEntityTooLarge)
		return
	}

	accountID, err := strconv.ParseInt(r.FormValue("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		utils.SendJSONError(w, "missing or invalid account_id", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.SendJSONError(w, "missing statement file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if contentType := header.Header.Get("Content-Type"); contentType != "" {
		declared := strings.Split(contentType, ";")[0]
		if err := validation.ValidateClientContentType(declared); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
			return
		}
	}
	if err := validation.ValidateUploadExtension(header.Filename); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	savedPath, err := h.saveUpload(file, header.Filename)
	if err != nil {
		logger.L.Error("Failed to save upload", "error", err)
		utils.SendJSONError(w, "failed to save upload", http.StatusInternalServerError)
		return
	}

	err = h.service.StartImport(services.ImportRequest{
		AccountID:  accountID,
		SourceName: header.Filename,
		SourcePath: savedPath,
	})
	if err != nil {
		os.Remove(savedPath)
		h.sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]string{"status": "accepted"}, http.StatusAccepted)
}

// saveUpload copies the upload into the import temp dir under a unique
// name. The copy outlives the request so interrupted sessions can resume
// from it.
func (h *ImportHandler) saveUpload(file io.Reader, originalName string) (string, error) {
	dir := os.TempDir()
	if config.Cfg != nil && config.Cfg.ImportTempDir != "" {
		dir = config.Cfg.ImportTempDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(originalName)))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (h *ImportHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	utils.SendJSON(w, h.service.Progress(), http.StatusOK)
}

func (h *ImportHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cancel(); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	utils.SendJSON(w, map[string]string{"status": "cancelling"}, http.StatusAccepted)
}

func (h *ImportHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.Sessions()
	if err != nil {
		logger.L.Error("Failed to list import sessions", "error", err)
		utils.SendJSONError(w, "failed to list import sessions", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, sessions, http.StatusOK)
}

func (h *ImportHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		utils.SendJSONError(w, "missing session token", http.StatusBadRequest)
		return
	}
	if err := h.service.Resume(token); err != nil {
		h.sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]string{"status": "accepted"}, http.StatusAccepted)
}

func (h *ImportHandler) HandleResetData(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetData(); err != nil {
		h.sendServiceError(w, err)
		return
	}
	utils.SendJSON(w, map[string]string{"status": "reset"}, http.StatusOK)
}

func (h *ImportHandler) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrImportInProgress):
		utils.SendJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrAccountNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrSessionNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrSourceFileChanged):
		utils.SendJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrSessionNotResumable):
		utils.SendJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrParsingFailed):
		utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	}
}
