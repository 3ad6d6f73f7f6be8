package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/username/folioimport/src/config"
	"github.com/username/folioimport/src/database"
	"github.com/username/folioimport/src/models"
	"github.com/username/folioimport/src/progress"
	"github.com/username/folioimport/src/services"
)

const sampleStatement = `Date,Type,Sub Type,Action,Symbol,Instrument Type,Description,Value,Quantity,Average Price,Commissions,Fees,Multiplier,Underlying Symbol,Expiration Date,Strike Price,Call or Put,Currency
2024-06-03T09:00:00-0500,Money Movement,Deposit,,,,Wire in,500.00,,,,,,,,,,USD
2024-06-05T11:00:00-0500,Trade,,BUY,NVDA,Equity,Bought 2 NVDA,-1800.00,2,900.00,-1.00,-0.08,,NVDA,,,,USD
`

func setupRouter(t *testing.T) (*chi.Mux, services.ImportService, int64) {
	t.Helper()
	dir := t.TempDir()
	config.Cfg = &config.AppConfig{
		DatabasePath:         filepath.Join(dir, "test.db"),
		MaxUploadSizeBytes:   10 << 20,
		ImportTempDir:        dir,
		ChunkMovementCeiling: 2000,
		ChunkBaseWindowDays:  7,
		ChunkMaxWindowDays:   14,
	}
	db := database.InitDB(config.Cfg.DatabasePath)
	t.Cleanup(func() { db.Close() })

	accounts := database.NewAccountStore(db)
	accountID, err := accounts.Save(&models.BrokerAccount{Broker: "tastytrade", Name: "Main", AccountNumber: "5WX00001"})
	require.NoError(t, err)

	svc := services.NewImportService(db)
	importHandler := NewImportHandler(svc)
	accountHandler := NewAccountHandler(accounts)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Post("/accounts", accountHandler.HandleCreateAccount)
		r.Get("/accounts", accountHandler.HandleListAccounts)
		r.Post("/import", importHandler.HandleStartImport)
		r.Get("/import/status", importHandler.HandleStatus)
		r.Post("/import/cancel", importHandler.HandleCancel)
		r.Get("/import/sessions", importHandler.HandleListSessions)
		r.Post("/import/sessions/{token}/resume", importHandler.HandleResume)
		r.Delete("/import/data", importHandler.HandleResetData)
	})
	return router, svc, accountID
}

func multipartUpload(t *testing.T, accountID string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("account_id", accountID))
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestCreateAndListAccounts(t *testing.T) {
	router, _, _ := setupRouter(t)

	body := `{"broker":"ibkr","name":"Margin","account_number":"U1234567"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []models.BrokerAccount
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	require.Len(t, accounts, 2)
}

func TestCreateAccountRejectsUnknownBroker(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"broker":"etrade","name":"X"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartImportUpload(t *testing.T) {
	router, svc, accountID := setupRouter(t)

	body, contentType := multipartUpload(t, strconv.FormatInt(accountID, 10), "statement.csv", sampleStatement)
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) && !svc.Progress().Phase.IsTerminal() {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, progress.PhaseCompleted, svc.Progress().Phase)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snap progress.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, progress.PhaseCompleted, snap.Phase)
	require.Equal(t, 100, snap.Percent)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/import/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []models.ImportSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	require.Equal(t, models.PhaseCompleted, sessions[0].Phase)
}

func TestStartImportRejectsBadUploads(t *testing.T) {
	router, _, _ := setupRouter(t)

	body, contentType := multipartUpload(t, "1", "statement.txt", "not a statement")
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	body, contentType = multipartUpload(t, "0", "statement.csv", sampleStatement)
	req = httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType = multipartUpload(t, "999", "statement.csv", sampleStatement)
	req = httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelWithoutRunningImport(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import/cancel", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestResumeUnknownSession(t *testing.T) {
	router, _, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/import/sessions/no-such-token/resume", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
