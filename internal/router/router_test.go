package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payroll-backend/internal/claimtoken"
	"payroll-backend/internal/config"
	"payroll-backend/internal/handlers"
	"payroll-backend/internal/repository"
	"payroll-backend/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rootsOnlyLedger accepts root registrations and nothing else.
type rootsOnlyLedger struct {
	roots []*big.Int
}

func (l *rootsOnlyLedger) RegisterRoot(ctx context.Context, root *big.Int, batchID [32]byte, noteCount, totalAmount *big.Int) (string, error) {
	l.roots = append(l.roots, new(big.Int).Set(root))
	return "0x01", nil
}

var errUnsupported = errors.New("unsupported")

func (l *rootsOnlyLedger) ReserveWithdrawal(context.Context, [8]*big.Int, *big.Int, *big.Int, *big.Int, [32]byte) (string, error) {
	return "", errUnsupported
}
func (l *rootsOnlyLedger) FinalizeWithdrawal(context.Context, *big.Int, [32]byte) (string, error) {
	return "", errUnsupported
}
func (l *rootsOnlyLedger) CancelReservation(context.Context, *big.Int, [32]byte, [32]byte) (string, error) {
	return "", errUnsupported
}
func (l *rootsOnlyLedger) VerifyWithdrawal(context.Context, [8]*big.Int, *big.Int, *big.Int, *big.Int) (bool, error) {
	return false, errUnsupported
}
func (l *rootsOnlyLedger) ComputeRequestHash(context.Context, *big.Int, *big.Int, common.Address, common.Address, *big.Int, *big.Int) (*big.Int, error) {
	return nil, errUnsupported
}
func (l *rootsOnlyLedger) IsClaimed(context.Context, *big.Int) (bool, error) {
	return false, errUnsupported
}
func (l *rootsOnlyLedger) Reservation(context.Context, *big.Int) ([32]byte, bool, error) {
	return [32]byte{}, false, errUnsupported
}
func (l *rootsOnlyLedger) TxFinal(context.Context, string) (bool, error) {
	return false, errUnsupported
}

const jwtSecret = "router-test-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *rootsOnlyLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	codec, err := claimtoken.NewCodec(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	store := repository.NewMemoryStore()
	ledger := &rootsOnlyLedger{}

	batches := services.NewBatchService(store, ledger, services.NewLocalLock(), codec, 4)
	claims := services.NewClaimService(store, ledger, nil, nil, nil, codec, services.ClaimServiceConfig{})
	t.Cleanup(func() { _ = claims.Shutdown(context.Background()) })

	r := SetupRouter(Dependencies{
		Batches:     handlers.NewBatchHandler(batches),
		Claims:      handlers.NewClaimHandler(claims),
		AdminClaims: handlers.NewAdminClaimsHandler(claims),
		AdminAuth:   handlers.NewAdminAuthHandler(config.AdminConfig{JWTSecret: jwtSecret}),
		CORS:        config.CORSConfig{AllowedOrigins: []string{"https://payroll.example"}},
		JWTSecret:   jwtSecret,
	})
	return r, ledger
}

func send(r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:9000"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_CreateBatchThenLookupRoot(t *testing.T) {
	r, ledger := newTestRouter(t)
	token, err := handlers.GenerateAdminJWTToken([]byte(jwtSecret), "ops", time.Hour)
	require.NoError(t, err)

	batch := map[string]interface{}{
		"employer": "acme",
		"payments": []map[string]string{
			{"recipient": "0x1111111111111111111111111111111111111111", "amount": "3000"},
			{"recipient": "0x2222222222222222222222222222222222222222", "amount": "4000"},
		},
	}

	w := send(r, http.MethodPost, "/api/admin/batches", "", batch)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, ledger.roots)

	w = send(r, http.MethodPost, "/api/admin/batches", token, batch)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created handlers.CreateBatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Len(t, created.Notes, 2)
	for _, n := range created.Notes {
		assert.NotEmpty(t, n.ClaimToken)
	}
	require.Len(t, ledger.roots, 1)
	assert.Equal(t, ledger.roots[0].String(), created.Batch.Root)

	w = send(r, http.MethodGet, "/api/roots/"+created.Batch.Root, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var root handlers.RootResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &root))
	assert.Equal(t, created.Batch.BatchID, root.BatchID)
	assert.Equal(t, int64(2), root.LeafCount)

	// notes never expose secrets
	w = send(r, http.MethodGet, "/api/admin/batches/"+created.Batch.BatchID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "\"secret\"")
	assert.NotContains(t, w.Body.String(), "\"nullifier\"")
}

func TestRouter_AdminRejectsRemoteAddress(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", nil)
	req.RemoteAddr = "198.51.100.20:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_CORSAndNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/claims", nil)
	req.Header.Set("Origin", "https://payroll.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://payroll.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/claims", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = send(r, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = send(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AdminPendingClaims(t *testing.T) {
	r, _ := newTestRouter(t)

	w := send(r, http.MethodGet, "/api/admin/claims/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := handlers.GenerateAdminJWTToken([]byte(jwtSecret), "ops", time.Hour)
	require.NoError(t, err)
	w = send(r, http.MethodGet, "/api/admin/claims/pending", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)

	w = send(r, http.MethodPost, "/api/admin/claims/missing/reconcile", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
