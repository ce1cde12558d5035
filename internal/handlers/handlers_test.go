package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payroll-backend/internal/config"
	"payroll-backend/internal/models"
	"payroll-backend/internal/repository"
	"payroll-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRespondError_MapsKinds(t *testing.T) {
	cases := []struct {
		kind   services.ErrorKind
		status int
	}{
		{services.KindValidation, http.StatusBadRequest},
		{services.KindProofMismatch, http.StatusUnprocessableEntity},
		{services.KindConflict, http.StatusConflict},
		{services.KindNotFound, http.StatusNotFound},
		{services.KindExternal, http.StatusBadGateway},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/", func(c *gin.Context) {
			respondError(c, &services.ServiceError{Kind: tc.kind, Code: "X", Message: "short", Err: errors.New("secret detail")})
		})
		w := doJSON(r, http.MethodGet, "/", nil)
		assert.Equal(t, tc.status, w.Code, tc.kind)
		assert.NotContains(t, w.Body.String(), "secret detail")

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "X", body.Code)
		assert.Equal(t, "short", body.Error)
	}

	r := gin.New()
	r.GET("/", func(c *gin.Context) { respondError(c, errors.New("db exploded")) })
	w := doJSON(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "exploded")
}

func TestClaimHandler_StatusOnly(t *testing.T) {
	store := repository.NewMemoryStore()
	claim := &models.Claim{
		ClaimID:         "claim-1",
		NoteID:          "note-1",
		NullifierHash:   "1",
		RequestHash:     "2",
		AuthorizationID: "0x01",
		Status:          models.ClaimStatusSubmitted,
	}
	require.NoError(t, store.Claims().Upsert(context.Background(), claim))
	require.NoError(t, store.Claims().MarkFailed(context.Background(), "claim-1", models.ClaimOutcome{Error: "relayer: upstream 500 at node 10.0.0.3"}))

	svc := services.NewClaimService(store, nil, nil, nil, nil, nil, services.ClaimServiceConfig{})
	h := NewClaimHandler(svc)
	r := gin.New()
	r.GET("/api/claims/:id", h.GetClaimStatus)
	r.POST("/api/claims", h.InitiateClaim)

	w := doJSON(r, http.MethodGet, "/api/claims/claim-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"claim_id":"claim-1","status":"failed"}`, w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/claims/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), services.CodeClaimNotFound)

	w = doJSON(r, http.MethodPost, "/api/claims", map[string]string{"recipient": "0x1111111111111111111111111111111111111111"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchHandler_GetRoot(t *testing.T) {
	store := repository.NewMemoryStore()
	require.NoError(t, store.Batches().Create(context.Background(), &models.Batch{
		BatchID:             "batch-1",
		Employer:            "acme",
		TotalAmount:         "10000",
		NoteCount:           3,
		Root:                "12345",
		CumulativeLeafCount: 3,
		RegisterTx:          "0xabc",
		Status:              models.BatchStatusRegistered,
	}))
	svc := services.NewBatchService(store, nil, services.NewLocalLock(), nil, 20)
	h := NewBatchHandler(svc)
	r := gin.New()
	r.GET("/api/roots/:root", h.GetRoot)

	w := doJSON(r, http.MethodGet, "/api/roots/12345", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body RootResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "batch-1", body.BatchID)
	assert.Equal(t, int64(3), body.LeafCount)

	w = doJSON(r, http.MethodGet, "/api/roots/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatchHandler_CreateBatchRejectsEmptyPayments(t *testing.T) {
	h := NewBatchHandler(nil)
	r := gin.New()
	r.POST("/batches", h.CreateBatch)

	w := doJSON(r, http.MethodPost, "/batches", map[string]interface{}{"employer": "acme", "payments": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func adminConfig(t *testing.T) (config.AdminConfig, string) {
	t.Helper()
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "Payroll Admin", AccountName: "admin"})
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return config.AdminConfig{
		Username:   "ops",
		Password:   string(hash),
		TOTPSecret: key.Secret(),
		JWTSecret:  "test-jwt-secret",
		TokenTTL:   1,
	}, key.Secret()
}

func TestAdminLogin(t *testing.T) {
	cfg, secret := adminConfig(t)
	h := NewAdminAuthHandler(cfg)
	r := gin.New()
	r.POST("/login", h.AdminLoginHandler)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	w := doJSON(r, http.MethodPost, "/login", map[string]string{"username": "ops", "password": "hunter2", "totp_code": code})
	require.Equal(t, http.StatusOK, w.Code)
	var resp AdminLoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	claims, err := ValidateAdminJWTToken([]byte(cfg.JWTSecret), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
	assert.Equal(t, "admin", claims.Role)

	_, err = ValidateAdminJWTToken([]byte("other-secret"), resp.Token)
	assert.Error(t, err)

	w = doJSON(r, http.MethodPost, "/login", map[string]string{"username": "ops", "password": "wrong", "totp_code": code})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/login", map[string]string{"username": "ops", "password": "hunter2", "totp_code": "000000x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminLogin_Unconfigured(t *testing.T) {
	h := NewAdminAuthHandler(config.AdminConfig{})
	r := gin.New()
	r.POST("/login", h.AdminLoginHandler)

	w := doJSON(r, http.MethodPost, "/login", map[string]string{"username": "admin", "password": "x", "totp_code": "123456"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestValidateAdminJWTToken_Expired(t *testing.T) {
	token, err := GenerateAdminJWTToken([]byte("s"), "ops", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateAdminJWTToken([]byte("s"), token)
	assert.Error(t, err)
}
