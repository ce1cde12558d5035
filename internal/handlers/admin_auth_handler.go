package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"payroll-backend/internal/config"
	"payroll-backend/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const adminIssuer = "payroll-backend-admin"

// AdminAuthHandler exchanges admin credentials (password + TOTP) for a JWT.
type AdminAuthHandler struct {
	username   string
	password   string // plain text or a bcrypt hash
	totpSecret string
	jwtSecret  []byte
	tokenTTL   time.Duration
}

// AdminLoginResponse is the login result
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// AdminJWTClaims admin JWT claims
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func NewAdminAuthHandler(cfg config.AdminConfig) *AdminAuthHandler {
	if cfg.TOTPSecret == "" || cfg.Password == "" {
		logrus.Warn("⚠️ admin.password or admin.totpSecret not set, admin login is disabled")
	}
	if cfg.JWTSecret == "" {
		logrus.Warn("⚠️ admin.jwtSecret not set, admin tokens cannot be issued")
	}
	username := cfg.Username
	if username == "" {
		username = "admin"
	}
	ttl := time.Duration(cfg.TokenTTL) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AdminAuthHandler{
		username:   username,
		password:   cfg.Password,
		totpSecret: cfg.TOTPSecret,
		jwtSecret:  []byte(cfg.JWTSecret),
		tokenTTL:   ttl,
	}
}

// AdminLoginHandler handles POST /api/admin/login
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if h.totpSecret == "" || h.password == "" || len(h.jwtSecret) == 0 {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Server misconfiguration: admin login is not configured",
		})
		return
	}

	var req types.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Success: false,
			Message: "Invalid request",
		})
		return
	}

	// same message for every credential failure
	if req.Username != h.username || !h.checkPassword(req.Password) {
		logrus.WithField("username", req.Username).Warn("Admin login failed - bad credentials")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if !totp.Validate(req.TOTPCode, h.totpSecret) {
		logrus.WithField("username", req.Username).Warn("Admin login failed - bad TOTP code")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid TOTP code",
		})
		return
	}

	token, err := GenerateAdminJWTToken(h.jwtSecret, req.Username, h.tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

func (h *AdminAuthHandler) checkPassword(given string) bool {
	if strings.HasPrefix(h.password, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(h.password), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(h.password), []byte(given)) == 1
}

// GenerateAdminJWTToken signs an HS256 admin token.
func GenerateAdminJWTToken(secret []byte, username string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty jwt secret")
	}
	now := time.Now()
	claims := AdminJWTClaims{
		Username: username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    adminIssuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateAdminJWTToken verifies signature, expiry and issuer.
func ValidateAdminJWTToken(secret []byte, tokenString string) (*AdminJWTClaims, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty jwt secret")
	}
	token, err := jwt.ParseWithClaims(tokenString, &AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(adminIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*AdminJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
