package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const adminRole = "admin"

type adminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type adminLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (h *Handlers) AdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.config.AdminPasswordHash == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin login is not configured"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.config.AdminPasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	now := h.nowFn()
	expiresAt := now.Add(h.config.AdminTokenTTL)
	token, err := h.generateToken(now.Unix(), expiresAt.Unix())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, adminLoginResponse{Token: token, ExpiresAt: expiresAt.Unix()})
}

func (h *Handlers) generateToken(issuedAt, expiresAt int64) (string, error) {
	claims := jwt.MapClaims{
		"sub":  adminRole,
		"role": adminRole,
		"iat":  issuedAt,
		"exp":  expiresAt,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.config.AdminJWTSecret))
}

// AuthMiddleware admits requests carrying an admin token. Browsers cannot set
// headers on websocket upgrades, so the token query parameter is accepted too.
func (h *Handlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			return []byte(h.config.AdminJWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(h.nowFn))
		if err != nil || !token.Valid {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			c.Abort()
			return
		}
		if role, _ := claims["role"].(string); role != adminRole {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "admin role required"})
			c.Abort()
			return
		}

		c.Set("role", adminRole)
		c.Next()
	}
}
