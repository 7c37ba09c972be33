package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/plugtrack/backend/internal/config"
	"github.com/plugtrack/backend/internal/db/models"
	"github.com/plugtrack/backend/internal/utils"
)

// Context keys set by RequireAuth
const (
	ContextUserID = "user_id"
	ContextEmail  = "user_email"
	ContextRole   = "user_role"
)

// AuthMiddleware verifies bearer tokens issued by the auth service
type AuthMiddleware struct {
	jwtConfig *config.JWTConfig
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(jwtConfig *config.JWTConfig) *AuthMiddleware {
	return &AuthMiddleware{
		jwtConfig: jwtConfig,
	}
}

// RequireAuth middleware ensures that a valid JWT token is present in the request
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Authorization header is required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			unauthorized(c, "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := validateToken(token, am.jwtConfig)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// RequireRole middleware ensures that the authenticated caller has the required role.
// Admins pass every role check.
func (am *AuthMiddleware) RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextRole)
		if !exists {
			unauthorized(c, "User is not authenticated")
			return
		}

		if userRole != string(models.RoleAdmin) && userRole != string(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, utils.ErrorResponse{
				Error:   "forbidden",
				Message: "Insufficient permissions",
			})
			return
		}

		c.Next()
	}
}

// RequireAdmin middleware ensures that the authenticated user has admin role
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return am.RequireRole(models.RoleAdmin)
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}

// validateToken validates the JWT token and returns the claims
func validateToken(tokenString string, cfg *config.JWTConfig) (*models.Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("JWT secret key is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &models.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, errors.New("token has expired")
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, errors.New("token was issued by an unknown issuer")
		}
		return nil, errors.New("invalid token")
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
