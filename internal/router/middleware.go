package router

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"uchef.app/cart-api/pkg/global"
	"uchef.app/cart-api/pkg/models"
)

const userIDKey = "userId"

// Claims are issued by the auth service
type Claims struct {
	UserID models.Identity `json:"userId"`
	jwt.RegisteredClaims
}

func (c *Claims) owner() string {
	if c.UserID != "" {
		return c.UserID.String()
	}
	return strings.TrimSpace(c.Subject)
}

func parseToken(tokenStr, secret string) (*Claims, error) {
	if secret == "" {
		return nil, errors.New("token verification is not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// AuthMiddleware requires a Bearer token and stores its user id under "userId"
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, global.ErrorResponse("Missing or invalid token",
				global.FieldError("Authorization", "Bearer token is required", "missing_token")))
			return
		}

		claims, err := parseToken(strings.TrimPrefix(h, "Bearer "), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, global.ErrorResponse("Invalid token",
				global.FieldError("Authorization", err.Error(), "invalid_token")))
			return
		}

		owner := claims.owner()
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, global.ErrorResponse("Invalid token",
				global.FieldError("userId", "token carries no user", "invalid_claims")))
			return
		}

		c.Set(userIDKey, owner)
		c.Next()
	}
}

// SessionMiddleware rejects blank session ids before any handler creates a session
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.Param("sessionId")) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, global.ErrorResponse("sessionId required",
				global.FieldError("sessionId", "sessionId path parameter is required", "required")))
			return
		}
		c.Next()
	}
}

// RequestLogger writes one zerolog line per request
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
