// Package middleware authenticates requests from the bearer JWT issued by the
// auth service.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"houmetna-service/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	contextKeyUserID = "user_id"
	contextKeyRole   = "role"

	tokenTTL = 24 * time.Hour
)

// Claims is the token payload shared with the auth service.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// GenerateJWT signs a token for userID with the given role.
func GenerateJWT(secret, userID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
		UserID: userID,
		Role:   role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// JWTAuth verifies the bearer token and stores the caller in the context.
// EventSource clients cannot set headers, so the token may also come from the
// "token" query parameter.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := parseToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id in token"})
			return
		}

		c.Set(contextKeyUserID, userID)
		c.Set(contextKeyRole, claims.Role)
		c.Next()
	}
}

// GetCaller returns the identity stored by JWTAuth, or a zero Caller.
func GetCaller(c *gin.Context) model.Caller {
	var caller model.Caller
	if v, ok := c.Get(contextKeyUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			caller.UserID = id
		}
	}
	if v, ok := c.Get(contextKeyRole); ok {
		if role, ok := v.(string); ok {
			caller.Role = role
		}
	}
	return caller
}

func extractToken(c *gin.Context) (string, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		token, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || token == "" {
			return "", errors.New("malformed bearer token")
		}
		return token, nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", errors.New("authorization required")
}

func parseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
