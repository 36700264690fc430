package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ownerKey = "owner"

var errMissingToken = errors.New("missing authentication token")

// AuthConfig configures bearer token checks
type AuthConfig struct {
	Enabled bool
	Secret  []byte
	// DevOwner is the owner used for every request when auth is disabled
	DevOwner string
}

// Claims are the accepted token claims. The owner is the subject.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Auth resolves the request owner from an HS256 bearer token. Browsers
// cannot set headers on websocket upgrades, so the access_token query
// parameter is accepted as well.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Set(ownerKey, cfg.DevOwner)
			c.Next()
			return
		}

		claims, err := ParseToken(cfg.Secret, extractToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(ownerKey, claims.Subject)
		c.Next()
	}
}

// ParseToken validates a token and returns its claims
func ParseToken(secret []byte, tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, errMissingToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token: no subject")
	}
	return claims, nil
}

// Owner returns the authenticated owner of the request
func Owner(c *gin.Context) string {
	return c.GetString(ownerKey)
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return c.Query("access_token")
}
