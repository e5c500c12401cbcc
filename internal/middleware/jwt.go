package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-identity-api/internal/models"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
	"github.com/noah-isme/sma-identity-api/pkg/logger"
	"github.com/noah-isme/sma-identity-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

var errMalformedHeader = appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")

// JWT requires a bearer access token and stores its claims on the context.
// The caller's login ID and tenant are added to the access log line.
func JWT(auth tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		logger.AddFields(c,
			zap.String("login_id", claims.LoginID),
			zap.String("role", string(claims.Role)),
			zap.String("tenant_id", claims.TenantID),
		)
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMalformedHeader
	}
	return token, nil
}

// Claims returns the authenticated claims or nil.
func Claims(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
