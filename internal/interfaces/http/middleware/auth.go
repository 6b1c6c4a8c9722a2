package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	appuser "github.com/dealdeskhq/dealdesk/internal/application/user"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/auth"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// ContextIdentity is the gin context key holding the caller's auth.Identity.
const ContextIdentity = "identity"

// Auth verifies the bearer token, provisions the account on first sight
// and attaches the caller's identity to both the gin context and the
// request context.
func Auth(verifier auth.Verifier, users appuser.Service, log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "missing bearer token")
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			log.Debug("token verification failed",
				logging.String("request_id", c.GetString(ContextRequestID)),
				logging.Err(err))
			unauthorized(c, "invalid token")
			return
		}

		u, err := users.EnsureUser(c.Request.Context(), claims)
		if err != nil {
			log.Error("user provisioning failed",
				logging.String("subject", claims.Subject),
				logging.Err(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    string(errors.ErrCodeInternal),
				"message": "internal server error",
			})
			return
		}

		identity := auth.Identity{
			UserID:  common.ID(u.ID),
			Subject: claims.Subject,
			Email:   u.Email,
			Name:    u.Name,
		}
		c.Set(ContextIdentity, identity)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

// IdentityFrom returns the identity the Auth middleware attached, if any.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="dealdesk"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    string(errors.ErrCodeUnauthorized),
		"message": msg,
	})
}
