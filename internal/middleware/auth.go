package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/identity"
	"ephemeral-chat/internal/models"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userID"

// ProfileSyncer mirrors the identity provider's profile into the store.
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, user models.User) (models.User, error)
}

// AuthMiddleware verifies the bearer token issued by the identity provider and
// mirrors the caller's profile before the handler runs.
func AuthMiddleware(verifier *identity.Verifier, profiles ProfileSyncer, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization", "code": "UNAUTHENTICATED"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header", "code": "UNAUTHENTICATED"})
			return
		}

		user, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "UNAUTHENTICATED"})
			return
		}

		if _, err := profiles.SyncProfile(c.Request.Context(), user); err != nil {
			log.Warn("profile sync failed", zap.String("user_id", user.ID), zap.Error(err))
			code, message := apperr.Describe(err)
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": message, "code": code})
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Next()
	}
}
