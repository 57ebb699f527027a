package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const contextKeyID = "webhookKeyID"

// KeyVerifier resolves a plaintext API key to its stored record.
type KeyVerifier interface {
	VerifyKey(ctx context.Context, plaintext string) (APIKey, error)
}

// APIKeyAuth validates the X-Webhook-API-Key header and sets the key ID on
// the gin context for downstream handlers.
func APIKeyAuth(keys KeyVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Webhook-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		key, err := keys.VerifyKey(c.Request.Context(), apiKey)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "key verification failed"})
			return
		}

		c.Set(contextKeyID, key.ID)
		c.Next()
	}
}
