package v1

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/outage_reports/internal/config"
	"github.com/sirupsen/logrus"
)

// APIKeyAuthMiddleware защищает шаги мастера и удаление отчетов.
// Ключ принимается в X-API-Key или в Authorization: Bearer.
func APIKeyAuthMiddleware(cfg *config.Config, log *logrus.Logger) gin.HandlerFunc {
	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		if key != "" {
			keys = append(keys, []byte(key))
		}
	}

	return func(c *gin.Context) {
		apiKey := extractAPIKey(c)
		entry := log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		})

		if apiKey == "" {
			entry.Warn("API key missing from request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}

		if !matchesAny(keys, []byte(apiKey)) {
			entry.Warn("Invalid API key provided")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Next()
	}
}

func extractAPIKey(c *gin.Context) string {
	if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
		return apiKey
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// matchesAny сравнивает ключи за постоянное время
func matchesAny(keys [][]byte, candidate []byte) bool {
	matched := false
	for _, key := range keys {
		if subtle.ConstantTimeCompare(key, candidate) == 1 {
			matched = true
		}
	}
	return matched
}
