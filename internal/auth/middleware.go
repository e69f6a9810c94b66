package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/akorh/huddle/internal/domain"
)

const identityKey = "huddle_identity"

// Middleware rejects unauthenticated requests before the WebSocket upgrade.
// Handlers behind it can rely on IdentityFrom returning a valid identity.
func Middleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, err := CredentialFromRequest(c.Request)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, ErrMissingCredentials) {
				log.Warn().Str("module", "auth").Str("path", c.Request.URL.Path).Msg("no credential")
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}
		id, err := v.Verify(cred)
		if err != nil {
			log.Warn().Str("module", "auth").Str("path", c.Request.URL.Path).Msg("invalid credential")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the identity the gate attached to this request.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}
