package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/shopdome/commerce/internal/auth/domain"
)

const contextIdentityKey = "identity"

// AuthRequired authenticates the bearer token and stores the admin
// identity on the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		identity, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextIdentityKey, identity)
		c.Next()
	}
}

// RequireRole gates a route to the listed roles. It must run after
// AuthRequired.
func (s *Server) RequireRole(roles ...authdomain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := identityFromContext(c)
		if identity == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}

		AbortWithError(c, ErrForbidden)
	}
}

// CheckoutRateLimit throttles session creation per client IP. Without a
// configured limiter it is a no-op.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.checkoutLimiter == nil {
			c.Next()
			return
		}

		allowed, retryAfter := s.checkoutLimiter.Allow(c.Request.Context(), c.ClientIP())
		if allowed {
			c.Next()
			return
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "checkout_sessions")
		}
		if retryAfter > 0 {
			c.Header("Retry-After", formatRetryAfter(retryAfter))
		}
		AbortWithError(c, ErrTooManyRequests)
	}
}

func identityFromContext(c *gin.Context) *authdomain.Identity {
	val, ok := c.Get(contextIdentityKey)
	if !ok {
		return nil
	}
	identity, ok := val.(*authdomain.Identity)
	if !ok {
		return nil
	}
	return identity
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
