package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/ecom-backend/internal/user"
)

const userKey = "auth.currentUser"

// TokenStore tracks revoked token ids.
type TokenStore interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

// OTPStore issues and verifies one-time codes keyed by email.
type OTPStore interface {
	StoreOTP(ctx context.Context, email, otp string, ttl time.Duration) error
	VerifyOTP(ctx context.Context, email, otp string) (bool, error)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// RequireUser authenticates the bearer token, rejects revoked tokens and
// inactive accounts, and stores the loaded user on the context.
func RequireUser(tokens *Tokens, users user.Repository, revoked TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil || claims.Kind != KindAccess {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if black, err := revoked.IsTokenBlacklisted(c.Request.Context(), claims.JTI); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth backend error"})
			return
		} else if black {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}
		u, err := users.GetByID(c.Request.Context(), claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !u.IsActive {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "inactive user"})
			return
		}
		SetUser(c, u)
		c.Next()
	}
}

// SetUser stores u as the authenticated user on the context. RequireUser does
// this automatically; handler tests call it directly.
func SetUser(c *gin.Context, u *user.User) {
	c.Set(userKey, u)
}

// RequireAdmin must run after RequireUser.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil || !u.IsSuperuser {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not enough privileges"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by RequireUser, or nil.
func CurrentUser(c *gin.Context) *user.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*user.User)
	return u
}
