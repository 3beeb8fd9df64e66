package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"formflow/internal/auth"
	"formflow/internal/model"
	"formflow/internal/service"
	"formflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	callerKey = "caller"
)

// UserLookup resolves the account behind a token. Soft-deleted users must not be found.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type Authenticator struct {
	tokens     *auth.TokenManager
	users      UserLookup
	secure     bool
	refreshTTL time.Duration
}

func NewAuthenticator(tokens *auth.TokenManager, users UserLookup, secureCookies bool, refreshTTL time.Duration) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, secure: secureCookies, refreshTTL: refreshTTL}
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func (a *Authenticator) SetTokenCookies(c *gin.Context, accessToken, refreshToken string) {
	a.setSameSite(c)
	c.SetCookie(AccessCookie, accessToken, int(a.tokens.TTL().Seconds()), "/", "", a.secure, true)
	c.SetCookie(RefreshCookie, refreshToken, int(a.refreshTTL.Seconds()), "/", "", a.secure, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func (a *Authenticator) ClearTokenCookies(c *gin.Context) {
	a.setSameSite(c)
	c.SetCookie(AccessCookie, "", -1, "/", "", a.secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", a.secure, true)
}

// Cross-origin deployments need SameSite=None, which browsers only accept with Secure.
func (a *Authenticator) setSameSite(c *gin.Context) {
	if a.secure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
}

func tokenFromRequest(c *gin.Context) (string, string) {
	// Try cookie first, fallback to Authorization header
	if token, err := c.Cookie(AccessCookie); err == nil && token != "" {
		return token, ""
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", "Authorization is missing"
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "Invalid authorization format. Expected 'Bearer <token>'"
	}
	return parts[1], ""
}

// Authenticate resolves a raw token to a caller. Deleted accounts are rejected.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (service.Caller, bool) {
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return service.Caller{}, false
	}
	id, err := claims.UserID()
	if err != nil {
		return service.Caller{}, false
	}
	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		return service.Caller{}, false
	}
	return service.Caller{ID: user.ID, Username: user.Username, Role: user.Role}, true
}

// RequireAuth rejects the request unless it carries a valid session.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return a.RequireRole()
}

// RequireRole authenticates the request and, when roles are given, checks the caller holds one.
func (a *Authenticator) RequireRole(allowedRoles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := tokenFromRequest(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, problem))
			return
		}
		caller, ok := a.Authenticate(c.Request.Context(), token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid or expired session"))
			return
		}

		if len(allowedRoles) > 0 {
			allowed := false
			for _, role := range allowedRoles {
				if caller.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
				return
			}
		}

		c.Set(callerKey, caller)
		c.Set("userID", caller.ID.String())
		c.Set("userRole", string(caller.Role))
		c.Next()
	}
}

// CallerFrom returns the caller stored by RequireRole.
func CallerFrom(c *gin.Context) (service.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return service.Caller{}, false
	}
	caller, ok := v.(service.Caller)
	return caller, ok
}
