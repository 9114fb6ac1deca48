package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andresverguilla1987/mixtli-nube/pkg/response"
)

const (
	ActorKey         = "actor"
	AuthHeaderKey    = "Authorization"
	BearerPrefix     = "Bearer "
	AdminTokenHeader = "X-Admin-Token"
	AlbumTokenHeader = "X-Album-Token"
	AlbumTokenQuery  = "token"
)

// RequireAdmin returns a Gin middleware that only lets requests carrying the
// configured admin token through. The token comes from X-Admin-Token or a
// Bearer authorization header.
func RequireAdmin(adminToken string) gin.HandlerFunc {
	expected := []byte(adminToken)
	return func(c *gin.Context) {
		got := c.GetHeader(AdminTokenHeader)
		if got == "" {
			got = BearerToken(c)
		}

		if len(expected) == 0 || got == "" || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			response.Unauthorized(c, "unauthorized")
			return
		}

		c.Set(ActorKey, "admin")
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthHeaderKey)
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
}

// AlbumToken extracts an album access token from X-Album-Token, a Bearer
// header, or the "token" query parameter used by ZIP download links.
func AlbumToken(c *gin.Context) string {
	if tok := c.GetHeader(AlbumTokenHeader); tok != "" {
		return tok
	}
	if tok := BearerToken(c); tok != "" {
		return tok
	}
	return c.Query(AlbumTokenQuery)
}

// GetActor returns who is acting on the request, "anonymous" when unknown.
func GetActor(c *gin.Context) string {
	if actor, exists := c.Get(ActorKey); exists {
		if s, ok := actor.(string); ok && s != "" {
			return s
		}
	}
	return "anonymous"
}
