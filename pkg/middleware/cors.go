package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig holds CORS middleware configuration.
type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowedMethods  []string `mapstructure:"allowed_methods"`
	AllowedHeaders  []string `mapstructure:"allowed_headers"`
	ExposeHeaders   []string `mapstructure:"expose_headers"`
	AllowNullOrigin bool     `mapstructure:"allow_null_origin"`
	MaxAgeSeconds   int      `mapstructure:"max_age_seconds"`
}

// DefaultCORSConfig returns the headers and methods the album front-end needs.
func DefaultCORSConfig(origins []string) CORSConfig {
	return CORSConfig{
		AllowedOrigins:  origins,
		AllowedMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:  []string{"Content-Type", "Authorization", AlbumTokenHeader, AdminTokenHeader, "X-Request-ID"},
		ExposeHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowNullOrigin: true,
		MaxAgeSeconds:   600,
	}
}

// CORS returns a Gin middleware that sets CORS headers for allowed origins and
// answers OPTIONS preflight requests.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := isAllowedOrigin(origin, cfg)
		if allowed {
			setCORSHeaders(c.Writer.Header(), origin, cfg)
		}

		if c.Request.Method == http.MethodOptions {
			if !allowed && origin != "" {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// setCORSHeaders writes CORS response headers for an allowed origin.
func setCORSHeaders(h http.Header, origin string, cfg CORSConfig) {
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")
	if len(cfg.AllowedMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
	}
	if len(cfg.AllowedHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
	}
	if len(cfg.ExposeHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
	}
	if cfg.MaxAgeSeconds > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAgeSeconds))
	}
}

func isAllowedOrigin(origin string, cfg CORSConfig) bool {
	if origin == "" {
		return false
	}
	// Sandboxed iframes and file:// pages send "null".
	if origin == "null" {
		return cfg.AllowNullOrigin
	}
	for _, a := range cfg.AllowedOrigins {
		if origin == a || a == "*" {
			return true
		}
	}
	return false
}
