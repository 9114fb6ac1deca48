package log

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// GinMiddleware returns a Gin middleware that:
//  1. Generates or reads a request ID from X-Request-ID header.
//  2. Creates a child logger with request metadata and injects it into context.
//  3. Sets the X-Request-ID response header.
//  4. Logs the completed request with status, latency, and actor info.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}

		child := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP()).
			Logger()

		c.Header(headerRequestID, reqID)
		c.Set(FieldRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		evt := child.Info().
			Int(FieldStatus, c.Writer.Status()).
			Float64(FieldLatency, float64(time.Since(start).Milliseconds()))

		// Read actor info set by the admin middleware after c.Next().
		if actor, ok := c.Get(FieldActor); ok {
			evt = evt.Str(FieldActor, actor.(string))
		}

		evt.Msg("request completed")
	}
}

// GinRecovery recovers handler panics, logs them with the request logger and
// answers 500 when nothing was written yet. http.ErrAbortHandler is re-raised
// so net/http drops the connection instead of finishing the response.
func GinRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			l := Ctx(c.Request.Context())
			l.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("panic recovered")

			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"ok":      false,
					"message": "internal server error",
					"code":    "INTERNAL_ERROR",
				})
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}

// RequestID returns the request ID assigned by GinMiddleware, if any.
func RequestID(c *gin.Context) string {
	if id, ok := c.Get(FieldRequestID); ok {
		return id.(string)
	}
	return ""
}
