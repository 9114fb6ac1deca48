package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the envelope written for every failed request.
type ErrorBody struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// OK sends a 200 response. The fields are merged with "ok": true.
func OK(c *gin.Context, fields gin.H) {
	c.JSON(http.StatusOK, withOK(fields, true))
}

// Partial sends a 207 response for a batch that finished with per-key failures.
// It never reports "ok": true.
func Partial(c *gin.Context, fields gin.H, errs interface{}) {
	body := withOK(fields, false)
	body["partial"] = true
	body["errors"] = errs
	c.JSON(http.StatusMultiStatus, body)
}

func withOK(fields gin.H, ok bool) gin.H {
	body := gin.H{"ok": ok}
	for k, v := range fields {
		body[k] = v
	}
	return body
}

// Error sends an error response.
func Error(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorBody{
		OK:      false,
		Message: message,
		Code:    code,
	})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, "CONFLICT", message)
}

// TooLarge sends a 413 error response.
func TooLarge(c *gin.Context, message string) {
	Error(c, http.StatusRequestEntityTooLarge, "TOO_LARGE", message)
}

// NotImplemented sends a 501 error response.
func NotImplemented(c *gin.Context, message string) {
	Error(c, http.StatusNotImplemented, "NOT_IMPLEMENTED", message)
}

// BadGateway sends a 502 error response. Used when the object store refuses us.
func BadGateway(c *gin.Context, message string) {
	Error(c, http.StatusBadGateway, "STORE_DENIED", message)
}

// Unavailable sends a 503 error response.
func Unavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", message)
}

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}
