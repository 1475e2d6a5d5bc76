// Package httputil provides shared HTTP response helpers.
package httputil

import "github.com/gin-gonic/gin"

// RespondError writes a standardized JSON error response and aborts the request.
func RespondError(c *gin.Context, status int, code, message string) {
	RespondErrorDetails(c, status, code, message, nil)
}

// RespondErrorDetails is RespondError with an optional details payload,
// used for structured validation issues.
func RespondErrorDetails(c *gin.Context, status int, code, message string, details any) {
	resp := gin.H{
		"code":    code,
		"message": message,
	}

	if rid, exists := c.Get("request_id"); exists {
		if s, ok := rid.(string); ok && s != "" {
			resp["request_id"] = s
		}
	}

	if details != nil {
		resp["details"] = details
	}

	c.AbortWithStatusJSON(status, resp)
}
