package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success writes the standard response envelope around data.
func Success(c *gin.Context, data gin.H) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// Error writes an error envelope with the given status code. msg is the
// client-facing message; anything worth keeping goes to the log at the
// call site.
func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}
