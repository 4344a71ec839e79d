package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// userIDHeader carries the authenticated user's ID, set by the fronting
// auth layer.
const userIDHeader = "X-User-ID"

// currentUserID extracts the user ID from the request headers. It writes
// a 401 response and returns false when the header is missing or invalid.
func currentUserID(c *gin.Context) (uint, bool) {
	raw := c.GetHeader(userIDHeader)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User identification required",
		})
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid user identification",
		})
		return 0, false
	}
	return uint(id), true
}
