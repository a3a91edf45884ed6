package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase pairs a sentinel error with the HTTP status and message it maps to.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError writes the response for the first case matching err.
// Unmatched errors get the fallback so internal detail never leaks to clients.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, mapped := range cases {
		if mapped.Err != nil && errors.Is(err, mapped.Err) {
			c.JSON(mapped.Status, NewErrorResponse(c, mapped.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
