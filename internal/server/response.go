package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/signalhub/internal/apperrors"
)

// respondError writes an error as the unified JSON error body. Unknown errors
// are wrapped as internal before serialization so causes never leak to clients.
func respondError(c *gin.Context, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal(err)
	}
	c.JSON(appErr.HTTPStatus, appErr.ToResponse())
}

// respondInvalid writes a 400 for a malformed or rejected request body.
func respondInvalid(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, apperrors.InvalidInput(message).ToResponse())
}
