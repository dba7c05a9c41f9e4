package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Heyoub/caliber-sub001/internal/caliberr"
)

// writeError maps a core error onto its HTTP status (spec §7: "The
// transport maps codes to status as summarized in §6") and renders the
// structured {code, message, details} body. Non-caliberr errors fall
// through to 500 with a generic body, never a stack trace.
func writeError(c *gin.Context, err error) {
	kind, ok := caliberr.KindOf(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch kind {
	case caliberr.KindValidation:
		status = http.StatusUnprocessableEntity
	case caliberr.KindNotFound:
		status = http.StatusNotFound
	case caliberr.KindConflict:
		status = http.StatusConflict
	case caliberr.KindPermissionDenied:
		status = http.StatusForbidden
	case caliberr.KindProviderNotConfigured:
		status = http.StatusBadRequest
	case caliberr.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	var e *caliberr.Error
	if !errors.As(err, &e) {
		c.JSON(status, gin.H{"code": "internal_error", "message": "internal error"})
		return
	}
	c.JSON(status, gin.H{"code": e.Code, "message": e.Message, "details": e.Details})
}
