package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lmpstore-backend/internal/http/response"
	"github.com/yungbote/lmpstore-backend/internal/pkg/apperr"
)

// respondStoreError maps the store's error taxonomy onto HTTP statuses:
// validation and referential problems are the client's fault (400),
// missing resources are 404, everything else is a 500.
func respondStoreError(c *gin.Context, err error) {
	var apiErr *apperr.Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		response.RespondError(c, apiErr.Status, apiErr.Code, err)
		return
	}
	switch {
	case errors.Is(err, apperr.ErrValidation):
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
	case errors.Is(err, apperr.ErrReferentialIntegrity):
		response.RespondError(c, http.StatusBadRequest, "referential_integrity_error", err)
	case errors.Is(err, apperr.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "not_found", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
