// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zeizeiwaii/Datastar/internal/modules/dispatch"
	"github.com/zeizeiwaii/Datastar/internal/modules/request"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the ids clients send for trip requests: up to 64
// characters of letters, digits, '-' and '_'.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeRequestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, request.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, request.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, request.ErrInvalidState), errors.Is(err, request.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// dispatchStatus maps an envelope error code to an HTTP status.
func dispatchStatus(code string) int {
	switch code {
	case dispatch.CodeEmptyBatch, dispatch.CodeInvalidInput:
		return http.StatusBadRequest
	case dispatch.CodeNoClusters, dispatch.CodeNoRoutes:
		return http.StatusUnprocessableEntity
	case dispatch.CodeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDispatchError writes a failed envelope with the status its code maps
// to. The envelope stays the body so clients see partial results.
func writeDispatchError(c *gin.Context, env *dispatch.Envelope) {
	if err := env.Err(); err != nil {
		_ = c.Error(err)
	}
	writeJSON(c, dispatchStatus(env.ErrorCode), env)
}
