// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripengine/internal/modules/dispatch"
	"tripengine/internal/modules/order"
	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeTripError is the single place engine errors become status codes.
func writeTripError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, trip.ErrBadRequest),
		errors.Is(err, trip.ErrInvalidCancelReason),
		errors.Is(err, trip.ErrOTPRequired),
		errors.Is(err, order.ErrUnknownKind):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trip.ErrOTPMismatch):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, dispatch.ErrNotEligible), errors.Is(err, dispatch.ErrNotOwner):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, trip.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrAlreadyAssigned),
		errors.Is(err, trip.ErrInvalidTransition),
		errors.Is(err, trip.ErrTripClosed),
		errors.Is(err, order.ErrExists):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(c, http.StatusGatewayTimeout, "backend did not answer in time")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// refParam reads the :kind/:id path pair.
func refParam(c *gin.Context) (trip.Ref, bool) {
	kind, err := trip.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return trip.Ref{}, false
	}
	id := c.Param("id")
	if id == "" || len(id) > 64 {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return trip.Ref{}, false
	}
	return trip.Ref{Kind: kind, ID: types.ID(id)}, true
}
