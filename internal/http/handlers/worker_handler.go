// README: Worker handlers: available orders, accept, status updates, dashboards, availability.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripengine/internal/http/middleware"
	"tripengine/internal/modules/dispatch"
	"tripengine/internal/modules/stats"
	"tripengine/internal/modules/trip"
)

// Dispatcher is the slice of dispatch.Engine the worker routes need.
type Dispatcher interface {
	AvailableOrders(ctx context.Context, s dispatch.Session) (dispatch.Listing, error)
	Accept(ctx context.Context, s dispatch.Session, ref trip.Ref) (trip.Trip, error)
	Transition(ctx context.Context, s dispatch.Session, ref trip.Ref, to trip.Status, p trip.Payload) (trip.Trip, error)
	ActiveTrips(ctx context.Context, s dispatch.Session) ([]trip.Trip, error)
	History(ctx context.Context, s dispatch.Session, f stats.Filter) ([]trip.Trip, error)
	Stats(ctx context.Context, s dispatch.Session) (stats.Stats, error)
	Earnings(ctx context.Context, s dispatch.Session) (stats.EarningsSummary, error)
	SetAvailability(ctx context.Context, s dispatch.Session, online bool) error
}

type WorkerHandler struct {
	dispatch Dispatcher
}

func NewWorkerHandler(d Dispatcher) *WorkerHandler {
	return &WorkerHandler{dispatch: d}
}

type statusReq struct {
	Status       string   `json:"status"`
	OTP          string   `json:"otp"`
	CancelReason string   `json:"cancel_reason"`
	Rating       *float64 `json:"rating"`
}

type availabilityReq struct {
	Online *bool `json:"online"`
}

func session(c *gin.Context) (dispatch.Session, bool) {
	s, ok := middleware.WorkerSession(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, dispatch.ErrNoSession.Error())
	}
	return s, ok
}

func (h *WorkerHandler) ListAvailable(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	listing, err := h.dispatch.AvailableOrders(c.Request.Context(), s)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, listing)
}

func (h *WorkerHandler) Accept(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	ref, ok := refParam(c)
	if !ok {
		return
	}
	t, err := h.dispatch.Accept(c.Request.Context(), s, ref)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (h *WorkerHandler) UpdateStatus(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	ref, ok := refParam(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	to, err := trip.ParseStatus(req.Status)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		writeError(c, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	t, err := h.dispatch.Transition(c.Request.Context(), s, ref, to, trip.Payload{
		OTP:          req.OTP,
		CancelReason: trip.CancelReason(req.CancelReason),
		Rating:       req.Rating,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, t)
}

func (h *WorkerHandler) Active(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	trips, err := h.dispatch.ActiveTrips(c.Request.Context(), s)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trips": trips})
}

func (h *WorkerHandler) History(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	f, err := stats.ParseFilter(c.Query("filter"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	trips, err := h.dispatch.History(c.Request.Context(), s, f)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"filter": f, "trips": trips})
}

func (h *WorkerHandler) Stats(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	st, err := h.dispatch.Stats(c.Request.Context(), s)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (h *WorkerHandler) Earnings(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	e, err := h.dispatch.Earnings(c.Request.Context(), s)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, e)
}

func (h *WorkerHandler) SetAvailability(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Online == nil {
		writeError(c, http.StatusBadRequest, "online is required")
		return
	}
	if err := h.dispatch.SetAvailability(c.Request.Context(), s, *req.Online); err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"online": *req.Online})
}
