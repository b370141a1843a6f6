// README: Handler tests for request validation and error mapping.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"tripengine/internal/http/handlers"
	"tripengine/internal/http/middleware"
	"tripengine/internal/modules/dispatch"
	"tripengine/internal/modules/stats"
	"tripengine/internal/modules/trip"
)

// stubDispatcher returns err from every call and records the last transition.
type stubDispatcher struct {
	err     error
	to      trip.Status
	payload trip.Payload
}

func (s *stubDispatcher) AvailableOrders(context.Context, dispatch.Session) (dispatch.Listing, error) {
	return dispatch.Listing{Trips: []trip.Trip{}}, s.err
}

func (s *stubDispatcher) Accept(_ context.Context, _ dispatch.Session, ref trip.Ref) (trip.Trip, error) {
	return trip.Trip{ID: ref.ID, OrderKind: ref.Kind, Status: trip.StatusAccepted}, s.err
}

func (s *stubDispatcher) Transition(_ context.Context, _ dispatch.Session, ref trip.Ref, to trip.Status, p trip.Payload) (trip.Trip, error) {
	s.to, s.payload = to, p
	return trip.Trip{ID: ref.ID, OrderKind: ref.Kind, Status: to}, s.err
}

func (s *stubDispatcher) ActiveTrips(context.Context, dispatch.Session) ([]trip.Trip, error) {
	return []trip.Trip{}, s.err
}

func (s *stubDispatcher) History(context.Context, dispatch.Session, stats.Filter) ([]trip.Trip, error) {
	return []trip.Trip{}, s.err
}

func (s *stubDispatcher) Stats(context.Context, dispatch.Session) (stats.Stats, error) {
	return stats.Stats{}, s.err
}

func (s *stubDispatcher) Earnings(context.Context, dispatch.Session) (stats.EarningsSummary, error) {
	return stats.EarningsSummary{}, s.err
}

func (s *stubDispatcher) SetAvailability(context.Context, dispatch.Session, bool) error {
	return s.err
}

func buildTestRouter(d handlers.Dispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewWorkerHandler(d)
	g := r.Group("/api/worker", middleware.Session())
	g.GET("/orders/available", h.ListAvailable)
	g.POST("/orders/:kind/:id/accept", h.Accept)
	g.POST("/trips/:kind/:id/status", h.UpdateStatus)
	g.GET("/trips/history", h.History)
	g.PUT("/availability", h.SetAvailability)
	return r
}

func doRequest(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderWorkerID, "w1")
	req.Header.Set(middleware.HeaderCapability, "taxi")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAccept_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{trip.ErrAlreadyAssigned, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", trip.ErrInvalidTransition), http.StatusConflict},
		{trip.ErrTripClosed, http.StatusConflict},
		{trip.ErrNotFound, http.StatusNotFound},
		{trip.ErrOTPRequired, http.StatusBadRequest},
		{trip.ErrInvalidCancelReason, http.StatusBadRequest},
		{trip.ErrOTPMismatch, http.StatusUnprocessableEntity},
		{dispatch.ErrNotEligible, http.StatusForbidden},
		{dispatch.ErrNotOwner, http.StatusForbidden},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := buildTestRouter(&stubDispatcher{err: tc.err})
		w := doRequest(r, http.MethodPost, "/api/worker/orders/taxi/t1/accept", nil)
		if w.Code != tc.want {
			t.Errorf("err %v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestAccept_UnknownKind(t *testing.T) {
	r := buildTestRouter(&stubDispatcher{})
	w := doRequest(r, http.MethodPost, "/api/worker/orders/helicopter/t1/accept", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestUpdateStatus_Validation(t *testing.T) {
	cases := []struct {
		name string
		body any
		want int
	}{
		{"unknown status", map[string]any{"status": "flying"}, http.StatusBadRequest},
		{"pending is not a target", map[string]any{"status": "pending"}, http.StatusBadRequest},
		{"rating out of range", map[string]any{"status": "completed", "rating": 7}, http.StatusBadRequest},
		{"ok", map[string]any{"status": "active", "otp": "1234"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := buildTestRouter(&stubDispatcher{})
			w := doRequest(r, http.MethodPost, "/api/worker/trips/taxi/t1/status", tc.body)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestUpdateStatus_PassesPayload(t *testing.T) {
	d := &stubDispatcher{}
	r := buildTestRouter(d)
	w := doRequest(r, http.MethodPost, "/api/worker/trips/taxi/t1/status", map[string]any{
		"status":        "cancelled",
		"cancel_reason": "vehicle_issue",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if d.to != trip.StatusCancelled || d.payload.CancelReason != trip.CancelVehicleIssue {
		t.Errorf("unexpected transition %s %+v", d.to, d.payload)
	}
}

func TestHistory_BadFilter(t *testing.T) {
	r := buildTestRouter(&stubDispatcher{})
	w := doRequest(r, http.MethodGet, "/api/worker/trips/history?filter=weird", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestSetAvailability_RequiresFlag(t *testing.T) {
	r := buildTestRouter(&stubDispatcher{})
	if w := doRequest(r, http.MethodPut, "/api/worker/availability", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodPut, "/api/worker/availability", map[string]any{"online": false}); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
