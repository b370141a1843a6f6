// README: Order intake and lookup against the reference backend store.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripengine/internal/modules/order"
	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

// OrderStore is implemented by order.Store and order.MemoryStore.
type OrderStore interface {
	Create(ctx context.Context, o order.RawOrder, otp string) error
	Get(ctx context.Context, ref trip.Ref) (order.RawOrder, int, error)
}

type OrderHandler struct {
	store      OrderStore
	normalizer order.Normalizer
}

func NewOrderHandler(store OrderStore, normalizer order.Normalizer) *OrderHandler {
	return &OrderHandler{store: store, normalizer: normalizer}
}

type createOrderExtras struct {
	OTP string `json:"otp"`
}

// Create accepts a raw backend order, discriminated by "type".
func (h *OrderHandler) Create(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable body")
		return
	}
	var extras createOrderExtras
	if err := json.Unmarshal(body, &extras); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	raw, err := order.Decode(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	base := raw.Base()
	if base.ID() == "" {
		base.OrderID = types.NewID()
	}
	base.Status = ""
	base.WorkerID = ""

	if err := h.store.Create(c.Request.Context(), raw, extras.OTP); err != nil {
		writeTripError(c, err)
		return
	}
	t := h.normalizer.Normalize(raw)
	t.Status = trip.StatusPending
	writeJSON(c, http.StatusCreated, t)
}

func (h *OrderHandler) Get(c *gin.Context) {
	ref, ok := refParam(c)
	if !ok {
		return
	}
	raw, version, err := h.store.Get(c.Request.Context(), ref)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trip": h.normalizer.Normalize(raw), "version": version})
}
