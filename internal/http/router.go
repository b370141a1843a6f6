// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripengine/internal/http/handlers"
	"tripengine/internal/http/middleware"
	"tripengine/internal/modules/order"
)

type RouterDeps struct {
	Dispatcher handlers.Dispatcher
	Orders     handlers.OrderStore
	Normalizer order.Normalizer
	Logger     *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(deps.Logger), middleware.Recovery(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	orderHandler := handlers.NewOrderHandler(deps.Orders, deps.Normalizer)
	r.POST("/api/orders", orderHandler.Create)
	r.GET("/api/orders/:kind/:id", orderHandler.Get)

	workerHandler := handlers.NewWorkerHandler(deps.Dispatcher)
	worker := r.Group("/api/worker", middleware.Session())
	worker.GET("/orders/available", workerHandler.ListAvailable)
	worker.POST("/orders/:kind/:id/accept", workerHandler.Accept)
	worker.POST("/trips/:kind/:id/status", workerHandler.UpdateStatus)
	worker.GET("/trips/active", workerHandler.Active)
	worker.GET("/trips/history", workerHandler.History)
	worker.GET("/stats", workerHandler.Stats)
	worker.GET("/earnings", workerHandler.Earnings)
	worker.PUT("/availability", workerHandler.SetAvailability)

	return r
}
