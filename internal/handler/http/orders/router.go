package orders

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"orderflow/internal/metrics"
	"orderflow/internal/queue"
	"orderflow/internal/repository/order_repo"
)

func RegisterRoutes(r chi.Router, q queue.Queue, repo order_repo.ProcessedOrderRepository, m *metrics.Registry, l *zap.Logger) {
	handler := NewOrderHandler(q, repo, m, l.With(zap.String("component", "OrderHTTPHandler")))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.SubmitOrder)
		r.Get("/", handler.ListOrders)
		r.Get("/{hashID}", handler.GetOrder)
	})
}
