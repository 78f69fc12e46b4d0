package orders

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"orderflow/internal/domain"
	"orderflow/internal/metrics"
	"orderflow/internal/queue"
	"orderflow/internal/repository/order_repo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// OrderHandler is the thin glue in front of the pipeline: submissions
// go to the work queue fire-and-forget, reads go straight to the store.
type OrderHandler struct {
	queue   queue.Queue
	repo    order_repo.ProcessedOrderRepository
	metrics *metrics.Registry
	logger  *zap.Logger
}

func NewOrderHandler(q queue.Queue, repo order_repo.ProcessedOrderRepository, m *metrics.Registry, l *zap.Logger) *OrderHandler {
	return &OrderHandler{queue: q, repo: repo, metrics: m, logger: l}
}

type submitResponse struct {
	Status  string `json:"status"`
	OrderID int64  `json:"order_id"`
}

type orderResponse struct {
	HashID        string              `json:"hash_id"`
	OrderID       int64               `json:"order_id"`
	Customer      string              `json:"customer"`
	SubmittedAt   string              `json:"submitted_at,omitempty"`
	Status        string              `json:"status"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Subtotal      string              `json:"subtotal"`
	Discount      string              `json:"discount"`
	Total         string              `json:"total"`
	Items         []orderItemResponse `json:"items"`
	CreatedAt     string              `json:"created_at"`
}

type orderItemResponse struct {
	SKU          string `json:"sku"`
	Quantity     int    `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	ProductID    int64  `json:"product_id,omitempty"`
	ProductName  string `json:"product_name,omitempty"`
	Category     string `json:"category,omitempty"`
	CatalogPrice string `json:"catalog_price"`
	LineTotal    string `json:"line_total"`
}

func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawOrder
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.logger.Warn("Invalid request body for SubmitOrder", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		h.logger.Error("Failed to marshal order payload", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.queue.Submit(r.Context(), payload); err != nil {
		// Queue failures are surfaced to the producer, never dropped.
		h.logger.Error("Failed to enqueue order", zap.Int64("order_id", raw.ID), zap.Error(err))
		http.Error(w, "Order queue unavailable", http.StatusServiceUnavailable)
		return
	}

	h.metrics.Submitted.Inc()
	h.logger.Info("Order accepted", zap.Int64("order_id", raw.ID))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(submitResponse{Status: "accepted", OrderID: raw.ID})
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	hashID := chi.URLParam(r, "hashID")

	order, err := h.repo.GetByHashID(r.Context(), hashID)
	if err != nil {
		if errors.Is(err, order_repo.ErrNotFound) {
			h.logger.Debug("Order not found", zap.String("hash_id", hashID))
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Error getting order", zap.String("hash_id", hashID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mapOrderToResponse(order))
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	orders, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Error listing orders", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	res := make([]orderResponse, len(orders))
	for i, order := range orders {
		res[i] = mapOrderToResponse(order)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func mapOrderToResponse(order *order_repo.ProcessedOrder) orderResponse {
	items := make([]orderItemResponse, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemResponse{
			SKU:          item.SKU,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice.StringFixed(2),
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Category:     item.Category,
			CatalogPrice: item.CatalogPrice.StringFixed(2),
			LineTotal:    item.LineTotal.StringFixed(2),
		}
	}

	res := orderResponse{
		HashID:        order.HashID,
		OrderID:       order.OrderID,
		Customer:      order.Customer,
		Status:        string(order.Status),
		FailureReason: order.FailureReason,
		Subtotal:      order.Subtotal.StringFixed(2),
		Discount:      order.Discount.StringFixed(2),
		Total:         order.Total.StringFixed(2),
		Items:         items,
		CreatedAt:     order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !order.SubmittedAt.IsZero() {
		res.SubmittedAt = order.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return res
}
