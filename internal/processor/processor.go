// Package processor runs the worker pool at the root of the pipeline:
// a fixed set of workers draining the work queue, each taking an order
// through validate, enrich, calculate and persist before settling the
// message.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/catalog"
	"orderflow/internal/domain"
	"orderflow/internal/metrics"
	"orderflow/internal/pricing"
	"orderflow/internal/queue"
	"orderflow/internal/repository/order_repo"
)

type Config struct {
	Workers           int
	EnrichConcurrency int
}

type Processor struct {
	cfg     Config
	queue   queue.Queue
	repo    order_repo.ProcessedOrderRepository
	catalog catalog.Client
	metrics *metrics.Registry
	logger  *zap.Logger

	wg sync.WaitGroup
}

func New(
	cfg Config,
	q queue.Queue,
	repo order_repo.ProcessedOrderRepository,
	catalogClient catalog.Client,
	m *metrics.Registry,
	logger *zap.Logger,
) *Processor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.EnrichConcurrency < 1 {
		cfg.EnrichConcurrency = 1
	}
	return &Processor{
		cfg:     cfg,
		queue:   q,
		repo:    repo,
		catalog: catalogClient,
		metrics: m,
		logger:  logger,
	}
}

// Start launches the worker pool. Cancelling ctx stops receiving; each
// worker finishes the order it holds before exiting. Wait blocks until
// the pool has drained.
func (p *Processor) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
	p.logger.Info("Processor started", zap.Int("workers", p.cfg.Workers))
}

func (p *Processor) Wait() {
	p.wg.Wait()
	p.logger.Info("Processor stopped.")
}

func (p *Processor) workerLoop(ctx context.Context, workerID int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker_id", workerID))
	log.Debug("Worker started")

	for {
		msg, err := p.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				log.Debug("Worker exiting", zap.Error(err))
				return
			}
			log.Error("Error receiving message from queue", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		// The in-flight order runs to completion on a detached context:
		// shutdown must not abandon half-processed work, and every
		// external call carries its own timeout.
		p.handle(context.Background(), msg, log)
	}
}

func (p *Processor) handle(ctx context.Context, msg *queue.Message, log *zap.Logger) {
	p.metrics.Inflight.Inc()
	defer p.metrics.Inflight.Dec()

	var raw domain.RawOrder
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		// Undecodable payloads can never succeed; settle them so the
		// queue does not redeliver poison forever.
		log.Error("Discarding undecodable message",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		p.metrics.Poisoned.Inc()
		p.ack(ctx, msg, log)
		return
	}

	orderLog := log.With(zap.Int64("order_id", raw.ID))

	order, err := domain.ValidateOrder(raw)
	if err != nil {
		orderLog.Warn("Order failed validation", zap.Error(err))
		p.persistFailure(ctx, msg, failureRecordFromRaw(raw), err, orderLog)
		return
	}
	orderLog.Debug("Order validated", zap.Int("items", len(order.Items)))

	if err := p.enrich(ctx, order); err != nil {
		orderLog.Warn("Order failed enrichment", zap.Error(err))
		p.persistFailure(ctx, msg, failureRecordFromOrder(order), err, orderLog)
		return
	}
	order.Status = domain.OrderStatusEnriched

	res := pricing.Calculate(order)
	order.HashID = res.HashID
	order.Subtotal = res.Subtotal
	order.Discount = res.Discount
	order.Total = res.Total

	record := buildRecord(order)
	if err := p.repo.Upsert(ctx, record); err != nil {
		orderLog.Error("Failed to persist processed order, nacking for redelivery",
			zap.String("hash_id", order.HashID),
			zap.Error(err))
		p.nack(ctx, msg, log)
		return
	}

	p.ack(ctx, msg, orderLog)
	p.metrics.Processed.Inc()
	orderLog.Info("Order processed",
		zap.String("hash_id", order.HashID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("attempt", msg.Attempt))
}

// enrich fans the order's items out to the catalog, bounded by the
// per-order concurrency cap. The first failure cancels the remaining
// lookups; a partially enriched order is never persisted.
func (p *Processor) enrich(ctx context.Context, order *domain.Order) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, p.cfg.EnrichConcurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i := range order.Items {
		wg.Add(1)
		go func(item *domain.Item) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			p.metrics.EnrichmentLookups.Inc()
			product, err := p.catalog.Lookup(ctx, item.SKU)
			if err != nil {
				fail(err)
				return
			}
			item.ProductID = product.ID
			item.ProductName = product.Name
			item.Category = product.Category
			item.CatalogPrice = product.Price
			item.Enriched = true
		}(&order.Items[i])
	}
	wg.Wait()

	return firstErr
}

// persistFailure records a terminal failure so the order stays
// retrievable, then settles the message. A store error here falls back
// to nack: redelivery is the only remaining path.
func (p *Processor) persistFailure(ctx context.Context, msg *queue.Message, record *order_repo.ProcessedOrder, cause error, log *zap.Logger) {
	record.Status = domain.OrderStatusFailed
	record.FailureReason = cause.Error()

	if err := p.repo.Upsert(ctx, record); err != nil {
		log.Error("Failed to persist failure record, nacking for redelivery",
			zap.String("hash_id", record.HashID),
			zap.Error(err))
		p.nack(ctx, msg, log)
		return
	}
	p.ack(ctx, msg, log)
	p.metrics.Failed.Inc()
}

func (p *Processor) ack(ctx context.Context, msg *queue.Message, log *zap.Logger) {
	if err := p.queue.Ack(ctx, msg); err != nil {
		log.Error("Failed to ack message", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (p *Processor) nack(ctx context.Context, msg *queue.Message, log *zap.Logger) {
	p.metrics.Nacked.Inc()
	if err := p.queue.Nack(ctx, msg); err != nil {
		log.Error("Failed to nack message", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func buildRecord(order *domain.Order) *order_repo.ProcessedOrder {
	items := make([]order_repo.ProcessedItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = order_repo.ProcessedItem{
			SKU:          item.SKU,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Category:     item.Category,
			CatalogPrice: item.CatalogPrice,
			LineTotal:    item.LineTotal,
		}
	}
	return &order_repo.ProcessedOrder{
		HashID:      order.HashID,
		OrderID:     order.ID,
		Customer:    order.Customer,
		SubmittedAt: order.SubmittedAt,
		Status:      domain.OrderStatusPersisted,
		Subtotal:    order.Subtotal,
		Discount:    order.Discount,
		Total:       order.Total,
		Items:       items,
	}
}

// failureRecordFromRaw identifies a never-validated submission by a
// hash of the raw payload, so identical bad submissions converge.
func failureRecordFromRaw(raw domain.RawOrder) *order_repo.ProcessedOrder {
	items := make([]order_repo.ProcessedItem, len(raw.Items))
	for i, item := range raw.Items {
		items[i] = order_repo.ProcessedItem{
			SKU:      item.SKU,
			Quantity: item.Quantity,
		}
	}
	return &order_repo.ProcessedOrder{
		HashID:   pricing.FallbackHashID(raw),
		OrderID:  raw.ID,
		Customer: raw.Customer,
		Items:    items,
	}
}

// failureRecordFromOrder hashes on the submitted prices only; which
// catalog lookups happened to succeed before the failure must not
// change the record's identity.
func failureRecordFromOrder(order *domain.Order) *order_repo.ProcessedOrder {
	for i := range order.Items {
		order.Items[i].Enriched = false
	}
	items := make([]order_repo.ProcessedItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = order_repo.ProcessedItem{
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return &order_repo.ProcessedOrder{
		HashID:      pricing.HashID(order),
		OrderID:     order.ID,
		Customer:    order.Customer,
		SubmittedAt: order.SubmittedAt,
		Items:       items,
	}
}
