package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderflow/internal/catalog"
	"orderflow/internal/domain"
	"orderflow/internal/metrics"
	"orderflow/internal/queue"
	"orderflow/internal/repository/order_repo"
	"orderflow/internal/repository/order_repo/memory"
)

// fakeCatalog serves products from a map and counts lookups.
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	failures map[string]error
	lookups  int
}

func (f *fakeCatalog) Lookup(ctx context.Context, sku string) (catalog.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if err, ok := f.failures[sku]; ok {
		return catalog.Product{}, err
	}
	if p, ok := f.products[sku]; ok {
		return p, nil
	}
	return catalog.Product{}, &catalog.EnrichmentError{SKU: sku, Kind: catalog.ErrorKindNotFound, Err: errors.New("unknown sku")}
}

func (f *fakeCatalog) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

// flakyRepo fails the first failUpserts writes, then delegates.
type flakyRepo struct {
	order_repo.ProcessedOrderRepository
	mu          sync.Mutex
	failUpserts int
}

func (r *flakyRepo) Upsert(ctx context.Context, order *order_repo.ProcessedOrder) error {
	r.mu.Lock()
	if r.failUpserts > 0 {
		r.failUpserts--
		r.mu.Unlock()
		return errors.New("storage unavailable")
	}
	r.mu.Unlock()
	return r.ProcessedOrderRepository.Upsert(ctx, order)
}

func defaultCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: map[string]catalog.Product{
			"P001": {ID: 1, Name: "Backpack", Category: "gear", Price: decimal.NewFromInt(10)},
			"P002": {ID: 2, Name: "Shirt", Category: "clothing", Price: decimal.NewFromInt(20)},
		},
		failures: map[string]error{},
	}
}

func scenarioPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.RawOrder{
		ID:       123,
		Customer: "ACME Corp",
		Items: []domain.RawItem{
			{SKU: "P001", Quantity: 3, UnitPrice: 10},
			{SKU: "P002", Quantity: 5, UnitPrice: 20},
		},
		SubmittedAt: "2026-01-15T10:30:00Z",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

type fixture struct {
	queue   *queue.MemoryQueue
	repo    order_repo.ProcessedOrderRepository
	catalog *fakeCatalog
	proc    *Processor
	cancel  context.CancelFunc
}

func newFixture(t *testing.T, repo order_repo.ProcessedOrderRepository, cat *fakeCatalog) *fixture {
	t.Helper()
	q := queue.NewMemoryQueue(16, 3, zap.NewNop())
	proc := New(Config{Workers: 2, EnrichConcurrency: 2}, q, repo, cat, metrics.NewRegistry(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	proc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		proc.Wait()
		q.Close()
	})
	return &fixture{queue: q, repo: repo, catalog: cat, proc: proc, cancel: cancel}
}

func waitForRecords(t *testing.T, repo order_repo.ProcessedOrderRepository, want int) []*order_repo.ProcessedOrder {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		records, err := repo.List(context.Background(), 100, 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(records) >= want {
			return records
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d stored records", want)
	return nil
}

func TestProcessor_HappyPath(t *testing.T) {
	fx := newFixture(t, memory.NewProcessedOrderRepository(), defaultCatalog())

	if err := fx.queue.Submit(context.Background(), scenarioPayload(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	records := waitForRecords(t, fx.repo, 1)
	rec := records[0]
	if rec.Status != domain.OrderStatusPersisted {
		t.Fatalf("expected status %s, got %s (%s)", domain.OrderStatusPersisted, rec.Status, rec.FailureReason)
	}
	if got := rec.Total.StringFixed(2); got != "130.00" {
		t.Fatalf("expected total 130.00, got %s", got)
	}
	if len(rec.HashID) != 64 {
		t.Fatalf("expected sha256 hash id, got %q", rec.HashID)
	}
	if rec.OrderID != 123 || rec.Customer != "ACME Corp" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Items[0].ProductName != "Backpack" || rec.Items[1].Category != "clothing" {
		t.Fatalf("enrichment fields missing: %+v", rec.Items)
	}
}

func TestProcessor_DuplicateSubmissionConverges(t *testing.T) {
	fx := newFixture(t, memory.NewProcessedOrderRepository(), defaultCatalog())
	ctx := context.Background()

	if err := fx.queue.Submit(ctx, scenarioPayload(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := fx.queue.Submit(ctx, scenarioPayload(t)); err != nil {
		t.Fatalf("Submit duplicate: %v", err)
	}

	records := waitForRecords(t, fx.repo, 1)
	// Give the duplicate time to be processed too, then recheck.
	time.Sleep(200 * time.Millisecond)
	records, err := fx.repo.List(ctx, 100, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one stored record for duplicate submissions, got %d", len(records))
	}
	if records[0].Status != domain.OrderStatusPersisted {
		t.Fatalf("unexpected status %s", records[0].Status)
	}
}

func TestProcessor_ValidationFailureIsTerminal(t *testing.T) {
	cat := defaultCatalog()
	fx := newFixture(t, memory.NewProcessedOrderRepository(), cat)

	payload, _ := json.Marshal(domain.RawOrder{
		ID:          7,
		Customer:    "",
		Items:       []domain.RawItem{{SKU: "P001", Quantity: 1, UnitPrice: 10}},
		SubmittedAt: "2026-01-15T10:30:00Z",
	})
	if err := fx.queue.Submit(context.Background(), payload); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	records := waitForRecords(t, fx.repo, 1)
	rec := records[0]
	if rec.Status != domain.OrderStatusFailed {
		t.Fatalf("expected FAILED, got %s", rec.Status)
	}
	if rec.FailureReason == "" {
		t.Fatal("expected a recorded failure reason")
	}
	if cat.lookupCount() != 0 {
		t.Fatalf("invalid order must never reach enrichment, saw %d lookups", cat.lookupCount())
	}
}

func TestProcessor_EnrichmentNotFoundFailsWholeOrder(t *testing.T) {
	cat := defaultCatalog()
	cat.failures["P002"] = &catalog.EnrichmentError{SKU: "P002", Kind: catalog.ErrorKindNotFound, Err: errors.New("no such product")}
	fx := newFixture(t, memory.NewProcessedOrderRepository(), cat)

	if err := fx.queue.Submit(context.Background(), scenarioPayload(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	records := waitForRecords(t, fx.repo, 1)
	rec := records[0]
	if rec.Status != domain.OrderStatusFailed {
		t.Fatalf("expected FAILED, got %s", rec.Status)
	}
	// No partially enriched order may be stored.
	for _, item := range rec.Items {
		if item.ProductName != "" {
			t.Fatalf("failed order stored with enrichment data: %+v", item)
		}
	}
	if rec.Total.GreaterThan(decimal.Zero) {
		t.Fatalf("failed order must not carry a computed total, got %s", rec.Total)
	}
}

func TestProcessor_StoreErrorRedelivers(t *testing.T) {
	repo := &flakyRepo{ProcessedOrderRepository: memory.NewProcessedOrderRepository(), failUpserts: 1}
	fx := newFixture(t, repo, defaultCatalog())

	if err := fx.queue.Submit(context.Background(), scenarioPayload(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// First upsert fails, the nack requeues, the redelivery succeeds.
	records := waitForRecords(t, repo, 1)
	if records[0].Status != domain.OrderStatusPersisted {
		t.Fatalf("expected PERSISTED after redelivery, got %s", records[0].Status)
	}
}

func TestProcessor_PoisonMessageDoesNotWedgePool(t *testing.T) {
	fx := newFixture(t, memory.NewProcessedOrderRepository(), defaultCatalog())
	ctx := context.Background()

	if err := fx.queue.Submit(ctx, []byte("{not json")); err != nil {
		t.Fatalf("Submit poison: %v", err)
	}
	if err := fx.queue.Submit(ctx, scenarioPayload(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	records := waitForRecords(t, fx.repo, 1)
	if len(records) != 1 {
		t.Fatalf("expected one record (poison discarded), got %d", len(records))
	}
	if records[0].Status != domain.OrderStatusPersisted {
		t.Fatalf("good order after poison should persist, got %s", records[0].Status)
	}
}

func TestProcessor_ShutdownFinishesInflight(t *testing.T) {
	q := queue.NewMemoryQueue(4, 3, zap.NewNop())
	repo := memory.NewProcessedOrderRepository()
	proc := New(Config{Workers: 1, EnrichConcurrency: 2}, q, repo, defaultCatalog(), metrics.NewRegistry(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	proc.Start(ctx)

	if err := q.Submit(context.Background(), scenarioPayload(t)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForRecords(t, repo, 1)

	cancel()
	done := make(chan struct{})
	go func() {
		proc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop after context cancellation")
	}
	q.Close()
}
