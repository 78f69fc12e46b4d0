package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ErrorKind string

const (
	ErrorKindNotFound  ErrorKind = "NOT_FOUND"
	ErrorKindTransient ErrorKind = "TRANSIENT"
)

type EnrichmentError struct {
	SKU  string
	Kind ErrorKind
	Err  error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment failed for sku %q (%s): %v", e.SKU, e.Kind, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

type Product struct {
	ID       int64
	Name     string
	Category string
	Price    decimal.Decimal
}

// Client resolves a SKU to authoritative product data.
type Client interface {
	Lookup(ctx context.Context, sku string) (Product, error)
}

var skuSuffix = regexp.MustCompile(`(\d+)$`)

// ProductID extracts the catalog product identifier from the trailing
// digit run of a SKU ("P001" -> 1). SKUs without a numeric suffix can
// never resolve, which is reported as a not-found error.
func ProductID(sku string) (int64, error) {
	m := skuSuffix.FindStringSubmatch(sku)
	if m == nil {
		return 0, &EnrichmentError{
			SKU:  sku,
			Kind: ErrorKindNotFound,
			Err:  errors.New("sku has no trailing numeric segment"),
		}
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, &EnrichmentError{SKU: sku, Kind: ErrorKindNotFound, Err: err}
	}
	return id, nil
}

type productResponse struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

// HTTPClient looks products up over HTTP at <baseURL>/products/<id>.
// Transient failures (timeouts, connection errors, 429, 5xx) are retried
// with exponential backoff; a 404 fails immediately without retry.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *zap.Logger
}

type HTTPClientOptions struct {
	BaseURL string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

func NewHTTPClient(opts HTTPClientOptions, logger *zap.Logger) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &HTTPClient{
		baseURL: opts.BaseURL,
		client:  &http.Client{Timeout: opts.Timeout},
		retries: opts.Retries,
		backoff: opts.Backoff,
		logger:  logger,
	}
}

func (c *HTTPClient) Lookup(ctx context.Context, sku string) (Product, error) {
	productID, err := ProductID(sku)
	if err != nil {
		return Product{}, err
	}

	url := fmt.Sprintf("%s/products/%d", c.baseURL, productID)

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff * time.Duration(1<<(attempt-1))
			c.logger.Warn("Retrying catalog lookup",
				zap.String("sku", sku),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Product{}, &EnrichmentError{SKU: sku, Kind: ErrorKindTransient, Err: ctx.Err()}
			}
		}

		product, retryable, err := c.fetch(ctx, sku, url)
		if err == nil {
			return product, nil
		}
		if !retryable {
			return Product{}, err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("catalog lookup failed")
	}
	var enrichErr *EnrichmentError
	if errors.As(lastErr, &enrichErr) {
		return Product{}, lastErr
	}
	return Product{}, &EnrichmentError{SKU: sku, Kind: ErrorKindTransient, Err: lastErr}
}

// fetch performs a single request. The bool reports whether the failure
// is worth retrying.
func (c *HTTPClient) fetch(ctx context.Context, sku, url string) (Product, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Product{}, false, &EnrichmentError{SKU: sku, Kind: ErrorKindTransient, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Network-level failures and client timeouts are transient.
		return Product{}, true, &EnrichmentError{SKU: sku, Kind: ErrorKindTransient, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Product{}, false, &EnrichmentError{
			SKU:  sku,
			Kind: ErrorKindNotFound,
			Err:  fmt.Errorf("product not found in catalog"),
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return Product{}, true, &EnrichmentError{
			SKU:  sku,
			Kind: ErrorKindTransient,
			Err:  fmt.Errorf("catalog responded with status %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return Product{}, false, &EnrichmentError{
			SKU:  sku,
			Kind: ErrorKindTransient,
			Err:  fmt.Errorf("unexpected catalog status %d", resp.StatusCode),
		}
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Product{}, false, &EnrichmentError{
			SKU:  sku,
			Kind: ErrorKindTransient,
			Err:  fmt.Errorf("failed to decode catalog response: %w", err),
		}
	}

	return Product{
		ID:       body.ID,
		Name:     body.Title,
		Category: body.Category,
		Price:    decimal.NewFromFloat(body.Price).Round(2),
	}, false, nil
}
