// seedorders generates sample orders and submits them to a running
// orderflow instance, to exercise the pipeline end to end. The SKUs end
// with catalog ids 1-20 so enrichment against the default catalog
// succeeds.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"orderflow/internal/domain"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "orderflow base URL")
	count := flag.Int("count", 20, "number of orders to submit")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	failures := 0
	for i := 1; i <= *count; i++ {
		order := buildOrder(int64(i))
		if err := submit(client, *baseURL, order); err != nil {
			fmt.Fprintf(os.Stderr, "order %d: %v\n", order.ID, err)
			failures++
			continue
		}
		fmt.Printf("order %d accepted\n", order.ID)
	}
	if failures > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d submissions failed\n", failures, *count)
		os.Exit(1)
	}
}

func buildOrder(id int64) domain.RawOrder {
	numItems := 1 + rand.Intn(4)
	items := make([]domain.RawItem, 0, numItems)
	seen := map[int]bool{}
	for len(items) < numItems {
		productID := 1 + rand.Intn(20)
		if seen[productID] {
			continue
		}
		seen[productID] = true
		items = append(items, domain.RawItem{
			SKU:       fmt.Sprintf("P%03d", productID),
			Quantity:  1 + rand.Intn(5),
			UnitPrice: float64(500+rand.Intn(14500)) / 100,
		})
	}
	return domain.RawOrder{
		ID:          id,
		Customer:    fmt.Sprintf("Customer %d", id),
		Items:       items,
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func submit(client *http.Client, baseURL string, order domain.RawOrder) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	resp, err := client.Post(baseURL+"/orders", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
