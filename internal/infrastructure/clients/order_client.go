package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wms-platform/pickpack-service/internal/domain"
	"github.com/wms-platform/pickpack-service/pkg/logging"
	"github.com/wms-platform/pickpack-service/pkg/metrics"
	"github.com/wms-platform/pickpack-service/pkg/resilience"
)

// OrderServiceClient reads order summaries from the order service over
// HTTP. All calls go through a circuit breaker so a struggling order
// service degrades the queue join instead of taking the engine down.
type OrderServiceClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewOrderServiceClient creates a client for the given base URL
func NewOrderServiceClient(baseURL string, logger *logging.Logger, m *metrics.Metrics) *OrderServiceClient {
	return &OrderServiceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("order-service"), logger, m),
	}
}

type orderResponse struct {
	OrderID      string `json:"orderId"`
	OrderNumber  string `json:"orderNumber"`
	CustomerName string `json:"customerName"`
	ShippingCity string `json:"shippingCity"`
	ItemCount    int    `json:"itemCount"`
}

func (r *orderResponse) toSummary() *domain.OrderSummary {
	return &domain.OrderSummary{
		OrderID:      r.OrderID,
		OrderNumber:  r.OrderNumber,
		CustomerName: r.CustomerName,
		ShippingCity: r.ShippingCity,
		ItemCount:    r.ItemCount,
	}
}

// GetOrder fetches one order summary
func (c *OrderServiceClient) GetOrder(ctx context.Context, orderID string) (*domain.OrderSummary, error) {
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.fetchOrder(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.OrderSummary), nil
}

// GetOrders fetches summaries for a batch of orders. Orders unknown to the
// order service are absent from the result.
func (c *OrderServiceClient) GetOrders(ctx context.Context, orderIDs []string) (map[string]*domain.OrderSummary, error) {
	if len(orderIDs) == 0 {
		return map[string]*domain.OrderSummary{}, nil
	}

	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.fetchOrders(ctx, orderIDs)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]*domain.OrderSummary), nil
}

func (c *OrderServiceClient) fetchOrder(ctx context.Context, orderID string) (*domain.OrderSummary, error) {
	endpoint := fmt.Sprintf("%s/api/v1/orders/%s", c.baseURL, url.PathEscape(orderID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order service returned status %d", resp.StatusCode)
	}

	var body orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode order response: %w", err)
	}
	return body.toSummary(), nil
}

func (c *OrderServiceClient) fetchOrders(ctx context.Context, orderIDs []string) (map[string]*domain.OrderSummary, error) {
	endpoint := fmt.Sprintf("%s/api/v1/orders?ids=%s", c.baseURL, url.QueryEscape(strings.Join(orderIDs, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call order service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order service returned status %d", resp.StatusCode)
	}

	var body struct {
		Orders []orderResponse `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode orders response: %w", err)
	}

	summaries := make(map[string]*domain.OrderSummary, len(body.Orders))
	for i := range body.Orders {
		summaries[body.Orders[i].OrderID] = body.Orders[i].toSummary()
	}
	return summaries, nil
}
