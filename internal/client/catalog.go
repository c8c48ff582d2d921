package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/soukly/promotion/pkg/httpclient"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Product is the slice of the catalog's product the evaluator needs:
// the current price in minor units and the category for applicability
// matching.
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
	Price      int64  `json:"price"`
	IsActive   bool   `json:"is_active"`
}

// CatalogClient calls the catalog service to resolve product details.
type CatalogClient struct {
	http    HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// NewCatalogClient creates a catalog service client.
func NewCatalogClient(doer HTTPDoer, baseURL string, logger *slog.Logger) *CatalogClient {
	return &CatalogClient{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type productEnvelope struct {
	Data Product `json:"data"`
}

// GetProduct fetches a single product by ID.
func (c *CatalogClient) GetProduct(ctx context.Context, productID string) (*Product, error) {
	url := fmt.Sprintf("%s/api/v1/products/%s", c.baseURL, productID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call catalog service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, "catalog")
	}

	var envelope productEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	return &envelope.Data, nil
}

// GetProducts fetches the given products, skipping ones the catalog
// cannot resolve. Evaluation treats an unresolvable product as not
// applicable rather than failing the whole cart.
func (c *CatalogClient) GetProducts(ctx context.Context, productIDs []string) (map[string]*Product, error) {
	products := make(map[string]*Product, len(productIDs))

	for _, id := range productIDs {
		p, err := c.GetProduct(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.WarnContext(ctx, "catalog lookup failed, skipping product",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		products[id] = p
	}

	return products, nil
}
