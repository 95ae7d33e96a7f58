package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// EpicorClient talks to the Epicor REST gateway. It implements every ERP
// port; transport and 5xx failures are wrapped as ErrSourceUnavailable and
// 404s as ErrNotFound so callers can tell reference-data gaps apart from
// outages.
type EpicorClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// EpicorConfig holds Epicor gateway settings
type EpicorConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewEpicorClient creates a new Epicor REST client
func NewEpicorClient(cfg EpicorConfig, logger *zap.Logger) *EpicorClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EpicorClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GetPart implements PartMaster
func (c *EpicorClient) GetPart(ctx context.Context, partNum string) (*Part, error) {
	var part Part
	path := "/api/v1/parts/" + url.PathEscape(partNum)
	if err := c.get(ctx, path, &part); err != nil {
		return nil, err
	}
	return &part, nil
}

// FindVendorByName implements VendorMaster
func (c *EpicorClient) FindVendorByName(ctx context.Context, name string) (*Vendor, error) {
	var vendors []Vendor
	path := "/api/v1/vendors?name=" + url.QueryEscape(name)
	if err := c.get(ctx, path, &vendors); err != nil {
		return nil, err
	}
	if len(vendors) == 0 {
		return nil, fmt.Errorf("vendor %q: %w", name, ErrNotFound)
	}
	return &vendors[0], nil
}

// ListVendors implements VendorMaster. It returns the full vendor roster
// used to build the verification directory.
func (c *EpicorClient) ListVendors(ctx context.Context) ([]Vendor, error) {
	var vendors []Vendor
	if err := c.get(ctx, "/api/v1/vendors", &vendors); err != nil {
		return nil, err
	}
	return vendors, nil
}

// GetLink implements SupplierPartLinks
func (c *EpicorClient) GetLink(ctx context.Context, vendorID, partNum string) (*SupplierPartLink, error) {
	var link SupplierPartLink
	path := fmt.Sprintf("/api/v1/vendors/%s/parts/%s",
		url.PathEscape(vendorID), url.PathEscape(partNum))
	if err := c.get(ctx, path, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// WhereUsed implements BomGraph. The gateway resolves the full where-used
// expansion, so cumulative quantities already account for nested assemblies.
func (c *EpicorClient) WhereUsed(ctx context.Context, partNum string) ([]AssemblyUsage, error) {
	var usages []AssemblyUsage
	path := "/api/v1/bom/where-used/" + url.PathEscape(partNum)
	if err := c.get(ctx, path, &usages); err != nil {
		return nil, err
	}
	return usages, nil
}

// PushPriceChange implements PriceSync
func (c *EpicorClient) PushPriceChange(ctx context.Context, push PriceChangePush) error {
	body, err := json.Marshal(push)
	if err != nil {
		return fmt.Errorf("failed to encode price change: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/price-changes", bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Epicor price sync call failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Error("Epicor price sync rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("part_num", push.PartNum))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
		}
		return fmt.Errorf("epicor rejected price change for %s: status %d", push.PartNum, resp.StatusCode)
	}
	return nil
}

func (c *EpicorClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Epicor call failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("epicor request %s failed: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode epicor response: %w", err)
	}
	return nil
}

func (c *EpicorClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
