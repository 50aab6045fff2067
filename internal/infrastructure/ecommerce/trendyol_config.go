package ecommerce

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/omnisync/backend/internal/domain/integration"
)

// TrendyolProductionAPIURL is the marketplace API gateway
const TrendyolProductionAPIURL = "https://apigw.trendyol.com"

// Errors for Trendyol configuration
var (
	ErrTrendyolConfigMissingSupplierID = errors.New("trendyol: supplier id is required")
	ErrTrendyolConfigMissingAPIKey     = errors.New("trendyol: api key is required")
	ErrTrendyolConfigMissingAPISecret  = errors.New("trendyol: api secret is required")
)

// TrendyolConfig holds the credentials of one marketplace seller account
type TrendyolConfig struct {
	SupplierID string
	APIKey     string
	APISecret  string
	// WebhookSecret is the key Trendyol presents when calling our webhook
	WebhookSecret string
	APIBaseURL    string
}

// TrendyolConfigFromIntegration reads the seller settings of an integration
func TrendyolConfigFromIntegration(integ *integration.Integration) *TrendyolConfig {
	s := integ.Settings
	return &TrendyolConfig{
		SupplierID:    s.SupplierID(),
		APIKey:        s.APIKey(),
		APISecret:     s.APISecret(),
		WebhookSecret: s.WebhookSecret(),
		APIBaseURL:    s.BaseURL(),
	}
}

// Validate checks required fields and fills defaults
func (c *TrendyolConfig) Validate() error {
	if c.SupplierID == "" {
		return ErrTrendyolConfigMissingSupplierID
	}
	if c.APIKey == "" {
		return ErrTrendyolConfigMissingAPIKey
	}
	if c.APISecret == "" {
		return ErrTrendyolConfigMissingAPISecret
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = TrendyolProductionAPIURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	return nil
}

// Authorization returns the Basic auth header value for API calls
func (c *TrendyolConfig) Authorization() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.APIKey+":"+c.APISecret))
}

// UserAgent identifies the seller as Trendyol requires
func (c *TrendyolConfig) UserAgent() string {
	return c.SupplierID + " - SelfIntegration"
}

// SellerURL returns the order API endpoint for path, e.g. "/orders"
func (c *TrendyolConfig) SellerURL(path string) string {
	return c.APIBaseURL + "/integration/order/sellers/" + c.SupplierID + path
}

// ProductURL returns the product API endpoint for path
func (c *TrendyolConfig) ProductURL(path string) string {
	return c.APIBaseURL + "/integration/product/sellers/" + c.SupplierID + path
}
