package ecommerce

import (
	"errors"
	"strings"

	"github.com/omnisync/backend/internal/domain/integration"
)

// ShopifyAPIVersion is the Admin API version requests are pinned to
const ShopifyAPIVersion = "2024-10"

// Errors for Shopify configuration
var (
	ErrShopifyConfigMissingShopDomain  = errors.New("shopify: shop domain is required")
	ErrShopifyConfigMissingAccessToken = errors.New("shopify: access token is required")
)

// ShopifyConfig holds the credentials of one storefront
type ShopifyConfig struct {
	// ShopDomain is the myshopify.com domain, e.g. "acme.myshopify.com"
	ShopDomain  string
	AccessToken string
	// WebhookSecret signs webhook deliveries; the app's API secret is used when empty
	WebhookSecret string
	APISecret     string
	// BaseURL overrides https://<ShopDomain>
	BaseURL    string
	APIVersion string
}

// ShopifyConfigFromIntegration reads the storefront settings of an integration
func ShopifyConfigFromIntegration(integ *integration.Integration) *ShopifyConfig {
	s := integ.Settings
	return &ShopifyConfig{
		ShopDomain:    s.ShopDomain(),
		AccessToken:   s.AccessToken(),
		WebhookSecret: s.WebhookSecret(),
		APISecret:     s.APISecret(),
		BaseURL:       s.BaseURL(),
	}
}

// Validate checks required fields and fills defaults
func (c *ShopifyConfig) Validate() error {
	if c.ShopDomain == "" && c.BaseURL == "" {
		return ErrShopifyConfigMissingShopDomain
	}
	if c.AccessToken == "" {
		return ErrShopifyConfigMissingAccessToken
	}
	if c.APIVersion == "" {
		c.APIVersion = ShopifyAPIVersion
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://" + c.ShopDomain
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return nil
}

// AdminURL returns the REST endpoint for path, e.g. "/orders.json"
func (c *ShopifyConfig) AdminURL(path string) string {
	return c.BaseURL + "/admin/api/" + c.APIVersion + path
}

// SigningSecret returns the secret webhook HMACs are computed with
func (c *ShopifyConfig) SigningSecret() string {
	if c.WebhookSecret != "" {
		return c.WebhookSecret
	}
	return c.APISecret
}
