package integration

import (
	"fmt"
	"strings"
	"time"

	"github.com/omnisync/backend/internal/domain/shared"
)

// Settings is the opaque per-integration configuration bag
// (credentials, shop identifiers, feature toggles).
type Settings map[string]any

// Settings keys understood by the reconciliation engine
const (
	SettingShopDomain    = "shop_domain"
	SettingSupplierID    = "supplier_id"
	SettingWebhookSecret = "webhook_secret"
	SettingAPIKey        = "api_key"
	SettingAPISecret     = "api_secret"
	SettingAccessToken   = "access_token"
	SettingBaseURL       = "base_url"
	SettingSyncInventory = "sync_inventory"
)

func (s Settings) str(key string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		// JSON numbers decode as float64; supplier ids are integral
		return fmt.Sprintf("%.0f", t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// ShopDomain returns the storefront domain, lower-cased
func (s Settings) ShopDomain() string { return strings.ToLower(s.str(SettingShopDomain)) }

// SupplierID returns the marketplace supplier id
func (s Settings) SupplierID() string { return s.str(SettingSupplierID) }

// WebhookSecret returns the shared secret used to sign webhooks
func (s Settings) WebhookSecret() string { return s.str(SettingWebhookSecret) }

// APIKey returns the API key
func (s Settings) APIKey() string { return s.str(SettingAPIKey) }

// APISecret returns the API secret
func (s Settings) APISecret() string { return s.str(SettingAPISecret) }

// AccessToken returns the admin API access token
func (s Settings) AccessToken() string { return s.str(SettingAccessToken) }

// BaseURL returns an API base URL override
func (s Settings) BaseURL() string { return s.str(SettingBaseURL) }

// SyncInventory reports whether channel stock levels may overwrite local inventory
func (s Settings) SyncInventory() bool {
	switch v := s[SettingSyncInventory].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case float64:
		return v != 0
	default:
		return false
	}
}

// Integration is a configured connection to one external system.
// Several integrations of the same provider may coexist (multi-shop).
type Integration struct {
	shared.BaseAggregateRoot
	Type     IntegrationType
	Provider PlatformCode
	Name     string
	Active   bool
	Settings Settings
}

// NewIntegration creates a new active integration
func NewIntegration(typ IntegrationType, provider PlatformCode, name string, settings Settings, now time.Time) (*Integration, error) {
	if !typ.IsValid() {
		return nil, ErrInvalidIntegrationType
	}
	if !provider.IsValid() {
		return nil, ErrInvalidPlatformCode
	}
	if settings == nil {
		settings = Settings{}
	}
	return &Integration{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Type:              typ,
		Provider:          provider,
		Name:              name,
		Active:            true,
		Settings:          settings,
	}, nil
}

// Deactivate stops the integration from receiving events
func (i *Integration) Deactivate(now time.Time) {
	i.Active = false
	i.Touch(now)
}

// Matches reports whether the integration is the target of an inbound event
// identified by a shop domain or supplier id. Empty hints never match.
func (i *Integration) Matches(shopDomain, supplierID string) bool {
	if shopDomain != "" && i.Settings.ShopDomain() == strings.ToLower(strings.TrimSpace(shopDomain)) {
		return true
	}
	if supplierID != "" && i.Settings.SupplierID() == strings.TrimSpace(supplierID) {
		return true
	}
	return false
}
