package integration

import "errors"

// ---------------------------------------------------------------------------
// Integration Errors
// ---------------------------------------------------------------------------

var (
	// Integration errors
	ErrIntegrationNotFound    = errors.New("integration: integration not found")
	ErrIntegrationAmbiguous   = errors.New("integration: more than one integration matches")
	ErrIntegrationInactive    = errors.New("integration: integration is not active")
	ErrInvalidPlatformCode    = errors.New("integration: invalid platform code")
	ErrInvalidIntegrationType = errors.New("integration: invalid integration type")
	ErrInvalidSignature       = errors.New("integration: invalid webhook signature")
	ErrUnsupportedTopic       = errors.New("integration: unsupported webhook topic")

	// Platform errors
	ErrPlatformRequestFailed   = errors.New("integration: platform request failed")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	ErrPlatformAuthFailed      = errors.New("integration: platform authentication failed")
	ErrPlatformRateLimited     = errors.New("integration: platform rate limited")
	ErrPlatformUnavailable     = errors.New("integration: platform temporarily unavailable")

	// Mapping errors
	ErrMappingNotFound          = errors.New("integration: platform mapping not found")
	ErrMappingConflict          = errors.New("integration: platform mapping uniqueness conflict")
	ErrMappingInvalidEntityType = errors.New("integration: invalid mapping entity type")
	ErrMappingInvalidPlatformID = errors.New("integration: invalid platform id")
	ErrMappingInvalidEntityID   = errors.New("integration: invalid entity id")

	// Job errors
	ErrJobNotFound     = errors.New("integration: reconcile job not found")
	ErrJobNotRetryable = errors.New("integration: only dead jobs can be retried")
	ErrJobInvalidState = errors.New("integration: job is not in a claimable state")
)

// ---------------------------------------------------------------------------
// PlatformCode represents an external system
// ---------------------------------------------------------------------------

// PlatformCode represents an external channel or aggregator
type PlatformCode string

const (
	// PlatformShopify is the storefront platform
	PlatformShopify PlatformCode = "shopify"
	// PlatformTrendyol is the marketplace platform
	PlatformTrendyol PlatformCode = "trendyol"
	// PlatformGeliver is the shipping aggregator
	PlatformGeliver PlatformCode = "geliver"
)

// IsValid returns true if the platform code is valid
func (c PlatformCode) IsValid() bool {
	switch c {
	case PlatformShopify, PlatformTrendyol, PlatformGeliver:
		return true
	default:
		return false
	}
}

// String returns the string representation of PlatformCode
func (c PlatformCode) String() string {
	return string(c)
}

// DisplayName returns a human-readable name for the platform
func (c PlatformCode) DisplayName() string {
	switch c {
	case PlatformShopify:
		return "Shopify"
	case PlatformTrendyol:
		return "Trendyol"
	case PlatformGeliver:
		return "Geliver"
	default:
		return string(c)
	}
}

// IsSalesChannel returns true for platforms that originate orders
func (c PlatformCode) IsSalesChannel() bool {
	return c == PlatformShopify || c == PlatformTrendyol
}

// MaskSentinel returns the value the platform substitutes for redacted customer fields
func (c PlatformCode) MaskSentinel() string {
	switch c {
	case PlatformTrendyol:
		return "***"
	case PlatformShopify:
		return "REDACTED"
	default:
		return ""
	}
}

// IntegrationType distinguishes sales channels from shipping providers
type IntegrationType string

const (
	IntegrationTypeSalesChannel     IntegrationType = "SALES_CHANNEL"
	IntegrationTypeShippingProvider IntegrationType = "SHIPPING_PROVIDER"
)

// IsValid returns true if the integration type is valid
func (t IntegrationType) IsValid() bool {
	return t == IntegrationTypeSalesChannel || t == IntegrationTypeShippingProvider
}
