package reconcile

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/catalog"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// VariantMatcher finds the local variant behind a channel line.
// Priority: identity-mapped variant id, barcode, SKU, then an auto-created shell.
type VariantMatcher struct {
	clock  shared.Clock
	logger *zap.Logger
}

// NewVariantMatcher creates a variant matcher
func NewVariantMatcher(clock shared.Clock, logger *zap.Logger) *VariantMatcher {
	return &VariantMatcher{clock: clock, logger: logger}
}

// Match returns the variant for line, creating a draft shell product when
// nothing matches. The variant id mapping is bound when the channel sent one.
func (m *VariantMatcher) Match(
	ctx context.Context,
	repos Repositories,
	ids *IdentityMap,
	platform integration.PlatformCode,
	line integration.ChannelLine,
	cur valueobject.Currency,
) (*catalog.ProductVariant, error) {
	variant, err := m.Find(ctx, repos, ids, platform, line.VariantExternalID, line.Barcode, line.SKU)
	if err != nil {
		return nil, err
	}
	if variant == nil {
		variant, err = m.createShell(ctx, repos, platform, line, cur)
		if err != nil {
			return nil, err
		}
	}

	if line.VariantExternalID != "" {
		if _, err := ids.BindOwned(ctx, integration.VariantKey(platform, line.VariantExternalID), variant.ID, nil); err != nil {
			return nil, err
		}
		if !variant.IsEnabledOn(string(platform)) {
			variant.EnableChannel(string(platform), line.VariantExternalID, m.clock.Now())
			if err := repos.Variants().Save(ctx, variant); err != nil {
				return nil, err
			}
		}
	}
	return variant, nil
}

// Find looks a variant up without creating anything. Returns nil when no
// variant matches.
func (m *VariantMatcher) Find(
	ctx context.Context,
	repos Repositories,
	ids *IdentityMap,
	platform integration.PlatformCode,
	externalID, barcode, sku string,
) (*catalog.ProductVariant, error) {
	if externalID = strings.TrimSpace(externalID); externalID != "" {
		mapping, err := ids.Resolve(ctx, integration.VariantKey(platform, externalID))
		switch {
		case err == nil:
			v, err := repos.Variants().FindByID(ctx, mapping.EntityID)
			if err == nil {
				return v, nil
			}
			if !errors.Is(err, shared.ErrNotFound) {
				return nil, err
			}
			if err := ids.Unbind(ctx, platform, integration.EntityProductVariant, mapping.EntityID); err != nil {
				return nil, err
			}
		case !errors.Is(err, integration.ErrMappingNotFound):
			return nil, err
		}
	}

	if barcode = strings.TrimSpace(barcode); barcode != "" {
		v, err := repos.Variants().FindByBarcode(ctx, barcode)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}
	if sku = strings.TrimSpace(sku); sku != "" {
		v, err := repos.Variants().FindBySKU(ctx, sku)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (m *VariantMatcher) createShell(
	ctx context.Context,
	repos Repositories,
	platform integration.PlatformCode,
	line integration.ChannelLine,
	cur valueobject.Currency,
) (*catalog.ProductVariant, error) {
	now := m.clock.Now()
	product := catalog.NewShellProduct(line.Title, now)
	if err := repos.Products().Save(ctx, product); err != nil {
		return nil, err
	}
	variant := catalog.NewVariant(product.ID, line.SKU, line.Barcode, line.Title, now)
	variant.Price = valueobject.ToMinorUnits(line.UnitPrice, cur)
	variant.Currency = string(cur)
	variant.EnableChannel(string(platform), line.VariantExternalID, now)
	if err := repos.Variants().Save(ctx, variant); err != nil {
		return nil, err
	}

	m.logger.Info("Shell product created for unmatched channel line",
		zap.String("platform", string(platform)),
		zap.String("product_id", product.ID.String()),
		zap.String("variant_id", variant.ID.String()),
		zap.String("sku", line.SKU),
		zap.String("barcode", line.Barcode),
	)
	return variant, nil
}
