package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/catalog"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// ProductReconciler folds channel listings into local variants. Local price and
// stock stay authoritative unless the integration syncs inventory.
type ProductReconciler struct {
	deps     Deps
	variants *VariantMatcher
}

// NewProductReconciler creates a product reconciler
func NewProductReconciler(deps Deps) *ProductReconciler {
	deps = deps.withDefaults()
	return &ProductReconciler{deps: deps, variants: NewVariantMatcher(deps.Clock, deps.Logger)}
}

// Reconcile matches or creates a variant for every listed variant
func (r *ProductReconciler) Reconcile(ctx context.Context, integ *integration.Integration, in *integration.ChannelProduct) Result[[]*catalog.ProductVariant] {
	if in == nil {
		return Failed[[]*catalog.ProductVariant](fmt.Errorf("%w: empty product", ErrMalformedPayload))
	}
	if in.Platform == "" && integ != nil {
		in.Platform = integ.Provider
	}
	if len(in.Variants) == 0 {
		r.deps.Logger.Info("Product listing skipped",
			zap.String("platform", string(in.Platform)),
			zap.String("external_id", in.ExternalID),
			zap.String("skip_reason", SkipNoVariants),
		)
		return Skipped[[]*catalog.ProductVariant](SkipNoVariants)
	}
	syncInventory := integ != nil && integ.Settings.SyncInventory()

	var (
		out     []*catalog.ProductVariant
		created bool
	)
	err := r.deps.Tx.Execute(ctx, func(repos Repositories) error {
		out, created = nil, false
		ids := r.deps.identityMap(repos)
		var productID uuid.UUID
		var pending []integration.ChannelVariant

		for _, cv := range in.Variants {
			v, err := r.variants.Find(ctx, repos, ids, in.Platform, cv.ExternalID, cv.Barcode, cv.SKU)
			if err != nil {
				return err
			}
			if v == nil {
				pending = append(pending, cv)
				continue
			}
			productID = v.ProductID
			if err := r.apply(ctx, repos, ids, in, v, cv, syncInventory); err != nil {
				return err
			}
			out = append(out, v)
		}

		if len(pending) == 0 {
			return nil
		}
		if productID == uuid.Nil {
			product, err := catalog.NewProduct(in.Title, r.deps.Clock.Now())
			if err != nil {
				product = catalog.NewShellProduct(in.Title, r.deps.Clock.Now())
			}
			if err := repos.Products().Save(ctx, product); err != nil {
				return err
			}
			productID = product.ID
		}
		for _, cv := range pending {
			title := strings.TrimSpace(cv.Title)
			if title == "" {
				title = in.Title
			}
			v := catalog.NewVariant(productID, cv.SKU, cv.Barcode, title, r.deps.Clock.Now())
			if err := r.apply(ctx, repos, ids, in, v, cv, syncInventory); err != nil {
				return err
			}
			out = append(out, v)
		}
		created = true
		return nil
	})
	if err != nil {
		r.deps.Logger.Error("Product reconciliation failed",
			zap.String("platform", string(in.Platform)),
			zap.String("external_id", in.ExternalID),
			zap.Error(err),
		)
		return Failed[[]*catalog.ProductVariant](err)
	}
	if created {
		return Created(out)
	}
	return Updated(out)
}

func (r *ProductReconciler) apply(
	ctx context.Context,
	repos Repositories,
	ids *IdentityMap,
	in *integration.ChannelProduct,
	v *catalog.ProductVariant,
	cv integration.ChannelVariant,
	syncInventory bool,
) error {
	cur := valueobject.NormalizeCurrency(in.Currency)
	v.ApplyListing(string(in.Platform), catalog.Listing{
		ExternalID: cv.ExternalID,
		SKU:        cv.SKU,
		Barcode:    cv.Barcode,
		Title:      cv.Title,
		Price:      valueobject.ToMinorUnits(cv.Price, cur),
		Currency:   string(cur),
		Stock:      cv.Stock,
	}, syncInventory, r.deps.Clock.Now())
	if err := repos.Variants().Save(ctx, v); err != nil {
		return err
	}
	if cv.ExternalID == "" {
		return nil
	}
	_, err := ids.BindOwned(ctx, integration.VariantKey(in.Platform, cv.ExternalID), v.ID, nil)
	return err
}
