package reconcile

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/customer"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
)

// CustomerReconciler folds a channel customer fragment into exactly one canonical
// customer, creating at most one row per call. Masked fragments never overwrite
// real data; placeholders are promoted in place on the first unmasked sighting.
type CustomerReconciler struct {
	clock  shared.Clock
	logger *zap.Logger
}

// NewCustomerReconciler creates a customer reconciler
func NewCustomerReconciler(clock shared.Clock, logger *zap.Logger) *CustomerReconciler {
	return &CustomerReconciler{clock: clock, logger: logger}
}

// Reconcile resolves the customer behind frag. current is the customer already
// attached to the order being reconciled, if any; it is reused for guest
// checkouts that cannot be matched any other way.
func (r *CustomerReconciler) Reconcile(
	ctx context.Context,
	repos Repositories,
	ids *IdentityMap,
	platform integration.PlatformCode,
	frag integration.ChannelCustomer,
	current *customer.Customer,
) (*customer.Customer, Outcome, error) {
	frag.DetectMasked(platform.MaskSentinel())
	frag.ExternalID = strings.TrimSpace(frag.ExternalID)

	var mapped *customer.Customer
	if frag.ExternalID != "" {
		c, err := r.resolveMapped(ctx, repos, ids, integration.CustomerKey(platform, frag.ExternalID))
		if err != nil {
			return nil, OutcomeFailed, err
		}
		mapped = c
	}

	if frag.Masked {
		return r.reconcileMasked(ctx, repos, ids, platform, frag, mapped, current)
	}
	return r.reconcileUnmasked(ctx, repos, ids, platform, frag, mapped, current)
}

// resolveMapped returns the customer the identity map points at. An orphaned
// mapping is removed and treated as absent.
func (r *CustomerReconciler) resolveMapped(ctx context.Context, repos Repositories, ids *IdentityMap, key integration.MappingKey) (*customer.Customer, error) {
	mapping, err := ids.Resolve(ctx, key)
	if errors.Is(err, integration.ErrMappingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c, err := repos.Customers().FindByID(ctx, mapping.EntityID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, ids.Unbind(ctx, key.Platform, integration.EntityCustomer, mapping.EntityID)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CustomerReconciler) reconcileMasked(
	ctx context.Context,
	repos Repositories,
	ids *IdentityMap,
	platform integration.PlatformCode,
	frag integration.ChannelCustomer,
	mapped, current *customer.Customer,
) (*customer.Customer, Outcome, error) {
	if mapped != nil {
		if _, err := ids.Bind(ctx, integration.CustomerKey(platform, frag.ExternalID), mapped.ID, nil); err != nil {
			return nil, OutcomeFailed, err
		}
		return mapped, OutcomeUnchanged, nil
	}
	if frag.ExternalID == "" && current != nil {
		return current, OutcomeUnchanged, nil
	}

	placeholder := customer.NewPlaceholder(string(platform), r.clock.Now())
	if err := repos.Customers().Save(ctx, placeholder); err != nil {
		return nil, OutcomeFailed, err
	}
	if frag.ExternalID != "" {
		if _, err := ids.Bind(ctx, integration.CustomerKey(platform, frag.ExternalID), placeholder.ID, nil); err != nil {
			return nil, OutcomeFailed, err
		}
	}
	r.logger.Info("Placeholder customer created for masked fragment",
		zap.String("platform", string(platform)),
		zap.String("external_id", frag.ExternalID),
		zap.String("customer_id", placeholder.ID.String()),
	)
	return placeholder, OutcomeCreated, nil
}

func (r *CustomerReconciler) reconcileUnmasked(
	ctx context.Context,
	repos Repositories,
	ids *IdentityMap,
	platform integration.PlatformCode,
	frag integration.ChannelCustomer,
	mapped, current *customer.Customer,
) (*customer.Customer, Outcome, error) {
	key := integration.CustomerKey(platform, frag.ExternalID)

	if email := customer.NormalizeEmail(frag.Email); email != "" {
		existing, err := repos.Customers().FindByEmail(ctx, email)
		switch {
		case err == nil:
			reuse, err := r.canReuse(ctx, ids, platform, frag, existing, mapped)
			if err != nil {
				return nil, OutcomeFailed, err
			}
			if reuse {
				if frag.ExternalID != "" {
					if err := r.claimKey(ctx, ids, key, existing, mapped); err != nil {
						return nil, OutcomeFailed, err
					}
				}
				return r.promote(ctx, repos, existing, frag)
			}
			r.logger.Info("Email matches a customer mapped to another channel identity, treating as distinct",
				zap.String("platform", string(platform)),
				zap.String("external_id", frag.ExternalID),
				zap.String("matched_customer_id", existing.ID.String()),
			)
		case !errors.Is(err, shared.ErrNotFound):
			return nil, OutcomeFailed, err
		}
	}

	if mapped != nil {
		if _, err := ids.Bind(ctx, key, mapped.ID, nil); err != nil {
			return nil, OutcomeFailed, err
		}
		return r.promote(ctx, repos, mapped, frag)
	}
	if frag.ExternalID == "" && current != nil {
		return r.promote(ctx, repos, current, frag)
	}

	created := customer.NewCustomer(string(platform), frag.Profile(), r.clock.Now())
	if err := repos.Customers().Save(ctx, created); err != nil {
		return nil, OutcomeFailed, err
	}
	if frag.ExternalID != "" {
		if _, err := ids.Bind(ctx, key, created.ID, nil); err != nil {
			return nil, OutcomeFailed, err
		}
	}
	return created, OutcomeCreated, nil
}

// canReuse decides whether an email match may absorb this channel identity
func (r *CustomerReconciler) canReuse(
	ctx context.Context,
	ids *IdentityMap,
	platform integration.PlatformCode,
	frag integration.ChannelCustomer,
	existing, mapped *customer.Customer,
) (bool, error) {
	if frag.ExternalID == "" {
		return true, nil
	}
	if mapped != nil && mapped.ID == existing.ID {
		return true, nil
	}
	owned, err := ids.Owned(ctx, platform, integration.EntityCustomer, existing.ID)
	if errors.Is(err, integration.ErrMappingNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return owned.PlatformID == frag.ExternalID, nil
}

// claimKey points key at existing, moving it off any previous owner
func (r *CustomerReconciler) claimKey(ctx context.Context, ids *IdentityMap, key integration.MappingKey, existing, mapped *customer.Customer) error {
	if mapped != nil && mapped.ID != existing.ID {
		_, err := ids.Repoint(ctx, key, existing.ID, nil, "email_match")
		return err
	}
	_, err := ids.Bind(ctx, key, existing.ID, nil)
	return err
}

func (r *CustomerReconciler) promote(ctx context.Context, repos Repositories, c *customer.Customer, frag integration.ChannelCustomer) (*customer.Customer, Outcome, error) {
	if !c.Promote(frag.Profile(), r.clock.Now()) {
		return c, OutcomeUnchanged, nil
	}
	if err := repos.Customers().Save(ctx, c); err != nil {
		return nil, OutcomeFailed, err
	}
	r.logger.Info("Placeholder customer promoted",
		zap.String("customer_id", c.ID.String()),
		zap.String("channel", c.Channel),
	)
	return c, OutcomeUpdated, nil
}
