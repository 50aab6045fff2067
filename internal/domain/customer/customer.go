package customer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/domain/shared"
)

// Placeholder sentinels for customers created from masked channel data
const (
	PlaceholderFirstName = "Pending"
	PlaceholderLastName  = "Customer"
	PendingNote          = "Customer data pending: the channel has masked personal details"
)

// Profile is the personal data a channel payload carries about a customer
type Profile struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Customer is the canonical person or account behind one or more channel identities
type Customer struct {
	shared.BaseAggregateRoot
	FirstName string
	LastName  string
	Email     *string
	Phone     *string
	Channel   string
	Notes     string
}

// NewCustomer creates a customer from an unmasked profile
func NewCustomer(channel string, p Profile, now time.Time) *Customer {
	c := &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Channel:           channel,
	}
	c.apply(p)
	return c
}

// NewPlaceholder creates a customer with sentinel values, awaiting real data
func NewPlaceholder(channel string, now time.Time) *Customer {
	return &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		FirstName:         PlaceholderFirstName,
		LastName:          PlaceholderLastName,
		Channel:           channel,
		Notes:             PendingNote,
	}
}

// IsPlaceholder reports whether the row still carries sentinel data
func (c *Customer) IsPlaceholder() bool {
	if c.FirstName == PlaceholderFirstName && c.LastName == PlaceholderLastName {
		return true
	}
	if strings.Contains(c.Notes, PendingNote) {
		return true
	}
	return c.Email == nil || *c.Email == ""
}

// Promote overwrites sentinel data with a fresh unmasked profile in place.
// The id never changes. Returns false when there was nothing to promote.
func (c *Customer) Promote(p Profile, now time.Time) bool {
	if !c.IsPlaceholder() {
		return false
	}
	c.apply(p)
	c.Notes = strings.TrimSpace(strings.ReplaceAll(c.Notes, PendingNote, ""))
	c.Touch(now)
	c.IncrementVersion()
	return true
}

// EmailValue returns the email or an empty string
func (c *Customer) EmailValue() string {
	if c.Email == nil {
		return ""
	}
	return *c.Email
}

// FullName returns first and last name joined
func (c *Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (c *Customer) apply(p Profile) {
	if v := strings.TrimSpace(p.FirstName); v != "" {
		c.FirstName = v
	}
	if v := strings.TrimSpace(p.LastName); v != "" {
		c.LastName = v
	}
	if v := NormalizeEmail(p.Email); v != "" {
		c.Email = &v
	}
	if v := strings.TrimSpace(p.Phone); v != "" {
		c.Phone = &v
	}
}

// Repository defines the interface for customer persistence
type Repository interface {
	// FindByID finds a customer by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	// FindByEmail finds the oldest customer with an exact (normalized) email match
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	// Save creates or updates a customer
	Save(ctx context.Context, c *Customer) error
}
