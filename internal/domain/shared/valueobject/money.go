package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	TRY Currency = "TRY" // Turkish Lira (default accounting currency)
	USD Currency = "USD" // US Dollar
	EUR Currency = "EUR" // Euro
	GBP Currency = "GBP" // British Pound
	JPY Currency = "JPY" // Japanese Yen
	KWD Currency = "KWD" // Kuwaiti Dinar
)

// DefaultCurrency is the default accounting currency for the system
const DefaultCurrency = TRY

// basisPointScale is 100% expressed in basis points
const basisPointScale = 10000

// ErrUnknownCurrency is returned when a code is not an ISO 4217 currency
var ErrUnknownCurrency = errors.New("valueobject: unknown currency code")

// NormalizeCurrency upper-cases and trims a wire currency code.
// Empty input yields DefaultCurrency.
func NormalizeCurrency(code string) Currency {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return Currency(code)
}

// Exponent returns the number of minor-unit digits for the currency.
// Unknown codes fall back to two digits.
func (c Currency) Exponent() int32 {
	unit, err := currency.ParseISO(string(c))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Validate reports whether the currency is a known ISO 4217 code
func (c Currency) Validate() error {
	if _, err := currency.ParseISO(string(c)); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownCurrency, string(c))
	}
	return nil
}

// ToMinorUnits converts a major-unit decimal amount into integer minor units,
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, c Currency) int64 {
	return amount.Shift(c.Exponent()).Round(0).IntPart()
}

// ToMajorUnits converts integer minor units back into a major-unit decimal amount
func ToMajorUnits(minor int64, c Currency) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-c.Exponent())
}

// ApplyRate applies a rate expressed in basis points to a minor-unit amount,
// rounding half away from zero. 1800 bps on 1000 yields 180.
func ApplyRate(minor int64, basisPoints int64) int64 {
	if minor == 0 || basisPoints == 0 {
		return 0
	}
	return decimal.NewFromInt(minor).
		Mul(decimal.NewFromInt(basisPoints)).
		Div(decimal.NewFromInt(basisPointScale)).
		Round(0).
		IntPart()
}

// IncludedTax returns the tax share already contained in a gross minor-unit amount
// at the given rate, rounding half away from zero. 20% contained in 1200 is 200.
func IncludedTax(gross int64, basisPoints int64) int64 {
	if gross == 0 || basisPoints == 0 {
		return 0
	}
	net := decimal.NewFromInt(gross).
		Mul(decimal.NewFromInt(basisPointScale)).
		Div(decimal.NewFromInt(basisPointScale + basisPoints)).
		Round(0).
		IntPart()
	return gross - net
}

// RateToBasisPoints converts a percentage (18 or "18.5") into basis points
func RateToBasisPoints(percent decimal.Decimal) int64 {
	return percent.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Money is a value object holding an amount in integer minor units.
// It is immutable - all operations return new Money instances
type Money struct {
	minor    int64
	currency Currency
}

// NewMoney creates Money from minor units
func NewMoney(minor int64, c Currency) (Money, error) {
	if c == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{minor: minor, currency: c}, nil
}

// FromMajor creates Money from a major-unit decimal amount
func FromMajor(amount decimal.Decimal, c Currency) Money {
	return Money{minor: ToMinorUnits(amount, c), currency: c}
}

// FromMajorString parses a wire amount like "1350.00". Empty strings yield zero.
func FromMajorString(amount string, c Currency) (Money, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return Zero(c), nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return FromMajor(d, c), nil
}

// Zero returns a zero-value Money in the specified currency
func Zero(c Currency) Money {
	return Money{currency: c}
}

// Minor returns the amount in minor units
func (m Money) Minor() int64 {
	return m.minor
}

// Major returns the amount in major units
func (m Money) Major() decimal.Decimal {
	return ToMajorUnits(m.minor, m.currency)
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.minor == 0
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.minor > 0
}

// Add returns a new Money with the sum of both amounts
// Returns error if currencies don't match
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{minor: m.minor + other.minor, currency: m.currency}, nil
}

// Subtract returns a new Money with the difference
// Returns error if currencies don't match
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot subtract money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{minor: m.minor - other.minor, currency: m.currency}, nil
}

// MultiplyByInt returns a new Money multiplied by an integer quantity
func (m Money) MultiplyByInt(factor int64) Money {
	return Money{minor: m.minor * factor, currency: m.currency}
}

// ApplyRate returns the share of m given by basisPoints
func (m Money) ApplyRate(basisPoints int64) Money {
	return Money{minor: ApplyRate(m.minor, basisPoints), currency: m.currency}
}

// Half returns half of m, rounding half away from zero
func (m Money) Half() Money {
	return m.ApplyRate(basisPointScale / 2)
}

// Equals returns true if both Money values are equal (same amount and currency)
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.minor == other.minor
}

// String returns a string representation of the Money
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Major().StringFixed(m.currency.Exponent()), m.currency)
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Minor    int64    `json:"minor"`
		Currency Currency `json:"currency"`
	}{
		Minor:    m.minor,
		Currency: m.currency,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v struct {
		Minor    int64    `json:"minor"`
		Currency Currency `json:"currency"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.minor = v.Minor
	m.currency = v.Currency
	return nil
}

// CurrencySnapshot ties stored minor-unit amounts to a currency and the exchange
// rate to the accounting currency at the time of the write. Never recomputed.
type CurrencySnapshot struct {
	Code         Currency
	CurrencyID   *uuid.UUID
	ExchangeRate decimal.Decimal
}

// IsZero reports whether the snapshot has never been resolved
func (s CurrencySnapshot) IsZero() bool {
	return s.Code == ""
}

// Value implements driver.Valuer so a Currency can be stored directly
func (c Currency) Value() (driver.Value, error) {
	return string(c), nil
}

// Scan implements sql.Scanner
func (c *Currency) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*c = ""
	case string:
		*c = Currency(v)
	case []byte:
		*c = Currency(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Currency", value)
	}
	return nil
}
