package ecommerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omnisync/backend/internal/domain/integration"
)

// flexID decodes an identifier sent either as a JSON number or a string
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

// money decodes an amount sent as a JSON number, a numeric string, an empty
// string or null. The latter two decode as zero.
type money struct {
	decimal.Decimal
}

func (m *money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		m.Decimal = decimal.Zero
		return nil
	}
	return m.Decimal.UnmarshalJSON(data)
}

// epochMillis decodes a Unix timestamp in milliseconds
type epochMillis int64

// Time returns nil for a zero timestamp
func (e epochMillis) Time() *time.Time {
	if e <= 0 {
		return nil
	}
	t := time.UnixMilli(int64(e)).UTC()
	return &t
}

// decode unmarshals a channel payload, wrapping failures for the job queue
func decode(platform integration.PlatformCode, what string, payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%w: %s %s payload is empty", integration.ErrPlatformInvalidResponse, platform, what)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %s %s payload: %v", integration.ErrPlatformInvalidResponse, platform, what, err)
	}
	return nil
}

// topLevelID extracts the "id" field of a JSON object
func topLevelID(body json.RawMessage) string {
	var probe struct {
		ID flexID `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.ID.String()
}

// splitItems turns a JSON array of objects into pull items
func splitItems(raw []json.RawMessage, kind integration.JobKind, idOf func(json.RawMessage) string) []integration.PullItem {
	items := make([]integration.PullItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, integration.PullItem{
			ExternalID: idOf(r),
			Kind:       kind,
			Payload:    r,
		})
	}
	return items
}

// percent converts a fractional rate such as 0.2 into a percentage (20)
func percent(fraction decimal.Decimal) decimal.Decimal {
	return fraction.Mul(decimal.NewFromInt(100))
}
