package shipping

import (
	"strings"

	"github.com/omnisync/backend/internal/domain/returns"
)

// geliverReturnStatus maps tracking codes of return shipments onto the return
// lifecycle. Codes without an entry leave the return where it is.
var geliverReturnStatus = map[string]returns.Status{
	"pre_transit": returns.StatusLabelGenerated,
	"transit":     returns.StatusInTransit,
	"in_transit":  returns.StatusInTransit,
	"delivered":   returns.StatusReceived,
}

func mapGeliverReturnStatus(code string) returns.Status {
	return geliverReturnStatus[strings.ToLower(strings.TrimSpace(code))]
}

// carrierNames turns Geliver provider codes into the names used by the rate table
var carrierNames = map[string]string{
	"YURTICI":       "Yurtici Kargo",
	"ARAS":          "Aras Kargo",
	"MNG":           "MNG Kargo",
	"PTT":           "PTT Kargo",
	"SURAT":         "Surat Kargo",
	"HEPSIJET":      "HepsiJET",
	"KOLAYGELSIN":   "Kolay Gelsin",
	"SENDEO":        "Sendeo",
	"TRENDYOL_EXPR": "Trendyol Express",
}

// CarrierName returns the display name for a provider code, or the code itself
func CarrierName(providerCode string) string {
	code := strings.ToUpper(strings.TrimSpace(providerCode))
	if name, ok := carrierNames[code]; ok {
		return name
	}
	return providerCode
}
