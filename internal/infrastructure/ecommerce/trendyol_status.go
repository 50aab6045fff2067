package ecommerce

import (
	"strings"

	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
)

// trendyolPackageStatus maps shipment package statuses onto the three order
// axes. Marketplace orders are always paid before they reach the seller.
var trendyolPackageStatus = map[string]sales.StatusSet{
	"awaiting": {Order: sales.OrderStatusPending, Payment: sales.PaymentStatusPending, Fulfillment: sales.FulfillmentStatusUnfulfilled},
	"created":  {Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusAwaitingShipment},
	"picking":  {Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusAwaitingShipment},
	"invoiced": {Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusAwaitingShipment},
	"repack":   {Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusAwaitingShipment},
	"shipped":  {Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusInTransit},
	"atcollectionpoint": {
		Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusAwaitingPickup,
	},
	"delivered":   {Order: sales.OrderStatusCompleted, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusDelivered},
	"undelivered": {Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusInTransit},
	"returned":    {Order: sales.OrderStatusRefunded, Payment: sales.PaymentStatusRefunded, Fulfillment: sales.FulfillmentStatusReturned},
	"cancelled":   {Order: sales.OrderStatusCancelled, Payment: sales.PaymentStatusRefunded, Fulfillment: sales.FulfillmentStatusCancelled},
	"unsupplied":  {Order: sales.OrderStatusCancelled, Payment: sales.PaymentStatusRefunded, Fulfillment: sales.FulfillmentStatusCancelled},
	"unpacked":    {Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusAwaitingShipment},
}

func trendyolStatuses(raw string) sales.StatusSet {
	if set, ok := trendyolPackageStatus[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return set
	}
	return sales.DefaultStatusSet()
}

// trendyolClaimStatus maps claim item statuses onto the return lifecycle
var trendyolClaimStatus = map[string]returns.Status{
	"created":           returns.StatusRequested,
	"waitinginaction":   returns.StatusReceived,
	"waitingfraudcheck": returns.StatusInspecting,
	"unresolved":        returns.StatusInspecting,
	"inanalysis":        returns.StatusInspecting,
	"accepted":          returns.StatusCompleted,
	"rejected":          returns.StatusRejected,
	"cancelled":         returns.StatusCancelled,
}

// claimStatusOrder ranks claim item statuses from least to most settled; a
// claim takes the status of its least settled item
var claimStatusOrder = []returns.Status{
	returns.StatusRequested,
	returns.StatusReceived,
	returns.StatusInspecting,
	returns.StatusRejected,
	returns.StatusCompleted,
	returns.StatusCancelled,
}

func mapTrendyolClaimItemStatus(raw string) returns.Status {
	if s, ok := trendyolClaimStatus[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return returns.StatusRequested
}

func trendyolClaimStatusOf(items []returns.Status) returns.Status {
	if len(items) == 0 {
		return returns.StatusRequested
	}
	best := len(claimStatusOrder)
	for _, s := range items {
		for i, candidate := range claimStatusOrder {
			if candidate == s && i < best {
				best = i
			}
		}
	}
	if best == len(claimStatusOrder) {
		return returns.StatusRequested
	}
	return claimStatusOrder[best]
}
