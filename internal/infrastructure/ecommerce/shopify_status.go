package ecommerce

import (
	"strings"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
)

// Shopify status vocabularies. Values missing from a table fall into the
// safe bucket of that axis instead of failing the payload.

var shopifyFinancialStatus = map[string]sales.PaymentStatus{
	"pending":            sales.PaymentStatusPending,
	"authorized":         sales.PaymentStatusPending,
	"partially_paid":     sales.PaymentStatusPartiallyPaid,
	"paid":               sales.PaymentStatusPaid,
	"partially_refunded": sales.PaymentStatusPartiallyRefunded,
	"refunded":           sales.PaymentStatusRefunded,
	"voided":             sales.PaymentStatusVoided,
	"expired":            sales.PaymentStatusFailed,
}

var shopifyFulfillmentStatus = map[string]sales.FulfillmentStatus{
	"":          sales.FulfillmentStatusUnfulfilled,
	"null":      sales.FulfillmentStatusUnfulfilled,
	"fulfilled": sales.FulfillmentStatusInTransit,
	"partial":   sales.FulfillmentStatusPartiallyFulfilled,
	"restocked": sales.FulfillmentStatusReturned,
}

// shipment_status of a fulfillment is more precise than the order-level status
var shopifyShipmentStatus = map[string]sales.FulfillmentStatus{
	"label_printed":      sales.FulfillmentStatusAwaitingShipment,
	"label_purchased":    sales.FulfillmentStatusAwaitingShipment,
	"confirmed":          sales.FulfillmentStatusInTransit,
	"in_transit":         sales.FulfillmentStatusInTransit,
	"out_for_delivery":   sales.FulfillmentStatusInTransit,
	"attempted_delivery": sales.FulfillmentStatusInTransit,
	"ready_for_pickup":   sales.FulfillmentStatusAwaitingPickup,
	"delivered":          sales.FulfillmentStatusDelivered,
}

var shopifyReturnStatus = map[string]returns.Status{
	"requested": returns.StatusRequested,
	"open":      returns.StatusApproved,
	"closed":    returns.StatusCompleted,
	"declined":  returns.StatusRejected,
	"canceled":  returns.StatusCancelled,
	"cancelled": returns.StatusCancelled,
}

var shopifyTransactionKind = map[string]integration.TransactionKind{
	"refund":        integration.TransactionRefund,
	"void":          integration.TransactionVoid,
	"capture":       integration.TransactionCapture,
	"sale":          integration.TransactionSale,
	"authorization": integration.TransactionAuth,
}

var shopifyTransactionStatus = map[string]integration.TransactionStatus{
	"success": integration.TransactionSuccess,
	"pending": integration.TransactionPending,
	"failure": integration.TransactionFailure,
	"error":   integration.TransactionError,
}

// codGateways are gateway name fragments that mean cash on delivery
var codGateways = []string{"cash on delivery", "(cod)", "kapıda ödeme", "kapida odeme"}

func shopifyStatuses(o *shopifyOrder) sales.StatusSet {
	set := sales.DefaultStatusSet()

	if p, ok := shopifyFinancialStatus[strings.ToLower(o.FinancialStatus)]; ok {
		set.Payment = p
	}

	raw := ""
	if o.FulfillmentStatus != nil {
		raw = strings.ToLower(*o.FulfillmentStatus)
	}
	if f, ok := shopifyFulfillmentStatus[raw]; ok {
		set.Fulfillment = f
	}
	for i := len(o.Fulfillments) - 1; i >= 0; i-- {
		if f, ok := shopifyShipmentStatus[strings.ToLower(o.Fulfillments[i].ShipmentStatus)]; ok {
			set.Fulfillment = f
			break
		}
	}

	switch {
	case o.CancelledAt != nil:
		set.Order = sales.OrderStatusCancelled
		if set.Fulfillment == sales.FulfillmentStatusUnfulfilled {
			set.Fulfillment = sales.FulfillmentStatusCancelled
		}
	case set.Payment == sales.PaymentStatusRefunded:
		set.Order = sales.OrderStatusRefunded
	case set.Payment == sales.PaymentStatusPartiallyRefunded:
		set.Order = sales.OrderStatusPartiallyRefunded
	case set.Fulfillment == sales.FulfillmentStatusDelivered,
		o.ClosedAt != nil && set.Fulfillment != sales.FulfillmentStatusUnfulfilled:
		set.Order = sales.OrderStatusCompleted
	case set.Payment == sales.PaymentStatusPaid,
		set.Payment == sales.PaymentStatusPartiallyPaid,
		set.Fulfillment != sales.FulfillmentStatusUnfulfilled:
		set.Order = sales.OrderStatusProcessing
	}
	return set
}

func shopifyRawStatus(o *shopifyOrder) string {
	fulfillment := "unfulfilled"
	if o.FulfillmentStatus != nil && *o.FulfillmentStatus != "" {
		fulfillment = *o.FulfillmentStatus
	}
	if o.CancelledAt != nil {
		return o.FinancialStatus + "/" + fulfillment + "/cancelled"
	}
	return o.FinancialStatus + "/" + fulfillment
}

func shopifyPaymentMethod(gateways []string) sales.PaymentMethod {
	if len(gateways) == 0 {
		return sales.PaymentMethodUnknown
	}
	for _, g := range gateways {
		name := strings.ToLower(strings.TrimSpace(g))
		if name == "cod" {
			return sales.PaymentMethodCashOnDelivery
		}
		for _, cod := range codGateways {
			if strings.Contains(name, cod) {
				return sales.PaymentMethodCashOnDelivery
			}
		}
	}
	return sales.PaymentMethodPrepaid
}

func mapShopifyReturnStatus(raw string) returns.Status {
	if s, ok := shopifyReturnStatus[strings.ToLower(raw)]; ok {
		return s
	}
	return returns.StatusRequested
}

func mapShopifyTransaction(kind, status string) (integration.TransactionKind, integration.TransactionStatus) {
	k, ok := shopifyTransactionKind[strings.ToLower(kind)]
	if !ok {
		k = integration.TransactionKind(strings.ToLower(kind))
	}
	s, ok := shopifyTransactionStatus[strings.ToLower(status)]
	if !ok {
		s = integration.TransactionPending
	}
	return k, s
}
