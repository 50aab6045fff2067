package ecommerce

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
)

// ShopifyNormalizer decodes storefront payloads into the channel shapes
type ShopifyNormalizer struct{}

// NewShopifyNormalizer creates a ShopifyNormalizer
func NewShopifyNormalizer() *ShopifyNormalizer { return &ShopifyNormalizer{} }

// Platform implements integration.Normalizer
func (n *ShopifyNormalizer) Platform() integration.PlatformCode { return integration.PlatformShopify }

// NormalizeOrder implements integration.Normalizer
func (n *ShopifyNormalizer) NormalizeOrder(payload []byte) (*integration.ChannelOrder, error) {
	var o shopifyOrder
	if err := decode(integration.PlatformShopify, "order", payload, &o); err != nil {
		return nil, err
	}
	if o.ID == "" {
		return nil, fmt.Errorf("%w: shopify order without id", integration.ErrPlatformInvalidResponse)
	}

	out := &integration.ChannelOrder{
		Platform:      integration.PlatformShopify,
		ExternalID:    o.ID.String(),
		OrderNumber:   shopifyOrderNumber(&o),
		RawStatus:     shopifyRawStatus(&o),
		Statuses:      shopifyStatuses(&o),
		PaymentMethod: shopifyPaymentMethod(o.PaymentGatewayNames),
		Currency:      strings.ToUpper(o.Currency),
		TaxIncluded:   o.TaxesIncluded,
		Subtotal:      o.SubtotalPrice.Decimal,
		Discount:      o.TotalDiscounts.Decimal,
		Tax:           o.TotalTax.Decimal,
		GrandTotal:    o.TotalPrice.Decimal,
		Customer:      shopifyCustomerFragment(&o),
		Shipping:      shopifyShipping(o.Fulfillments),
		PlacedAt:      o.ProcessedAt,
		Payload:       payload,
	}
	if out.PlacedAt == nil {
		out.PlacedAt = o.CreatedAt
	}
	for _, sl := range o.ShippingLines {
		out.ShippingPrice = out.ShippingPrice.Add(sl.Price.Decimal)
	}
	for _, li := range o.LineItems {
		out.Lines = append(out.Lines, shopifyLine(li))
	}
	return out, nil
}

func shopifyOrderNumber(o *shopifyOrder) string {
	if o.Name != "" {
		return o.Name
	}
	if o.OrderNumber > 0 {
		return fmt.Sprintf("#%d", o.OrderNumber)
	}
	return o.ID.String()
}

func shopifyCustomerFragment(o *shopifyOrder) integration.ChannelCustomer {
	var c integration.ChannelCustomer
	if o.Customer != nil {
		c = integration.ChannelCustomer{
			ExternalID: o.Customer.ID.String(),
			FirstName:  strings.TrimSpace(o.Customer.FirstName),
			LastName:   strings.TrimSpace(o.Customer.LastName),
			Email:      strings.TrimSpace(o.Customer.Email),
			Phone:      o.Customer.Phone,
		}
	}
	addr := o.ShippingAddress
	if addr == nil {
		addr = o.BillingAddress
	}
	region := ""
	if addr != nil {
		region = addr.CountryCode
		c.AddressLine = strings.TrimSpace(addr.Address1)
		if c.FirstName == "" && c.LastName == "" {
			c.FirstName = strings.TrimSpace(addr.FirstName)
			c.LastName = strings.TrimSpace(addr.LastName)
		}
		if c.Phone == "" {
			c.Phone = addr.Phone
		}
	}
	if c.Email == "" {
		c.Email = strings.TrimSpace(o.Email)
	}
	if c.Phone == "" {
		c.Phone = o.Phone
	}
	if !c.DetectMasked(integration.PlatformShopify.MaskSentinel()) {
		c.Phone = NormalizePhone(c.Phone, region)
	}
	return c
}

func shopifyLine(li shopifyLineItem) integration.ChannelLine {
	line := integration.ChannelLine{
		ExternalID:        li.ID.String(),
		VariantExternalID: li.VariantID.String(),
		ProductExternalID: li.ProductID.String(),
		SKU:               strings.TrimSpace(li.SKU),
		Title:             li.Title,
		Quantity:          li.Quantity,
		UnitPrice:         li.Price.Decimal,
		Discount:          li.TotalDiscount.Decimal,
	}
	rate := decimal.Zero
	for _, tl := range li.TaxLines {
		rate = rate.Add(tl.Rate.Decimal)
	}
	line.TaxRate = percent(rate)
	return line
}

// shopifyShipping reports the most recent fulfillment that carries tracking
func shopifyShipping(fulfillments []shopifyFulfillment) integration.ChannelShipping {
	for i := len(fulfillments) - 1; i >= 0; i-- {
		f := fulfillments[i]
		if f.TrackingNumber != "" || f.TrackingCompany != "" {
			return integration.ChannelShipping{
				Carrier:        f.TrackingCompany,
				TrackingNumber: f.TrackingNumber,
			}
		}
	}
	return integration.ChannelShipping{}
}

// NormalizeReturn implements integration.Normalizer. Refund and return request
// payloads are supported; the storefront has no claim concept.
func (n *ShopifyNormalizer) NormalizeReturn(kind integration.JobKind, payload []byte) (*integration.ChannelReturn, error) {
	switch kind {
	case integration.JobKindRefund:
		return n.normalizeRefund(payload)
	case integration.JobKindReturnRequest:
		return n.normalizeReturnRequest(payload)
	default:
		return nil, fmt.Errorf("%w: shopify %s", integration.ErrUnsupportedTopic, kind)
	}
}

func (n *ShopifyNormalizer) normalizeRefund(payload []byte) (*integration.ChannelReturn, error) {
	var r shopifyRefund
	if err := decode(integration.PlatformShopify, "refund", payload, &r); err != nil {
		return nil, err
	}

	out := &integration.ChannelReturn{
		Platform:        integration.PlatformShopify,
		Kind:            returns.KindRefund,
		ExternalID:      r.ID.String(),
		OrderExternalID: r.OrderID.String(),
		CustomerNote:    r.Note,
		OccurredAt:      r.CreatedAt,
		Payload:         payload,
	}
	if r.Return != nil {
		out.ReturnRequestRef = r.Return.ID.String()
	}
	for _, rli := range r.RefundLineItems {
		lineID := rli.LineItemID.String()
		if lineID == "" {
			lineID = rli.LineItem.ID.String()
		}
		out.Lines = append(out.Lines, integration.ChannelReturnLine{
			OrderLineExternalID: lineID,
			VariantExternalID:   rli.LineItem.VariantID.String(),
			SKU:                 strings.TrimSpace(rli.LineItem.SKU),
			Quantity:            rli.Quantity,
			RestockType:         strings.ToLower(rli.RestockType),
			RefundAmount:        rli.Subtotal.Decimal,
		})
	}
	for _, t := range r.Transactions {
		kind, status := mapShopifyTransaction(t.Kind, t.Status)
		out.Transactions = append(out.Transactions, integration.ChannelTransaction{
			ExternalID:  t.ID.String(),
			Kind:        kind,
			Status:      status,
			Amount:      t.Amount.Decimal,
			Gateway:     t.Gateway,
			ProcessedAt: t.ProcessedAt,
		})
		if out.Currency == "" {
			out.Currency = strings.ToUpper(t.Currency)
		}
	}
	return out, nil
}

func (n *ShopifyNormalizer) normalizeReturnRequest(payload []byte) (*integration.ChannelReturn, error) {
	var r shopifyReturn
	if err := decode(integration.PlatformShopify, "return", payload, &r); err != nil {
		return nil, err
	}

	orderID := r.OrderID.String()
	if orderID == "" && r.Order != nil {
		orderID = r.Order.ID.String()
	}
	out := &integration.ChannelReturn{
		Platform:        integration.PlatformShopify,
		Kind:            returns.KindReturnRequest,
		ExternalID:      r.ID.String(),
		OrderExternalID: orderID,
		Status:          mapShopifyReturnStatus(r.Status),
		OccurredAt:      r.UpdatedAt,
		Payload:         payload,
	}
	if r.ReverseDelivery != nil {
		out.Shipping = integration.ChannelShipping{
			Carrier:        r.ReverseDelivery.CarrierName,
			TrackingNumber: r.ReverseDelivery.TrackingNumber,
		}
	}
	for _, rli := range r.ReturnLineItems {
		var li shopifyLineItem
		if rli.FulfillmentLineItem != nil {
			li = rli.FulfillmentLineItem.LineItem
		}
		reason := rli.ReturnReason
		if rli.ReturnReasonNote != "" {
			reason = rli.ReturnReasonNote
		}
		out.Lines = append(out.Lines, integration.ChannelReturnLine{
			OrderLineExternalID: li.ID.String(),
			VariantExternalID:   li.VariantID.String(),
			SKU:                 strings.TrimSpace(li.SKU),
			Quantity:            rli.Quantity,
			RestockType:         integration.RestockReturn,
			Reason:              reason,
		})
		if out.ReasonCode == "" {
			out.ReasonCode = rli.ReturnReason
			out.ReasonName = humanizeReason(rli.ReturnReason)
		}
		if out.CustomerNote == "" {
			out.CustomerNote = rli.CustomerNote
		}
	}
	return out, nil
}

// humanizeReason turns SIZE_TOO_SMALL into "Size too small"
func humanizeReason(code string) string {
	if code == "" {
		return ""
	}
	s := strings.ToLower(strings.ReplaceAll(code, "_", " "))
	return strings.ToUpper(s[:1]) + s[1:]
}

// NormalizeProduct implements integration.Normalizer
func (n *ShopifyNormalizer) NormalizeProduct(payload []byte) (*integration.ChannelProduct, error) {
	var p shopifyProduct
	if err := decode(integration.PlatformShopify, "product", payload, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: shopify product without id", integration.ErrPlatformInvalidResponse)
	}

	out := &integration.ChannelProduct{
		Platform:   integration.PlatformShopify,
		ExternalID: p.ID.String(),
		Title:      p.Title,
		Payload:    payload,
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, integration.ChannelVariant{
			ExternalID: v.ID.String(),
			SKU:        strings.TrimSpace(v.SKU),
			Barcode:    strings.TrimSpace(v.Barcode),
			Title:      v.Title,
			Price:      v.Price.Decimal,
			Stock:      v.InventoryQuantity,
		})
	}
	return out, nil
}

var _ integration.Normalizer = (*ShopifyNormalizer)(nil)
