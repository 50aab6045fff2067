package ecommerce

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
)

const trendyolDefaultCurrency = "TRY"

// TrendyolNormalizer decodes marketplace payloads into the channel shapes
type TrendyolNormalizer struct{}

// NewTrendyolNormalizer creates a TrendyolNormalizer
func NewTrendyolNormalizer() *TrendyolNormalizer { return &TrendyolNormalizer{} }

// Platform implements integration.Normalizer
func (n *TrendyolNormalizer) Platform() integration.PlatformCode { return integration.PlatformTrendyol }

// NormalizeOrder implements integration.Normalizer. The external id is the
// shipment package id; one marketplace order may split into several packages.
func (n *TrendyolNormalizer) NormalizeOrder(payload []byte) (*integration.ChannelOrder, error) {
	var p trendyolPackage
	if err := decode(integration.PlatformTrendyol, "package", payload, &p); err != nil {
		return nil, err
	}
	id := p.packageID()
	if id == "" {
		return nil, fmt.Errorf("%w: trendyol package without id", integration.ErrPlatformInvalidResponse)
	}

	currency := strings.ToUpper(strings.TrimSpace(p.CurrencyCode))
	if currency == "" {
		currency = trendyolDefaultCurrency
	}
	grand := p.TotalPrice.Decimal
	if grand.IsZero() {
		grand = p.GrossAmount.Sub(p.TotalDiscount.Decimal)
	}

	out := &integration.ChannelOrder{
		Platform:      integration.PlatformTrendyol,
		ExternalID:    id,
		OrderNumber:   p.OrderNumber,
		RawStatus:     p.status(),
		Statuses:      trendyolStatuses(p.status()),
		PaymentMethod: sales.PaymentMethodPrepaid,
		Currency:      currency,
		TaxIncluded:   true,
		Subtotal:      p.GrossAmount.Decimal,
		Discount:      p.TotalDiscount.Decimal,
		GrandTotal:    grand,
		Customer:      trendyolCustomer(&p),
		Shipping: integration.ChannelShipping{
			Carrier:        p.CargoProviderName,
			TrackingNumber: p.CargoTrackingNumber.String(),
			Desi:           p.CargoDeci.Decimal,
		},
		PlacedAt: p.OrderDate.Time(),
		Payload:  payload,
	}

	tax := decimal.Zero
	for _, l := range p.Lines {
		line := trendyolLineOf(l)
		out.Lines = append(out.Lines, line)
		tax = tax.Add(includedTax(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Sub(line.Discount), line.TaxRate))
	}
	out.Tax = tax.Round(2)
	return out, nil
}

func trendyolCustomer(p *trendyolPackage) integration.ChannelCustomer {
	addr := p.ShipmentAddress
	if addr.Address1 == "" && addr.FullAddress == "" {
		addr = p.InvoiceAddress
	}
	line := strings.TrimSpace(addr.Address1)
	if line == "" {
		line = strings.TrimSpace(addr.FullAddress)
	}

	c := integration.ChannelCustomer{
		ExternalID:  p.CustomerID.String(),
		FirstName:   strings.TrimSpace(p.CustomerFirstName),
		LastName:    strings.TrimSpace(p.CustomerLastName),
		Email:       strings.TrimSpace(p.CustomerEmail),
		Phone:       addr.Phone,
		AddressLine: line,
	}
	if c.FirstName == "" && c.LastName == "" {
		c.FirstName = strings.TrimSpace(addr.FirstName)
		c.LastName = strings.TrimSpace(addr.LastName)
	}
	if !c.DetectMasked(integration.PlatformTrendyol.MaskSentinel()) {
		c.Phone = NormalizePhone(c.Phone, addr.CountryCode)
	}
	return c
}

func trendyolLineOf(l trendyolLine) integration.ChannelLine {
	sku := strings.TrimSpace(l.MerchantSKU)
	if sku == "" {
		sku = strings.TrimSpace(l.SKU)
	}
	qty := l.Quantity
	if qty <= 0 {
		qty = 1
	}
	// amount is the undiscounted unit price, discount is per unit
	unit := l.Amount.Decimal
	if unit.IsZero() {
		unit = l.Price.Add(l.Discount.Decimal)
	}
	return integration.ChannelLine{
		ExternalID:        l.ID.String(),
		VariantExternalID: strings.TrimSpace(l.Barcode),
		ProductExternalID: l.ProductContentID.String(),
		SKU:               sku,
		Barcode:           strings.TrimSpace(l.Barcode),
		Title:             l.ProductName,
		Quantity:          qty,
		UnitPrice:         unit,
		Discount:          l.Discount.Mul(decimal.NewFromInt(int64(qty))),
		TaxRate:           l.VatBaseAmount.Decimal,
		CommissionRate:    l.Commission.Decimal,
	}
}

// includedTax extracts the VAT contained in a gross amount at ratePct percent
func includedTax(gross, ratePct decimal.Decimal) decimal.Decimal {
	if ratePct.IsZero() || gross.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	return gross.Mul(ratePct).Div(hundred.Add(ratePct))
}

// NormalizeReturn implements integration.Normalizer. Only claims exist on the
// marketplace; Trendyol settles refunds itself.
func (n *TrendyolNormalizer) NormalizeReturn(kind integration.JobKind, payload []byte) (*integration.ChannelReturn, error) {
	if kind != integration.JobKindClaim {
		return nil, fmt.Errorf("%w: trendyol %s", integration.ErrUnsupportedTopic, kind)
	}
	var c trendyolClaim
	if err := decode(integration.PlatformTrendyol, "claim", payload, &c); err != nil {
		return nil, err
	}

	out := &integration.ChannelReturn{
		Platform:        integration.PlatformTrendyol,
		Kind:            returns.KindClaim,
		ExternalID:      c.ID.String(),
		OrderExternalID: c.OrderShipmentPackageID.String(),
		Currency:        trendyolDefaultCurrency,
		Shipping: integration.ChannelShipping{
			Carrier:        c.CargoProviderName,
			TrackingNumber: c.CargoTrackingNumber.String(),
		},
		OccurredAt: c.LastModifiedDate.Time(),
		Payload:    payload,
	}
	if out.OccurredAt == nil {
		out.OccurredAt = c.ClaimDate.Time()
	}

	var statuses []returns.Status
	for _, item := range c.Items {
		if len(item.ClaimItems) == 0 {
			continue
		}
		first := item.ClaimItems[0]
		restock := ""
		for _, ci := range item.ClaimItems {
			s := mapTrendyolClaimItemStatus(ci.ClaimItemStatus.Name)
			statuses = append(statuses, s)
			if s == returns.StatusCompleted {
				restock = integration.RestockReturn
			}
		}
		reason := first.CustomerReason.Name
		if reason == "" {
			reason = first.TrendyolReason.Name
		}
		qty := len(item.ClaimItems)
		out.Lines = append(out.Lines, integration.ChannelReturnLine{
			OrderLineExternalID: item.OrderLine.ID.String(),
			VariantExternalID:   strings.TrimSpace(item.OrderLine.Barcode),
			SKU:                 strings.TrimSpace(item.OrderLine.MerchantSKU),
			Barcode:             strings.TrimSpace(item.OrderLine.Barcode),
			Quantity:            qty,
			RestockType:         restock,
			Reason:              reason,
			RefundAmount:        item.OrderLine.Price.Mul(decimal.NewFromInt(int64(qty))),
		})
		if out.ReasonCode == "" {
			out.ReasonCode = first.CustomerReason.Code
			out.ReasonName = reason
		}
		if out.CustomerNote == "" {
			out.CustomerNote = first.Note
		}
	}
	out.Status = trendyolClaimStatusOf(statuses)
	return out, nil
}

// NormalizeProduct implements integration.Normalizer. A listing row is one
// variant; the product id is the shared productMainId.
func (n *TrendyolNormalizer) NormalizeProduct(payload []byte) (*integration.ChannelProduct, error) {
	var p trendyolProduct
	if err := decode(integration.PlatformTrendyol, "product", payload, &p); err != nil {
		return nil, err
	}
	productID := strings.TrimSpace(p.ProductMainID)
	if productID == "" {
		productID = p.ID.String()
	}
	if productID == "" {
		return nil, fmt.Errorf("%w: trendyol product without id", integration.ErrPlatformInvalidResponse)
	}
	currency := strings.ToUpper(p.Currency)
	if currency == "" {
		currency = trendyolDefaultCurrency
	}
	variantID := strings.TrimSpace(p.Barcode)
	if variantID == "" {
		variantID = p.ID.String()
	}
	return &integration.ChannelProduct{
		Platform:   integration.PlatformTrendyol,
		ExternalID: productID,
		Title:      p.Title,
		Currency:   currency,
		Variants: []integration.ChannelVariant{{
			ExternalID: variantID,
			SKU:        strings.TrimSpace(p.StockCode),
			Barcode:    strings.TrimSpace(p.Barcode),
			Title:      p.Title,
			Price:      p.SalePrice.Decimal,
			Stock:      p.Quantity,
		}},
		Payload: payload,
	}, nil
}

var _ integration.Normalizer = (*TrendyolNormalizer)(nil)
