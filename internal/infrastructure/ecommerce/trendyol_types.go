package ecommerce

import "encoding/json"

// Wire types for the Trendyol seller API. Package payloads arrive both from
// the order webhook and from the paginated orders endpoint.

type trendyolPage struct {
	Page          int               `json:"page"`
	Size          int               `json:"size"`
	TotalPages    int               `json:"totalPages"`
	TotalElements int               `json:"totalElements"`
	Content       []json.RawMessage `json:"content"`
}

type trendyolPackage struct {
	ID                    flexID          `json:"id"`
	ShipmentPackageID     flexID          `json:"shipmentPackageId"`
	OrderNumber           string          `json:"orderNumber"`
	GrossAmount           money           `json:"grossAmount"`
	TotalDiscount         money           `json:"totalDiscount"`
	TotalTyDiscount       money           `json:"totalTyDiscount"`
	TotalPrice            money           `json:"totalPrice"`
	CurrencyCode          string          `json:"currencyCode"`
	CustomerFirstName     string          `json:"customerFirstName"`
	CustomerLastName      string          `json:"customerLastName"`
	CustomerEmail         string          `json:"customerEmail"`
	CustomerID            flexID          `json:"customerId"`
	ShipmentAddress       trendyolAddress `json:"shipmentAddress"`
	InvoiceAddress        trendyolAddress `json:"invoiceAddress"`
	Lines                 []trendyolLine  `json:"lines"`
	Status                string          `json:"status"`
	ShipmentPackageStatus string          `json:"shipmentPackageStatus"`
	CargoProviderName     string          `json:"cargoProviderName"`
	CargoTrackingNumber   flexID          `json:"cargoTrackingNumber"`
	CargoDeci             money           `json:"cargoDeci"`
	OrderDate             epochMillis     `json:"orderDate"`
	LastModifiedDate      epochMillis     `json:"lastModifiedDate"`
}

// packageID prefers the explicit shipment package id of webhook payloads
func (p *trendyolPackage) packageID() string {
	if p.ShipmentPackageID != "" {
		return p.ShipmentPackageID.String()
	}
	return p.ID.String()
}

func (p *trendyolPackage) status() string {
	if p.ShipmentPackageStatus != "" {
		return p.ShipmentPackageStatus
	}
	return p.Status
}

type trendyolAddress struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Address1    string `json:"address1"`
	FullAddress string `json:"fullAddress"`
	Phone       string `json:"phone"`
	CountryCode string `json:"countryCode"`
}

type trendyolLine struct {
	ID               flexID `json:"id"`
	ProductContentID flexID `json:"productContentId"`
	MerchantSKU      string `json:"merchantSku"`
	SKU              string `json:"sku"`
	Barcode          string `json:"barcode"`
	ProductName      string `json:"productName"`
	Quantity         int    `json:"quantity"`
	Price            money  `json:"price"`
	Amount           money  `json:"amount"`
	Discount         money  `json:"discount"`
	TyDiscount       money  `json:"tyDiscount"`
	VatBaseAmount    money  `json:"vatBaseAmount"`
	Commission       money  `json:"commission"`
	OrderLineStatus  string `json:"orderLineItemStatusName"`
}

type trendyolClaim struct {
	ID                     flexID              `json:"id"`
	OrderNumber            string              `json:"orderNumber"`
	OrderShipmentPackageID flexID              `json:"orderShipmentPackageId"`
	CustomerFirstName      string              `json:"customerFirstName"`
	CustomerLastName       string              `json:"customerLastName"`
	ClaimDate              epochMillis         `json:"claimDate"`
	LastModifiedDate       epochMillis         `json:"lastModifiedDate"`
	CargoProviderName      string              `json:"cargoProviderName"`
	CargoTrackingNumber    flexID              `json:"cargoTrackingNumber"`
	Items                  []trendyolClaimLine `json:"items"`
}

type trendyolClaimLine struct {
	OrderLine  trendyolClaimOrderLine `json:"orderLine"`
	ClaimItems []trendyolClaimItem    `json:"claimItems"`
}

type trendyolClaimOrderLine struct {
	ID          flexID `json:"id"`
	Barcode     string `json:"barcode"`
	MerchantSKU string `json:"merchantSku"`
	ProductName string `json:"productName"`
	Price       money  `json:"price"`
}

type trendyolClaimItem struct {
	ID              flexID              `json:"id"`
	ClaimItemStatus trendyolNamed       `json:"claimItemStatus"`
	CustomerReason  trendyolClaimReason `json:"customerClaimItemReason"`
	TrendyolReason  trendyolClaimReason `json:"trendyolClaimItemReason"`
	Note            string              `json:"customerNote"`
	Resolved        bool                `json:"resolved"`
}

type trendyolNamed struct {
	Name string `json:"name"`
}

type trendyolClaimReason struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// trendyolProduct is one listing row; Trendyol lists each variant as its own
// row sharing productMainId
type trendyolProduct struct {
	ID            flexID `json:"id"`
	ProductMainID string `json:"productMainId"`
	Barcode       string `json:"barcode"`
	StockCode     string `json:"stockCode"`
	Title         string `json:"title"`
	SalePrice     money  `json:"salePrice"`
	Quantity      *int   `json:"quantity"`
	Currency      string `json:"currencyType"`
}
