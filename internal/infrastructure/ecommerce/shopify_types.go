package ecommerce

import (
	"encoding/json"
	"time"
)

// Wire types for the Shopify Admin REST API and webhooks. Only the fields
// the normalizer reads are declared.

type shopifyOrder struct {
	ID                  flexID                `json:"id"`
	Name                string                `json:"name"`
	OrderNumber         int64                 `json:"order_number"`
	Email               string                `json:"email"`
	Phone               string                `json:"phone"`
	Currency            string                `json:"currency"`
	FinancialStatus     string                `json:"financial_status"`
	FulfillmentStatus   *string               `json:"fulfillment_status"`
	CancelledAt         *time.Time            `json:"cancelled_at"`
	ClosedAt            *time.Time            `json:"closed_at"`
	CreatedAt           *time.Time            `json:"created_at"`
	ProcessedAt         *time.Time            `json:"processed_at"`
	TaxesIncluded       bool                  `json:"taxes_included"`
	SubtotalPrice       money                 `json:"subtotal_price"`
	TotalDiscounts      money                 `json:"total_discounts"`
	TotalTax            money                 `json:"total_tax"`
	TotalPrice          money                 `json:"total_price"`
	PaymentGatewayNames []string              `json:"payment_gateway_names"`
	Customer            *shopifyCustomer      `json:"customer"`
	ShippingAddress     *shopifyAddress       `json:"shipping_address"`
	BillingAddress      *shopifyAddress       `json:"billing_address"`
	LineItems           []shopifyLineItem     `json:"line_items"`
	ShippingLines       []shopifyShippingLine `json:"shipping_lines"`
	Fulfillments        []shopifyFulfillment  `json:"fulfillments"`
	Refunds             []json.RawMessage     `json:"refunds"`
}

type shopifyCustomer struct {
	ID        flexID `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type shopifyAddress struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address1    string `json:"address1"`
	City        string `json:"city"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
}

type shopifyTaxLine struct {
	Rate  money `json:"rate"`
	Price money `json:"price"`
}

type shopifyLineItem struct {
	ID            flexID           `json:"id"`
	ProductID     flexID           `json:"product_id"`
	VariantID     flexID           `json:"variant_id"`
	SKU           string           `json:"sku"`
	Title         string           `json:"title"`
	Quantity      int              `json:"quantity"`
	Price         money            `json:"price"`
	TotalDiscount money            `json:"total_discount"`
	TaxLines      []shopifyTaxLine `json:"tax_lines"`
}

type shopifyShippingLine struct {
	Title string `json:"title"`
	Price money  `json:"price"`
}

type shopifyFulfillment struct {
	ID              flexID `json:"id"`
	Status          string `json:"status"`
	ShipmentStatus  string `json:"shipment_status"`
	TrackingCompany string `json:"tracking_company"`
	TrackingNumber  string `json:"tracking_number"`
}

type shopifyRefund struct {
	ID              flexID                   `json:"id"`
	OrderID         flexID                   `json:"order_id"`
	Note            string                   `json:"note"`
	CreatedAt       *time.Time               `json:"created_at"`
	Return          *shopifyReturnRef        `json:"return"`
	RefundLineItems []shopifyRefundLineItem  `json:"refund_line_items"`
	Transactions    []shopifyTransaction     `json:"transactions"`
	Adjustments     []shopifyOrderAdjustment `json:"order_adjustments"`
}

type shopifyReturnRef struct {
	ID flexID `json:"id"`
}

type shopifyRefundLineItem struct {
	ID          flexID          `json:"id"`
	LineItemID  flexID          `json:"line_item_id"`
	Quantity    int             `json:"quantity"`
	RestockType string          `json:"restock_type"`
	Subtotal    money           `json:"subtotal"`
	LineItem    shopifyLineItem `json:"line_item"`
}

type shopifyTransaction struct {
	ID          flexID     `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Amount      money      `json:"amount"`
	Currency    string     `json:"currency"`
	Gateway     string     `json:"gateway"`
	ProcessedAt *time.Time `json:"processed_at"`
}

type shopifyOrderAdjustment struct {
	Kind   string `json:"kind"`
	Amount money  `json:"amount"`
}

// shopifyReturn is the payload of the returns/* webhooks
type shopifyReturn struct {
	ID              flexID                  `json:"id"`
	OrderID         flexID                  `json:"order_id"`
	Order           *shopifyReturnRef       `json:"order"`
	Status          string                  `json:"status"`
	Name            string                  `json:"name"`
	ReturnLineItems []shopifyReturnLineItem `json:"return_line_items"`
	ReverseDelivery *shopifyReverseDelivery `json:"reverse_delivery"`
	UpdatedAt       *time.Time              `json:"updated_at"`
}

type shopifyReturnLineItem struct {
	ID                  flexID                  `json:"id"`
	Quantity            int                     `json:"quantity"`
	ReturnReason        string                  `json:"return_reason"`
	ReturnReasonNote    string                  `json:"return_reason_note"`
	CustomerNote        string                  `json:"customer_note"`
	FulfillmentLineItem *shopifyFulfillmentLine `json:"fulfillment_line_item"`
}

type shopifyFulfillmentLine struct {
	ID       flexID          `json:"id"`
	LineItem shopifyLineItem `json:"line_item"`
}

type shopifyReverseDelivery struct {
	TrackingNumber string `json:"tracking_number"`
	CarrierName    string `json:"carrier_name"`
}

type shopifyProduct struct {
	ID       flexID           `json:"id"`
	Title    string           `json:"title"`
	Variants []shopifyVariant `json:"variants"`
}

type shopifyVariant struct {
	ID                flexID `json:"id"`
	SKU               string `json:"sku"`
	Barcode           string `json:"barcode"`
	Title             string `json:"title"`
	Price             money  `json:"price"`
	InventoryQuantity *int   `json:"inventory_quantity"`
}

// shopifyGraphQLResponse is the envelope of a GraphQL Admin API reply
type shopifyGraphQLResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type shopifyUserErrors struct {
	UserErrors []struct {
		Field   []string `json:"field"`
		Message string   `json:"message"`
	} `json:"userErrors"`
}
