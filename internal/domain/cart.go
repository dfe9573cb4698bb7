package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Cart is a remote cart held by the commerce backend.
type Cart struct {
	ID          string     `json:"id"`
	Currency    string     `json:"currency"`
	TotalCents  int64      `json:"totalCents"`
	State       string     `json:"state"`
	CheckoutURL string     `json:"checkoutUrl"`
	CreatedAt   time.Time  `json:"createdAt"`
	Lines       []CartLine `json:"lines,omitempty"`
}

type CartLine struct {
	ID             string                 `json:"id"`
	CartID         string                 `json:"cartId"`
	VariantID      string                 `json:"variantId"`
	ProductID      string                 `json:"productId"`
	Quantity       int                    `json:"quantity"`
	UnitPriceCents int64                  `json:"unitPriceCents"`
	TotalCents     int64                  `json:"totalCents"`
	Snapshot       map[string]interface{} `json:"snapshot,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// LineInput is the {variantId, quantity} pair exchanged with the backend.
type LineInput struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// LineItem is a storefront cart line. The JSON shape matches what the
// browser storefront keeps under the elinoCart storage key.
type LineItem struct {
	ProductID        string          `json:"id"`
	VariantID        string          `json:"variantId"`
	Title            string          `json:"title"`
	VariantTitle     string          `json:"variantTitle,omitempty"`
	Price            decimal.Decimal `json:"price"`
	CurrencyCode     string          `json:"currencyCode"`
	Quantity         int             `json:"quantity"`
	ImageURL         string          `json:"image"`
	ImageAlt         string          `json:"imageAlt"`
	AvailableForSale bool            `json:"availableForSale"`
	ProductHandle    string          `json:"handle"`
}

// MarshalJSON writes price as a JSON number, the form the browser keeps.
// Both numbers and quoted strings decode back into Price.
func (l LineItem) MarshalJSON() ([]byte, error) {
	type plain LineItem
	return json.Marshal(struct {
		plain
		Price json.Number `json:"price"`
	}{plain: plain(l), Price: json.Number(l.Price.String())})
}

func (l LineItem) UnitPrice() Money {
	return Money{Amount: l.Price, CurrencyCode: l.CurrencyCode}
}

func (l LineItem) Subtotal() Money {
	return l.UnitPrice().Mul(l.Quantity)
}
