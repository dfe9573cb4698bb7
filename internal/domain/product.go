package domain

import "time"

// Product is a catalogue entry as served by the commerce backend.
type Product struct {
	ID          string    `json:"id"`
	Handle      string    `json:"handle"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Images      []Image   `json:"images"`
	Variants    []Variant `json:"variants"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Image struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
}

// Variant is the purchasable unit; its ID keys cart lines.
type Variant struct {
	ID               string `json:"id"`
	Title            string `json:"title,omitempty"`
	SKU              string `json:"sku,omitempty"`
	Price            Money  `json:"price"`
	AvailableForSale bool   `json:"availableForSale"`
}

// Variant returns the variant with the given id.
func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}
