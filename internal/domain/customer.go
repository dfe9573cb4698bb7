package domain

import "time"

// CustomerAddress stores address fields returned to clients.
type CustomerAddress struct {
	ID         string `json:"id,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Address1   string `json:"address1,omitempty"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"zip,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// OrderSummary is a past order as listed on the profile page.
type OrderSummary struct {
	ID          string    `json:"id"`
	OrderNumber int       `json:"orderNumber"`
	ProcessedAt time.Time `json:"processedAt"`
	TotalPrice  Money     `json:"totalPrice"`
	Status      string    `json:"fulfillmentStatus,omitempty"`
}

// Customer represents a registered shopper.
type Customer struct {
	ID             string           `json:"id"`
	Email          string           `json:"email"`
	PasswordHash   string           `json:"-"`
	FirstName      string           `json:"firstName,omitempty"`
	LastName       string           `json:"lastName,omitempty"`
	Phone          string           `json:"phone,omitempty"`
	DefaultAddress *CustomerAddress `json:"defaultAddress,omitempty"`
	Orders         []OrderSummary   `json:"orders,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// CustomerPatch is a partial profile update; nil fields are left alone.
type CustomerPatch struct {
	FirstName      *string          `json:"firstName,omitempty"`
	LastName       *string          `json:"lastName,omitempty"`
	Phone          *string          `json:"phone,omitempty"`
	DefaultAddress *CustomerAddress `json:"defaultAddress,omitempty"`
}

func (p CustomerPatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil && p.DefaultAddress == nil
}

// Apply returns c with the patch fields written over it.
func (p CustomerPatch) Apply(c Customer) Customer {
	if p.FirstName != nil {
		c.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		c.LastName = *p.LastName
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.DefaultAddress != nil {
		addr := *p.DefaultAddress
		c.DefaultAddress = &addr
	}
	return c
}

// Overlay copies every non-empty field of next over c. It is a shallow
// merge: slices and the address are replaced, never merged element-wise.
func (c Customer) Overlay(next Customer) Customer {
	if next.ID != "" {
		c.ID = next.ID
	}
	if next.Email != "" {
		c.Email = next.Email
	}
	if next.FirstName != "" {
		c.FirstName = next.FirstName
	}
	if next.LastName != "" {
		c.LastName = next.LastName
	}
	if next.Phone != "" {
		c.Phone = next.Phone
	}
	if next.DefaultAddress != nil {
		c.DefaultAddress = next.DefaultAddress
	}
	if next.Orders != nil {
		c.Orders = next.Orders
	}
	if !next.CreatedAt.IsZero() {
		c.CreatedAt = next.CreatedAt
	}
	return c
}
