package order

import "time"

type Order struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status Status `json:"status"`
	// NUMERIC -> string, same convention as product prices
	Total     string    `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Item struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	// empty once the referenced product has been deleted; the snapshot
	// fields below keep the order history intact
	ProductID       string `json:"product_id,omitempty"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
}

// Line is one requested (product, quantity) pair of a new order.
type Line struct {
	ProductID string
	Quantity  int
}
