package order

// CreateOrderItem is one requested line of a new order.
type CreateOrderItem struct {
	ProductID string `json:"product_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity"  example:"2"`
}

// CreateOrderRequest payload of order creation. The owner comes from the
// bearer token, never from the body.
type CreateOrderRequest struct {
	Items []CreateOrderItem `json:"items"`
}

// OrderOut is an order together with its line items.
type OrderOut struct {
	Order
	Items []Item `json:"items"`
}
