package order

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var cancellable = map[Status]bool{
	StatusPending: true,
	StatusPaid:    true,
}

// CanCancel reports whether an order in status s may still be cancelled.
// shipped, delivered and already-cancelled orders reject cancellation.
func (s Status) CanCancel() bool { return cancellable[s] }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}
