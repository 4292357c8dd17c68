package enums

import "fmt"

// OrderStatus mirrors the renewal order lifecycle.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusOnHold     OrderStatus = "on_hold"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusFailed,
	OrderStatusOnHold,
	OrderStatusProcessing,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is known.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// NeedsPayment reports whether an order in this status still owes a renewal
// charge. On-hold orders count: a retry rule may park an order on hold while
// the charge is re-attempted.
func (o OrderStatus) NeedsPayment() bool {
	switch o {
	case OrderStatusPending, OrderStatusFailed, OrderStatusOnHold:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
