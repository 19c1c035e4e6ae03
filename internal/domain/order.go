package domain

import (
	"fmt"
	"time"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// ParseOrderStatus validates s.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return st, nil
	}
	return "", fmt.Errorf("invalid order status %q", s)
}

// OrderFact is the part of an order the review gate needs: who bought
// which products and whether it arrived.
type OrderFact struct {
	OrderID    string
	UserID     string
	Status     OrderStatus
	ProductIDs []string
	UpdatedAt  time.Time
}
