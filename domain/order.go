package domain

import (
	"fmt"
	"strings"
	"time"
)

type Side string
type OrderStatus string

const (
	Side_Buy  Side = "BUY"
	Side_Sell Side = "SELL"

	OrderStatus_Pending         OrderStatus = "PENDING"
	OrderStatus_PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatus_Filled          OrderStatus = "FILLED"
	OrderStatus_Cancelled       OrderStatus = "CANCELLED"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Side_Buy:
		return Side_Buy, nil
	case Side_Sell:
		return Side_Sell, nil
	}
	return "", NewValidationError("side", fmt.Sprintf("unknown side %q", s))
}

// ParseOrderStatus maps the server vocabulary onto the local lattice.
// OPEN is a resting order without fills, which ranks the same as PENDING.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING", "OPEN":
		return OrderStatus_Pending, nil
	case "PARTIALLY_FILLED":
		return OrderStatus_PartiallyFilled, nil
	case "FILLED":
		return OrderStatus_Filled, nil
	case "CANCELLED", "CANCELED":
		return OrderStatus_Cancelled, nil
	}
	return "", NewValidationError("status", fmt.Sprintf("unknown order status %q", s))
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatus_Filled || s == OrderStatus_Cancelled
}

func (s OrderStatus) rank() int {
	switch s {
	case OrderStatus_Pending:
		return 0
	case OrderStatus_PartiallyFilled:
		return 1
	case OrderStatus_Filled, OrderStatus_Cancelled:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next respects the lattice
// PENDING -> PARTIALLY_FILLED -> FILLED, with CANCELLED reachable from any
// non-terminal status. Staying in the same non-terminal status is allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() >= s.rank()
}

type Order struct {
	ID                string      `json:"id"`
	Symbol            string      `json:"symbol"`
	Side              Side        `json:"side"`
	Price             Price       `json:"price"`
	Quantity          int64       `json:"quantity"`
	RemainingQuantity int64       `json:"remainingQuantity"`
	Status            OrderStatus `json:"status"`
	SubmittedAt       time.Time   `json:"submittedAt"`
	Owner             string      `json:"owner,omitempty"`
}

// IsLive tells whether the order still contributes depth.
func (o *Order) IsLive() bool {
	return !o.Status.IsTerminal() && o.RemainingQuantity > 0
}

func (o *Order) FilledQuantity() int64 {
	return o.Quantity - o.RemainingQuantity
}

func (o *Order) Validate() error {
	if o.ID == "" {
		return NewValidationError("id", "must not be empty")
	}
	if o.Symbol == "" {
		return NewValidationError("symbol", "must not be empty")
	}
	if o.Side != Side_Buy && o.Side != Side_Sell {
		return NewValidationError("side", fmt.Sprintf("unknown side %q", o.Side))
	}
	if o.Price <= 0 {
		return NewValidationError("price", "must be positive")
	}
	if o.Quantity <= 0 {
		return NewValidationError("quantity", "must be positive")
	}
	if o.RemainingQuantity < 0 || o.RemainingQuantity > o.Quantity {
		return NewValidationError("remainingQuantity", fmt.Sprintf("%d is outside [0, %d]", o.RemainingQuantity, o.Quantity))
	}
	if o.Status.rank() < 0 {
		return NewValidationError("status", fmt.Sprintf("unknown order status %q", o.Status))
	}
	return nil
}

// OrderRequest is what the viewer fills in before a submission.
type OrderRequest struct {
	Symbol   string `json:"symbol"`
	Side     Side   `json:"side"`
	Price    Price  `json:"price"`
	Quantity int64  `json:"quantity"`
	Owner    string `json:"owner"`
}

func (r *OrderRequest) Validate() error {
	if r.Symbol == "" {
		return NewValidationError("symbol", "must not be empty")
	}
	if r.Side != Side_Buy && r.Side != Side_Sell {
		return NewValidationError("side", fmt.Sprintf("unknown side %q", r.Side))
	}
	if r.Price <= 0 {
		return NewValidationError("price", "must be positive")
	}
	if r.Quantity <= 0 {
		return NewValidationError("quantity", "must be positive")
	}
	return nil
}

// OrderAck is the server answer to a submission.
type OrderAck struct {
	OrderID           string
	Status            OrderStatus
	RemainingQuantity int64
	ExecutedTrades    int
	Message           string
}
