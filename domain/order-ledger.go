package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is one of the viewer's own orders.
// ClientID is assigned locally and stays stable after the server id arrives.
type LedgerEntry struct {
	Order
	ClientID        string    `json:"clientId"`
	Confirmed       bool      `json:"confirmed"`
	CancelRequested bool      `json:"cancelRequested"`
	Reason          string    `json:"reason,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DisplayStatus is the status a viewer should see. A pending cancel shows as
// CANCELLED until the server confirms or contradicts it.
func (e *LedgerEntry) DisplayStatus() OrderStatus {
	if e.CancelRequested && !e.Status.IsTerminal() {
		return OrderStatus_Cancelled
	}
	return e.Status
}

// OrderLedger owns the viewer's orders keyed by order id. Status only moves
// forward and the server wins every conflict with a local optimistic change.
// Not safe for concurrent use.
type OrderLedger struct {
	entries map[string]*LedgerEntry
	now     func() time.Time
	newID   func() string
}

func NewOrderLedger() *OrderLedger {
	return &OrderLedger{
		entries: make(map[string]*LedgerEntry),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// RecordSubmission validates the request and inserts a PENDING entry under a
// fresh client id. Nothing is recorded when validation fails.
func (l *OrderLedger) RecordSubmission(req OrderRequest) (LedgerEntry, error) {
	if err := req.Validate(); err != nil {
		return LedgerEntry{}, err
	}

	now := l.now()
	id := l.newID()
	entry := &LedgerEntry{
		Order: Order{
			ID:                id,
			Symbol:            req.Symbol,
			Side:              req.Side,
			Price:             req.Price,
			Quantity:          req.Quantity,
			RemainingQuantity: req.Quantity,
			Status:            OrderStatus_Pending,
			SubmittedAt:       now,
			Owner:             req.Owner,
		},
		ClientID:  id,
		UpdatedAt: now,
	}
	l.entries[id] = entry
	return *entry, nil
}

// Confirm re-keys an entry under the server assigned id and applies the
// status carried by the acknowledgement.
func (l *OrderLedger) Confirm(clientID string, ack OrderAck) (LedgerEntry, error) {
	entry, ok := l.entries[clientID]
	if !ok {
		return LedgerEntry{}, ErrUnknownOrder
	}

	if ack.OrderID != "" && ack.OrderID != entry.ID {
		if _, taken := l.entries[ack.OrderID]; taken {
			return *entry, NewValidationError("orderId", fmt.Sprintf("server id %s is already in the ledger", ack.OrderID))
		}
		delete(l.entries, entry.ID)
		entry.ID = ack.OrderID
		l.entries[entry.ID] = entry
	}
	entry.Confirmed = true
	entry.Reason = ack.Message
	entry.UpdatedAt = l.now()

	if ack.Status == "" {
		return *entry, nil
	}
	return l.ApplyServerUpdate(entry.ID, ack.Status, ack.RemainingQuantity)
}

// MarkSubmitFailed closes an entry whose submission never reached the book.
func (l *OrderLedger) MarkSubmitFailed(id string, reason string) (LedgerEntry, error) {
	entry, ok := l.entries[id]
	if !ok {
		return LedgerEntry{}, ErrUnknownOrder
	}
	if entry.Status.IsTerminal() {
		return *entry, nil
	}

	entry.Status = OrderStatus_Cancelled
	entry.CancelRequested = false
	entry.Reason = reason
	entry.UpdatedAt = l.now()
	return *entry, nil
}

// ApplyServerUpdate merges an authoritative status. Backward moves, moves out
// of a terminal status and growing remaining quantity are rejected with
// InconsistentTransitionError and leave the entry untouched. Replaying the
// terminal state an entry already has is accepted as a no-op. A FILLED order
// has nothing left, so its remaining quantity is always stored as 0.
func (l *OrderLedger) ApplyServerUpdate(id string, status OrderStatus, remaining int64) (LedgerEntry, error) {
	entry, ok := l.entries[id]
	if !ok {
		return LedgerEntry{}, ErrUnknownOrder
	}
	if status == OrderStatus_Filled {
		remaining = 0
	}

	if entry.Status.IsTerminal() {
		if status == entry.Status && remaining == entry.RemainingQuantity {
			return *entry, nil
		}
		return *entry, &InconsistentTransitionError{
			OrderID: id, From: entry.Status, To: status, Reason: "order is already terminal",
		}
	}
	if !entry.Status.CanTransition(status) {
		return *entry, &InconsistentTransitionError{
			OrderID: id, From: entry.Status, To: status, Reason: "backward transition",
		}
	}
	if remaining < 0 || remaining > entry.Quantity {
		return *entry, &InconsistentTransitionError{
			OrderID: id, From: entry.Status, To: status,
			Reason: fmt.Sprintf("remaining quantity %d is outside [0, %d]", remaining, entry.Quantity),
		}
	}
	if remaining > entry.RemainingQuantity {
		return *entry, &InconsistentTransitionError{
			OrderID: id, From: entry.Status, To: status,
			Reason: fmt.Sprintf("remaining quantity grew from %d to %d", entry.RemainingQuantity, remaining),
		}
	}

	entry.Status = status
	entry.RemainingQuantity = remaining
	entry.Confirmed = true
	if status.IsTerminal() {
		entry.CancelRequested = false
	}
	entry.UpdatedAt = l.now()
	return *entry, nil
}

// RequestCancel sets the optimistic cancel flag. Only acknowledged, non
// terminal orders can be cancelled.
func (l *OrderLedger) RequestCancel(id string) (LedgerEntry, error) {
	entry, ok := l.entries[id]
	if !ok {
		return LedgerEntry{}, ErrUnknownOrder
	}

	switch {
	case entry.Status.IsTerminal():
		return *entry, &CancelRejectedError{OrderID: id, Status: entry.Status, Reason: "order is already terminal"}
	case !entry.Confirmed:
		return *entry, &CancelRejectedError{OrderID: id, Status: entry.Status, Reason: "order is not acknowledged yet"}
	case entry.CancelRequested:
		return *entry, &CancelRejectedError{OrderID: id, Status: entry.Status, Reason: "cancel already in progress"}
	}

	entry.CancelRequested = true
	entry.UpdatedAt = l.now()
	return *entry, nil
}

// ClearCancel drops the optimistic flag after the server refused the cancel.
func (l *OrderLedger) ClearCancel(id string, reason string) (LedgerEntry, error) {
	entry, ok := l.entries[id]
	if !ok {
		return LedgerEntry{}, ErrUnknownOrder
	}
	entry.CancelRequested = false
	entry.Reason = reason
	entry.UpdatedAt = l.now()
	return *entry, nil
}

// ReconcileBook applies the status of every ledger order found in an
// authoritative order list. Orders missing from the list are left alone.
func (l *OrderLedger) ReconcileBook(orders []Order) (applied int, errs []error) {
	for i := range orders {
		order := &orders[i]
		entry, ok := l.entries[order.ID]
		if !ok {
			continue
		}
		if entry.Status == order.Status && entry.RemainingQuantity == order.RemainingQuantity {
			continue
		}
		if _, err := l.ApplyServerUpdate(order.ID, order.Status, order.RemainingQuantity); err != nil {
			errs = append(errs, err)
			continue
		}
		applied++
	}
	return applied, errs
}

func (l *OrderLedger) Get(id string) (LedgerEntry, error) {
	entry, ok := l.entries[id]
	if !ok {
		return LedgerEntry{}, ErrUnknownOrder
	}
	return *entry, nil
}

// Orders lists entries newest first. An empty symbol lists every symbol.
func (l *OrderLedger) Orders(symbol string) []LedgerEntry {
	result := make([]LedgerEntry, 0, len(l.entries))
	for _, entry := range l.entries {
		if symbol != "" && entry.Symbol != symbol {
			continue
		}
		result = append(result, *entry)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].SubmittedAt.After(result[j].SubmittedAt)
		}
		return result[i].ClientID < result[j].ClientID
	})
	return result
}

// StatusCounts groups entries by displayed status.
func (l *OrderLedger) StatusCounts() map[OrderStatus]int {
	counts := make(map[OrderStatus]int)
	for _, entry := range l.entries {
		counts[entry.DisplayStatus()]++
	}
	return counts
}

// Evict removes a terminal entry on explicit request.
func (l *OrderLedger) Evict(id string) error {
	entry, ok := l.entries[id]
	if !ok {
		return ErrUnknownOrder
	}
	if !entry.Status.IsTerminal() {
		return NewValidationError("orderId", fmt.Sprintf("order %s is still %s", id, entry.Status))
	}
	delete(l.entries, id)
	return nil
}

func (l *OrderLedger) Len() int {
	return len(l.entries)
}
