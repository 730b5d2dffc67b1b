package usecase

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spooky-finn/orderbook-sync/domain"
	"go.uber.org/zap"
)

type OrdersSummary struct {
	Orders []domain.LedgerEntry       `json:"orders"`
	Counts map[domain.OrderStatus]int `json:"counts"`
}

// SubmitOrder records the order locally, sends it and merges the answer.
// A validation failure returns before anything leaves the process.
func (c *SyncController) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.LedgerEntry, error) {
	symbol, err := domain.NormalizeSymbol(req.Symbol)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	req.Symbol = symbol
	if req.Owner == "" {
		req.Owner = c.opts.UserID
	}

	var entry domain.LedgerEntry
	err = c.do(ctx, func() error {
		var recordErr error
		entry, recordErr = c.ledger.RecordSubmission(req)
		return recordErr
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	clientID := entry.ClientID

	ack, submitErr := c.connManager.Gateway().SubmitOrder(ctx, req)

	err = c.do(context.Background(), func() error {
		if submitErr != nil {
			entry, _ = c.ledger.MarkSubmitFailed(clientID, submitErr.Error())
			return nil
		}

		var confirmErr error
		entry, confirmErr = c.ledger.Confirm(clientID, *ack)
		if domain.IsErrInconsistentTransition(confirmErr) {
			c.logger.Warn("ignoring inconsistent submission ack", zap.Error(confirmErr))
			return nil
		}
		return confirmErr
	})
	if err != nil {
		return entry, err
	}
	if submitErr != nil {
		c.logger.Warn("order submission failed",
			zap.String("symbol", req.Symbol), zap.String("clientId", clientID), zap.Error(submitErr))
		return entry, submitErr
	}

	c.logger.Info("order submitted",
		zap.String("symbol", entry.Symbol),
		zap.String("orderId", entry.ID),
		zap.String("status", string(entry.Status)),
		zap.Int("executedTrades", ack.ExecutedTrades))
	return entry, nil
}

// CancelOrder marks the order cancelled right away and asks the server to
// cancel it. The server answer decides the final status: a fill that
// happened first wins over the cancel.
func (c *SyncController) CancelOrder(ctx context.Context, orderID string) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := c.do(ctx, func() error {
		var err error
		entry, err = c.ledger.RequestCancel(orderID)
		return err
	})
	if err != nil {
		return entry, err
	}

	cancelErr := c.connManager.Gateway().CancelOrder(ctx, entry.Symbol, orderID)

	var result error
	err = c.do(context.Background(), func() error {
		switch {
		case cancelErr == nil:
			current, err := c.ledger.Get(orderID)
			if err != nil {
				return err
			}
			entry, err = c.ledger.ApplyServerUpdate(orderID, domain.OrderStatus_Cancelled, current.RemainingQuantity)
			if domain.IsErrInconsistentTransition(err) {
				// already terminal through the book, the server answer stands
				c.logger.Debug("cancel confirmed after terminal update", zap.Error(err))
				return nil
			}
			return err
		case errors.Is(cancelErr, domain.ErrOrderNotFound):
			entry, _ = c.ledger.ClearCancel(orderID, "not found on server")
			result = &domain.CancelRejectedError{
				OrderID: orderID,
				Status:  entry.Status,
				Reason:  "order is no longer in the server book",
			}
		default:
			entry, _ = c.ledger.ClearCancel(orderID, fmt.Sprintf("cancel failed: %v", cancelErr))
			result = cancelErr
		}
		return nil
	})
	if err != nil {
		return entry, err
	}
	if result != nil {
		c.logger.Warn("order cancel failed", zap.String("orderId", orderID), zap.Error(result))
	}
	return entry, result
}

// Orders lists the viewer's orders, newest first. An empty symbol lists all.
func (c *SyncController) Orders(ctx context.Context, symbol string) (*OrdersSummary, error) {
	if symbol != "" {
		normalized, err := domain.NormalizeSymbol(symbol)
		if err != nil {
			return nil, err
		}
		symbol = normalized
	}

	var summary *OrdersSummary
	err := c.do(ctx, func() error {
		orders := c.ledger.Orders(symbol)
		counts := make(map[domain.OrderStatus]int)
		for i := range orders {
			counts[orders[i].DisplayStatus()]++
		}
		summary = &OrdersSummary{Orders: orders, Counts: counts}
		return nil
	})
	return summary, err
}

// EvictOrder removes a terminal order from the ledger.
func (c *SyncController) EvictOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, func() error {
		return c.ledger.Evict(orderID)
	})
}
