package domain

import "time"

type IUpdateValidator interface {
	// if return nil, the update can be applied
	IsValidUpd(update *MarketUpdate, lastBookTime time.Time) error
	IsErrStale(err error) bool
}

// BookTimeValidator drops order book payloads older than the one already
// applied. Both transports deliver full books, so a newer book always wins
// and an older one arriving late through the other path is skipped.
type BookTimeValidator struct{}

func (v *BookTimeValidator) IsValidUpd(update *MarketUpdate, lastBookTime time.Time) error {
	if update.Resource != Resource_OrderBook || update.Book == nil {
		return nil
	}
	if update.Book.Timestamp.IsZero() || lastBookTime.IsZero() {
		return nil
	}
	if update.Book.Timestamp.Before(lastBookTime) {
		return &StaleUpdateError{
			Symbol:     update.Symbol,
			Generation: update.Generation,
			Reason:     "order book is older than the applied one",
		}
	}
	return nil
}

func (v *BookTimeValidator) IsErrStale(err error) bool {
	return IsErrStale(err)
}
