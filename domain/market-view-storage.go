package domain

import (
	"sort"
	"time"
)

// MarketView is everything the dashboard shows for one tracked symbol.
type MarketView struct {
	Symbol     string
	Generation uint64

	Orders       []Order
	Book         *OrderBookSnapshot
	BookTime     time.Time
	Tape         *TradeTape
	LastSource   Source
	LastUpdateAt time.Time
}

func NewMarketView(symbol string, generation uint64, tapeCapacity int) *MarketView {
	return &MarketView{
		Symbol:     symbol,
		Generation: generation,
		Book:       Aggregate(symbol, nil),
		Tape:       NewTradeTape(tapeCapacity),
	}
}

// MarketViewStorage holds one view per symbol. It is owned by the
// controller loop and has no locking of its own.
type MarketViewStorage struct {
	storage map[string]*MarketView
}

func NewMarketViewStorage() *MarketViewStorage {
	return &MarketViewStorage{
		storage: make(map[string]*MarketView),
	}
}

func (s *MarketViewStorage) Add(view *MarketView) {
	s.storage[view.Symbol] = view
}

func (s *MarketViewStorage) Get(symbol string) (*MarketView, error) {
	view, ok := s.storage[symbol]
	if !ok {
		return nil, ErrMarketViewNotFound
	}
	return view, nil
}

func (s *MarketViewStorage) Remove(symbol string) {
	delete(s.storage, symbol)
}

func (s *MarketViewStorage) Count() int {
	return len(s.storage)
}

func (s *MarketViewStorage) Symbols() []string {
	result := make([]string, 0, len(s.storage))
	for symbol := range s.storage {
		result = append(result, symbol)
	}
	sort.Strings(result)
	return result
}
