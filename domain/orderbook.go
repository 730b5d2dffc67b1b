package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

type PriceLevel struct {
	Price              Price `json:"price"`
	AggregateQuantity  int64 `json:"aggregateQuantity"`
	OrderCount         int   `json:"orderCount"`
	CumulativeQuantity int64 `json:"cumulativeQuantity"`
}

// OrderBookSnapshot is the aggregated view of a book. It is always rebuilt
// from scratch and never patched level by level.
type OrderBookSnapshot struct {
	Symbol        string          `json:"symbol"`
	Bids          []PriceLevel    `json:"bids"`
	Asks          []PriceLevel    `json:"asks"`
	BidDepth      int64           `json:"bidDepth"`
	AskDepth      int64           `json:"askDepth"`
	Spread        Price           `json:"spread"`
	SpreadPercent decimal.Decimal `json:"spreadPercent"`
	MidPrice      decimal.Decimal `json:"midPrice"`
	Imbalance     float64         `json:"imbalance"`
}

// Aggregate groups live orders into price levels. Bids are sorted by price
// descending and asks ascending, cumulative quantity runs from the best level
// outwards. The function has no side effects and the same input always
// produces the same snapshot.
func Aggregate(symbol string, orders []Order) *OrderBookSnapshot {
	bidLevels := map[Price]*PriceLevel{}
	askLevels := map[Price]*PriceLevel{}

	for i := range orders {
		order := &orders[i]
		if !order.IsLive() || order.Price <= 0 {
			continue
		}

		levels := bidLevels
		if order.Side == Side_Sell {
			levels = askLevels
		} else if order.Side != Side_Buy {
			continue
		}

		level, ok := levels[order.Price]
		if !ok {
			level = &PriceLevel{Price: order.Price}
			levels[order.Price] = level
		}
		level.AggregateQuantity += order.RemainingQuantity
		level.OrderCount++
	}

	bids := sortLevels(bidLevels, true)
	asks := sortLevels(askLevels, false)

	snapshot := &OrderBookSnapshot{
		Symbol:        symbol,
		Bids:          bids,
		Asks:          asks,
		BidDepth:      accumulate(bids),
		AskDepth:      accumulate(asks),
		SpreadPercent: decimal.Zero,
		MidPrice:      decimal.Zero,
	}

	if len(bids) > 0 && len(asks) > 0 {
		bestBid, bestAsk := bids[0].Price, asks[0].Price
		snapshot.Spread = bestAsk - bestBid
		snapshot.MidPrice = (bestAsk + bestBid).Decimal().Div(decimal.NewFromInt(2))
		snapshot.SpreadPercent = snapshot.Spread.Decimal().
			Div(bestBid.Decimal()).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	if total := snapshot.BidDepth + snapshot.AskDepth; total > 0 {
		snapshot.Imbalance = float64(snapshot.BidDepth) / float64(total)
	}

	return snapshot
}

func (s *OrderBookSnapshot) BestBid() (Price, bool) {
	if len(s.Bids) == 0 {
		return 0, false
	}
	return s.Bids[0].Price, true
}

func (s *OrderBookSnapshot) BestAsk() (Price, bool) {
	if len(s.Asks) == 0 {
		return 0, false
	}
	return s.Asks[0].Price, true
}

// TopLevels returns a copy truncated to limit levels per side for display.
// Depth, spread and the other scalars still describe the full book.
func (s *OrderBookSnapshot) TopLevels(limit int) *OrderBookSnapshot {
	bids := make([]PriceLevel, len(s.Bids))
	asks := make([]PriceLevel, len(s.Asks))

	copy(bids, s.Bids)
	copy(asks, s.Asks)

	out := *s
	out.Bids = limitDepth(bids, limit)
	out.Asks = limitDepth(asks, limit)
	return &out
}

func limitDepth(depth []PriceLevel, limit int) []PriceLevel {
	if limit > 0 && len(depth) > limit {
		return depth[:limit]
	}

	return depth
}

func sortLevels(levels map[Price]*PriceLevel, descending bool) []PriceLevel {
	result := make([]PriceLevel, 0, len(levels))
	for _, level := range levels {
		result = append(result, *level)
	}

	if descending {
		sort.Slice(result, func(i, j int) bool {
			return result[i].Price > result[j].Price
		})
	} else {
		sort.Slice(result, func(i, j int) bool {
			return result[i].Price < result[j].Price
		})
	}

	return result
}

// accumulate fills in the running total and returns the side depth.
func accumulate(levels []PriceLevel) int64 {
	var total int64
	for i := range levels {
		total += levels[i].AggregateQuantity
		levels[i].CumulativeQuantity = total
	}
	return total
}
