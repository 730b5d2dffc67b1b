package domain

import (
	"sort"
	"time"

	"github.com/gammazero/deque"
	"github.com/shopspring/decimal"
)

const DefaultTapeCapacity = 50

// TradeTape keeps the most recent trades of a symbol, newest first.
// It is not safe for concurrent use; the owning loop serializes access.
type TradeTape struct {
	capacity int
	trades   deque.Deque[Trade]
	ids      map[string]struct{}
}

type TaggedTrade struct {
	Trade
	Direction Direction `json:"direction"`
}

type TapeStats struct {
	Count        int             `json:"count"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
	TotalVolume  int64           `json:"totalVolume"`
	LastPrice    Price           `json:"lastPrice"`
}

func NewTradeTape(capacity int) *TradeTape {
	if capacity <= 0 {
		capacity = DefaultTapeCapacity
	}
	return &TradeTape{
		capacity: capacity,
		trades:   deque.Deque[Trade]{},
		ids:      make(map[string]struct{}),
	}
}

// Append puts a freshly executed trade on top of the tape and evicts the
// oldest entries beyond capacity. A trade id already on the tape is ignored.
func (t *TradeTape) Append(trade Trade) bool {
	if trade.ID != "" {
		if _, ok := t.ids[trade.ID]; ok {
			return false
		}
		t.ids[trade.ID] = struct{}{}
	}

	t.trades.PushFront(trade)
	for t.trades.Len() > t.capacity {
		evicted := t.trades.PopBack()
		delete(t.ids, evicted.ID)
	}
	return true
}

// Replace swaps the contents for an authoritative batch ordered newest first.
// Trades already on the tape that are newer than anything in the batch and
// absent from it were pushed after the poll was taken; they stay on top.
func (t *TradeTape) Replace(trades []Trade) {
	var newest time.Time
	batch := make(map[string]struct{}, len(trades))
	for i := range trades {
		if trades[i].Timestamp.After(newest) {
			newest = trades[i].Timestamp
		}
		if trades[i].ID != "" {
			batch[trades[i].ID] = struct{}{}
		}
	}

	merged := make([]Trade, 0, t.trades.Len()+len(trades))
	for i := 0; i < t.trades.Len(); i++ {
		current := t.trades.At(i)
		if !current.Timestamp.After(newest) {
			continue
		}
		if _, ok := batch[current.ID]; ok && current.ID != "" {
			continue
		}
		merged = append(merged, current)
	}
	merged = append(merged, trades...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})

	t.trades.Clear()
	t.ids = make(map[string]struct{}, len(merged))
	for i := range merged {
		if t.trades.Len() == t.capacity {
			break
		}
		if merged[i].ID != "" {
			if _, ok := t.ids[merged[i].ID]; ok {
				continue
			}
			t.ids[merged[i].ID] = struct{}{}
		}
		t.trades.PushBack(merged[i])
	}
}

func (t *TradeTape) Len() int {
	return t.trades.Len()
}

func (t *TradeTape) Capacity() int {
	return t.capacity
}

// Trades returns a copy of the tape, newest first.
func (t *TradeTape) Trades() []Trade {
	result := make([]Trade, t.trades.Len())
	for i := range result {
		result[i] = t.trades.At(i)
	}
	return result
}

// Directions tags every trade against the next older one.
func (t *TradeTape) Directions() []TaggedTrade {
	trades := t.Trades()
	result := make([]TaggedTrade, len(trades))
	for i := range trades {
		var previous *Trade
		if i+1 < len(trades) {
			previous = &trades[i+1]
		}
		result[i] = TaggedTrade{
			Trade:     trades[i],
			Direction: TradeDirection(&trades[i], previous),
		}
	}
	return result
}

func (t *TradeTape) Stats() TapeStats {
	stats := TapeStats{
		Count:        t.trades.Len(),
		AveragePrice: decimal.Zero,
	}
	if stats.Count == 0 {
		return stats
	}

	sum := decimal.Zero
	for i := 0; i < t.trades.Len(); i++ {
		trade := t.trades.At(i)
		sum = sum.Add(trade.Price.Decimal())
		stats.TotalVolume += trade.Quantity
	}

	stats.AveragePrice = sum.Div(decimal.NewFromInt(int64(stats.Count))).Round(priceScale)
	stats.LastPrice = t.trades.Front().Price
	return stats
}
