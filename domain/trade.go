package domain

import "time"

type Trade struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	BuyOrderID  string    `json:"buyOrderId,omitempty"`
	SellOrderID string    `json:"sellOrderId,omitempty"`
	Price       Price     `json:"price"`
	Quantity    int64     `json:"quantity"`
	Timestamp   time.Time `json:"timestamp"`
}

type Direction string

const (
	Direction_Up      Direction = "up"
	Direction_Down    Direction = "down"
	Direction_Neutral Direction = "neutral"
)

// TradeDirection compares a trade with the one executed right before it.
// The oldest trade on the tape has no predecessor and is neutral.
func TradeDirection(trade *Trade, previous *Trade) Direction {
	if trade == nil || previous == nil {
		return Direction_Neutral
	}
	switch {
	case trade.Price > previous.Price:
		return Direction_Up
	case trade.Price < previous.Price:
		return Direction_Down
	}
	return Direction_Neutral
}
