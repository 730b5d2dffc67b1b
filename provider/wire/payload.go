package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spooky-finn/orderbook-sync/domain"
)

type OrderDTO struct {
	ID                string           `json:"id"`
	Symbol            string           `json:"symbol"`
	Type              string           `json:"type"`
	Price             *decimal.Decimal `json:"price"`
	Quantity          int64            `json:"quantity"`
	RemainingQuantity *int64           `json:"remainingQuantity"`
	Timestamp         Timestamp        `json:"timestamp"`
	Status            string           `json:"status"`
	UserID            string           `json:"userId"`
}

type OrderBookDTO struct {
	Symbol     string     `json:"symbol"`
	BuyOrders  []OrderDTO `json:"buyOrders"`
	SellOrders []OrderDTO `json:"sellOrders"`
	Timestamp  Timestamp  `json:"timestamp"`
}

type TradeDTO struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	BuyOrderID  string           `json:"buyOrderId"`
	SellOrderID string           `json:"sellOrderId"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    int64            `json:"quantity"`
	Timestamp   Timestamp        `json:"timestamp"`
}

type OrderRequestDTO struct {
	Symbol   string      `json:"symbol"`
	Type     string      `json:"type"`
	Price    json.Number `json:"price"`
	Quantity int64       `json:"quantity"`
	UserID   string      `json:"userId"`
}

type OrderResponseDTO struct {
	OrderID           string          `json:"orderId"`
	Status            string          `json:"status"`
	RemainingQuantity *int64          `json:"remainingQuantity"`
	ExecutedTrades    json.RawMessage `json:"executedTrades"`
	Message           string          `json:"message"`
}

// DecodeOrderBook parses and validates a full order book for symbol.
// Any malformed order rejects the whole payload.
func DecodeOrderBook(body []byte, symbol string) (*domain.OrderBookData, error) {
	var dto OrderBookDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, errors.Wrap(err, "decode order book")
	}
	if dto.Symbol != "" && dto.Symbol != symbol {
		return nil, errors.Errorf("order book is for %s, expected %s", dto.Symbol, symbol)
	}

	orders := make([]domain.Order, 0, len(dto.BuyOrders)+len(dto.SellOrders))
	for _, group := range []struct {
		side   domain.Side
		orders []OrderDTO
	}{
		{domain.Side_Buy, dto.BuyOrders},
		{domain.Side_Sell, dto.SellOrders},
	} {
		for i := range group.orders {
			order, err := group.orders[i].ToDomain(symbol, group.side)
			if err != nil {
				return nil, errors.Wrapf(err, "%s order %d", group.side, i)
			}
			orders = append(orders, order)
		}
	}

	return &domain.OrderBookData{
		Symbol:    symbol,
		Orders:    orders,
		Timestamp: dto.Timestamp.Time,
	}, nil
}

// ToDomain converts a wire order. The list the order came from decides the
// side when the payload omits it and must agree with it otherwise.
func (o *OrderDTO) ToDomain(symbol string, side domain.Side) (domain.Order, error) {
	if o.Type != "" {
		parsed, err := domain.ParseSide(o.Type)
		if err != nil {
			return domain.Order{}, err
		}
		if parsed != side {
			return domain.Order{}, fmt.Errorf("%s order found in the %s list", parsed, side)
		}
	}
	if o.Price == nil {
		return domain.Order{}, domain.NewValidationError("price", "missing")
	}
	if o.Symbol != "" && o.Symbol != symbol {
		return domain.Order{}, fmt.Errorf("order %s is for %s, expected %s", o.ID, o.Symbol, symbol)
	}

	status := domain.OrderStatus_Pending
	if o.Status != "" {
		parsed, err := domain.ParseOrderStatus(o.Status)
		if err != nil {
			return domain.Order{}, err
		}
		status = parsed
	}

	remaining := o.Quantity
	if o.RemainingQuantity != nil {
		remaining = *o.RemainingQuantity
	}

	order := domain.Order{
		ID:                o.ID,
		Symbol:            symbol,
		Side:              side,
		Price:             domain.PriceFromDecimal(*o.Price),
		Quantity:          o.Quantity,
		RemainingQuantity: remaining,
		Status:            status,
		SubmittedAt:       o.Timestamp.Time,
		Owner:             o.UserID,
	}
	if err := order.Validate(); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// DecodeTrades accepts a list or a single trade object and returns the
// trades newest first.
func DecodeTrades(body []byte, symbol string) ([]domain.Trade, error) {
	var dtos []TradeDTO

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single TradeDTO
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, errors.Wrap(err, "decode trade")
		}
		dtos = []TradeDTO{single}
	} else if err := json.Unmarshal(trimmed, &dtos); err != nil {
		return nil, errors.Wrap(err, "decode trades")
	}

	trades := make([]domain.Trade, 0, len(dtos))
	for i := range dtos {
		trade, err := dtos[i].ToDomain(symbol)
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d", i)
		}
		trades = append(trades, trade)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.After(trades[j].Timestamp)
	})
	return trades, nil
}

func (t *TradeDTO) ToDomain(symbol string) (domain.Trade, error) {
	if t.Symbol != "" && t.Symbol != symbol {
		return domain.Trade{}, fmt.Errorf("trade %s is for %s, expected %s", t.ID, t.Symbol, symbol)
	}
	if t.Price == nil {
		return domain.Trade{}, domain.NewValidationError("price", "missing")
	}
	price := domain.PriceFromDecimal(*t.Price)
	if price <= 0 {
		return domain.Trade{}, domain.NewValidationError("price", "must be positive")
	}
	if t.Quantity <= 0 {
		return domain.Trade{}, domain.NewValidationError("quantity", "must be positive")
	}

	return domain.Trade{
		ID:          t.ID,
		Symbol:      symbol,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Price:       price,
		Quantity:    t.Quantity,
		Timestamp:   t.Timestamp.Time,
	}, nil
}

func EncodeOrderRequest(req domain.OrderRequest) ([]byte, error) {
	return json.Marshal(OrderRequestDTO{
		Symbol:   req.Symbol,
		Type:     string(req.Side),
		Price:    json.Number(req.Price.String()),
		Quantity: req.Quantity,
		UserID:   req.Owner,
	})
}

// DecodeOrderAck reads the submission answer. executedTrades is either a
// count or the list of trades.
func DecodeOrderAck(body []byte, symbol string) (*domain.OrderAck, error) {
	var dto OrderResponseDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, errors.Wrap(err, "decode order response")
	}
	if dto.OrderID == "" {
		return nil, domain.NewValidationError("orderId", "missing")
	}

	ack := &domain.OrderAck{
		OrderID: dto.OrderID,
		Message: dto.Message,
	}
	if dto.Status != "" {
		status, err := domain.ParseOrderStatus(dto.Status)
		if err != nil {
			return nil, err
		}
		ack.Status = status
		if dto.RemainingQuantity == nil {
			return nil, domain.NewValidationError("remainingQuantity", "missing")
		}
		ack.RemainingQuantity = *dto.RemainingQuantity
	}

	count, err := decodeTradeCount(dto.ExecutedTrades, symbol)
	if err != nil {
		return nil, err
	}
	ack.ExecutedTrades = count
	return ack, nil
}

func decodeTradeCount(raw json.RawMessage, symbol string) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] == '[' {
		trades, err := DecodeTrades(raw, symbol)
		if err != nil {
			return 0, errors.Wrap(err, "executed trades")
		}
		return len(trades), nil
	}

	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, errors.Wrap(err, "executed trades")
	}
	return count, nil
}
