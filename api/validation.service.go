package api

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spooky-finn/orderbook-sync/domain"
)

type ValidationServiceConfig struct {
	// how many symbols the dashboard may follow at once
	MaxSymbols int
}

type ValidationService struct {
	config *ValidationServiceConfig
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	if config == nil {
		config = &ValidationServiceConfig{}
	}
	return &ValidationService{
		config: config,
	}
}

// CanTrack reports whether symbol fits next to the ones already tracked.
// A symbol that is tracked already only gains a reference and always fits.
func (s *ValidationService) CanTrack(symbol string, tracked []string) error {
	if s.config.MaxSymbols <= 0 {
		return nil
	}
	for _, t := range tracked {
		if t == symbol {
			return nil
		}
	}
	if len(tracked) >= s.config.MaxSymbols {
		return domain.NewValidationError("symbol", fmt.Sprintf("at most %d symbols can be tracked", s.config.MaxSymbols))
	}
	return nil
}

type orderRequestBody struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Owner    string          `json:"owner"`
}

// OrderRequest turns the form fields into a request. Prices with more than
// two decimals are rejected rather than rounded onto another level.
func (s *ValidationService) OrderRequest(body orderRequestBody) (domain.OrderRequest, error) {
	symbol, err := domain.NormalizeSymbol(body.Symbol)
	if err != nil {
		return domain.OrderRequest{}, err
	}
	side, err := domain.ParseSide(body.Side)
	if err != nil {
		return domain.OrderRequest{}, err
	}
	price := domain.PriceFromDecimal(body.Price)
	if !price.Decimal().Equal(body.Price) {
		return domain.OrderRequest{}, domain.NewValidationError("price", "at most two decimal places")
	}

	req := domain.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Quantity: body.Quantity,
		Owner:    body.Owner,
	}
	return req, req.Validate()
}
