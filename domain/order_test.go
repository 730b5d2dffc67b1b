package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatus_Pending, OrderStatus_Pending, true},
		{OrderStatus_Pending, OrderStatus_PartiallyFilled, true},
		{OrderStatus_Pending, OrderStatus_Filled, true},
		{OrderStatus_Pending, OrderStatus_Cancelled, true},
		{OrderStatus_PartiallyFilled, OrderStatus_PartiallyFilled, true},
		{OrderStatus_PartiallyFilled, OrderStatus_Filled, true},
		{OrderStatus_PartiallyFilled, OrderStatus_Cancelled, true},
		{OrderStatus_PartiallyFilled, OrderStatus_Pending, false},
		{OrderStatus_Filled, OrderStatus_Pending, false},
		{OrderStatus_Filled, OrderStatus_Cancelled, false},
		{OrderStatus_Cancelled, OrderStatus_Filled, false},
		{OrderStatus_Pending, "EXPIRED", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("OPEN")
	assert.NoError(t, err)
	assert.Equal(t, OrderStatus_Pending, status)

	status, err = ParseOrderStatus("partially_filled")
	assert.NoError(t, err)
	assert.Equal(t, OrderStatus_PartiallyFilled, status)

	_, err = ParseOrderStatus("REJECTED")
	assert.True(t, IsErrValidation(err))
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide("buy")
	assert.NoError(t, err)
	assert.Equal(t, Side_Buy, side)

	_, err = ParseSide("short")
	assert.Error(t, err)
}

func TestOrder_Validate(t *testing.T) {
	valid := Order{
		ID: "1", Symbol: "AAPL", Side: Side_Buy, Price: 100,
		Quantity: 10, RemainingQuantity: 4, Status: OrderStatus_PartiallyFilled,
		SubmittedAt: time.Now(),
	}
	assert.NoError(t, valid.Validate())

	over := valid
	over.RemainingQuantity = 11
	assert.Error(t, over.Validate())

	noPrice := valid
	noPrice.Price = 0
	assert.Error(t, noPrice.Validate())

	badStatus := valid
	badStatus.Status = "OPEN"
	assert.Error(t, badStatus.Validate(), "wire statuses must be normalized first")
}
