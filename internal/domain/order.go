package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus is the fill progress of an order. PricePerUnit is nil while
// nothing has been filled.
type OrderStatus struct {
	OpenSize     float64
	FillSize     float64
	PricePerUnit *float64
}

// NewOrderStatus derives an OrderStatus from the total order size, the
// executed size and the executed quote-asset cost. It never divides by a
// zero fill.
func NewOrderStatus(orderSize, fillSize, cost float64) OrderStatus {
	st := OrderStatus{
		OpenSize: orderSize - fillSize,
		FillSize: fillSize,
	}
	if fillSize > 0 {
		ppu := cost / fillSize
		st.PricePerUnit = &ppu
	}
	return st
}
