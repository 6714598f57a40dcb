package tracking

import (
	"fmt"
	"time"

	"equitybot/src/broker"

	"github.com/shopspring/decimal"
)

// Order 订单记录
type Order struct {
	ID        string             `json:"id"`
	Symbol    string             `json:"symbol"`
	Side      broker.OrderSide   `json:"side"`
	Quantity  decimal.Decimal    `json:"quantity"`
	Price     decimal.Decimal    `json:"price"`
	FilledQty decimal.Decimal    `json:"filled_qty"`
	AvgPrice  decimal.Decimal    `json:"avg_price"`
	Status    broker.OrderStatus `json:"status"`
	Reason    string             `json:"reason"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Position 持仓记录，开仓期间只属于一个 Ticker
type Position struct {
	Symbol        string          `json:"symbol"`
	Style         string          `json:"style"`
	OrderIDs      []string        `json:"order_ids"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Quantity      decimal.Decimal `json:"quantity"`
	Units         int             `json:"units"`
	TargetUnits   int             `json:"target_units"`
	StopLossPrice decimal.Decimal `json:"stop_loss_price"`
	BuyTime       time.Time       `json:"buy_time"`
	Setup         string          `json:"setup"`
	Realized      decimal.Decimal `json:"realized"` // 部分卖出已实现盈亏
	BoughtQty     decimal.Decimal `json:"bought_qty"`
	BoughtCost    decimal.Decimal `json:"bought_cost"`
	SoldQty       decimal.Decimal `json:"sold_qty"`
	Proceeds      decimal.Decimal `json:"proceeds"`
}

// AvgCost 持仓均价
func (p *Position) AvgCost() decimal.Decimal {
	if !p.Quantity.IsPositive() {
		return decimal.Zero
	}
	return p.TotalCost.Div(p.Quantity)
}

func (p *Position) addOrderID(orderID string) {
	for _, id := range p.OrderIDs {
		if id == orderID {
			return
		}
	}
	p.OrderIDs = append(p.OrderIDs, orderID)
}

// Accumulate 买入成交入账
func (p *Position) Accumulate(orderID string, qty, price decimal.Decimal) {
	p.addOrderID(orderID)
	p.TotalCost = p.TotalCost.Add(qty.Mul(price))
	p.Quantity = p.Quantity.Add(qty)
	p.BoughtQty = p.BoughtQty.Add(qty)
	p.BoughtCost = p.BoughtCost.Add(qty.Mul(price))
}

// Reduce 卖出成交入账，成本按均价扣减，返回本次已实现盈亏
func (p *Position) Reduce(orderID string, qty, price decimal.Decimal) decimal.Decimal {
	p.addOrderID(orderID)
	if qty.GreaterThan(p.Quantity) {
		qty = p.Quantity
	}
	avg := p.AvgCost()
	pnl := price.Sub(avg).Mul(qty)

	p.TotalCost = p.TotalCost.Sub(avg.Mul(qty))
	p.Quantity = p.Quantity.Sub(qty)
	p.Realized = p.Realized.Add(pnl)
	p.SoldQty = p.SoldQty.Add(qty)
	p.Proceeds = p.Proceeds.Add(qty.Mul(price))
	if !p.Quantity.IsPositive() {
		p.TotalCost = decimal.Zero
	}
	return pnl
}

// Closed 已全部卖出
func (p *Position) Closed() bool {
	return !p.Quantity.IsPositive()
}

// Close 生成平仓交易记录，交易ID由标的和卖出时间确定
func (p *Position) Close(sellTime time.Time, reason string) *Trade {
	trade := &Trade{
		ID:       fmt.Sprintf("%s-%d", p.Symbol, sellTime.UnixMilli()),
		Symbol:   p.Symbol,
		Style:    p.Style,
		OrderIDs: append([]string(nil), p.OrderIDs...),
		Quantity: p.BoughtQty,
		BuyTime:  p.BuyTime,
		SellTime: sellTime,
		PnL:      p.Realized,
		Setup:    p.Setup,
		Reason:   reason,
	}
	if p.BoughtQty.IsPositive() {
		trade.BuyPrice = p.BoughtCost.Div(p.BoughtQty)
	}
	if p.SoldQty.IsPositive() {
		trade.SellPrice = p.Proceeds.Div(p.SoldQty)
	}
	if p.BoughtCost.IsPositive() {
		trade.PnLRate = p.Realized.Div(p.BoughtCost)
	}
	return trade
}

// Trade 平仓后的交易记录，取代 Position
type Trade struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Style     string          `json:"style"`
	OrderIDs  []string        `json:"order_ids"`
	Quantity  decimal.Decimal `json:"quantity"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	BuyTime   time.Time       `json:"buy_time"`
	SellTime  time.Time       `json:"sell_time"`
	PnL       decimal.Decimal `json:"pnl"`
	PnLRate   decimal.Decimal `json:"pnl_rate"`
	Setup     string          `json:"setup"`
	Reason    string          `json:"reason"`
}

// IsWin 是否盈利
func (t *Trade) IsWin() bool {
	return t.PnL.IsPositive()
}
