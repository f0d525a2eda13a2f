package engine

import (
	"context"

	"github.com/lucabot/exchange/venues/types"
)

// SetStopLoss 设置止损单。同品类采用先撤后挂（replace-via-cancel）
func (m *Manager) SetStopLoss(ctx context.Context, venueID, symbol string, side types.PositionSide, quantity, triggerPrice float64) (*types.ConditionalResult, error) {
	return m.setConditional(ctx, venueID, symbol, side, quantity, triggerPrice, types.OrderTypeStopLoss)
}

// SetTakeProfit 设置止盈单。同品类采用先撤后挂（replace-via-cancel）
func (m *Manager) SetTakeProfit(ctx context.Context, venueID, symbol string, side types.PositionSide, quantity, triggerPrice float64) (*types.ConditionalResult, error) {
	return m.setConditional(ctx, venueID, symbol, side, quantity, triggerPrice, types.OrderTypeTakeProfit)
}

// setConditional 条件单设置。交易所对同一交易对每个品类只允许一张
// 活动条件单，先撤掉已有同品类订单再挂新单，避免触发条件冲突。
func (m *Manager) setConditional(ctx context.Context, venueID, symbol string, side types.PositionSide, quantity, triggerPrice float64, orderType types.OrderType) (*types.ConditionalResult, error) {
	if symbol == "" {
		return nil, types.NewValidationError("symbol", "不能为空")
	}
	if quantity <= 0 {
		return nil, types.NewValidationError("quantity", "必须大于零")
	}
	if triggerPrice <= 0 {
		return nil, types.NewValidationError("triggerPrice", "必须大于零")
	}

	if m.isDemo(venueID) {
		return m.demoSnapshot().setConditional(symbol, orderType, triggerPrice)
	}

	c, err := m.conn(venueID)
	if err != nil {
		return nil, err
	}

	// 先撤后挂：撤掉该交易对上所有同品类条件单。
	// 旧单撤不掉就不挂新单，否则同品类会积累多张活动触发单。
	open, err := c.driver.OpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	for _, o := range open {
		if o.Type != orderType {
			continue
		}
		if err := c.driver.CancelOrder(ctx, o.ID, symbol); err != nil {
			return nil, err
		}
	}

	order, err := c.driver.CreateOrder(ctx, &types.OrderRequest{
		Symbol:       symbol,
		Type:         orderType,
		Side:         side.Opposite().OrderSide(),
		PositionSide: side,
		Quantity:     quantity,
		Price:        triggerPrice,
		ClientID:     newClientOrderID(),
		ReduceOnly:   true,
	})
	if err != nil {
		return nil, err
	}
	m.accounts.Invalidate(venueID)

	log.Infof("%s %s 设置%s @ %.8g, 订单 %s", venueID, symbol, orderType, triggerPrice, order.ID)
	return &types.ConditionalResult{
		Success: true,
		OrderID: order.ID,
		Type:    orderType,
		Price:   triggerPrice,
	}, nil
}
