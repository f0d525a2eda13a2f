package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lucabot/exchange/venues/types"
)

// leverageSettleDelay 杠杆变更后保证金重算的固定结算等待。
// 多数交易所的保证金重算相对 API 响应是异步的。
const leverageSettleDelay = 2 * time.Second

// leverageGrant 杠杆变更的两阶段协议：变更成功返回未结算状态，
// 下单前必须显式等待结算完成；「无需变更」时立即视为已结算。
type leverageGrant struct {
	settleDelay time.Duration
}

// Settled 杠杆是否已结算
func (g *leverageGrant) Settled() bool { return g.settleDelay <= 0 }

// WaitSettled 等待结算完成。固定等待，不可取消。
func (g *leverageGrant) WaitSettled(sleep func(time.Duration)) {
	if !g.Settled() {
		sleep(g.settleDelay)
		g.settleDelay = 0
	}
}

// changeLeverage 设置杠杆并返回结算状态。
// 「已是目标状态」按成功处理且无需等待结算。
func (m *Manager) changeLeverage(ctx context.Context, c *connection, symbol string, leverage int) (*leverageGrant, error) {
	if leverage <= 0 {
		return &leverageGrant{}, nil
	}
	if err := c.driver.SetLeverage(ctx, symbol, leverage); err != nil {
		if types.IsAlreadySet(err) {
			log.Debugf("%s %s 杠杆已是 %dx", c.driver.Name(), symbol, leverage)
			return &leverageGrant{}, nil
		}
		return nil, err
	}
	return &leverageGrant{settleDelay: leverageSettleDelay}, nil
}

// newClientOrderID 生成抗碰撞的客户端订单 ID（幂等重试与审计用）
func newClientOrderID() string {
	return "x-" + uuid.NewString()
}

// OpenLong 开多仓
func (m *Manager) OpenLong(ctx context.Context, venueID, symbol string, quantity float64, leverage int) (*types.TradeResult, error) {
	return m.openPosition(ctx, venueID, symbol, types.PositionLong, quantity, leverage)
}

// OpenShort 开空仓
func (m *Manager) OpenShort(ctx context.Context, venueID, symbol string, quantity float64, leverage int) (*types.TradeResult, error) {
	return m.openPosition(ctx, venueID, symbol, types.PositionShort, quantity, leverage)
}

// openPosition 开仓：改杠杆 → 等待结算 → 市价单 → 失效缓存 → 返回
func (m *Manager) openPosition(ctx context.Context, venueID, symbol string, side types.PositionSide, quantity float64, leverage int) (*types.TradeResult, error) {
	if symbol == "" {
		return nil, types.NewValidationError("symbol", "不能为空")
	}
	if quantity <= 0 {
		return nil, types.NewValidationError("quantity", "必须大于零")
	}

	if m.isDemo(venueID) {
		price, _ := m.GetMarketPrice(ctx, venueID, symbol)
		return m.demoSnapshot().open(symbol, side, quantity, leverage, price)
	}

	c, err := m.conn(venueID)
	if err != nil {
		return nil, err
	}
	grant, err := m.changeLeverage(ctx, c, symbol, leverage)
	if err != nil {
		return nil, err
	}
	grant.WaitSettled(m.sleep)

	order, err := c.driver.CreateOrder(ctx, &types.OrderRequest{
		Symbol:       symbol,
		Type:         types.OrderTypeMarket,
		Side:         side.OrderSide(),
		PositionSide: side,
		Quantity:     quantity,
		ClientID:     newClientOrderID(),
	})
	if err != nil {
		return nil, err
	}
	m.accounts.Invalidate(venueID)

	log.Infof("%s %s 开仓 %s %.8g @ %dx, 订单 %s", venueID, symbol, side, quantity, leverage, order.ID)
	return &types.TradeResult{
		Success:  true,
		OrderID:  order.ID,
		Symbol:   symbol,
		Side:     side,
		Quantity: order.Quantity,
		Leverage: leverage,
		AvgPrice: order.Price,
		Status:   order.Status,
	}, nil
}

// CloseLong 平多仓，quantity 为 0 表示全平
func (m *Manager) CloseLong(ctx context.Context, venueID, symbol string, quantity float64) (*types.TradeResult, error) {
	return m.closePosition(ctx, venueID, symbol, types.PositionLong, quantity)
}

// CloseShort 平空仓，quantity 为 0 表示全平
func (m *Manager) CloseShort(ctx context.Context, venueID, symbol string, quantity float64) (*types.TradeResult, error) {
	return m.closePosition(ctx, venueID, symbol, types.PositionShort, quantity)
}

// closePosition 平仓。数量为 0 时先失效缓存再读取当前持仓数量，
// 永远不使用失效前捕获的值。
func (m *Manager) closePosition(ctx context.Context, venueID, symbol string, side types.PositionSide, quantity float64) (*types.TradeResult, error) {
	if symbol == "" {
		return nil, types.NewValidationError("symbol", "不能为空")
	}
	if quantity < 0 {
		return nil, types.NewValidationError("quantity", "不能为负数")
	}

	if m.isDemo(venueID) {
		price, _ := m.GetMarketPrice(ctx, venueID, symbol)
		return m.demoSnapshot().close(symbol, side, quantity, price)
	}

	c, err := m.conn(venueID)
	if err != nil {
		return nil, err
	}
	if quantity == 0 {
		positions, err := m.freshPositions(ctx, venueID)
		if err != nil {
			return nil, err
		}
		for _, p := range positions {
			if p.Symbol == symbol && p.Side == side {
				quantity = p.Quantity
				break
			}
		}
		if quantity == 0 {
			return nil, types.ErrNoPosition(venueID, symbol, side)
		}
	}

	order, err := c.driver.CreateOrder(ctx, &types.OrderRequest{
		Symbol:       symbol,
		Type:         types.OrderTypeMarket,
		Side:         side.Opposite().OrderSide(),
		PositionSide: side,
		Quantity:     quantity,
		ClientID:     newClientOrderID(),
		ReduceOnly:   true,
	})
	if err != nil {
		return nil, err
	}
	m.accounts.Invalidate(venueID)

	log.Infof("%s %s 平仓 %s %.8g, 订单 %s", venueID, symbol, side, quantity, order.ID)
	return &types.TradeResult{
		Success:  true,
		OrderID:  order.ID,
		Symbol:   symbol,
		Side:     side,
		Quantity: order.Quantity,
		AvgPrice: order.Price,
		Status:   order.Status,
	}, nil
}
