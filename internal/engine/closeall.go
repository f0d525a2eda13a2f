package engine

import (
	"context"

	"github.com/lucabot/exchange/venues/types"
)

// CloseAllPositions 平掉某交易所的全部持仓。逐仓独立平仓并收集
// 每个交易对的成败结果，单个失败不会中断整批。
func (m *Manager) CloseAllPositions(ctx context.Context, venueID string) ([]types.CloseResult, error) {
	if m.isDemo(venueID) {
		return m.demoSnapshot().closeAll(), nil
	}

	positions, err := m.freshPositions(ctx, venueID)
	if err != nil {
		return nil, err
	}

	results := make([]types.CloseResult, 0, len(positions))
	for _, p := range positions {
		res, err := m.closePosition(ctx, venueID, p.Symbol, p.Side, p.Quantity)
		if err != nil {
			log.Warnf("%s %s 平仓失败: %v", venueID, p.Symbol, err)
			results = append(results, types.CloseResult{
				Success: false,
				Symbol:  p.Symbol,
				Side:    p.Side,
				Error:   err.Error(),
			})
			continue
		}
		results = append(results, types.CloseResult{
			Success:  true,
			Symbol:   p.Symbol,
			Side:     p.Side,
			Quantity: res.Quantity,
			OrderID:  res.OrderID,
		})
	}
	return results, nil
}
