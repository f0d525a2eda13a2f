package engine

import (
	"context"

	"github.com/lucabot/exchange/venues/types"
)

// GetBalance 获取账户余额。15 秒内的重复调用命中缓存，只触发一次驱动调用。
func (m *Manager) GetBalance(ctx context.Context, venueID string) (*types.Balance, error) {
	if m.isDemo(venueID) {
		return m.demoSnapshot().balance(), nil
	}
	if bal, ok := m.accounts.GetBalance(venueID); ok {
		return bal, nil
	}
	c, err := m.conn(venueID)
	if err != nil {
		return nil, err
	}
	bal, err := c.driver.FetchBalance(ctx)
	if err != nil {
		return nil, err
	}
	m.accounts.SetBalance(venueID, bal)
	return bal, nil
}

// GetPositions 获取持仓列表，缓存策略同 GetBalance
func (m *Manager) GetPositions(ctx context.Context, venueID string) ([]types.Position, error) {
	if m.isDemo(venueID) {
		return m.demoSnapshot().list(), nil
	}
	if positions, ok := m.accounts.GetPositions(venueID); ok {
		return positions, nil
	}
	c, err := m.conn(venueID)
	if err != nil {
		return nil, err
	}
	positions, err := c.driver.FetchPositions(ctx)
	if err != nil {
		return nil, err
	}
	m.accounts.SetPositions(venueID, positions)
	return positions, nil
}

// freshPositions 先失效缓存再从驱动读取持仓。
// 平仓数量为 0（全平）时必须走这条路径，不得使用失效前捕获的值。
func (m *Manager) freshPositions(ctx context.Context, venueID string) ([]types.Position, error) {
	m.accounts.Invalidate(venueID)
	return m.GetPositions(ctx, venueID)
}

// demoSnapshot 取当前模拟盘账户（调用前须经 isDemo 判定）
func (m *Manager) demoSnapshot() *demoAccount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.demo
}
