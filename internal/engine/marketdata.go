package engine

import (
	"context"

	"github.com/lucabot/exchange/venues"
	"github.com/lucabot/exchange/venues/types"
)

// defaultFundingRate 资金费率获取失败时的兜底值。
// 下游把费率当作参考信息而非权威数据，降级优于报错。
const defaultFundingRate = 0.0001

// marketDriver 行情读取的驱动选择：已连接用私有驱动，
// 未连接时退化为无凭证的公共行情驱动。模拟盘走公共 binance 行情。
func (m *Manager) marketDriver(venueID string) (venues.Driver, error) {
	if venueID == VenueDemo {
		venueID = "binance"
	}
	m.mu.RLock()
	if c, ok := m.conns[venueID]; ok {
		m.mu.RUnlock()
		return c.driver, nil
	}
	if d, ok := m.public[venueID]; ok {
		m.mu.RUnlock()
		return d, nil
	}
	factory, ok := m.factories[venueID]
	m.mu.RUnlock()
	if !ok {
		return nil, types.ErrNotConnected(venueID)
	}

	d, err := factory(venueID, types.Credentials{})
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.public[venueID] = d
	m.mu.Unlock()
	return d, nil
}

// GetMarketPrice 获取标记价格
func (m *Manager) GetMarketPrice(ctx context.Context, venueID, symbol string) (float64, error) {
	d, err := m.marketDriver(venueID)
	if err != nil {
		return 0, err
	}
	return d.FetchMarkPrice(ctx, symbol)
}

// GetOHLCV 获取 K 线
func (m *Manager) GetOHLCV(ctx context.Context, venueID, symbol, interval string, limit int) ([]types.Kline, error) {
	if interval == "" {
		interval = "1h"
	}
	if limit <= 0 {
		limit = 100
	}
	d, err := m.marketDriver(venueID)
	if err != nil {
		return nil, err
	}
	return d.FetchKlines(ctx, symbol, interval, limit)
}

// GetFundingRate 获取资金费率，1 小时缓存。
// 获取失败时返回小额正费率兜底而不是报错，失败结果不写缓存。
func (m *Manager) GetFundingRate(ctx context.Context, venueID, symbol string) (float64, error) {
	if rate, ok := m.funding.Get(venueID, symbol); ok {
		return rate, nil
	}
	d, err := m.marketDriver(venueID)
	if err != nil {
		return defaultFundingRate, nil
	}
	rate, err := d.FetchFundingRate(ctx, symbol)
	if err != nil {
		log.Warnf("%s %s 资金费率获取失败, 使用默认值: %v", venueID, symbol, err)
		return defaultFundingRate, nil
	}
	m.funding.Set(venueID, symbol, rate)
	return rate, nil
}

// GetOpenInterest 获取未平仓合约量，失败时降级为零值而不是报错
func (m *Manager) GetOpenInterest(ctx context.Context, venueID, symbol string) (float64, error) {
	d, err := m.marketDriver(venueID)
	if err != nil {
		return 0, nil
	}
	oi, err := d.FetchOpenInterest(ctx, symbol)
	if err != nil {
		log.Warnf("%s %s 未平仓量获取失败: %v", venueID, symbol, err)
		return 0, nil
	}
	return oi, nil
}
