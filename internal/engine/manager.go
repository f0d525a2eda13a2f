// Package engine 实现多交易所执行引擎门面。
// 调用路径：门面方法 → 缓存查询 → (未命中) 驱动调用 → 标准化 → 写缓存 → 返回；
// 所有状态变更操作在返回前先失效对应交易所的账户缓存。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lucabot/exchange/pkg/cache"
	"github.com/lucabot/exchange/venues"
	"github.com/lucabot/exchange/venues/types"
)

var log = logrus.WithField("component", "engine")

// VenueDemo 模拟盘交易所标识
const VenueDemo = "demo"

// DriverFactory 按凭证构建驱动实例。凭证为空时应返回仅支持
// 公共行情的驱动（或参数校验错误）。
type DriverFactory func(venueID string, creds types.Credentials) (venues.Driver, error)

// connection 一个已连接的交易所：驱动实例 + 已加载的市场元数据
type connection struct {
	driver  venues.Driver
	markets map[string]types.Market
}

// Manager 多交易所执行引擎门面。显式实例持有交易所注册表与缓存，
// 不使用全局单例；驱动在 Connect 时按交易所 ID 选定一次，之后不再分发。
type Manager struct {
	mu        sync.RWMutex
	conns     map[string]*connection
	public    map[string]venues.Driver // 未连接时的公共行情驱动
	factories map[string]DriverFactory

	accounts *cache.AccountCache
	funding  *cache.FundingCache
	demo     *demoAccount

	// sleep 杠杆结算等待的注入点，测试可替换
	sleep func(time.Duration)
}

// NewManager 创建引擎实例，注册内置驱动工厂
func NewManager() *Manager {
	return &Manager{
		conns:     make(map[string]*connection),
		public:    make(map[string]venues.Driver),
		factories: builtinFactories(),
		accounts:  cache.NewAccountCache(),
		funding:   cache.NewFundingCache(),
		sleep:     time.Sleep,
	}
}

// RegisterFactory 注册（或覆盖）某交易所的驱动工厂。
// SDK 包装类交易所（hyperliquid/lighter 族）由外部注入已构建好 SDK 的工厂。
func (m *Manager) RegisterFactory(venueID string, factory DriverFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[venueID] = factory
}

// Connect 连接交易所：构建驱动 → 加载市场 → 尝试开启双向持仓模式。
// 「已是目标状态」与「不支持」均按成功处理。
func (m *Manager) Connect(ctx context.Context, venueID string, creds types.Credentials) (*types.ConnectResult, error) {
	if venueID == "" {
		return nil, types.NewValidationError("venueId", "不能为空")
	}
	if venueID == VenueDemo {
		m.mu.Lock()
		m.demo = newDemoAccount()
		m.mu.Unlock()
		log.Infof("模拟盘已启用, 起始净值 %.0f", demoStartingEquity)
		return &types.ConnectResult{Success: true, Venue: venueID}, nil
	}

	m.mu.RLock()
	factory, ok := m.factories[venueID]
	m.mu.RUnlock()
	if !ok {
		return nil, types.NewValidationError("venueId", fmt.Sprintf("未知交易所 %s", venueID))
	}

	driver, err := factory(venueID, creds)
	if err != nil {
		return nil, err
	}
	markets, err := driver.LoadMarkets(ctx)
	if err != nil {
		return nil, err
	}

	// 开启双向持仓（适用的交易所）。净持仓模型的交易所返回 StateError，
	// 「已是目标状态」是幂等响应，两者都不阻断连接。
	if err := driver.SetPositionMode(ctx, true); err != nil {
		var se *types.StateError
		switch {
		case types.IsAlreadySet(err):
			log.Debugf("%s 双向持仓已开启", venueID)
		case errors.As(err, &se):
			log.Debugf("%s 不支持双向持仓: %v", venueID, err)
		default:
			return nil, err
		}
	}

	m.mu.Lock()
	m.conns[venueID] = &connection{driver: driver, markets: markets}
	m.mu.Unlock()
	m.accounts.Invalidate(venueID)

	log.Infof("%s 连接成功, 加载 %d 个市场", venueID, len(markets))
	return &types.ConnectResult{Success: true, Venue: venueID, MarketsLoaded: len(markets)}, nil
}

// Disconnect 断开交易所连接，连同该交易所的缓存条目一并清除
func (m *Manager) Disconnect(venueID string) error {
	m.mu.Lock()
	if venueID == VenueDemo {
		m.demo = nil
		m.mu.Unlock()
		return nil
	}
	_, ok := m.conns[venueID]
	if !ok {
		m.mu.Unlock()
		return types.ErrNotConnected(venueID)
	}
	delete(m.conns, venueID)
	m.accounts.Invalidate(venueID)
	m.mu.Unlock()
	log.Infof("%s 已断开", venueID)
	return nil
}

// Connected 返回交易所是否已连接
func (m *Manager) Connected(venueID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if venueID == VenueDemo {
		return m.demo != nil
	}
	_, ok := m.conns[venueID]
	return ok
}

// conn 查找已连接的交易所
func (m *Manager) conn(venueID string) (*connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[venueID]
	if !ok {
		return nil, types.ErrNotConnected(venueID)
	}
	return c, nil
}

// isDemo 当前调用是否走模拟盘分支
func (m *Manager) isDemo(venueID string) bool {
	if venueID != VenueDemo {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.demo != nil
}

// market 查找已连接交易所的市场元数据
func (m *Manager) market(venueID, symbol string) (types.Market, error) {
	c, err := m.conn(venueID)
	if err != nil {
		return types.Market{}, err
	}
	mk, ok := c.markets[symbol]
	if !ok {
		return types.Market{}, types.NewValidationError("symbol",
			fmt.Sprintf("%s 未找到市场 %s", venueID, symbol))
	}
	return mk, nil
}
