// Package venues 定义统一的交易所驱动抽象。
// 每个交易所家族实现一次 Driver 接口，由 ExchangeManager 在
// connect 时选择具体实现，之后不再按调用重新分发。
package venues

import (
	"context"

	"github.com/lucabot/exchange/venues/types"
)

// Driver 交易所驱动接口。
// 所有入参数量均为人类可读的十进制数，原子单位/精度换算是驱动的职责，
// 门面层永远不做单位换算。
type Driver interface {
	// Name 返回交易所标识
	Name() string

	// LoadMarkets 加载市场元数据，connect 后必须调用一次
	LoadMarkets(ctx context.Context) (map[string]types.Market, error)

	// FetchBalance 获取标准化账户余额
	FetchBalance(ctx context.Context) (*types.Balance, error)

	// FetchPositions 获取标准化持仓列表；数量为零的原始记录不得出现在结果中
	FetchPositions(ctx context.Context) ([]types.Position, error)

	// CreateOrder 下市价单或条件单
	CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.Order, error)

	// CancelOrder 按订单 ID 撤单
	CancelOrder(ctx context.Context, id, symbol string) error

	// OpenOrders 查询某交易对的未成交订单（条件单替换依赖此能力）
	OpenOrders(ctx context.Context, symbol string) ([]types.Order, error)

	// SetLeverage 设置杠杆倍数。「无需变更」类错误由调用方按成功处理
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// SetPositionMode 设置双向持仓模式（不支持的交易所返回 StateError）
	SetPositionMode(ctx context.Context, hedgeMode bool) error

	// FetchMarkPrice 获取标记价格
	FetchMarkPrice(ctx context.Context, symbol string) (float64, error)

	// FetchKlines 获取 K 线
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error)

	// FetchFundingRate 获取当前资金费率
	FetchFundingRate(ctx context.Context, symbol string) (float64, error)

	// FetchOpenInterest 获取未平仓合约量
	FetchOpenInterest(ctx context.Context, symbol string) (float64, error)
}
