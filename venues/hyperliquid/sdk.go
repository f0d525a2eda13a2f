// Package hyperliquid 实现 Hyperliquid 族交易所的 SDK 包装驱动。
// 签名由外部 SDK 完成，本驱动只负责翻译：
// 符号 ↔ coin 映射、有效位数/小数位精度换算、SDK 响应到标准模型的归一化。
package hyperliquid

import "context"

// AssetMeta coin 元数据。SzDecimals 为下单数量的最大小数位数，
// MaxLeverage 为该 coin 允许的最大杠杆（0 表示交易所未声明上限）。
type AssetMeta struct {
	Coin        string
	SzDecimals  int
	MaxLeverage int
}

// MarginSummary SDK 返回的保证金摘要（字段为十进制字符串）
type MarginSummary struct {
	AccountValue    string // 账户总净值
	TotalMarginUsed string // 占用保证金
	TotalNtlPos     string // 持仓名义价值
	Withdrawable    string // 可提取金额
}

// AssetPosition SDK 返回的持仓记录。Szi 为带符号数量，正多负空。
type AssetPosition struct {
	Coin           string
	Szi            string // 带符号持仓数量
	EntryPx        string // 开仓均价
	PositionValue  string // 持仓名义价值
	UnrealizedPnl  string
	LiquidationPx  string
	MarginUsed     string
	Leverage       int
}

// OrderRequest SDK 下单请求。数量与价格已完成精度换算。
type OrderRequest struct {
	Coin       string
	IsBuy      bool
	Size       float64
	Price      float64 // 触发价；市价单为 0
	OrderType  string  // "market" / "stop" / "take_profit"
	ReduceOnly bool
	ClientID   string
}

// OrderResult SDK 下单结果
type OrderResult struct {
	OrderID  int64
	Status   string // "filled" / "open" / "rejected"
	AvgPrice float64
}

// Candle SDK K 线
type Candle struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// SDK 外部提供的已签名 SDK 必须满足的最小契约。
// 其内部签名算法不在本引擎的规格范围内。
type SDK interface {
	// Meta 返回 coin 列表与精度元数据
	Meta(ctx context.Context) ([]AssetMeta, error)
	// MarginSummary 返回账户保证金摘要
	MarginSummary(ctx context.Context) (*MarginSummary, error)
	// Positions 返回原始持仓列表
	Positions(ctx context.Context) ([]AssetPosition, error)
	// PlaceOrder 构造并签名订单后提交
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
	// CancelOrder 撤单
	CancelOrder(ctx context.Context, coin string, orderID int64) error
	// UpdateLeverage 调整杠杆
	UpdateLeverage(ctx context.Context, coin string, leverage int) error
	// MidPrice 返回当前中间价
	MidPrice(ctx context.Context, coin string) (float64, error)
	// Candles 返回 K 线
	Candles(ctx context.Context, coin, interval string, limit int) ([]Candle, error)
	// FundingRate 返回当前资金费率
	FundingRate(ctx context.Context, coin string) (float64, error)
	// OpenInterest 返回未平仓合约量
	OpenInterest(ctx context.Context, coin string) (float64, error)
}
