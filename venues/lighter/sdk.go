// Package lighter 实现 Lighter 族 L2 交易所的 SDK 包装驱动。
// 下单走外部签名 SDK；余额与持仓走独立的鉴权读取端点（按钱包地址查询），
// 两侧所有数值字段都要做原子单位 → 十进制换算。
package lighter

import "context"

// TxResult SDK 交易提交结果
type TxResult struct {
	TxHash string
}

// SDK 外部签名 SDK 的最小契约。数量与价格均为原子单位整数，
// 换算由本驱动在调用前完成。
type SDK interface {
	// CreateMarketOrder 市价单。baseAmount 为原子单位数量。
	CreateMarketOrder(ctx context.Context, marketIndex int, clientOrderIndex int64,
		baseAmount int64, isAsk bool, reduceOnly bool) (*TxResult, error)
	// CreateStopOrder 条件单。triggerPrice 为原子单位价格。
	CreateStopOrder(ctx context.Context, marketIndex int, clientOrderIndex int64,
		baseAmount int64, triggerPrice int64, isAsk bool, isTakeProfit bool) (*TxResult, error)
	// UpdateLeverage 调整杠杆
	UpdateLeverage(ctx context.Context, marketIndex int, leverage int) error
	// CancelOrder 按订单索引撤单
	CancelOrder(ctx context.Context, marketIndex int, orderIndex int64) (*TxResult, error)
}
