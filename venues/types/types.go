package types

import "time"

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"  // 买入
	SideSell Side = "sell" // 卖出
)

// PositionSide 持仓方向
type PositionSide string

const (
	PositionLong  PositionSide = "long"  // 多头
	PositionShort PositionSide = "short" // 空头
)

// Opposite 返回相反的持仓方向
func (p PositionSide) Opposite() PositionSide {
	if p == PositionLong {
		return PositionShort
	}
	return PositionLong
}

// OrderSide 返回该持仓方向对应的开仓订单方向
func (p PositionSide) OrderSide() Side {
	if p == PositionLong {
		return SideBuy
	}
	return SideSell
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"      // 市价单
	OrderTypeStopLoss   OrderType = "stop_loss"   // 止损条件单
	OrderTypeTakeProfit OrderType = "take_profit" // 止盈条件单
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "new"      // 已提交
	OrderStatusFilled   OrderStatus = "filled"   // 已成交
	OrderStatusCanceled OrderStatus = "canceled" // 已撤销
	OrderStatusRejected OrderStatus = "rejected" // 已拒绝
)

// Market 市场元数据（下单精度换算依赖这些字段）
type Market struct {
	ID              string `json:"id"`               // 交易所内部市场 ID
	Symbol          string `json:"symbol"`           // 统一符号，如 "BTC/USDT"
	Base            string `json:"base"`             // 基础资产，如 "BTC"
	Quote           string `json:"quote"`            // 计价资产，如 "USDT"
	PricePrecision  int    `json:"price_precision"`  // 价格小数位数
	AmountPrecision int    `json:"amount_precision"` // 数量小数位数
	AtomicDecimals  int    `json:"atomic_decimals"`  // 原子单位小数位数（链上交易所使用，0 表示不适用）
}

// Position 标准化持仓。各驱动返回前必须换算为十进制数量，
// 数量恒为正数，方向由 Side 表示；数量为零的原始记录在驱动层过滤。
type Position struct {
	Symbol           string       `json:"symbol"`             // 交易对
	Side             PositionSide `json:"side"`               // 持仓方向
	Quantity         float64      `json:"quantity"`           // 持仓数量（> 0）
	EntryPrice       float64      `json:"entry_price"`        // 平均开仓价格
	MarkPrice        float64      `json:"mark_price"`         // 当前标记价格
	Leverage         int          `json:"leverage"`           // 杠杆倍数
	UnrealizedPnL    float64      `json:"unrealized_pnl"`     // 未实现盈亏
	UnrealizedPnLPct float64      `json:"unrealized_pnl_pct"` // 未实现盈亏百分比（基于保证金）
	LiquidationPrice float64      `json:"liquidation_price"`  // 预估强平价格
	MarginUsed       float64      `json:"margin_used"`        // 占用保证金
	UpdateTime       int64        `json:"update_time"`        // 更新时间戳（毫秒）
}

// Balance 标准化账户余额
type Balance struct {
	TotalEquity      float64 `json:"total_equity"`      // 总净值
	AvailableBalance float64 `json:"available_balance"` // 可用余额
	UnrealizedPnL    float64 `json:"unrealized_pnl"`    // 未实现盈亏
	MarginUsed       float64 `json:"margin_used"`       // 占用保证金
	MarginUsedPct    float64 `json:"margin_used_pct"`   // 保证金使用率（百分比）
	Timestamp        int64   `json:"timestamp"`         // 快照时间戳（毫秒）
}

// Order 标准化订单
type Order struct {
	ID         string      `json:"id"`                    // 交易所订单 ID
	ClientID   string      `json:"client_id,omitempty"`   // 客户端订单 ID
	Symbol     string      `json:"symbol"`                // 交易对
	Side       Side        `json:"side"`                  // 订单方向
	Type       OrderType   `json:"type"`                  // 订单类型
	Quantity   float64     `json:"quantity"`              // 数量
	Price      float64     `json:"price,omitempty"`       // 价格（条件单为触发价）
	Status     OrderStatus `json:"status"`                // 状态
	ReduceOnly bool        `json:"reduce_only,omitempty"` // 只减仓
}

// OrderRequest 驱动层下单请求
type OrderRequest struct {
	Symbol       string       // 交易对
	Type         OrderType    // 订单类型
	Side         Side         // 订单方向
	PositionSide PositionSide // 持仓方向（双向持仓模式需要）
	Quantity     float64      // 数量（十进制，单位换算由驱动负责）
	Price        float64      // 触发价（条件单）
	ClientID     string       // 客户端订单 ID
	ReduceOnly   bool         // 只减仓
}

// TradeResult 开平仓结果
type TradeResult struct {
	Success  bool         `json:"success"`
	OrderID  string       `json:"order_id"`
	Symbol   string       `json:"symbol"`
	Side     PositionSide `json:"side"`
	Quantity float64      `json:"quantity"`
	Leverage int          `json:"leverage,omitempty"`
	AvgPrice float64      `json:"avg_price"`
	Status   OrderStatus  `json:"status"`
}

// ConditionalResult 条件单设置结果
type ConditionalResult struct {
	Success bool      `json:"success"`
	OrderID string    `json:"order_id"`
	Type    OrderType `json:"type"`
	Price   float64   `json:"price"`
}

// CloseResult closeAllPositions 的单项结果；失败项 Success=false 且携带错误文本
type CloseResult struct {
	Success  bool         `json:"success"`
	Symbol   string       `json:"symbol"`
	Side     PositionSide `json:"side,omitempty"`
	Quantity float64      `json:"quantity,omitempty"`
	OrderID  string       `json:"order_id,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// ConnectResult 连接结果
type ConnectResult struct {
	Success       bool   `json:"success"`
	Venue         string `json:"venue"`
	MarketsLoaded int    `json:"markets_loaded"`
}

// Kline K 线
type Kline struct {
	OpenTime int64   `json:"open_time"` // 开盘时间戳（毫秒）
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Credentials 连接凭证。钱包类交易所使用 WalletAddress/PrivateKey，
// 传统交易所使用 APIKey/SecretKey。
type Credentials struct {
	APIKey        string `yaml:"api_key" json:"api_key"`
	SecretKey     string `yaml:"secret_key" json:"secret_key"`
	Passphrase    string `yaml:"passphrase,omitempty" json:"passphrase,omitempty"`
	Testnet       bool   `yaml:"testnet,omitempty" json:"testnet,omitempty"`
	WalletAddress string `yaml:"wallet_address,omitempty" json:"wallet_address,omitempty"`
	SignerAddress string `yaml:"signer_address,omitempty" json:"signer_address,omitempty"`
	PrivateKey    string `yaml:"private_key,omitempty" json:"private_key,omitempty"` // hex 私钥（API 钱包）
	Mnemonic      string `yaml:"mnemonic,omitempty" json:"mnemonic,omitempty"`       // 助记词（可代替 PrivateKey）
}

// Now 当前毫秒时间戳
func Now() int64 {
	return time.Now().UnixMilli()
}
