package lighter

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lucabot/exchange/venues/types"
	"github.com/lucabot/exchange/venues/units"
)

var log = logrus.WithField("component", "lighter_driver")

// Driver Lighter 族 SDK 包装驱动。
// 读取端点不提供未成交订单查询，活动条件单由驱动在下单时跟踪，
// OpenOrders 返回跟踪表的快照。
type Driver struct {
	sdk     SDK
	read    *ReadClient
	name    string
	quote   string
	markets map[string]types.Market
	ids     map[string]int // 统一符号 -> market_id

	mu    sync.Mutex
	conds map[string][]types.Order // 统一符号 -> 活动条件单
}

// NewDriver 创建驱动
func NewDriver(name string, sdk SDK, read *ReadClient) *Driver {
	return &Driver{
		sdk:     sdk,
		read:    read,
		name:    name,
		quote:   "USDC",
		markets: make(map[string]types.Market),
		ids:     make(map[string]int),
		conds:   make(map[string][]types.Order),
	}
}

// Name 交易所标识
func (d *Driver) Name() string { return d.name }

// LoadMarkets 从读取端点加载市场元数据
func (d *Driver) LoadMarkets(ctx context.Context) (map[string]types.Market, error) {
	books, err := d.read.OrderBooks(ctx)
	if err != nil {
		return nil, err
	}
	markets := make(map[string]types.Market, len(books))
	ids := make(map[string]int, len(books))
	for _, b := range books {
		unified := b.Symbol + "/" + d.quote
		markets[unified] = types.Market{
			ID:              fmt.Sprint(b.MarketID),
			Symbol:          unified,
			Base:            b.Symbol,
			Quote:           d.quote,
			PricePrecision:  b.PriceDecimals,
			AmountPrecision: b.SizeDecimals,
			AtomicDecimals:  b.SizeDecimals,
		}
		ids[unified] = b.MarketID
	}
	d.markets = markets
	d.ids = ids
	log.Infof("%s 市场加载完成: %d 个市场", d.name, len(markets))
	return markets, nil
}

// FetchBalance 从读取端点获取余额，所有金额做原子单位换算
func (d *Driver) FetchBalance(ctx context.Context) (*types.Balance, error) {
	acc, err := d.read.Account(ctx)
	if err != nil {
		return nil, err
	}
	equity := units.FromAtomicInt64(acc.TotalAssetValue, usdcDecimals)
	collateral := units.FromAtomicInt64(acc.Collateral, usdcDecimals)
	available := units.FromAtomicInt64(acc.AvailableUSDC, usdcDecimals)
	marginUsed := equity - available
	if marginUsed < 0 {
		marginUsed = 0
	}
	bal := &types.Balance{
		TotalEquity:      equity,
		AvailableBalance: available,
		UnrealizedPnL:    equity - collateral,
		MarginUsed:       marginUsed,
		Timestamp:        types.Now(),
	}
	if equity > 0 {
		bal.MarginUsedPct = marginUsed / equity * 100
	}
	return bal, nil
}

// FetchPositions 从读取端点获取持仓，每个数值字段都做原子单位换算
func (d *Driver) FetchPositions(ctx context.Context) ([]types.Position, error) {
	acc, err := d.read.Account(ctx)
	if err != nil {
		return nil, err
	}
	positions := make([]types.Position, 0, len(acc.Positions))
	for _, p := range acc.Positions {
		symbol, market, ok := d.marketByID(p.MarketID)
		if !ok {
			continue
		}
		qty := units.FromAtomicInt64(p.Position, market.AmountPrecision)
		if qty == 0 {
			continue
		}
		side := types.PositionLong
		if p.Sign < 0 {
			side = types.PositionShort
		}
		entry := units.FromAtomicInt64(p.AvgEntryPrice, market.PricePrecision)
		unPnl := units.FromAtomicInt64(p.UnrealizedPnl, usdcDecimals)
		marginUsed := units.FromAtomicInt64(p.AllocatedMargin, usdcDecimals)

		// 标记价由开仓价和未实现盈亏反推
		mark := entry
		if qty > 0 {
			if side == types.PositionLong {
				mark = entry + unPnl/qty
			} else {
				mark = entry - unPnl/qty
			}
		}
		pos := types.Position{
			Symbol:           symbol,
			Side:             side,
			Quantity:         qty,
			EntryPrice:       entry,
			MarkPrice:        mark,
			Leverage:         p.Leverage,
			UnrealizedPnL:    unPnl,
			LiquidationPrice: units.FromAtomicInt64(p.LiquidationPrice, market.PricePrecision),
			MarginUsed:       marginUsed,
			UpdateTime:       types.Now(),
		}
		if marginUsed > 0 {
			pos.UnrealizedPnLPct = unPnl / marginUsed * 100
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (d *Driver) marketByID(id int) (string, types.Market, bool) {
	for symbol, marketID := range d.ids {
		if marketID == id {
			return symbol, d.markets[symbol], true
		}
	}
	return "", types.Market{}, false
}

// CreateOrder 十进制数量换算为原子单位（截断）后委托 SDK
func (d *Driver) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.Order, error) {
	marketID, ok := d.ids[req.Symbol]
	if !ok {
		return nil, types.NewValidationError("symbol", fmt.Sprintf("未知市场 %s", req.Symbol))
	}
	market := d.markets[req.Symbol]
	baseAmount := units.ToAtomic(req.Quantity, market.AmountPrecision).Int64()
	if baseAmount <= 0 {
		return nil, types.NewValidationError("quantity", "换算为原子单位后数量为零")
	}
	isAsk := req.Side == types.SideSell
	clientIndex := time.Now().UnixMicro()

	var (
		res *TxResult
		err error
	)
	switch req.Type {
	case types.OrderTypeMarket:
		res, err = d.sdk.CreateMarketOrder(ctx, marketID, clientIndex, baseAmount, isAsk, req.ReduceOnly)
	case types.OrderTypeStopLoss, types.OrderTypeTakeProfit:
		trigger := units.ToAtomic(req.Price, market.PricePrecision).Int64()
		res, err = d.sdk.CreateStopOrder(ctx, marketID, clientIndex, baseAmount, trigger,
			isAsk, req.Type == types.OrderTypeTakeProfit)
	default:
		return nil, types.NewValidationError("type", fmt.Sprintf("不支持的订单类型 %s", req.Type))
	}
	if err != nil {
		return nil, types.NewProtocolError(d.name, "createOrder", 0, err.Error(), err)
	}

	status := types.OrderStatusNew
	if req.Type == types.OrderTypeMarket {
		status = types.OrderStatusFilled
	}
	order := &types.Order{
		ID:         res.TxHash,
		ClientID:   req.ClientID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   units.FromAtomicInt64(baseAmount, market.AmountPrecision),
		Price:      req.Price,
		Status:     status,
		ReduceOnly: req.ReduceOnly,
	}
	if req.Type != types.OrderTypeMarket {
		d.mu.Lock()
		d.conds[req.Symbol] = append(d.conds[req.Symbol], *order)
		d.mu.Unlock()
	}
	return order, nil
}

// CancelOrder 需要真实订单索引，当前未接入订单索引跟踪，
// 显式按未实现处理而不是静默近似。跟踪中的条件单因此无法替换，
// 上层替换协议会把该错误原样暴露给调用方。
func (d *Driver) CancelOrder(ctx context.Context, id, symbol string) error {
	return types.ErrNotSupported(d.name, "cancelOrder")
}

// OpenOrders 返回该交易对跟踪中的活动条件单快照
func (d *Driver) OpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.Order, len(d.conds[symbol]))
	copy(out, d.conds[symbol])
	return out, nil
}

// SetLeverage 调整杠杆
func (d *Driver) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	marketID, ok := d.ids[symbol]
	if !ok {
		return types.NewValidationError("symbol", fmt.Sprintf("未知市场 %s", symbol))
	}
	if err := d.sdk.UpdateLeverage(ctx, marketID, leverage); err != nil {
		return types.NewProtocolError(d.name, "setLeverage", 0, err.Error(), err)
	}
	return nil
}

// SetPositionMode 净持仓模型，无双向持仓概念
func (d *Driver) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	return types.ErrNotSupported(d.name, "setPositionMode")
}

// FetchMarkPrice 获取标记价格
func (d *Driver) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	marketID, ok := d.ids[symbol]
	if !ok {
		return 0, types.NewValidationError("symbol", fmt.Sprintf("未知市场 %s", symbol))
	}
	stats, err := d.read.MarketStats(ctx, marketID)
	if err != nil {
		return 0, err
	}
	return units.FromAtomicInt64(stats.MarkPrice, d.markets[symbol].PricePrecision), nil
}

// FetchKlines 获取 K 线
func (d *Driver) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error) {
	marketID, ok := d.ids[symbol]
	if !ok {
		return nil, types.NewValidationError("symbol", fmt.Sprintf("未知市场 %s", symbol))
	}
	rows, err := d.read.Candles(ctx, marketID, interval, limit)
	if err != nil {
		return nil, err
	}
	klines := make([]types.Kline, 0, len(rows))
	for _, c := range rows {
		klines = append(klines, types.Kline{
			OpenTime: c.OpenTime,
			Open:     parseFloat(c.Open),
			High:     parseFloat(c.High),
			Low:      parseFloat(c.Low),
			Close:    parseFloat(c.Close),
			Volume:   parseFloat(c.Volume),
		})
	}
	return klines, nil
}

// FetchFundingRate 获取资金费率（读取端点以 1e-6 精度整数表示）
func (d *Driver) FetchFundingRate(ctx context.Context, symbol string) (float64, error) {
	marketID, ok := d.ids[symbol]
	if !ok {
		return 0, types.NewValidationError("symbol", fmt.Sprintf("未知市场 %s", symbol))
	}
	stats, err := d.read.MarketStats(ctx, marketID)
	if err != nil {
		return 0, err
	}
	return units.FromAtomicInt64(stats.FundingRate, 6), nil
}

// FetchOpenInterest 获取未平仓合约量
func (d *Driver) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	marketID, ok := d.ids[symbol]
	if !ok {
		return 0, types.NewValidationError("symbol", fmt.Sprintf("未知市场 %s", symbol))
	}
	stats, err := d.read.MarketStats(ctx, marketID)
	if err != nil {
		return 0, err
	}
	return units.FromAtomicInt64(stats.OpenInterestBase, d.markets[symbol].AmountPrecision), nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
