package hyperliquid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lucabot/exchange/venues/types"
	"github.com/lucabot/exchange/venues/units"
)

var log = logrus.WithField("component", "hyperliquid_driver")

// priceSigFigs 价格有效位数上限
const priceSigFigs = 5

// Driver Hyperliquid 族 SDK 包装驱动。
// SDK 不提供统一的未成交订单查询，活动条件单由驱动在
// 下单/撤单时自行跟踪，OpenOrders 返回跟踪表的快照。
type Driver struct {
	sdk     SDK
	name    string
	quote   string
	markets map[string]types.Market
	decs    map[string]int // coin -> szDecimals
	maxLev  map[string]int // coin -> 最大杠杆

	mu    sync.Mutex
	conds map[string][]types.Order // 统一符号 -> 活动条件单
}

// NewDriver 创建驱动
func NewDriver(name string, sdk SDK) *Driver {
	return &Driver{
		sdk:     sdk,
		name:    name,
		quote:   "USDT",
		markets: make(map[string]types.Market),
		decs:    make(map[string]int),
		maxLev:  make(map[string]int),
		conds:   make(map[string][]types.Order),
	}
}

// Name 交易所标识
func (d *Driver) Name() string { return d.name }

// coin 统一符号转 coin："BTC/USDT" -> "BTC"
func coin(symbol string) string {
	if i := strings.Index(symbol, "/"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

// LoadMarkets 从 SDK 元数据构建市场表
func (d *Driver) LoadMarkets(ctx context.Context) (map[string]types.Market, error) {
	metas, err := d.sdk.Meta(ctx)
	if err != nil {
		return nil, types.NewProtocolError(d.name, "loadMarkets", 0, err.Error(), err)
	}
	markets := make(map[string]types.Market, len(metas))
	decs := make(map[string]int, len(metas))
	maxLev := make(map[string]int, len(metas))
	for _, m := range metas {
		unified := m.Coin + "/" + d.quote
		markets[unified] = types.Market{
			ID:              m.Coin,
			Symbol:          unified,
			Base:            m.Coin,
			Quote:           d.quote,
			PricePrecision:  priceSigFigs,
			AmountPrecision: m.SzDecimals,
		}
		decs[m.Coin] = m.SzDecimals
		maxLev[m.Coin] = m.MaxLeverage
	}
	d.markets = markets
	d.decs = decs
	d.maxLev = maxLev
	log.Infof("%s 市场加载完成: %d 个 coin", d.name, len(markets))
	return markets, nil
}

// FetchBalance 归一化保证金摘要
func (d *Driver) FetchBalance(ctx context.Context) (*types.Balance, error) {
	ms, err := d.sdk.MarginSummary(ctx)
	if err != nil {
		return nil, types.NewProtocolError(d.name, "fetchBalance", 0, err.Error(), err)
	}
	equity := parseFloat(ms.AccountValue)
	marginUsed := parseFloat(ms.TotalMarginUsed)
	withdrawable := parseFloat(ms.Withdrawable)
	bal := &types.Balance{
		TotalEquity:      equity,
		AvailableBalance: withdrawable,
		MarginUsed:       marginUsed,
		Timestamp:        types.Now(),
	}
	if equity > 0 {
		bal.MarginUsedPct = marginUsed / equity * 100
	}
	return bal, nil
}

// FetchPositions 归一化持仓；szi 符号决定方向，零数量记录丢弃
func (d *Driver) FetchPositions(ctx context.Context) ([]types.Position, error) {
	rows, err := d.sdk.Positions(ctx)
	if err != nil {
		return nil, types.NewProtocolError(d.name, "fetchPositions", 0, err.Error(), err)
	}
	positions := make([]types.Position, 0, len(rows))
	for _, row := range rows {
		szi := parseFloat(row.Szi)
		if szi == 0 {
			continue
		}
		side := types.PositionLong
		if szi < 0 {
			side = types.PositionShort
			szi = -szi
		}
		entryPx := parseFloat(row.EntryPx)
		marginUsed := parseFloat(row.MarginUsed)
		unPnl := parseFloat(row.UnrealizedPnl)
		markPrice := entryPx
		if szi > 0 {
			// SDK 不直接给标记价，由名义价值反推
			if pv := parseFloat(row.PositionValue); pv > 0 {
				markPrice = pv / szi
			}
		}
		pos := types.Position{
			Symbol:           row.Coin + "/" + d.quote,
			Side:             side,
			Quantity:         szi,
			EntryPrice:       entryPx,
			MarkPrice:        markPrice,
			Leverage:         row.Leverage,
			UnrealizedPnL:    unPnl,
			LiquidationPrice: parseFloat(row.LiquidationPx),
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

// CreateOrder 精度换算后委托 SDK 下单。
// 数量按 szDecimals 截断，触发价截断到有效位数，均不四舍五入。
func (d *Driver) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.Order, error) {
	c := coin(req.Symbol)
	szDecimals, ok := d.decs[c]
	if !ok {
		return nil, types.NewValidationError("symbol", fmt.Sprintf("未知 coin %s", c))
	}
	size := units.Truncate(req.Quantity, szDecimals)
	if size <= 0 {
		return nil, types.NewValidationError("quantity", "精度截断后数量为零")
	}

	sdkReq := &OrderRequest{
		Coin:       c,
		IsBuy:      req.Side == types.SideBuy,
		Size:       size,
		ReduceOnly: req.ReduceOnly,
		ClientID:   req.ClientID,
	}
	switch req.Type {
	case types.OrderTypeMarket:
		sdkReq.OrderType = "market"
	case types.OrderTypeStopLoss:
		sdkReq.OrderType = "stop"
		sdkReq.Price = units.TruncateToSigFigs(req.Price, priceSigFigs)
	case types.OrderTypeTakeProfit:
		sdkReq.OrderType = "take_profit"
		sdkReq.Price = units.TruncateToSigFigs(req.Price, priceSigFigs)
	default:
		return nil, types.NewValidationError("type", fmt.Sprintf("不支持的订单类型 %s", req.Type))
	}

	res, err := d.sdk.PlaceOrder(ctx, sdkReq)
	if err != nil {
		return nil, types.NewProtocolError(d.name, "createOrder", 0, err.Error(), err)
	}
	order := &types.Order{
		ID:         strconv.FormatInt(res.OrderID, 10),
		ClientID:   req.ClientID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   size,
		Price:      res.AvgPrice,
		Status:     mapStatus(res.Status),
		ReduceOnly: req.ReduceOnly,
	}
	if req.Type != types.OrderTypeMarket && order.Status != types.OrderStatusRejected {
		d.trackConditional(*order)
	}
	return order, nil
}

// trackConditional 记录新挂出的条件单
func (d *Driver) trackConditional(order types.Order) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conds[order.Symbol] = append(d.conds[order.Symbol], order)
}

// untrackConditional 撤单成功后从跟踪表移除
func (d *Driver) untrackConditional(symbol, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.conds[symbol][:0]
	for _, o := range d.conds[symbol] {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		delete(d.conds, symbol)
		return
	}
	d.conds[symbol] = kept
}

// CancelOrder 撤单
func (d *Driver) CancelOrder(ctx context.Context, id, symbol string) error {
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return types.NewValidationError("id", fmt.Sprintf("非法订单 ID %q", id))
	}
	if err := d.sdk.CancelOrder(ctx, coin(symbol), orderID); err != nil {
		return types.NewProtocolError(d.name, "cancelOrder", 0, err.Error(), err)
	}
	d.untrackConditional(symbol, id)
	return nil
}

// OpenOrders 返回该交易对跟踪中的活动条件单快照
func (d *Driver) OpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.Order, len(d.conds[symbol]))
	copy(out, d.conds[symbol])
	return out, nil
}

// SetLeverage 调整杠杆，超出元数据声明的上限时在本地拒绝
func (d *Driver) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	c := coin(symbol)
	if max, ok := d.maxLev[c]; ok && max > 0 && leverage > max {
		return types.NewValidationError("leverage",
			fmt.Sprintf("%s 最大杠杆为 %dx", c, max))
	}
	if err := d.sdk.UpdateLeverage(ctx, c, leverage); err != nil {
		return types.NewProtocolError(d.name, "setLeverage", 0, err.Error(), err)
	}
	return nil
}

// SetPositionMode 净持仓模型，无双向持仓概念
func (d *Driver) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	return types.ErrNotSupported(d.name, "setPositionMode")
}

// FetchMarkPrice 获取中间价
func (d *Driver) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := d.sdk.MidPrice(ctx, coin(symbol))
	if err != nil {
		return 0, types.NewProtocolError(d.name, "fetchMarkPrice", 0, err.Error(), err)
	}
	return price, nil
}

// FetchKlines 获取 K 线
func (d *Driver) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error) {
	rows, err := d.sdk.Candles(ctx, coin(symbol), interval, limit)
	if err != nil {
		return nil, types.NewProtocolError(d.name, "fetchKlines", 0, err.Error(), err)
	}
	klines := make([]types.Kline, 0, len(rows))
	for _, c := range rows {
		klines = append(klines, types.Kline{
			OpenTime: c.OpenTime,
			Open:     c.Open,
			High:     c.High,
			Low:      c.Low,
			Close:    c.Close,
			Volume:   c.Volume,
		})
	}
	return klines, nil
}

// FetchFundingRate 获取资金费率
func (d *Driver) FetchFundingRate(ctx context.Context, symbol string) (float64, error) {
	rate, err := d.sdk.FundingRate(ctx, coin(symbol))
	if err != nil {
		return 0, types.NewProtocolError(d.name, "fetchFundingRate", 0, err.Error(), err)
	}
	return rate, nil
}

// FetchOpenInterest 获取未平仓合约量
func (d *Driver) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	oi, err := d.sdk.OpenInterest(ctx, coin(symbol))
	if err != nil {
		return 0, types.NewProtocolError(d.name, "fetchOpenInterest", 0, err.Error(), err)
	}
	return oi, nil
}

// mapStatus SDK 状态转标准状态
func mapStatus(s string) types.OrderStatus {
	switch s {
	case "filled":
		return types.OrderStatusFilled
	case "rejected":
		return types.OrderStatusRejected
	case "canceled":
		return types.OrderStatusCanceled
	default:
		return types.OrderStatusNew
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
