// Package standard 实现传统中心化交易所驱动，
// 封装常规 REST 客户端（币安 USDT 本位合约），只做参数映射，不含任何自定义鉴权逻辑。
package standard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	bcommon "github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/sirupsen/logrus"

	"github.com/lucabot/exchange/venues/types"
	"github.com/lucabot/exchange/venues/units"
)

var log = logrus.WithField("component", "standard_driver")

// Driver 传统交易所驱动
type Driver struct {
	client  *futures.Client
	name    string
	quote   string
	markets map[string]types.Market
}

// NewDriver 创建驱动。apiKey/secretKey 为空时仅可调用公共行情接口，
// 这是未连接状态下行情读取的兜底路径。
func NewDriver(name, apiKey, secretKey string, testnet bool) *Driver {
	futures.UseTestnet = testnet
	return &Driver{
		client:  binance.NewFuturesClient(apiKey, secretKey),
		name:    name,
		quote:   "USDT",
		markets: make(map[string]types.Market),
	}
}

// Name 交易所标识
func (d *Driver) Name() string { return d.name }

func (d *Driver) venueSymbol(symbol string) string {
	if m, ok := d.markets[symbol]; ok {
		return m.ID
	}
	return strings.ReplaceAll(symbol, "/", "")
}

func (d *Driver) unifiedSymbol(venueSym string) string {
	for unified, m := range d.markets {
		if m.ID == venueSym {
			return unified
		}
	}
	if strings.HasSuffix(venueSym, d.quote) {
		return strings.TrimSuffix(venueSym, d.quote) + "/" + d.quote
	}
	return venueSym
}

// wrapErr 把客户端错误包装为协议错误并保留结构化错误码
func (d *Driver) wrapErr(op string, err error) error {
	var apiErr *bcommon.APIError
	if errors.As(err, &apiErr) {
		return types.NewProtocolError(d.name, op, int(apiErr.Code), apiErr.Message, err)
	}
	return types.NewProtocolError(d.name, op, 0, err.Error(), err)
}

// LoadMarkets 加载市场元数据
func (d *Driver) LoadMarkets(ctx context.Context) (map[string]types.Market, error) {
	info, err := d.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, d.wrapErr("loadMarkets", err)
	}
	markets := make(map[string]types.Market, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		unified := s.BaseAsset + "/" + s.QuoteAsset
		markets[unified] = types.Market{
			ID:              s.Symbol,
			Symbol:          unified,
			Base:            s.BaseAsset,
			Quote:           s.QuoteAsset,
			PricePrecision:  s.PricePrecision,
			AmountPrecision: s.QuantityPrecision,
		}
	}
	d.markets = markets
	log.Infof("%s 市场加载完成: %d 个交易对", d.name, len(markets))
	return markets, nil
}

// FetchBalance 获取标准化余额
func (d *Driver) FetchBalance(ctx context.Context) (*types.Balance, error) {
	acc, err := d.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, d.wrapErr("fetchBalance", err)
	}
	wallet, _ := strconv.ParseFloat(acc.TotalWalletBalance, 64)
	unPnl, _ := strconv.ParseFloat(acc.TotalUnrealizedProfit, 64)
	marginUsed, _ := strconv.ParseFloat(acc.TotalInitialMargin, 64)
	available, _ := strconv.ParseFloat(acc.AvailableBalance, 64)

	bal := &types.Balance{
		TotalEquity:      wallet + unPnl,
		AvailableBalance: available,
		UnrealizedPnL:    unPnl,
		MarginUsed:       marginUsed,
		Timestamp:        types.Now(),
	}
	if bal.TotalEquity > 0 {
		bal.MarginUsedPct = marginUsed / bal.TotalEquity * 100
	}
	return bal, nil
}

// FetchPositions 获取标准化持仓，零数量记录被过滤
func (d *Driver) FetchPositions(ctx context.Context) ([]types.Position, error) {
	risks, err := d.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, d.wrapErr("fetchPositions", err)
	}
	positions := make([]types.Position, 0, len(risks))
	for _, p := range risks {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		side := types.PositionLong
		if amt < 0 {
			side = types.PositionShort
			amt = -amt
		}
		entryPrice, _ := strconv.ParseFloat(p.EntryPrice, 64)
		markPrice, _ := strconv.ParseFloat(p.MarkPrice, 64)
		unPnl, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
		liqPrice, _ := strconv.ParseFloat(p.LiquidationPrice, 64)
		leverage, _ := strconv.Atoi(p.Leverage)

		marginUsed := 0.0
		if leverage > 0 {
			marginUsed = amt * markPrice / float64(leverage)
		}
		pos := types.Position{
			Symbol:           d.unifiedSymbol(p.Symbol),
			Side:             side,
			Quantity:         amt,
			EntryPrice:       entryPrice,
			MarkPrice:        markPrice,
			Leverage:         leverage,
			UnrealizedPnL:    unPnl,
			LiquidationPrice: liqPrice,
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

// CreateOrder 下单。双向持仓模式用 positionSide 标签表达方向；
// reduceOnly 仅在单向模式下发送（双向模式交易所会拒绝该参数）。
func (d *Driver) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.Order, error) {
	market, ok := d.markets[req.Symbol]
	if !ok {
		return nil, types.NewValidationError("symbol", fmt.Sprintf("未知交易对 %s", req.Symbol))
	}
	qty := units.FormatAmount(req.Quantity, market.AmountPrecision)

	svc := d.client.NewCreateOrderService().
		Symbol(market.ID).
		Quantity(qty)

	if req.Side == types.SideBuy {
		svc.Side(futures.SideTypeBuy)
	} else {
		svc.Side(futures.SideTypeSell)
	}

	switch req.Type {
	case types.OrderTypeMarket:
		svc.Type(futures.OrderTypeMarket)
	case types.OrderTypeStopLoss:
		svc.Type(futures.OrderTypeStopMarket).
			StopPrice(units.FormatAmount(req.Price, market.PricePrecision))
	case types.OrderTypeTakeProfit:
		svc.Type(futures.OrderTypeTakeProfitMarket).
			StopPrice(units.FormatAmount(req.Price, market.PricePrecision))
	default:
		return nil, types.NewValidationError("type", fmt.Sprintf("不支持的订单类型 %s", req.Type))
	}

	if req.PositionSide == types.PositionLong {
		svc.PositionSide(futures.PositionSideTypeLong)
	} else if req.PositionSide == types.PositionShort {
		svc.PositionSide(futures.PositionSideTypeShort)
	} else if req.ReduceOnly {
		svc.ReduceOnly(true)
	}

	if req.ClientID != "" {
		svc.NewClientOrderID(req.ClientID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, d.wrapErr("createOrder", err)
	}
	avgPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	return &types.Order{
		ID:         strconv.FormatInt(resp.OrderID, 10),
		ClientID:   req.ClientID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		Price:      avgPrice,
		Status:     mapStatus(resp.Status),
		ReduceOnly: req.ReduceOnly,
	}, nil
}

// CancelOrder 撤单
func (d *Driver) CancelOrder(ctx context.Context, id, symbol string) error {
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return types.NewValidationError("id", fmt.Sprintf("非法订单 ID %q", id))
	}
	_, err = d.client.NewCancelOrderService().
		Symbol(d.venueSymbol(symbol)).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return d.wrapErr("cancelOrder", err)
	}
	return nil
}

// OpenOrders 查询未成交订单
func (d *Driver) OpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	rows, err := d.client.NewListOpenOrdersService().
		Symbol(d.venueSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return nil, d.wrapErr("openOrders", err)
	}
	orders := make([]types.Order, 0, len(rows))
	for _, row := range rows {
		qty, _ := strconv.ParseFloat(row.OrigQuantity, 64)
		stopPrice, _ := strconv.ParseFloat(row.StopPrice, 64)
		orders = append(orders, types.Order{
			ID:         strconv.FormatInt(row.OrderID, 10),
			ClientID:   row.ClientOrderID,
			Symbol:     symbol,
			Side:       types.Side(strings.ToLower(string(row.Side))),
			Type:       mapOrderType(row.Type),
			Quantity:   qty,
			Price:      stopPrice,
			Status:     types.OrderStatusNew,
			ReduceOnly: row.ReduceOnly,
		})
	}
	return orders, nil
}

// SetLeverage 设置杠杆
func (d *Driver) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := d.client.NewChangeLeverageService().
		Symbol(d.venueSymbol(symbol)).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return d.wrapErr("setLeverage", err)
	}
	return nil
}

// SetPositionMode 设置双向持仓模式
func (d *Driver) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	err := d.client.NewChangePositionModeService().
		DualSide(hedgeMode).
		Do(ctx)
	if err != nil {
		return d.wrapErr("setPositionMode", err)
	}
	return nil
}

// FetchMarkPrice 获取标记价格
func (d *Driver) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	rows, err := d.client.NewPremiumIndexService().
		Symbol(d.venueSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return 0, d.wrapErr("fetchMarkPrice", err)
	}
	if len(rows) == 0 {
		return 0, types.NewProtocolError(d.name, "fetchMarkPrice", 0, "空响应", nil)
	}
	price, _ := strconv.ParseFloat(rows[0].MarkPrice, 64)
	return price, nil
}

// FetchKlines 获取 K 线
func (d *Driver) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error) {
	rows, err := d.client.NewKlinesService().
		Symbol(d.venueSymbol(symbol)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, d.wrapErr("fetchKlines", err)
	}
	klines := make([]types.Kline, 0, len(rows))
	for _, k := range rows {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closeP, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		klines = append(klines, types.Kline{
			OpenTime: k.OpenTime,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
			Volume:   volume,
		})
	}
	return klines, nil
}

// FetchFundingRate 获取资金费率
func (d *Driver) FetchFundingRate(ctx context.Context, symbol string) (float64, error) {
	rows, err := d.client.NewPremiumIndexService().
		Symbol(d.venueSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return 0, d.wrapErr("fetchFundingRate", err)
	}
	if len(rows) == 0 {
		return 0, types.NewProtocolError(d.name, "fetchFundingRate", 0, "空响应", nil)
	}
	rate, _ := strconv.ParseFloat(rows[0].LastFundingRate, 64)
	return rate, nil
}

// FetchOpenInterest 获取未平仓合约量
func (d *Driver) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	resp, err := d.client.NewGetOpenInterestService().
		Symbol(d.venueSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return 0, d.wrapErr("fetchOpenInterest", err)
	}
	oi, _ := strconv.ParseFloat(resp.OpenInterest, 64)
	return oi, nil
}

// mapStatus 交易所订单状态转标准状态
func mapStatus(s futures.OrderStatusType) types.OrderStatus {
	switch s {
	case futures.OrderStatusTypeFilled:
		return types.OrderStatusFilled
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return types.OrderStatusCanceled
	case futures.OrderStatusTypeRejected:
		return types.OrderStatusRejected
	default:
		return types.OrderStatusNew
	}
}

// mapOrderType 交易所订单类型转标准类型
func mapOrderType(t futures.OrderType) types.OrderType {
	switch t {
	case futures.OrderTypeStopMarket, futures.OrderTypeStop:
		return types.OrderTypeStopLoss
	case futures.OrderTypeTakeProfitMarket, futures.OrderTypeTakeProfit:
		return types.OrderTypeTakeProfit
	default:
		return types.OrderTypeMarket
	}
}
