package aster

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lucabot/exchange/venues/types"
	"github.com/lucabot/exchange/venues/units"
)

var log = logrus.WithField("component", "aster_driver")

// DefaultHost 主网 API 地址
const DefaultHost = "https://fapi.asterdex.com"

// Driver Aster 族签名请求驱动
type Driver struct {
	client  *Client
	name    string
	quote   string
	markets map[string]types.Market // 统一符号 -> 市场元数据
}

// NewDriver 创建驱动
func NewDriver(host, name string, signer *Signer) *Driver {
	if host == "" {
		host = DefaultHost
	}
	return &Driver{
		client:  NewClient(host, name, signer),
		name:    name,
		quote:   "USDT",
		markets: make(map[string]types.Market),
	}
}

// Name 交易所标识
func (d *Driver) Name() string { return d.name }

// venueSymbol 统一符号转交易所符号："BTC/USDT" -> "BTCUSDT"
func venueSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// exchangeInfo 市场元数据响应
type exchangeInfo struct {
	Symbols []struct {
		Symbol            string `json:"symbol"`
		BaseAsset         string `json:"baseAsset"`
		QuoteAsset        string `json:"quoteAsset"`
		PricePrecision    int    `json:"pricePrecision"`
		QuantityPrecision int    `json:"quantityPrecision"`
		Status            string `json:"status"`
	} `json:"symbols"`
}

// LoadMarkets 加载市场元数据
func (d *Driver) LoadMarkets(ctx context.Context) (map[string]types.Market, error) {
	var info exchangeInfo
	if err := d.client.Public(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}
	markets := make(map[string]types.Market, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "" && s.Status != "TRADING" {
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

// assetBalance 按资产拆分的余额记录
type assetBalance struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	CrossUnPnl       string `json:"crossUnPnl"`
	AvailableBalance string `json:"availableBalance"`
	UpdateTime       int64  `json:"updateTime"`
}

// FetchBalance 获取余额。响应为按资产拆分的数组，取计价资产一条。
func (d *Driver) FetchBalance(ctx context.Context) (*types.Balance, error) {
	var rows []assetBalance
	if err := d.client.Signed(ctx, http.MethodGet, "/fapi/v2/balance", nil, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Asset != d.quote {
			continue
		}
		wallet := parseFloat(row.Balance)
		unPnl := parseFloat(row.CrossUnPnl)
		available := parseFloat(row.AvailableBalance)
		equity := wallet + unPnl
		marginUsed := equity - available
		if marginUsed < 0 {
			marginUsed = 0
		}
		bal := &types.Balance{
			TotalEquity:      equity,
			AvailableBalance: available,
			UnrealizedPnL:    unPnl,
			MarginUsed:       marginUsed,
			Timestamp:        types.Now(),
		}
		if equity > 0 {
			bal.MarginUsedPct = marginUsed / equity * 100
		}
		return bal, nil
	}
	return nil, types.NewProtocolError(d.name, "fetchBalance", 0,
		fmt.Sprintf("余额响应中没有 %s 资产", d.quote), nil)
}

// rawPosition 持仓风险记录
type rawPosition struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	LiquidationPrice string `json:"liquidationPrice"`
	Leverage         string `json:"leverage"`
	UpdateTime       int64  `json:"updateTime"`
}

// FetchPositions 获取持仓。方向由原始带符号数量的符号推导，
// 零数量记录代表已平仓，直接丢弃。
func (d *Driver) FetchPositions(ctx context.Context) ([]types.Position, error) {
	var rows []rawPosition
	if err := d.client.Signed(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil, &rows); err != nil {
		return nil, err
	}
	positions := make([]types.Position, 0, len(rows))
	for _, row := range rows {
		amt := parseFloat(row.PositionAmt)
		if amt == 0 {
			continue
		}
		side := types.PositionLong
		if amt < 0 {
			side = types.PositionShort
			amt = -amt
		}
		leverage, _ := strconv.Atoi(row.Leverage)
		markPrice := parseFloat(row.MarkPrice)
		marginUsed := 0.0
		if leverage > 0 {
			marginUsed = amt * markPrice / float64(leverage)
		}
		pos := types.Position{
			Symbol:           d.unifiedSymbol(row.Symbol),
			Side:             side,
			Quantity:         amt,
			EntryPrice:       parseFloat(row.EntryPrice),
			MarkPrice:        markPrice,
			Leverage:         leverage,
			UnrealizedPnL:    parseFloat(row.UnRealizedProfit),
			LiquidationPrice: parseFloat(row.LiquidationPrice),
			MarginUsed:       marginUsed,
			UpdateTime:       row.UpdateTime,
		}
		if marginUsed > 0 {
			pos.UnrealizedPnLPct = pos.UnrealizedPnL / marginUsed * 100
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// unifiedSymbol 交易所符号转统一符号
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

// orderResponse 下单响应
type orderResponse struct {
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	AvgPrice    string `json:"avgPrice"`
	ExecutedQty string `json:"executedQty"`
}

// CreateOrder 下单。数量按市场数量精度截断后发送。
func (d *Driver) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.Order, error) {
	market, ok := d.markets[req.Symbol]
	if !ok {
		return nil, types.NewValidationError("symbol", fmt.Sprintf("未知交易对 %s", req.Symbol))
	}
	params := map[string]any{
		"symbol":   market.ID,
		"side":     strings.ToUpper(string(req.Side)),
		"quantity": units.FormatAmount(req.Quantity, market.AmountPrecision),
	}
	switch req.Type {
	case types.OrderTypeMarket:
		params["type"] = "MARKET"
	case types.OrderTypeStopLoss:
		params["type"] = "STOP_MARKET"
		params["stopPrice"] = units.FormatAmount(req.Price, market.PricePrecision)
	case types.OrderTypeTakeProfit:
		params["type"] = "TAKE_PROFIT_MARKET"
		params["stopPrice"] = units.FormatAmount(req.Price, market.PricePrecision)
	default:
		return nil, types.NewValidationError("type", fmt.Sprintf("不支持的订单类型 %s", req.Type))
	}
	if req.PositionSide != "" {
		// 双向持仓模式下用 positionSide 表达方向，减仓语义由反向订单隐含
		params["positionSide"] = strings.ToUpper(string(req.PositionSide))
	} else if req.ReduceOnly {
		params["reduceOnly"] = "true"
	}
	if req.ClientID != "" {
		params["newClientOrderId"] = req.ClientID
	}

	var resp orderResponse
	if err := d.client.Signed(ctx, http.MethodPost, "/fapi/v1/order", params, &resp); err != nil {
		return nil, err
	}
	return &types.Order{
		ID:         strconv.FormatInt(resp.OrderID, 10),
		ClientID:   req.ClientID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		Price:      parseFloat(resp.AvgPrice),
		Status:     mapStatus(resp.Status),
		ReduceOnly: req.ReduceOnly,
	}, nil
}

// CancelOrder 撤单
func (d *Driver) CancelOrder(ctx context.Context, id, symbol string) error {
	market, ok := d.markets[symbol]
	if !ok {
		return types.NewValidationError("symbol", fmt.Sprintf("未知交易对 %s", symbol))
	}
	params := map[string]any{"symbol": market.ID, "orderId": id}
	return d.client.Signed(ctx, http.MethodDelete, "/fapi/v1/order", params, nil)
}

// openOrder 未成交订单记录
type openOrder struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	OrigType      string `json:"origType"`
	StopPrice     string `json:"stopPrice"`
	OrigQty       string `json:"origQty"`
	ReduceOnly    bool   `json:"reduceOnly"`
}

// OpenOrders 查询未成交订单
func (d *Driver) OpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	market, ok := d.markets[symbol]
	if !ok {
		return nil, types.NewValidationError("symbol", fmt.Sprintf("未知交易对 %s", symbol))
	}
	var rows []openOrder
	params := map[string]any{"symbol": market.ID}
	if err := d.client.Signed(ctx, http.MethodGet, "/fapi/v1/openOrders", params, &rows); err != nil {
		return nil, err
	}
	orders := make([]types.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, types.Order{
			ID:         strconv.FormatInt(row.OrderID, 10),
			ClientID:   row.ClientOrderID,
			Symbol:     symbol,
			Side:       types.Side(strings.ToLower(row.Side)),
			Type:       mapOrderType(row.OrigType),
			Quantity:   parseFloat(row.OrigQty),
			Price:      parseFloat(row.StopPrice),
			Status:     types.OrderStatusNew,
			ReduceOnly: row.ReduceOnly,
		})
	}
	return orders, nil
}

// SetLeverage 设置杠杆
func (d *Driver) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	market, ok := d.markets[symbol]
	if !ok {
		return types.NewValidationError("symbol", fmt.Sprintf("未知交易对 %s", symbol))
	}
	params := map[string]any{"symbol": market.ID, "leverage": leverage}
	return d.client.Signed(ctx, http.MethodPost, "/fapi/v1/leverage", params, nil)
}

// SetPositionMode 设置双向持仓模式
func (d *Driver) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	params := map[string]any{"dualSidePosition": strconv.FormatBool(hedgeMode)}
	return d.client.Signed(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", params, nil)
}

// premiumIndex 标记价格与资金费率
type premiumIndex struct {
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
}

// FetchMarkPrice 获取标记价格
func (d *Driver) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	var idx premiumIndex
	params := map[string]any{"symbol": venueSymbol(symbol)}
	if err := d.client.Public(ctx, http.MethodGet, "/fapi/v1/premiumIndex", params, &idx); err != nil {
		return 0, err
	}
	return parseFloat(idx.MarkPrice), nil
}

// FetchFundingRate 获取资金费率
func (d *Driver) FetchFundingRate(ctx context.Context, symbol string) (float64, error) {
	var idx premiumIndex
	params := map[string]any{"symbol": venueSymbol(symbol)}
	if err := d.client.Public(ctx, http.MethodGet, "/fapi/v1/premiumIndex", params, &idx); err != nil {
		return 0, err
	}
	return parseFloat(idx.LastFundingRate), nil
}

// FetchKlines 获取 K 线
func (d *Driver) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error) {
	var rows [][]any
	params := map[string]any{
		"symbol":   venueSymbol(symbol),
		"interval": interval,
		"limit":    limit,
	}
	if err := d.client.Public(ctx, http.MethodGet, "/fapi/v1/klines", params, &rows); err != nil {
		return nil, err
	}
	klines := make([]types.Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		openTime, _ := row[0].(float64)
		klines = append(klines, types.Kline{
			OpenTime: int64(openTime),
			Open:     anyFloat(row[1]),
			High:     anyFloat(row[2]),
			Low:      anyFloat(row[3]),
			Close:    anyFloat(row[4]),
			Volume:   anyFloat(row[5]),
		})
	}
	return klines, nil
}

// FetchOpenInterest 获取未平仓合约量
func (d *Driver) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		OpenInterest string `json:"openInterest"`
	}
	params := map[string]any{"symbol": venueSymbol(symbol)}
	if err := d.client.Public(ctx, http.MethodGet, "/fapi/v1/openInterest", params, &resp); err != nil {
		return 0, err
	}
	return parseFloat(resp.OpenInterest), nil
}

// mapStatus 交易所订单状态转标准状态
func mapStatus(s string) types.OrderStatus {
	switch s {
	case "FILLED":
		return types.OrderStatusFilled
	case "CANCELED", "EXPIRED":
		return types.OrderStatusCanceled
	case "REJECTED":
		return types.OrderStatusRejected
	default:
		return types.OrderStatusNew
	}
}

// mapOrderType 交易所订单类型转标准类型
func mapOrderType(s string) types.OrderType {
	switch s {
	case "STOP_MARKET", "STOP":
		return types.OrderTypeStopLoss
	case "TAKE_PROFIT_MARKET", "TAKE_PROFIT":
		return types.OrderTypeTakeProfit
	default:
		return types.OrderTypeMarket
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func anyFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		return parseFloat(t)
	default:
		return 0
	}
}
