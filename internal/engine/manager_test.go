package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lucabot/exchange/venues"
	"github.com/lucabot/exchange/venues/hyperliquid"
	"github.com/lucabot/exchange/venues/types"
)

// fakeDriver 测试用驱动桩
type fakeDriver struct {
	name          string
	balanceCalls  int
	positionCalls int
	fundingCalls  int
	positions     []types.Position
	openOrders    []types.Order
	created       []*types.OrderRequest
	canceled      []string
	failSymbols   map[string]bool // CreateOrder 对这些交易对报错
	positionModeE error
	leverageErr   error
	cancelErr     error
	fundingErr    error
	priceErr      error
	fundingRate   float64
	markPrice     float64
	nextID        int
}

func (f *fakeDriver) Name() string { return f.name }

func (f *fakeDriver) LoadMarkets(ctx context.Context) (map[string]types.Market, error) {
	return map[string]types.Market{
		"BTC/USDT": {ID: "BTCUSDT", Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT"},
		"ETH/USDT": {ID: "ETHUSDT", Symbol: "ETH/USDT", Base: "ETH", Quote: "USDT"},
		"SOL/USDT": {ID: "SOLUSDT", Symbol: "SOL/USDT", Base: "SOL", Quote: "USDT"},
	}, nil
}

func (f *fakeDriver) FetchBalance(ctx context.Context) (*types.Balance, error) {
	f.balanceCalls++
	return &types.Balance{TotalEquity: 10000, AvailableBalance: 8000, Timestamp: types.Now()}, nil
}

func (f *fakeDriver) FetchPositions(ctx context.Context) ([]types.Position, error) {
	f.positionCalls++
	out := make([]types.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeDriver) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.Order, error) {
	if f.failSymbols[req.Symbol] {
		return nil, types.NewProtocolError(f.name, "createOrder", -2019, "margin is insufficient", nil)
	}
	f.created = append(f.created, req)
	f.nextID++
	order := &types.Order{
		ID:       fmt.Sprintf("ord-%d", f.nextID),
		ClientID: req.ClientID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     req.Type,
		Quantity: req.Quantity,
		Price:    req.Price,
		Status:   types.OrderStatusFilled,
	}
	if req.Type != types.OrderTypeMarket {
		order.Status = types.OrderStatusNew
		f.openOrders = append(f.openOrders, *order)
	}
	return order, nil
}

func (f *fakeDriver) CancelOrder(ctx context.Context, id, symbol string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, id)
	kept := f.openOrders[:0]
	for _, o := range f.openOrders {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	f.openOrders = kept
	return nil
}

func (f *fakeDriver) OpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	var out []types.Order
	for _, o := range f.openOrders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeDriver) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return f.leverageErr
}

func (f *fakeDriver) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	return f.positionModeE
}

func (f *fakeDriver) FetchMarkPrice(ctx context.Context, symbol string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	if f.markPrice == 0 {
		return 50000, nil
	}
	return f.markPrice, nil
}

func (f *fakeDriver) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error) {
	return []types.Kline{{OpenTime: 1, Close: 50000}}, nil
}

func (f *fakeDriver) FetchFundingRate(ctx context.Context, symbol string) (float64, error) {
	f.fundingCalls++
	if f.fundingErr != nil {
		return 0, f.fundingErr
	}
	return f.fundingRate, nil
}

func (f *fakeDriver) FetchOpenInterest(ctx context.Context, symbol string) (float64, error) {
	return 12345, nil
}

// newTestManager 注册桩驱动并完成连接，记录结算等待时长
func newTestManager(t *testing.T, d *fakeDriver) (*Manager, *[]time.Duration) {
	t.Helper()
	m := NewManager()
	var slept []time.Duration
	m.sleep = func(dur time.Duration) { slept = append(slept, dur) }
	m.RegisterFactory(d.name, func(venueID string, creds types.Credentials) (venues.Driver, error) {
		return d, nil
	})
	if _, err := m.Connect(context.Background(), d.name, types.Credentials{APIKey: "k", SecretKey: "s"}); err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}
	return m, &slept
}

// TestGetBalance_CacheHit 15 秒内两次查询余额只触发一次驱动调用
func TestGetBalance_CacheHit(t *testing.T) {
	d := &fakeDriver{name: "venueA"}
	m, _ := newTestManager(t, d)

	for i := 0; i < 2; i++ {
		if _, err := m.GetBalance(context.Background(), "venueA"); err != nil {
			t.Fatalf("GetBalance 失败: %v", err)
		}
	}
	if d.balanceCalls != 1 {
		t.Fatalf("缓存未生效, 驱动调用次数 = %d", d.balanceCalls)
	}
}

// TestConnect_HedgeModeAlreadySet 「已是目标状态」不阻断连接
func TestConnect_HedgeModeAlreadySet(t *testing.T) {
	d := &fakeDriver{
		name:          "venueA",
		positionModeE: types.NewProtocolError("venueA", "positionSide/dual", -4059, "No need to change position side.", nil),
	}
	m := NewManager()
	m.RegisterFactory("venueA", func(venueID string, creds types.Credentials) (venues.Driver, error) {
		return d, nil
	})
	res, err := m.Connect(context.Background(), "venueA", types.Credentials{APIKey: "k", SecretKey: "s"})
	if err != nil {
		t.Fatalf("幂等响应不应阻断连接: %v", err)
	}
	if !res.Success || res.MarketsLoaded != 3 {
		t.Fatalf("连接结果错误: %+v", res)
	}
}

// TestOpenLong_InvalidatesCacheAndWaitsSettle 开仓前等待杠杆结算，返回前失效缓存
func TestOpenLong_InvalidatesCacheAndWaitsSettle(t *testing.T) {
	d := &fakeDriver{name: "venueA"}
	m, slept := newTestManager(t, d)

	// 先填充缓存
	if _, err := m.GetBalance(context.Background(), "venueA"); err != nil {
		t.Fatalf("GetBalance 失败: %v", err)
	}

	res, err := m.OpenLong(context.Background(), "venueA", "BTC/USDT", 0.01, 10)
	if err != nil {
		t.Fatalf("OpenLong 失败: %v", err)
	}
	if !res.Success || res.OrderID == "" {
		t.Fatalf("开仓结果错误: %+v", res)
	}
	if len(*slept) != 1 || (*slept)[0] != leverageSettleDelay {
		t.Fatalf("杠杆变更后应等待固定结算时长: %v", *slept)
	}
	req := d.created[0]
	if req.Side != types.SideBuy || req.PositionSide != types.PositionLong {
		t.Fatalf("开多方向映射错误: %+v", req)
	}
	if req.ClientID == "" {
		t.Fatal("应生成客户端订单 ID")
	}

	// 开仓已失效缓存, 下一次读取必须重新调用驱动
	if _, err := m.GetBalance(context.Background(), "venueA"); err != nil {
		t.Fatalf("GetBalance 失败: %v", err)
	}
	if d.balanceCalls != 2 {
		t.Fatalf("开仓后缓存应已失效, 驱动调用次数 = %d", d.balanceCalls)
	}
}

// TestOpenLong_LeverageAlreadySet 杠杆「无需变更」时不等待结算
func TestOpenLong_LeverageAlreadySet(t *testing.T) {
	d := &fakeDriver{
		name:        "venueA",
		leverageErr: types.NewProtocolError("venueA", "leverage", -4046, "No need to change leverage.", nil),
	}
	m, slept := newTestManager(t, d)

	if _, err := m.OpenLong(context.Background(), "venueA", "BTC/USDT", 0.01, 10); err != nil {
		t.Fatalf("OpenLong 失败: %v", err)
	}
	if len(*slept) != 0 {
		t.Fatalf("杠杆未变更不应等待结算: %v", *slept)
	}
}

// TestCloseLong_ZeroQuantityUsesFreshRead 全平数量来自失效后的新读取
func TestCloseLong_ZeroQuantityUsesFreshRead(t *testing.T) {
	d := &fakeDriver{name: "venueA", positions: []types.Position{
		{Symbol: "BTC/USDT", Side: types.PositionLong, Quantity: 0.3},
	}}
	m, _ := newTestManager(t, d)

	// 填充持仓缓存后在交易所侧改变持仓数量
	if _, err := m.GetPositions(context.Background(), "venueA"); err != nil {
		t.Fatalf("GetPositions 失败: %v", err)
	}
	d.positions[0].Quantity = 0.5

	res, err := m.CloseLong(context.Background(), "venueA", "BTC/USDT", 0)
	if err != nil {
		t.Fatalf("CloseLong 失败: %v", err)
	}
	if res.Quantity != 0.5 {
		t.Fatalf("全平应使用失效后重新读取的数量: got=%v want=0.5", res.Quantity)
	}
	req := d.created[0]
	if !req.ReduceOnly || req.Side != types.SideSell {
		t.Fatalf("平多应为只减仓卖单: %+v", req)
	}
}

// TestCloseLong_NoPosition 无持仓返回状态错误
func TestCloseLong_NoPosition(t *testing.T) {
	d := &fakeDriver{name: "venueA"}
	m, _ := newTestManager(t, d)

	_, err := m.CloseLong(context.Background(), "venueA", "BTC/USDT", 0)
	if err == nil {
		t.Fatal("无持仓全平应报错")
	}
	var se *types.StateError
	if !errors.As(err, &se) {
		t.Fatalf("应为 StateError: %T %v", err, err)
	}
}

// TestSetStopLoss_ReplaceViaCancel 重复设置止损后只保留一张活动止损单
func TestSetStopLoss_ReplaceViaCancel(t *testing.T) {
	d := &fakeDriver{name: "venueA"}
	m, _ := newTestManager(t, d)

	first, err := m.SetStopLoss(context.Background(), "venueA", "BTC/USDT", types.PositionLong, 0.01, 48000)
	if err != nil {
		t.Fatalf("SetStopLoss 失败: %v", err)
	}
	if _, err := m.SetStopLoss(context.Background(), "venueA", "BTC/USDT", types.PositionLong, 0.01, 47000); err != nil {
		t.Fatalf("第二次 SetStopLoss 失败: %v", err)
	}

	var stops int
	for _, o := range d.openOrders {
		if o.Type == types.OrderTypeStopLoss {
			stops++
		}
	}
	if stops != 1 {
		t.Fatalf("同品类应只保留一张活动条件单: got=%d", stops)
	}
	if len(d.canceled) != 1 || d.canceled[0] != first.OrderID {
		t.Fatalf("应先撤掉旧止损单: %v", d.canceled)
	}
}

// TestSetStopLossAndTakeProfit_IndependentCategories 止损与止盈互不替换
func TestSetStopLossAndTakeProfit_IndependentCategories(t *testing.T) {
	d := &fakeDriver{name: "venueA"}
	m, _ := newTestManager(t, d)

	if _, err := m.SetStopLoss(context.Background(), "venueA", "BTC/USDT", types.PositionLong, 0.01, 48000); err != nil {
		t.Fatalf("SetStopLoss 失败: %v", err)
	}
	if _, err := m.SetTakeProfit(context.Background(), "venueA", "BTC/USDT", types.PositionLong, 0.01, 55000); err != nil {
		t.Fatalf("SetTakeProfit 失败: %v", err)
	}
	if len(d.openOrders) != 2 {
		t.Fatalf("止损与止盈应各保留一张: %v", d.openOrders)
	}
	if len(d.canceled) != 0 {
		t.Fatalf("不同品类不应互相撤单: %v", d.canceled)
	}
}

// TestCloseAllPositions_PartialFailure 3 个持仓中第 2 个失败仍返回 3 项结果
func TestCloseAllPositions_PartialFailure(t *testing.T) {
	d := &fakeDriver{
		name: "venueA",
		positions: []types.Position{
			{Symbol: "BTC/USDT", Side: types.PositionLong, Quantity: 0.1},
			{Symbol: "ETH/USDT", Side: types.PositionShort, Quantity: 2},
			{Symbol: "SOL/USDT", Side: types.PositionLong, Quantity: 50},
		},
		failSymbols: map[string]bool{"ETH/USDT": true},
	}
	m, _ := newTestManager(t, d)

	results, err := m.CloseAllPositions(context.Background(), "venueA")
	if err != nil {
		t.Fatalf("CloseAllPositions 失败: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("单项失败不应中断整批: got=%d 项", len(results))
	}
	var ok, failed int
	for _, r := range results {
		if r.Success {
			ok++
		} else {
			failed++
			if r.Symbol != "ETH/USDT" || r.Error == "" {
				t.Fatalf("失败项应携带交易对与错误文本: %+v", r)
			}
		}
	}
	if ok != 2 || failed != 1 {
		t.Fatalf("结果分布错误: 成功=%d 失败=%d", ok, failed)
	}
}

// TestGetFundingRate_CacheAndFallback 资金费率缓存 1 小时, 失败时兜底不报错
func TestGetFundingRate_CacheAndFallback(t *testing.T) {
	d := &fakeDriver{name: "venueA", fundingRate: 0.0003}
	m, _ := newTestManager(t, d)

	for i := 0; i < 2; i++ {
		rate, err := m.GetFundingRate(context.Background(), "venueA", "BTC/USDT")
		if err != nil {
			t.Fatalf("GetFundingRate 失败: %v", err)
		}
		if rate != 0.0003 {
			t.Fatalf("费率错误: %v", rate)
		}
	}
	if d.fundingCalls != 1 {
		t.Fatalf("费率缓存未生效: 驱动调用次数 = %d", d.fundingCalls)
	}

	d2 := &fakeDriver{name: "venueB", fundingErr: types.NewProtocolError("venueB", "funding", 0, "boom", nil)}
	m2, _ := newTestManager(t, d2)
	rate, err := m2.GetFundingRate(context.Background(), "venueB", "BTC/USDT")
	if err != nil {
		t.Fatalf("费率获取失败应降级而不是报错: %v", err)
	}
	if rate != defaultFundingRate {
		t.Fatalf("应返回默认费率: %v", rate)
	}
}

// TestDemoMode_OpenCloseNeverNegative 模拟盘开平仓净值不为负且状态恒为 filled
func TestDemoMode_OpenCloseNeverNegative(t *testing.T) {
	m := NewManager()
	m.sleep = func(time.Duration) {}
	d := &fakeDriver{name: "binance", markPrice: 50000}
	m.public["binance"] = d

	if _, err := m.Connect(context.Background(), VenueDemo, types.Credentials{}); err != nil {
		t.Fatalf("模拟盘连接失败: %v", err)
	}

	open, err := m.OpenLong(context.Background(), VenueDemo, "BTC/USDT", 0.1, 10)
	if err != nil {
		t.Fatalf("模拟开仓失败: %v", err)
	}
	if open.Status != types.OrderStatusFilled {
		t.Fatalf("模拟盘成交状态应为 filled: %s", open.Status)
	}

	positions, err := m.GetPositions(context.Background(), VenueDemo)
	if err != nil || len(positions) != 1 {
		t.Fatalf("模拟盘应有一个持仓: %v %v", positions, err)
	}

	closed, err := m.CloseLong(context.Background(), VenueDemo, "BTC/USDT", 0)
	if err != nil {
		t.Fatalf("模拟平仓失败: %v", err)
	}
	if closed.Status != types.OrderStatusFilled {
		t.Fatalf("模拟盘成交状态应为 filled: %s", closed.Status)
	}

	bal, err := m.GetBalance(context.Background(), VenueDemo)
	if err != nil {
		t.Fatalf("GetBalance 失败: %v", err)
	}
	if bal.TotalEquity < 0 {
		t.Fatalf("模拟盘净值不应为负: %v", bal.TotalEquity)
	}
}

// TestScenario_ConnectOpenThenFreshPositions 连接 → 开仓 → 立即读到新持仓
func TestScenario_ConnectOpenThenFreshPositions(t *testing.T) {
	d := &fakeDriver{name: "venueA"}
	m, _ := newTestManager(t, d)

	// 先填充一份空持仓缓存
	if _, err := m.GetPositions(context.Background(), "venueA"); err != nil {
		t.Fatalf("GetPositions 失败: %v", err)
	}

	res, err := m.OpenLong(context.Background(), "venueA", "BTC/USDT", 0.01, 10)
	if err != nil || !res.Success || res.OrderID == "" {
		t.Fatalf("OpenLong 失败: %+v %v", res, err)
	}
	// 交易所侧持仓已更新
	d.positions = []types.Position{{Symbol: "BTC/USDT", Side: types.PositionLong, Quantity: 0.01}}

	positions, err := m.GetPositions(context.Background(), "venueA")
	if err != nil {
		t.Fatalf("GetPositions 失败: %v", err)
	}
	if len(positions) != 1 || positions[0].Side != types.PositionLong || positions[0].Quantity != 0.01 {
		t.Fatalf("开仓后应读到新持仓而不是缓存: %+v", positions)
	}
	if d.positionCalls != 2 {
		t.Fatalf("开仓应已失效持仓缓存: 驱动调用次数 = %d", d.positionCalls)
	}
}

// TestConnect_AsterRequiresWalletCreds 只带 API Key 的凭证连接签名请求类交易所被拒绝
func TestConnect_AsterRequiresWalletCreds(t *testing.T) {
	m := NewManager()
	_, err := m.Connect(context.Background(), "aster", types.Credentials{APIKey: "k", SecretKey: "s"})
	if err == nil {
		t.Fatal("缺少钱包凭证应在连接时被拒绝")
	}
	var ve *types.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("应为 ValidationError: %T %v", err, err)
	}
}

// TestSetStopLoss_CancelFailurePropagates 旧条件单撤不掉时不挂新单
func TestSetStopLoss_CancelFailurePropagates(t *testing.T) {
	d := &fakeDriver{name: "venueA"}
	m, _ := newTestManager(t, d)

	if _, err := m.SetStopLoss(context.Background(), "venueA", "BTC/USDT", types.PositionLong, 0.01, 48000); err != nil {
		t.Fatalf("SetStopLoss 失败: %v", err)
	}
	d.cancelErr = types.ErrNotSupported("venueA", "cancelOrder")

	_, err := m.SetStopLoss(context.Background(), "venueA", "BTC/USDT", types.PositionLong, 0.01, 47000)
	if err == nil {
		t.Fatal("撤单失败应中止替换")
	}
	var se *types.StateError
	if !errors.As(err, &se) {
		t.Fatalf("应为 StateError: %T %v", err, err)
	}
	if len(d.created) != 1 {
		t.Fatalf("撤单失败后不应挂出新单: %d", len(d.created))
	}
}

// hlSDK Hyperliquid 族 SDK 桩，统计下单与撤单次数
type hlSDK struct {
	placed   int
	canceled int
	nextID   int64
}

func (s *hlSDK) Meta(ctx context.Context) ([]hyperliquid.AssetMeta, error) {
	return []hyperliquid.AssetMeta{{Coin: "BTC", SzDecimals: 3, MaxLeverage: 50}}, nil
}

func (s *hlSDK) MarginSummary(ctx context.Context) (*hyperliquid.MarginSummary, error) {
	return &hyperliquid.MarginSummary{AccountValue: "10000", Withdrawable: "10000"}, nil
}

func (s *hlSDK) Positions(ctx context.Context) ([]hyperliquid.AssetPosition, error) {
	return nil, nil
}

func (s *hlSDK) PlaceOrder(ctx context.Context, req *hyperliquid.OrderRequest) (*hyperliquid.OrderResult, error) {
	s.placed++
	s.nextID++
	return &hyperliquid.OrderResult{OrderID: s.nextID, Status: "open"}, nil
}

func (s *hlSDK) CancelOrder(ctx context.Context, coin string, orderID int64) error {
	s.canceled++
	return nil
}

func (s *hlSDK) UpdateLeverage(ctx context.Context, coin string, leverage int) error { return nil }
func (s *hlSDK) MidPrice(ctx context.Context, coin string) (float64, error)         { return 50000, nil }
func (s *hlSDK) Candles(ctx context.Context, coin, interval string, limit int) ([]hyperliquid.Candle, error) {
	return nil, nil
}
func (s *hlSDK) FundingRate(ctx context.Context, coin string) (float64, error)  { return 0.0001, nil }
func (s *hlSDK) OpenInterest(ctx context.Context, coin string) (float64, error) { return 0, nil }

// TestSetStopLoss_ReplaceOnSDKVenue SDK 包装驱动上重复设置止损同样只保留一张
func TestSetStopLoss_ReplaceOnSDKVenue(t *testing.T) {
	sdk := &hlSDK{}
	var drv *hyperliquid.Driver
	m := NewManager()
	m.sleep = func(time.Duration) {}
	m.RegisterFactory("hyperliquid", func(venueID string, creds types.Credentials) (venues.Driver, error) {
		drv = hyperliquid.NewDriver(venueID, sdk)
		return drv, nil
	})
	if _, err := m.Connect(context.Background(), "hyperliquid", types.Credentials{PrivateKey: "k"}); err != nil {
		t.Fatalf("Connect 失败: %v", err)
	}

	if _, err := m.SetStopLoss(context.Background(), "hyperliquid", "BTC/USDT", types.PositionLong, 0.01, 48000); err != nil {
		t.Fatalf("SetStopLoss 失败: %v", err)
	}
	second, err := m.SetStopLoss(context.Background(), "hyperliquid", "BTC/USDT", types.PositionLong, 0.01, 47000)
	if err != nil {
		t.Fatalf("第二次 SetStopLoss 失败: %v", err)
	}

	if sdk.placed != 2 || sdk.canceled != 1 {
		t.Fatalf("应下单两次并撤掉旧单一次: placed=%d canceled=%d", sdk.placed, sdk.canceled)
	}
	open, err := drv.OpenOrders(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("OpenOrders 失败: %v", err)
	}
	if len(open) != 1 || open[0].ID != second.OrderID {
		t.Fatalf("应只剩最新一张活动止损单: %+v", open)
	}
}

// TestDemoMode_OfflineFallbackPrice 行情不可达时模拟盘成交使用固定参考价
func TestDemoMode_OfflineFallbackPrice(t *testing.T) {
	m := NewManager()
	m.sleep = func(time.Duration) {}
	m.RegisterFactory("binance", func(venueID string, creds types.Credentials) (venues.Driver, error) {
		return &fakeDriver{
			name:     "binance",
			priceErr: types.NewProtocolError("binance", "premiumIndex", 0, "network unreachable", nil),
		}, nil
	})

	if _, err := m.Connect(context.Background(), VenueDemo, types.Credentials{}); err != nil {
		t.Fatalf("模拟盘连接失败: %v", err)
	}

	open, err := m.OpenLong(context.Background(), VenueDemo, "BTC/USDT", 0.1, 10)
	if err != nil {
		t.Fatalf("模拟开仓失败: %v", err)
	}
	if open.AvgPrice != demoFallbackPrice {
		t.Fatalf("离线成交应使用固定参考价: %v", open.AvgPrice)
	}

	positions, err := m.GetPositions(context.Background(), VenueDemo)
	if err != nil || len(positions) != 1 {
		t.Fatalf("模拟盘应有一个持仓: %v %v", positions, err)
	}
	if positions[0].EntryPrice != demoFallbackPrice {
		t.Fatalf("开仓价不应为零: %v", positions[0].EntryPrice)
	}

	bal, err := m.GetBalance(context.Background(), VenueDemo)
	if err != nil {
		t.Fatalf("GetBalance 失败: %v", err)
	}
	wantAvailable := demoStartingEquity - 0.1*demoFallbackPrice/10
	if bal.AvailableBalance != wantAvailable {
		t.Fatalf("保证金冻结错误: got=%v want=%v", bal.AvailableBalance, wantAvailable)
	}

	closed, err := m.CloseLong(context.Background(), VenueDemo, "BTC/USDT", 0)
	if err != nil {
		t.Fatalf("模拟平仓失败: %v", err)
	}
	if closed.AvgPrice != demoFallbackPrice {
		t.Fatalf("平仓应复用同一参考价: %v", closed.AvgPrice)
	}
	bal, _ = m.GetBalance(context.Background(), VenueDemo)
	if bal.TotalEquity != demoStartingEquity || bal.AvailableBalance != demoStartingEquity {
		t.Fatalf("无行情往返后净值应不变: %+v", bal)
	}
}

// TestDisconnect_ClearsCache 断开连接后读取报未连接错误
func TestDisconnect_ClearsCache(t *testing.T) {
	d := &fakeDriver{name: "venueA"}
	m, _ := newTestManager(t, d)

	if _, err := m.GetBalance(context.Background(), "venueA"); err != nil {
		t.Fatalf("GetBalance 失败: %v", err)
	}
	if err := m.Disconnect("venueA"); err != nil {
		t.Fatalf("Disconnect 失败: %v", err)
	}
	if _, err := m.GetBalance(context.Background(), "venueA"); err == nil {
		t.Fatal("断开后读取应报未连接错误")
	}
}
