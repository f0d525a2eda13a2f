package aster

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lucabot/exchange/venues/types"
)

func newTestDriver(t *testing.T, handler http.Handler) (*Driver, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("生成测试私钥失败: %v", err)
	}
	signer := NewSigner(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		crypto.PubkeyToAddress(key.PublicKey),
		key,
	)
	d := NewDriver(srv.URL, "aster", signer)
	d.markets = map[string]types.Market{
		"BTC/USDT": {ID: "BTCUSDT", Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", PricePrecision: 1, AmountPrecision: 3},
	}
	return d, srv
}

// TestFetchPositions_DropsZeroAmount 零数量记录不得出现在结果中，方向由符号推导
func TestFetchPositions_DropsZeroAmount(t *testing.T) {
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := []rawPosition{
			{Symbol: "BTCUSDT", PositionAmt: "0.010", EntryPrice: "50000", MarkPrice: "51000", UnRealizedProfit: "10", Leverage: "10"},
			{Symbol: "ETHUSDT", PositionAmt: "0.000", EntryPrice: "0", MarkPrice: "3000", Leverage: "10"},
			{Symbol: "SOLUSDT", PositionAmt: "-2.5", EntryPrice: "150", MarkPrice: "140", UnRealizedProfit: "25", Leverage: "5"},
		}
		json.NewEncoder(w).Encode(rows)
	}))

	positions, err := d.FetchPositions(context.Background())
	if err != nil {
		t.Fatalf("FetchPositions 失败: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("零数量记录应被过滤: got=%d want=2", len(positions))
	}
	if positions[0].Side != types.PositionLong || positions[0].Quantity != 0.01 {
		t.Fatalf("多头持仓解析错误: %+v", positions[0])
	}
	if positions[1].Side != types.PositionShort || positions[1].Quantity != 2.5 {
		t.Fatalf("空头方向应由负数量推导: %+v", positions[1])
	}
	for _, p := range positions {
		if p.Quantity <= 0 {
			t.Fatalf("标准化持仓数量必须为正: %+v", p)
		}
	}
}

// TestFetchBalance_SelectsQuoteAsset 余额数组中取计价资产一条
func TestFetchBalance_SelectsQuoteAsset(t *testing.T) {
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := []assetBalance{
			{Asset: "BTC", Balance: "0.5", CrossUnPnl: "0", AvailableBalance: "0.5"},
			{Asset: "USDT", Balance: "1000", CrossUnPnl: "50", AvailableBalance: "900"},
		}
		json.NewEncoder(w).Encode(rows)
	}))

	bal, err := d.FetchBalance(context.Background())
	if err != nil {
		t.Fatalf("FetchBalance 失败: %v", err)
	}
	if bal.TotalEquity != 1050 {
		t.Fatalf("总净值应为余额+未实现盈亏: got=%v", bal.TotalEquity)
	}
	if bal.AvailableBalance != 900 {
		t.Fatalf("可用余额错误: %v", bal.AvailableBalance)
	}
	if bal.MarginUsed != 150 {
		t.Fatalf("占用保证金错误: %v", bal.MarginUsed)
	}
}

// TestSigned_GetAttachesAuthQuery GET 签名请求把授权字段放进查询串
func TestSigned_GetAttachesAuthQuery(t *testing.T) {
	var gotQuery map[string][]string
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`[]`))
	}))

	if _, err := d.FetchPositions(context.Background()); err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	for _, field := range []string{"user", "signer", "signature", "nonce", "timestamp", "recvWindow"} {
		if len(gotQuery[field]) == 0 {
			t.Fatalf("查询串缺少授权字段 %s: %v", field, gotQuery)
		}
	}
}

// TestSigned_PostUsesFormBody POST 签名请求使用表单编码体
func TestSigned_PostUsesFormBody(t *testing.T) {
	var contentType string
	var form url.Values
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		r.ParseForm()
		form = r.PostForm
		json.NewEncoder(w).Encode(orderResponse{OrderID: 99, Status: "FILLED", AvgPrice: "50000", ExecutedQty: "0.01"})
	}))

	order, err := d.CreateOrder(context.Background(), &types.OrderRequest{
		Symbol:       "BTC/USDT",
		Type:         types.OrderTypeMarket,
		Side:         types.SideBuy,
		PositionSide: types.PositionLong,
		Quantity:     0.01,
		ClientID:     "cid-1",
	})
	if err != nil {
		t.Fatalf("CreateOrder 失败: %v", err)
	}
	if contentType != "application/x-www-form-urlencoded" {
		t.Fatalf("POST 应使用表单编码: %s", contentType)
	}
	if len(form["signature"]) == 0 || len(form["user"]) == 0 {
		t.Fatalf("表单体缺少授权字段: %v", form)
	}
	if form.Get("newClientOrderId") != "cid-1" {
		t.Fatalf("客户端订单 ID 未传递: %v", form)
	}
	if order.ID != "99" || order.Status != types.OrderStatusFilled {
		t.Fatalf("下单结果解析错误: %+v", order)
	}
}

// TestSigned_NilSignerRejected 仅公共行情模式的驱动执行签名请求时报参数错误而不是崩溃
func TestSigned_NilSignerRejected(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	d := NewDriver(srv.URL, "aster", nil)
	err := d.SetPositionMode(context.Background(), true)
	if err == nil {
		t.Fatal("无签名器执行签名请求应报错")
	}
	var ve *types.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("应为 ValidationError: %T %v", err, err)
	}
	if hit {
		t.Fatal("请求不应到达交易所")
	}
}

// TestDecode_StructuredErrorCode 非 2xx 响应提取结构化错误码
func TestDecode_StructuredErrorCode(t *testing.T) {
	d, _ := newTestDriver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-4046,"msg":"No need to change margin type."}`))
	}))

	err := d.SetLeverage(context.Background(), "BTC/USDT", 10)
	if err == nil {
		t.Fatal("应返回协议错误")
	}
	if !types.IsAlreadySet(err) {
		t.Fatalf("-4046 应被识别为「已是目标状态」: %v", err)
	}
}
