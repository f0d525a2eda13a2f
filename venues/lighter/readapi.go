package lighter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"

	"github.com/lucabot/exchange/venues/types"
)

// usdcDecimals 保证金资产（USDC）的原子单位小数位数
const usdcDecimals = 6

// ReadClient 鉴权读取端点客户端。交易走 SDK，读取走这里，
// 以钱包地址为查询键。
type ReadClient struct {
	http    *resty.Client
	name    string
	address string // L1 钱包地址
}

// NewReadClient 创建读取客户端
func NewReadClient(host, name, address, authToken string) *ReadClient {
	if strings.HasSuffix(host, "/") {
		host = host[:len(host)-1]
	}
	rc := resty.New().
		SetBaseURL(host).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second)
	if authToken != "" {
		rc.SetHeader("Authorization", authToken)
	}
	return &ReadClient{http: rc, name: name, address: address}
}

// get 执行 GET 并解析
func (c *ReadClient) get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(endpoint)
	if err != nil {
		return types.NewProtocolError(c.name, endpoint, 0, err.Error(),
			pkgerrors.Wrap(err, "read api"))
	}
	if !resp.IsSuccess() {
		return types.NewProtocolError(c.name, endpoint, resp.StatusCode(),
			string(resp.Body()), nil)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return types.NewProtocolError(c.name, endpoint, 0,
			fmt.Sprintf("解析响应失败: %v", err), err)
	}
	return nil
}

// orderBookMeta 市场元数据记录
type orderBookMeta struct {
	Symbol        string `json:"symbol"`
	MarketID      int    `json:"market_id"`
	SizeDecimals  int    `json:"supported_size_decimals"`
	PriceDecimals int    `json:"supported_price_decimals"`
}

// OrderBooks 获取全部市场元数据
func (c *ReadClient) OrderBooks(ctx context.Context) ([]orderBookMeta, error) {
	var resp struct {
		OrderBooks []orderBookMeta `json:"order_books"`
	}
	if err := c.get(ctx, "/api/v1/orderBooks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.OrderBooks, nil
}

// rawAccount 账户响应。所有金额字段均为 USDC 原子单位整数，
// 持仓数量为该市场 size_decimals 下的原子单位整数。
type rawAccount struct {
	Collateral      int64 `json:"collateral"`
	AvailableUSDC   int64 `json:"available_balance"`
	TotalAssetValue int64 `json:"total_asset_value"`
	Positions       []struct {
		MarketID         int   `json:"market_id"`
		Sign             int   `json:"sign"` // 1 多 / -1 空
		Position         int64 `json:"position"`
		AvgEntryPrice    int64 `json:"avg_entry_price"`
		UnrealizedPnl    int64 `json:"unrealized_pnl"`
		LiquidationPrice int64 `json:"liquidation_price"`
		AllocatedMargin  int64 `json:"allocated_margin"`
		Leverage         int   `json:"leverage"`
	} `json:"positions"`
}

// Account 按钱包地址查询账户
func (c *ReadClient) Account(ctx context.Context) (*rawAccount, error) {
	var resp struct {
		Accounts []rawAccount `json:"accounts"`
	}
	params := map[string]string{"by": "l1_address", "value": c.address}
	if err := c.get(ctx, "/api/v1/account", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Accounts) == 0 {
		return nil, types.NewProtocolError(c.name, "account", 0,
			fmt.Sprintf("地址 %s 无账户记录", c.address), nil)
	}
	return &resp.Accounts[0], nil
}

// marketStats 市场统计
type marketStats struct {
	MarkPrice        int64 `json:"mark_price"`
	FundingRate      int64 `json:"current_funding_rate"` // 1e-6 精度
	OpenInterestBase int64 `json:"open_interest"`
}

// MarketStats 查询市场统计
func (c *ReadClient) MarketStats(ctx context.Context, marketID int) (*marketStats, error) {
	var resp struct {
		Stats marketStats `json:"market_stats"`
	}
	params := map[string]string{"market_id": fmt.Sprint(marketID)}
	if err := c.get(ctx, "/api/v1/marketStats", params, &resp); err != nil {
		return nil, err
	}
	return &resp.Stats, nil
}

// candle K 线记录
type candle struct {
	OpenTime int64  `json:"timestamp"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

// Candles 查询 K 线
func (c *ReadClient) Candles(ctx context.Context, marketID int, resolution string, limit int) ([]candle, error) {
	var resp struct {
		Candles []candle `json:"candlesticks"`
	}
	params := map[string]string{
		"market_id":  fmt.Sprint(marketID),
		"resolution": resolution,
		"count_back": fmt.Sprint(limit),
	}
	if err := c.get(ctx, "/api/v1/candlesticks", params, &resp); err != nil {
		return nil, err
	}
	return resp.Candles, nil
}
