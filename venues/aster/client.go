package aster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"

	"github.com/lucabot/exchange/venues/types"
)

const (
	// recvWindow 固定接收窗口（毫秒）
	recvWindow = 5000
)

// apiError 交易所错误响应体
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Client 签名请求 HTTP 客户端
type Client struct {
	http   *resty.Client
	signer *Signer
	name   string
}

// NewClient 创建客户端。resty 会自动读取环境变量中的代理配置。
func NewClient(host, name string, signer *Signer) *Client {
	if strings.HasSuffix(host, "/") {
		host = host[:len(host)-1]
	}
	rc := resty.New().
		SetBaseURL(host).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流时遵循 Retry-After 头
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})
	return &Client{http: rc, signer: signer, name: name}
}

// Public 发起无签名的公共请求
func (c *Client) Public(ctx context.Context, method, endpoint string, params map[string]any, out any) error {
	r := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		r.SetQueryParams(stringify(params))
	}
	resp, err := c.execute(r, method, endpoint)
	if err != nil {
		return err
	}
	return c.decode(endpoint, resp, out)
}

// Signed 发起签名请求。
// 状态机：组装参数 → 附加 recvWindow/时间戳 → 规范化 → 签名 → 附加授权字段。
// GET 序列化为查询串，POST/DELETE 序列化为表单体。
func (c *Client) Signed(ctx context.Context, method, endpoint string, params map[string]any, out any) error {
	if c.signer == nil {
		return types.NewValidationError("credentials",
			"驱动以仅公共行情模式创建, 签名请求需要钱包地址与签名私钥")
	}
	if params == nil {
		params = map[string]any{}
	}
	params["recvWindow"] = recvWindow
	params["timestamp"] = time.Now().UnixMilli()

	canonical, err := Canonicalize(params)
	if err != nil {
		return types.NewProtocolError(c.name, endpoint, 0, err.Error(), err)
	}
	nonce := c.signer.NextNonce()
	signature, err := c.signer.Sign(canonical, nonce)
	if err != nil {
		return types.NewProtocolError(c.name, endpoint, 0, err.Error(), err)
	}
	c.signer.AttachAuth(params, signature, nonce)

	r := c.http.R().SetContext(ctx)
	if strings.EqualFold(method, http.MethodGet) {
		r.SetQueryParams(stringify(params))
	} else {
		r.SetHeader("Content-Type", "application/x-www-form-urlencoded")
		r.SetFormData(stringify(params))
	}

	resp, err := c.execute(r, method, endpoint)
	if err != nil {
		return err
	}
	return c.decode(endpoint, resp, out)
}

// execute 执行请求并把传输层错误包装为协议错误
func (c *Client) execute(r *resty.Request, method, endpoint string) (*resty.Response, error) {
	var (
		resp *resty.Response
		err  error
	)
	switch strings.ToUpper(method) {
	case http.MethodGet:
		resp, err = r.Get(endpoint)
	case http.MethodPost:
		resp, err = r.Post(endpoint)
	case http.MethodDelete:
		resp, err = r.Delete(endpoint)
	case http.MethodPut:
		resp, err = r.Put(endpoint)
	default:
		return nil, fmt.Errorf("不支持的请求方法: %s", method)
	}
	if err != nil {
		return nil, types.NewProtocolError(c.name, endpoint, 0, err.Error(),
			pkgerrors.Wrap(err, "http request"))
	}
	return resp, nil
}

// decode 解析响应；非 2xx 时提取交易所结构化错误码
func (c *Client) decode(endpoint string, resp *resty.Response, out any) error {
	body := resp.Body()
	if !resp.IsSuccess() {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Code != 0 {
			return types.NewProtocolError(c.name, endpoint, ae.Code, ae.Msg, nil)
		}
		return types.NewProtocolError(c.name, endpoint, 0,
			fmt.Sprintf("http %d: %s", resp.StatusCode(), string(body)), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return types.NewProtocolError(c.name, endpoint, 0,
			fmt.Sprintf("解析响应失败: %v", err), err)
	}
	return nil
}

// stringify 参数统一转字符串（查询串/表单均为字符串键值）
func stringify(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = trimFloat(t)
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
