package types

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError 请求参数缺失或非法，在任何网络调用之前被拒绝
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数校验失败: %s (%s)", e.Field, e.Reason)
}

// NewValidationError 创建参数校验错误
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// VenueProtocolError HTTP/SDK 调用失败或签名失败
type VenueProtocolError struct {
	Venue   string
	Op      string
	Code    int    // 交易所结构化错误码（无则为 0）
	Message string
	Err     error
}

func (e *VenueProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %s 失败 [code=%d]: %s", e.Venue, e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s 失败: %s", e.Venue, e.Op, e.Message)
}

func (e *VenueProtocolError) Unwrap() error { return e.Err }

// NewProtocolError 创建交易所协议错误
func NewProtocolError(venue, op string, code int, message string, err error) error {
	return &VenueProtocolError{Venue: venue, Op: op, Code: code, Message: message, Err: err}
}

// StateError 引擎状态不满足操作前提（未连接、无持仓、能力未实现）
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return e.Reason }

// ErrNotConnected 交易所未连接
func ErrNotConnected(venue string) error {
	return &StateError{Reason: fmt.Sprintf("交易所未连接: %s", venue)}
}

// ErrNoPosition 没有可平仓的持仓
func ErrNoPosition(venue, symbol string, side PositionSide) error {
	return &StateError{Reason: fmt.Sprintf("无可平仓持仓: %s %s %s", venue, symbol, side)}
}

// ErrNotSupported 交易所不支持该操作
func ErrNotSupported(venue, op string) error {
	return &StateError{Reason: fmt.Sprintf("%s 不支持操作: %s", venue, op)}
}

// alreadySetCodes 各交易所表示「无需变更」的结构化错误码。
// Binance 族: -4046 杠杆无需变更, -4059 持仓模式无需变更, -4028 保证金类型无需变更。
var alreadySetCodes = map[int]bool{
	-4046: true,
	-4059: true,
	-4028: true,
}

// alreadySetSubstrings 无结构化错误码时的文本兜底匹配。
// 各交易所版本间文案不稳定，只作为最后手段。
var alreadySetSubstrings = []string{
	"no need to change",
	"already",
	"not modified",
}

// IsAlreadySet 判断错误是否属于幂等的「已是目标状态」响应。
// 杠杆/保证金/持仓模式设置遇到该类错误时按成功处理。
// 优先识别结构化错误码，文本匹配仅作兜底。
func IsAlreadySet(err error) bool {
	if err == nil {
		return false
	}
	var pe *VenueProtocolError
	if errors.As(err, &pe) && pe.Code != 0 {
		return alreadySetCodes[pe.Code]
	}
	msg := strings.ToLower(err.Error())
	for _, s := range alreadySetSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
