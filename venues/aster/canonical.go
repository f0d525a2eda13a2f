// Package aster 实现 Aster 族交易所的签名请求驱动。
// 该类交易所不使用 HMAC 密钥，而是校验钱包私钥对请求载荷的签名：
// 规范化 → ABI 编码 → keccak-256 → EIP-191 签名 → 附加授权字段。
package aster

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize 将参数集序列化为确定性字符串。
// 所有标量统一转为字符串，对象键递归按字母序排列，
// 保证语义相同的参数集产生字节级相同的签名输入。
func Canonicalize(params map[string]any) (string, error) {
	normalized := normalizeValue(params)
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("序列化规范化参数失败: %w", err)
	}
	return string(b), nil
}

// normalizeValue 递归规范化：map 排序、标量转字符串
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		// encoding/json 对 map 按键排序输出，这里转成有序切片形式
		// 再交由 sortedMap 定制序列化，避免依赖 map 遍历顺序。
		m := make(sortedMap, 0, len(keys))
		for _, k := range keys {
			m = append(m, sortedEntry{Key: k, Value: normalizeValue(t[k])})
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return trimFloat(t)
	case float32:
		return trimFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// trimFloat 浮点数转字符串并去掉无意义的尾随零
func trimFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// sortedEntry 有序键值对
type sortedEntry struct {
	Key   string
	Value any
}

// sortedMap 按插入顺序序列化的对象，配合排序后的键实现确定性输出
type sortedMap []sortedEntry

func (m sortedMap) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
