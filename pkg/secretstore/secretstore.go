// Package secretstore 基于 Badger 的落盘加密 KV，保存交易所连接凭证。
// 加密由 Badger 的 value log + key registry 提供，本包只做封装。
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/lucabot/exchange/venues/types"
)

// credPrefix 交易所凭证的键前缀
const credPrefix = "venue/"

// Store 凭证存储
type Store struct {
	db *badger.DB
}

// OpenOptions 打开参数
type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 字节；为空则不加密（不建议）
	ReadOnly      bool
}

// Open 打开存储
func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: 必须提供存储路径")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 要求开启索引缓存
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20) // 100MB
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close 关闭存储
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get 读取键值；不存在时 found=false
func (s *Store) Get(key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("secretstore: 未打开")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return "", false, errors.New("secretstore: 键不能为空")
	}
	var (
		out   string
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return out, found, nil
}

// Set 写入键值
func (s *Store) Set(key, val string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: 未打开")
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return errors.New("secretstore: 键不能为空")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(val))
	})
}

// SaveCredentials 保存某交易所的连接凭证
func (s *Store) SaveCredentials(venueID string, creds types.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("凭证序列化失败: %w", err)
	}
	return s.Set(credPrefix+venueID, string(data))
}

// LoadCredentials 读取某交易所的连接凭证；未保存时 found=false
func (s *Store) LoadCredentials(venueID string) (types.Credentials, bool, error) {
	raw, found, err := s.Get(credPrefix + venueID)
	if err != nil || !found {
		return types.Credentials{}, false, err
	}
	var creds types.Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return types.Credentials{}, false, fmt.Errorf("凭证解析失败: %w", err)
	}
	return creds, true, nil
}

// ParseKey 解析 32 字节加密密钥（hex 或 base64）。输入为空返回 nil。
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, fmt.Errorf("密钥长度必须为 32 字节, 实际 %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("密钥长度必须为 32 字节, 实际 %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("密钥必须是 32 字节的 hex 或 base64")
}
