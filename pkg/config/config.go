// Package config 加载引擎配置：.env 环境变量 + YAML 配置文件，
// 并负责把钱包凭证（hex 私钥或助记词）解析为签名私钥。
package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"gopkg.in/yaml.v3"

	"github.com/lucabot/exchange/venues/types"
)

// defaultDerivationPath 助记词推导签名私钥的默认路径
const defaultDerivationPath = "m/44'/60'/0'/0/0"

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr string `yaml:"addr"` // 监听地址，默认 ":8080"
}

// SecretStoreConfig 凭证存储配置
type SecretStoreConfig struct {
	Path string `yaml:"path"` // Badger 数据目录
	Key  string `yaml:"key"`  // 32 字节加密密钥（hex/base64），空则不加密
}

// Config 应用配置
type Config struct {
	LogLevel    string                       `yaml:"log_level"`  // 日志级别
	LogFile     string                       `yaml:"log_file"`   // 日志文件路径（可选）
	Server      ServerConfig                 `yaml:"server"`     // HTTP 服务
	SecretStore SecretStoreConfig            `yaml:"secrets"`    // 凭证存储
	Venues      map[string]types.Credentials `yaml:"venues"`     // 按交易所 ID 的连接凭证
	AutoConnect []string                     `yaml:"auto_connect"` // 启动时自动连接的交易所
}

// Load 加载配置。先读 .env（存在时），再解析 YAML 文件，
// 最后用环境变量覆盖顶层字段。
func Load(path string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel: "info",
		Server:   ServerConfig{Addr: ":8080"},
		Venues:   make(map[string]types.Credentials),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SECRETS_PATH"); v != "" {
		cfg.SecretStore.Path = v
	}
	if v := os.Getenv("SECRETS_KEY"); v != "" {
		cfg.SecretStore.Key = v
	}
	cfg.mergeEnvCredentials()

	return cfg, nil
}

// mergeEnvCredentials 从环境变量合并凭证，形如
// BINANCE_API_KEY / BINANCE_SECRET_KEY / ASTER_WALLET_ADDRESS 等。
// 环境变量优先级高于 YAML。
func (c *Config) mergeEnvCredentials() {
	for _, venue := range []string{"binance", "aster", "hyperliquid", "lighter"} {
		prefix := strings.ToUpper(venue) + "_"
		creds := c.Venues[venue]
		overlay(&creds.APIKey, prefix+"API_KEY")
		overlay(&creds.SecretKey, prefix+"SECRET_KEY")
		overlay(&creds.Passphrase, prefix+"PASSPHRASE")
		overlay(&creds.WalletAddress, prefix+"WALLET_ADDRESS")
		overlay(&creds.SignerAddress, prefix+"SIGNER_ADDRESS")
		overlay(&creds.PrivateKey, prefix+"PRIVATE_KEY")
		overlay(&creds.Mnemonic, prefix+"MNEMONIC")
		if os.Getenv(prefix+"TESTNET") == "true" {
			creds.Testnet = true
		}
		if creds != (types.Credentials{}) {
			c.Venues[venue] = creds
		}
	}
}

func overlay(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// ResolveSigningKey 把凭证解析为 ECDSA 签名私钥。
// 优先使用 hex 私钥，其次从助记词按默认路径推导。
func ResolveSigningKey(creds types.Credentials) (*ecdsa.PrivateKey, error) {
	if pk := strings.TrimSpace(creds.PrivateKey); pk != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(pk, "0x"))
		if err != nil {
			return nil, types.NewValidationError("privateKey", fmt.Sprintf("私钥格式非法: %v", err))
		}
		return key, nil
	}
	if m := strings.TrimSpace(creds.Mnemonic); m != "" {
		return deriveFromMnemonic(m, defaultDerivationPath)
	}
	return nil, types.NewValidationError("privateKey", "必须提供 hex 私钥或助记词")
}

// deriveFromMnemonic 按 BIP-44 路径从助记词推导私钥
func deriveFromMnemonic(mnemonic, derivationPath string) (*ecdsa.PrivateKey, error) {
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, types.NewValidationError("mnemonic", fmt.Sprintf("助记词非法: %v", err))
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, types.NewValidationError("mnemonic", fmt.Sprintf("推导路径非法: %v", err))
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, types.NewValidationError("mnemonic", fmt.Sprintf("推导失败: %v", err))
	}
	key, err := w.PrivateKey(acct)
	if err != nil {
		return nil, types.NewValidationError("mnemonic", fmt.Sprintf("私钥导出失败: %v", err))
	}
	return key, nil
}
