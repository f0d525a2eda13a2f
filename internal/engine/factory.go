package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lucabot/exchange/pkg/config"
	"github.com/lucabot/exchange/venues"
	"github.com/lucabot/exchange/venues/aster"
	"github.com/lucabot/exchange/venues/standard"
	"github.com/lucabot/exchange/venues/types"
)

// builtinFactories 内置驱动工厂。SDK 包装类交易所的工厂由
// RegisterFactory 外部注入（SDK 实例无法在此构建）。
func builtinFactories() map[string]DriverFactory {
	return map[string]DriverFactory{
		"binance": standardFactory,
		"aster":   asterFactory,
	}
}

// standardFactory 常规中心化交易所驱动。凭证为空时退化为仅公共行情。
func standardFactory(venueID string, creds types.Credentials) (venues.Driver, error) {
	return standard.NewDriver(venueID, creds.APIKey, creds.SecretKey, creds.Testnet), nil
}

// asterFactory 签名请求驱动。凭证完全为空时退化为仅公共行情；
// 提供了凭证但缺少钱包字段时直接拒绝（该类交易所不认 API Key），
// 避免连上之后第一笔签名请求才失败。签名私钥可由 hex 私钥或助记词推导。
func asterFactory(venueID string, creds types.Credentials) (venues.Driver, error) {
	if creds.WalletAddress == "" && creds.PrivateKey == "" && creds.Mnemonic == "" {
		if creds == (types.Credentials{}) {
			return aster.NewDriver(aster.DefaultHost, venueID, nil), nil
		}
		return nil, types.NewValidationError("walletAddress",
			"签名请求类交易所不使用 API Key, 必须提供钱包地址与签名私钥或助记词")
	}
	if creds.WalletAddress == "" {
		return nil, types.NewValidationError("walletAddress", "钱包类交易所必须提供主账户地址")
	}
	key, err := config.ResolveSigningKey(creds)
	if err != nil {
		return nil, err
	}
	signerAddr := creds.SignerAddress
	if signerAddr == "" {
		signerAddr = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}
	signer := aster.NewSigner(
		common.HexToAddress(creds.WalletAddress),
		common.HexToAddress(signerAddr),
		key,
	)
	return aster.NewDriver(aster.DefaultHost, venueID, signer), nil
}
