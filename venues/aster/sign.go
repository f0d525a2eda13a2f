package aster

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// signTupleArgs (bytes32, address, address, uint256) 定宽 ABI 编码参数
var signTupleArgs abi.Arguments

func init() {
	bytes32T, _ := abi.NewType("bytes32", "", nil)
	addressT, _ := abi.NewType("address", "", nil)
	uint256T, _ := abi.NewType("uint256", "", nil)
	signTupleArgs = abi.Arguments{
		{Type: bytes32T},
		{Type: addressT},
		{Type: addressT},
		{Type: uint256T},
	}
}

// Signer 请求签名器。user 为主账户地址，signer 为受托 API 钱包地址，
// 私钥属于 API 钱包。nonce 单调递增（微秒），用于防重放。
type Signer struct {
	user       common.Address
	signer     common.Address
	privateKey *ecdsa.PrivateKey
	lastNonce  atomic.Int64
}

// NewSigner 创建签名器
func NewSigner(user, signerAddr common.Address, privateKey *ecdsa.PrivateKey) *Signer {
	return &Signer{user: user, signer: signerAddr, privateKey: privateKey}
}

// NextNonce 返回单调递增的微秒 nonce。
// 同一微秒内的连续调用会被推进 1，保证严格递增。
func (s *Signer) NextNonce() int64 {
	for {
		now := time.Now().UnixMicro()
		last := s.lastNonce.Load()
		if now <= last {
			now = last + 1
		}
		if s.lastNonce.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Sign 对规范化后的参数串签名，返回 65 字节签名的 hex 编码。
// 管线：keccak(canonical) → ABI 编码 (digest, user, signer, nonce) →
// keccak → EIP-191 personal sign。
func (s *Signer) Sign(canonical string, nonce int64) (string, error) {
	if s.privateKey == nil {
		return "", fmt.Errorf("签名器未配置私钥")
	}

	var digest [32]byte
	copy(digest[:], crypto.Keccak256([]byte(canonical)))

	packed, err := signTupleArgs.Pack(digest, s.user, s.signer, big.NewInt(nonce))
	if err != nil {
		return "", fmt.Errorf("ABI 编码失败: %w", err)
	}

	hash := crypto.Keccak256(packed)

	// EIP-191: 对 "\x19Ethereum Signed Message:\n32" + hash 签名
	sig, err := crypto.Sign(accounts.TextHash(hash), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("签名失败: %w", err)
	}
	if len(sig) == 65 && sig[64] < 27 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}

// AttachAuth 在参数集上附加授权字段 {user, signer, signature, nonce}
func (s *Signer) AttachAuth(params map[string]any, signature string, nonce int64) {
	params["user"] = s.user.Hex()
	params["signer"] = s.signer.Hex()
	params["signature"] = signature
	params["nonce"] = nonce
}

// UserAddress 主账户地址
func (s *Signer) UserAddress() common.Address { return s.user }
