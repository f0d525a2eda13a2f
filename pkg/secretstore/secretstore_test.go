package secretstore

import (
	"testing"

	"github.com/lucabot/exchange/venues/types"
)

// TestSaveLoadCredentials 凭证往返读写
func TestSaveLoadCredentials(t *testing.T) {
	store, err := Open(OpenOptions{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Open 失败: %v", err)
	}
	defer store.Close()

	in := types.Credentials{
		APIKey:        "k",
		SecretKey:     "s",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		Testnet:       true,
	}
	if err := store.SaveCredentials("aster", in); err != nil {
		t.Fatalf("SaveCredentials 失败: %v", err)
	}

	out, found, err := store.LoadCredentials("aster")
	if err != nil || !found {
		t.Fatalf("LoadCredentials 失败: %v found=%v", err, found)
	}
	if out != in {
		t.Fatalf("凭证往返不一致: %+v", out)
	}

	if _, found, _ := store.LoadCredentials("binance"); found {
		t.Fatal("未保存的交易所不应返回凭证")
	}
}

// TestParseKey 32 字节 hex/base64 密钥解析
func TestParseKey(t *testing.T) {
	hexKey := "0x" + "11223344556677889900aabbccddeeff11223344556677889900aabbccddeeff"
	b, err := ParseKey(hexKey)
	if err != nil || len(b) != 32 {
		t.Fatalf("hex 密钥解析失败: %v len=%d", err, len(b))
	}

	if b, err := ParseKey(""); err != nil || b != nil {
		t.Fatalf("空输入应返回 nil: %v %v", b, err)
	}

	if _, err := ParseKey("abcd"); err == nil {
		t.Fatal("长度错误的密钥应报错")
	}
}
