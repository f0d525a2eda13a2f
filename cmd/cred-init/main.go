// cred-init 把 .env 中的交易所凭证导入加密的 Badger 凭证存储。
// 环境变量命名与 pkg/config 一致: BINANCE_API_KEY, ASTER_WALLET_ADDRESS 等。
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lucabot/exchange/pkg/secretstore"
	"github.com/lucabot/exchange/venues/types"
)

func main() {
	var (
		inPath    = flag.String("in", ".env", ".env 文件路径")
		dbPath    = flag.String("badger", getenv("SECRETS_PATH", "data/secrets.badger"), "badger 凭证库路径")
		secretKey = flag.String("secret-key", getenv("SECRETS_KEY", ""), "加密密钥 (32 字节 base64/hex)")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("必须提供加密密钥: 设置 SECRETS_KEY 或传 -secret-key"))
	}

	env, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(err)
	}

	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	written := 0
	for _, venueID := range []string{"binance", "aster", "hyperliquid", "lighter"} {
		creds := credsFromEnv(env, venueID)
		if creds == (types.Credentials{}) {
			continue
		}
		if err := store.SaveCredentials(venueID, creds); err != nil {
			fatal(err)
		}
		written++
		fmt.Fprintf(os.Stderr, "已保存 %s 凭证\n", venueID)
	}
	fmt.Fprintf(os.Stderr, "共导入 %d 个交易所到 %s\n", written, *dbPath)
}

// credsFromEnv 按前缀提取某交易所的凭证
func credsFromEnv(env map[string]string, venueID string) types.Credentials {
	prefix := strings.ToUpper(venueID) + "_"
	return types.Credentials{
		APIKey:        env[prefix+"API_KEY"],
		SecretKey:     env[prefix+"SECRET_KEY"],
		Passphrase:    env[prefix+"PASSPHRASE"],
		Testnet:       env[prefix+"TESTNET"] == "true",
		WalletAddress: env[prefix+"WALLET_ADDRESS"],
		SignerAddress: env[prefix+"SIGNER_ADDRESS"],
		PrivateKey:    env[prefix+"PRIVATE_KEY"],
		Mnemonic:      env[prefix+"MNEMONIC"],
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
