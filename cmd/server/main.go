package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucabot/exchange/internal/engine"
	"github.com/lucabot/exchange/internal/server"
	"github.com/lucabot/exchange/pkg/config"
	"github.com/lucabot/exchange/pkg/logger"
	"github.com/lucabot/exchange/pkg/secretstore"
	"github.com/lucabot/exchange/pkg/shutdown"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML 配置文件路径（可选）")
		addr       = flag.String("addr", "", "HTTP 监听地址, 覆盖配置文件")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fatal(err)
	}

	mgr := engine.NewManager()
	sd := shutdown.NewManager()

	// 凭证存储里的凭证优先于配置文件
	if cfg.SecretStore.Path != "" {
		key, err := secretstore.ParseKey(cfg.SecretStore.Key)
		if err != nil {
			fatal(err)
		}
		store, err := secretstore.Open(secretstore.OpenOptions{
			Path:          cfg.SecretStore.Path,
			EncryptionKey: key,
			ReadOnly:      true,
		})
		if err != nil {
			fatal(err)
		}
		for _, venueID := range cfg.AutoConnect {
			if creds, found, err := store.LoadCredentials(venueID); err == nil && found {
				cfg.Venues[venueID] = creds
			}
		}
		store.Close()
	}

	// 启动时自动连接配置的交易所
	ctx := context.Background()
	for _, venueID := range cfg.AutoConnect {
		res, err := mgr.Connect(ctx, venueID, cfg.Venues[venueID])
		if err != nil {
			logger.Warnf("自动连接 %s 失败: %v", venueID, err)
			continue
		}
		logger.Infof("自动连接 %s 成功, %d 个市场", venueID, res.MarketsLoaded)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(mgr).Router(),
	}
	sd.OnShutdown(func(ctx context.Context) {
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Errorf("HTTP 关闭失败: %v", err)
		}
	})

	go func() {
		logger.Infof("HTTP 服务监听 %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sd.Shutdown(shutdownCtx)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
