// マーケットプレイス管理APIのエントリポイント。
// 環境変数から設定を読み込み、SIGINT/SIGTERMを受けるまでHTTPサーバーを稼働させる。
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/marketplace/internal/marketplace"
	"github.com/nao1215/marketplace/pkg/logging"
)

func main() {
	cfg, err := marketplace.LoadConfig()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("サーバーが異常終了しました", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("サーバーを停止しました")
}

// run はサーバーを初期化し、シグナルを受けるまで稼働させる。
func run(cfg marketplace.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := marketplace.NewServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Error("データベースのクローズに失敗", slog.Any("error", err))
		}
	}()

	return server.Run(ctx)
}
