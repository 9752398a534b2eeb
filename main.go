package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"plotstream/internal/assets"
	"plotstream/internal/config"
	"plotstream/internal/logging"
	"plotstream/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(zerolog.InfoLevel, os.Stderr)
		log.Fatal().Err(err).Msg("設定の読み込みに失敗しました")
	}

	level, _ := cfg.LogLevel()
	logging.Setup(level, os.Stderr)

	// サーバーを作成
	srv := server.New(cfg, assets.Embedded())

	// サーバーを起動
	if err := srv.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("サーバーの起動に失敗しました")
	}
}
