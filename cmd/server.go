// Package main はplotstreamサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"plotstream/internal/assets"
	"plotstream/internal/config"
	"plotstream/internal/logging"
	"plotstream/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: ::1)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 3000)")
		configFile = flag.String("config", "", "YAML設定ファイルのパス (デフォルト: $CONFIG_FILE)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("plotstream")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *configFile == "" {
		*configFile = os.Getenv("CONFIG_FILE")
	}

	// 設定を読み込む
	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		logging.Setup(zerolog.InfoLevel, os.Stderr)
		log.Fatal().Err(err).Msg("設定の読み込みに失敗しました")
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		logging.Setup(zerolog.InfoLevel, os.Stderr)
		log.Fatal().Err(err).Msg("設定が不正です")
	}

	level, _ := cfg.LogLevel()
	logging.Setup(level, os.Stderr)

	table := assets.Embedded()
	srv := server.New(cfg, table)

	// サーバーを起動
	log.Info().
		Str("addr", cfg.ServerAddress()).
		Strs("assets", table.Paths()).
		Msg("plotstream サーバーを起動します")
	if err := srv.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("サーバーの起動に失敗しました")
	}
}
