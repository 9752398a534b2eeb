package assets

import (
	"embed"
	"io/fs"

	"github.com/rs/zerolog/log"
)

//go:embed all:static
var embedFS embed.FS

// staticFS は埋め込まれた static ディレクトリを返す
func staticFS() fs.FS {
	sub, err := fs.Sub(embedFS, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("埋め込み静的ファイルシステムの作成に失敗")
	}
	return sub
}

// Embedded は埋め込み静的ファイルからアセットテーブルを構築する
func Embedded() *Table {
	table, err := Build(staticFS())
	if err != nil {
		log.Fatal().Err(err).Msg("アセットテーブルの構築に失敗")
	}
	return table
}
