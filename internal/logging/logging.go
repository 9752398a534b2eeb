// Package logging はzerologのグローバルロガーを初期化する
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup はグローバルロガーを初期化する
//
// 出力先が端末なら人が読みやすい形式、そうでなければJSON行で出力する。
func Setup(level zerolog.Level, out *os.File) {
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(writerFor(out)).With().Timestamp().Logger()
}

func writerFor(out *os.File) io.Writer {
	if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}
	return out
}
