package stream

import (
	"errors"
	"time"

	"plotstream/internal/plot"
)

// ErrSerialize は送信データのシリアライズに失敗したことを表す
var ErrSerialize = errors.New("描画データのシリアライズに失敗")

// Config はストリーミング設定
type Config struct {
	Path         string        `yaml:"path"`          // アップグレードを受け付けるパス
	Interval     time.Duration `yaml:"interval"`      // データ送信間隔
	WriteTimeout time.Duration `yaml:"write_timeout"` // 1フレームの送信タイムアウト (0で無効)
	Records      []plot.Record `yaml:"records"`       // 描画データの元になるレコード
}

// DefaultConfig はデフォルトのストリーミング設定を返す
func DefaultConfig() Config {
	return Config{
		Path:         "/ws",
		Interval:     1 * time.Second,
		WriteTimeout: 10 * time.Second,
		Records:      plot.DemoRecords(),
	}
}

// eventKind は受信イベントの種類
type eventKind int

const (
	eventText eventKind = iota
	eventBinary
	eventPing
	eventPong
	eventClose
	eventError
)

// String はログ出力用の名前を返す
func (k eventKind) String() string {
	switch k {
	case eventText:
		return "text"
	case eventBinary:
		return "binary"
	case eventPing:
		return "ping"
	case eventPong:
		return "pong"
	case eventClose:
		return "close"
	case eventError:
		return "error"
	default:
		return "unknown"
	}
}

// inbound はリーダーゴルーチンからループへ渡す受信イベント
type inbound struct {
	kind eventKind
	data []byte

	// Close フレームのみ
	code int
	text string

	// 読み込みエラーのみ
	err error
}
