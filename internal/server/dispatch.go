package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"plotstream/internal/assets"
	"plotstream/internal/stream"
)

const (
	indexPath    = "/index.html"
	fallbackBody = "Nothing here"
)

// Decision はリクエストの振り分け結果
type Decision int

const (
	DecisionFallback Decision = iota // "Nothing here" を返す
	DecisionAsset                    // 静的アセットを返す
	DecisionUpgrade                  // WebSocketにアップグレードする
)

// String はログ出力用の名前を返す
func (d Decision) String() string {
	switch d {
	case DecisionAsset:
		return "asset"
	case DecisionUpgrade:
		return "upgrade"
	default:
		return "fallback"
	}
}

// Dispatcher はリクエストを静的アセット、アップグレード、フォールバックに振り分ける
type Dispatcher struct {
	assets     *assets.Table
	sessions   *stream.Manager
	streamPath string
	upgrader   websocket.Upgrader
}

// NewDispatcher は新しいDispatcherを作成する
func NewDispatcher(table *assets.Table, sessions *stream.Manager) *Dispatcher {
	return &Dispatcher{
		assets:     table,
		sessions:   sessions,
		streamPath: sessions.Config().Path,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Decide はパスとアップグレード要求の有無から振り分け先を決める
func (d *Dispatcher) Decide(path string, upgrade bool) (Decision, assets.Entry) {
	if path == "/" {
		if entry, ok := d.assets.Lookup(indexPath); ok {
			return DecisionAsset, entry
		}
	}

	if entry, ok := d.assets.Lookup(path); ok {
		return DecisionAsset, entry
	}

	if path == d.streamPath && upgrade {
		return DecisionUpgrade, assets.Entry{}
	}

	return DecisionFallback, assets.Entry{}
}

// Handle は全リクエストを受け付けるginハンドラ
func (d *Dispatcher) Handle(c *gin.Context) {
	path := c.Request.URL.Path
	decision, entry := d.Decide(path, websocket.IsWebSocketUpgrade(c.Request))

	log.Info().
		Str("method", c.Request.Method).
		Str("path", path).
		Stringer("decision", decision).
		Msg("リクエストを振り分けました")

	switch decision {
	case DecisionAsset:
		c.Data(http.StatusOK, entry.ContentType, entry.Content)
	case DecisionUpgrade:
		d.upgrade(c)
	default:
		c.String(http.StatusOK, fallbackBody)
	}
}

// upgrade はハンドシェイクを行い、セッションを開始して即座に返る
func (d *Dispatcher) upgrade(c *gin.Context) {
	conn, err := d.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// エラーレスポンスは Upgrader が書き込み済み
		log.Warn().Err(err).Str("remote", c.Request.RemoteAddr).Msg("WebSocketへのアップグレードに失敗しました")
		return
	}

	session := d.sessions.Serve(conn)
	log.Info().
		Str("session", session.ID()).
		Int("sessions", d.sessions.Count()).
		Msg("WebSocket接続を確立しました")
}
