package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"plotstream/internal/plot"
)

// controlWriteWait は Pong 返信の書き込み期限
const controlWriteWait = 5 * time.Second

// Session はアップグレード済み接続1本分のストリーミングセッション
type Session struct {
	id     string
	conn   *websocket.Conn
	config Config
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewSession は新しいSessionを作成する
func NewSession(conn *websocket.Conn, config Config) *Session {
	id := uuid.New().String()
	return &Session{
		id:     id,
		conn:   conn,
		config: config,
		logger: log.With().
			Str("session", id).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// ID はセッションIDを返す
func (s *Session) ID() string {
	return s.id
}

// Run はセッションのイベントループを実行する
//
// クライアントが切断する、Close フレームを受信する、送信に失敗する、
// または ctx がキャンセルされるまでブロックする。終了時に接続を解放する。
func (s *Session) Run(ctx context.Context) error {
	// HTTPサーバーの読み込み期限がハイジャック後も残っているので解除する
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		s.Close()
		return fmt.Errorf("読み込み期限の解除に失敗: %w", err)
	}

	events := make(chan inbound)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readLoop(events, done)
	}()

	defer func() {
		close(done)
		s.Close()
		wg.Wait()
		s.logger.Info().Msg("セッションを終了しました")
	}()

	s.logger.Info().Msg("セッションを開始しました")

	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()

	for {
		// 前回のループが終わった時点から計り直す
		timer.Reset(s.config.Interval)

		var out *plot.Display

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("コンテキストがキャンセルされました")
			return nil

		case <-timer.C:
			out = s.handleTimeout()

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			finished, err := s.handleInput(ev)
			if finished {
				return err
			}
		}

		if out != nil {
			if err := s.send(*out); err != nil {
				return err
			}
		}
	}
}

// Close は接続を解放する。複数回呼んでも1度しか閉じない
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// handleTimeout はタイマー発火時の描画データを生成する
func (s *Session) handleTimeout() *plot.Display {
	d := plot.MakeDisplay(s.config.Records)
	return &d
}

// handleInput は受信イベントを処理し、セッションを終了すべきかを返す
func (s *Session) handleInput(ev inbound) (bool, error) {
	switch ev.kind {
	case eventText:
		s.logger.Info().Str("message", string(ev.data)).Msg("テキストメッセージを受信しました")
	case eventBinary:
		s.logger.Info().Hex("message", ev.data).Msg("バイナリメッセージを受信しました")
	case eventPing:
		// Pong の返信はリーダー側のハンドラで済んでいる
		s.logger.Info().Hex("message", ev.data).Msg("Pingを受信しました")
	case eventPong:
		s.logger.Info().Hex("message", ev.data).Msg("Pongを受信しました")
	case eventClose:
		if ev.code == websocket.CloseNoStatusReceived {
			s.logger.Info().Msg("Closeメッセージを受信しました")
		} else {
			s.logger.Info().Int("code", ev.code).Str("reason", ev.text).Msg("Closeメッセージを受信しました")
		}
		return true, nil
	case eventError:
		s.logger.Warn().Err(ev.err).Msg("受信に失敗しました")
		return true, nil
	}
	return false, nil
}

// send は描画データをJSONにして1つのテキストフレームで送信する
func (s *Session) send(d plot.Display) error {
	data, err := json.Marshal(d)
	if err != nil {
		s.logger.Error().Err(err).Msg("描画データのシリアライズに失敗しました")
		return fmt.Errorf("%w: %w", ErrSerialize, err)
	}

	if s.config.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			return fmt.Errorf("書き込み期限の設定に失敗: %w", err)
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn().Err(err).Msg("送信に失敗しました")
		return fmt.Errorf("送信に失敗: %w", err)
	}

	s.logger.Debug().Int("points", len(d.Points)).Msg("描画データを送信しました")
	return nil
}

// readLoop はフレームを読み続けて受信イベントとしてループへ渡す
//
// 最初のエラーで終了し、events をクローズする。
func (s *Session) readLoop(events chan<- inbound, done <-chan struct{}) {
	defer close(events)

	deliver := func(ev inbound) bool {
		select {
		case events <- ev:
			return true
		case <-done:
			return false
		}
	}

	s.conn.SetPingHandler(func(appData string) error {
		err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		deliver(inbound{kind: eventPing, data: []byte(appData)})
		return nil
	})
	s.conn.SetPongHandler(func(appData string) error {
		deliver(inbound{kind: eventPong, data: []byte(appData)})
		return nil
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				deliver(inbound{kind: eventClose, code: closeErr.Code, text: closeErr.Text})
			} else {
				deliver(inbound{kind: eventError, err: err})
			}
			return
		}

		kind := eventText
		if messageType == websocket.BinaryMessage {
			kind = eventBinary
		}
		if !deliver(inbound{kind: kind, data: data}) {
			return
		}
	}
}
