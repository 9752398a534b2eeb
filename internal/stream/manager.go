package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Manager は稼働中のセッションを管理する
//
// セッションはそれぞれ独立して動作し、Manager が触るのは
// 登録・解除とシャットダウン時のクローズだけ。
type Manager struct {
	config   Config
	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager は新しいManagerを作成する
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:   config,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Config はストリーミング設定を返す
func (m *Manager) Config() Config {
	return m.config
}

// Serve はアップグレード済み接続でセッションを開始し、完了を待たずに返る
func (m *Manager) Serve(conn *websocket.Conn) *Session {
	session := NewSession(conn, m.config)

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer m.remove(session.ID())

		if err := session.Run(m.ctx); err != nil {
			if errors.Is(err, ErrSerialize) {
				log.Error().Err(err).Str("session", session.ID()).Msg("セッションを中断しました")
				return
			}
			log.Warn().Err(err).Str("session", session.ID()).Msg("セッションがエラーで終了しました")
		}
	}()

	return session
}

// Count は稼働中のセッション数を返す
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs は稼働中のセッションIDをソートして返す
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown は全セッションを閉じ、ループの終了を待つ
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	m.mu.RLock()
	for _, session := range m.sessions {
		_ = session.Close()
	}
	m.mu.RUnlock()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		log.Info().Msg("全セッションを終了しました")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("セッションの終了待ちがタイムアウト: %w", ctx.Err())
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
