package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"plotstream/internal/plot"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func testConfig(interval time.Duration) Config {
	return Config{
		Path:         "/ws",
		Interval:     interval,
		WriteTimeout: time.Second,
		Records:      plot.DemoRecords(),
	}
}

// newManagedServer はManager経由でセッションを開始するテストサーバーを作成する
func newManagedServer(t *testing.T, m *Manager) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("アップグレードに失敗しました: %v", err)
			return
		}
		m.Serve(conn)
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("接続に失敗しました: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readDisplay は1フレーム読み込み、描画データとして検証する
func readDisplay(t *testing.T, conn *websocket.Conn) plot.Display {
	t.Helper()

	d, err := nextDisplay(conn)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func nextDisplay(conn *websocket.Conn) (plot.Display, error) {
	var d plot.Display

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return d, fmt.Errorf("フレームの読み込みに失敗しました: %w", err)
	}
	if messageType != websocket.TextMessage {
		return d, fmt.Errorf("テキストフレームではありません: %d", messageType)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("JSONのデコードに失敗しました: %w (%s)", err, data)
	}
	return d, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("条件が満たされないままタイムアウトしました")
}

func TestSession_PeriodicFrames(t *testing.T) {
	interval := 100 * time.Millisecond
	m := NewManager(testConfig(interval))
	conn := dial(t, newManagedServer(t, m))

	want := plot.MakeDisplay(plot.DemoRecords())

	last := time.Now()
	for i := 0; i < 3; i++ {
		got := readDisplay(t, conn)
		elapsed := time.Since(last)
		last = time.Now()

		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("フレーム %d の内容が一致しません (-want +got):\n%s", i, diff)
		}
		if i > 0 && elapsed < interval*8/10 {
			t.Errorf("フレーム %d の間隔が短すぎます: %v", i, elapsed)
		}
	}
}

func TestSession_InboundResetsTimer(t *testing.T) {
	interval := 300 * time.Millisecond
	m := NewManager(testConfig(interval))
	conn := dial(t, newManagedServer(t, m))

	frames := make(chan struct{}, 16)
	pongs := make(chan struct{}, 16)
	conn.SetPongHandler(func(string) error {
		pongs <- struct{}{}
		return nil
	})

	go func() {
		for {
			messageType, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType == websocket.TextMessage {
				frames <- struct{}{}
			}
		}
	}()

	// 間隔より短い周期でフレームを送り続ける限り、データは送られてこない
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; i < 20; i++ {
		<-ticker.C
		var err error
		switch i % 3 {
		case 0:
			err = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		case 1:
			err = conn.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad})
		case 2:
			err = conn.WriteControl(websocket.PingMessage, []byte("p"), time.Now().Add(time.Second))
		}
		if err != nil {
			t.Fatalf("送信に失敗しました: %v", err)
		}
	}

	select {
	case <-frames:
		t.Fatal("受信が続いている間にデータフレームが送られてきました")
	default:
	}

	select {
	case <-pongs:
	default:
		t.Error("Pingに対するPongが返ってきませんでした")
	}

	// 送信をやめればタイマーが発火する
	select {
	case <-frames:
	case <-time.After(3 * interval):
		t.Fatal("送信停止後にデータフレームが届きませんでした")
	}
}

func TestSession_CloseStopsOutput(t *testing.T) {
	m := NewManager(testConfig(100 * time.Millisecond))
	conn := dial(t, newManagedServer(t, m))

	readDisplay(t, conn)
	waitFor(t, time.Second, func() bool { return m.Count() == 1 })

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		t.Fatalf("Closeの送信に失敗しました: %v", err)
	}

	// Close処理前に送られたフレームは最大1つまで許容する
	extra := 0
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			extra++
			continue
		}
		var closeErr *websocket.CloseError
		if !errors.As(err, &closeErr) {
			t.Fatalf("Close応答ではないエラー: %v", err)
		}
		if closeErr.Code != websocket.CloseNormalClosure {
			t.Errorf("Close応答のコードが不正: got %d", closeErr.Code)
		}
		break
	}
	if extra > 1 {
		t.Errorf("Close送信後に %d 個のフレームを受信しました", extra)
	}

	// 2回目のCloseはクライアント側で拒否されるだけで、サーバーには影響しない
	_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)

	waitFor(t, 2*time.Second, func() bool { return m.Count() == 0 })
}

func TestSession_CloseIdempotent(t *testing.T) {
	errs := make(chan [2]error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := NewSession(conn, testConfig(time.Second))
		errs <- [2]error{s.Close(), s.Close()}
	}))
	defer srv.Close()

	dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	select {
	case got := <-errs:
		if got[0] != nil {
			t.Errorf("1回目のCloseでエラー: %v", got[0])
		}
		if got[0] != got[1] {
			t.Errorf("2回目のCloseの結果が異なります: %v, %v", got[0], got[1])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("セッションが作成されませんでした")
	}
}

func TestSession_IndependentSessions(t *testing.T) {
	m := NewManager(testConfig(50 * time.Millisecond))
	url := newManagedServer(t, m)

	a := dial(t, url)
	b := dial(t, url)
	waitFor(t, time.Second, func() bool { return m.Count() == 2 })

	want := plot.MakeDisplay(plot.DemoRecords())

	var wg sync.WaitGroup
	for _, conn := range []*websocket.Conn{a, b} {
		wg.Add(1)
		go func(conn *websocket.Conn) {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				got, err := nextDisplay(conn)
				if err != nil {
					t.Error(err)
					return
				}
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("内容が一致しません (-want +got):\n%s", diff)
				}
			}
		}(conn)
	}
	wg.Wait()

	// 片方を閉じてももう片方は送信を続ける
	_ = a.Close()
	waitFor(t, 2*time.Second, func() bool { return m.Count() == 1 })

	for i := 0; i < 3; i++ {
		if diff := cmp.Diff(want, readDisplay(t, b)); diff != "" {
			t.Errorf("残ったセッションの内容が一致しません (-want +got):\n%s", diff)
		}
	}
}

func TestSession_SerializeFailureAborts(t *testing.T) {
	cfg := testConfig(20 * time.Millisecond)
	cfg.Records = []plot.Record{{X0: math.Inf(1), Y0: 1, X1: 2, Y1: 3}}

	result := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		result <- NewSession(conn, cfg).Run(context.Background())
	}))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	select {
	case err := <-result:
		if !errors.Is(err, ErrSerialize) {
			t.Fatalf("ErrSerialize が返されませんでした: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("セッションが中断されませんでした")
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("中断後にフレームを受信しました")
	}
}

func TestSession_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		result <- NewSession(conn, testConfig(time.Hour)).Run(ctx)
	}))
	defer srv.Close()

	dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("キャンセル時にエラーが返されました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("キャンセル後もセッションが終了しませんでした")
	}
}

func TestHandleInput(t *testing.T) {
	s := &Session{logger: zerolog.Nop()}

	testCases := []struct {
		name     string
		event    inbound
		finished bool
	}{
		{"テキスト", inbound{kind: eventText, data: []byte("hi")}, false},
		{"バイナリ", inbound{kind: eventBinary, data: []byte{1, 2}}, false},
		{"Ping", inbound{kind: eventPing}, false},
		{"Pong", inbound{kind: eventPong}, false},
		{"Close（コードあり）", inbound{kind: eventClose, code: 1000, text: "bye"}, true},
		{"Close（コードなし）", inbound{kind: eventClose, code: websocket.CloseNoStatusReceived}, true},
		{"読み込みエラー", inbound{kind: eventError, err: errors.New("boom")}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			finished, err := s.handleInput(tc.event)
			if finished != tc.finished {
				t.Errorf("終了判定が不正: got %v, want %v", finished, tc.finished)
			}
			if err != nil {
				t.Errorf("予期しないエラー: %v", err)
			}
		})
	}
}
