// Package stream は WebSocket 接続ごとのストリーミングセッションを管理します。
//
// 責務:
//   - アップグレード済み接続1本につき1つのセッションを実行する
//   - 一定間隔のタイマーとクライアントからのフレームを多重化する
//   - タイマー発火ごとに描画データを生成し、テキストフレームで送信する
//   - 稼働中のセッションを登録し、シャットダウン時にまとめて閉じる
//
// 仕様:
//   - 1回のループで処理するイベントは、タイマーか受信フレームのどちらか1つだけ
//   - タイマーは各ループの終わりから計り直す（独立して刻まない）
//   - Close フレーム受信、読み込みエラー、送信失敗でセッションは終了する
//   - シリアライズ失敗はプログラムの欠陥として扱い、即座にセッションを中断する
//   - セッション同士は状態を共有しない
package stream
