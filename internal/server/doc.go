// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、HTTPサーバーの起動、リクエストの振り分け、
// WebSocketへのアップグレード、静的ファイルの配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - リクエストごとの振り分け（静的ファイル / アップグレード / フォールバック）
//   - WebSocket接続の確立とセッションへの引き渡し
//   - 静的ファイル（HTML/JS）の配信
//
// 仕様:
//   - ルーティングは gin、WebSocket は gorilla/websocket を使用
//   - 一致しないパスには 404 ではなく 200 で "Nothing here" を返す
//   - グレースフルシャットダウンに対応（稼働中のセッションも閉じる）
//   - 複数クライアントの同時接続をサポート
package server
