// Package assets は起動時に一度だけ構築される静的アセットのテーブルを提供する
//
// テーブルは URL パスからバイト列への読み取り専用の対応表で、
// 構築後は変更されない。全リクエストからロックなしで参照できる。
package assets

import (
	"fmt"
	"io/fs"
	"mime"
	"path"
	"sort"

	"github.com/gabriel-vasile/mimetype"
)

// Entry は1つの静的アセット
type Entry struct {
	Path        string // URLパス（例: /index.html）
	Content     []byte // 配信するバイト列
	ContentType string // Content-Type（参考情報）
}

// Table はパスからアセットを引く読み取り専用テーブル
type Table struct {
	entries map[string]Entry
}

// Build はファイルシステム配下の全ファイルからテーブルを構築する
func Build(fsys fs.FS) (*Table, error) {
	entries := make(map[string]Entry)

	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("%s の読み込みに失敗: %w", name, err)
		}

		p := "/" + name
		entries[p] = Entry{
			Path:        p,
			Content:     content,
			ContentType: contentType(name, content),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("静的ファイルの走査に失敗: %w", err)
	}

	return &Table{entries: entries}, nil
}

// NewTable はエントリ列からテーブルを作成する
func NewTable(entries ...Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.ContentType == "" {
			e.ContentType = contentType(e.Path, e.Content)
		}
		t.entries[e.Path] = e
	}
	return t
}

// Lookup はパスに完全一致するアセットを返す
func (t *Table) Lookup(p string) (Entry, bool) {
	e, ok := t.entries[p]
	return e, ok
}

// Paths は登録されているパスをソートして返す
func (t *Table) Paths() []string {
	paths := make([]string, 0, len(t.entries))
	for p := range t.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len は登録されているアセット数を返す
func (t *Table) Len() int {
	return len(t.entries)
}

// contentType は拡張子から、判定できなければ内容からContent-Typeを決める
func contentType(name string, content []byte) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return mimetype.Detect(content).String()
}
