// Package registry はプロバイダ名からコンポーネントを生成する
// 汎用レジストリを提供する。プロバイダの追加は実装の列挙を
// 書き換えることなくRegisterの呼び出しで行える
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Factory は設定Cからコンポーネントを生成する関数
type Factory[C, T any] func(cfg C) (T, error)

// Registry はプロバイダ名とファクトリの対応を保持する
type Registry[C, T any] struct {
	kind string

	mu        sync.RWMutex
	factories map[string]Factory[C, T]
}

// New は新しいRegistryを作成する
// kindはエラーメッセージに使用されるコンポーネント種別名
func New[C, T any](kind string) *Registry[C, T] {
	return &Registry[C, T]{
		kind:      kind,
		factories: make(map[string]Factory[C, T]),
	}
}

// Register はプロバイダ名にファクトリを対応付ける
// 同名の再登録は上書きとなる
func (r *Registry[C, T]) Register(name string, factory Factory[C, T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create は指定プロバイダのコンポーネントを生成する
func (r *Registry[C, T]) Create(name string, cfg C) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s provider %q (registered: %v)", r.kind, name, r.Names())
	}
	return factory(cfg)
}

// Names は登録済みプロバイダ名を辞書順で返す
func (r *Registry[C, T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
