package widget

import (
	"sync"
	"time"
)

// Guarded は送信中フラグを持つコンポーネント。
type Guarded interface {
	IsSubmitting() bool
}

type registryEntry[T Guarded] struct {
	value    T
	lastUsed time.Time
}

// Registry はコンポーネントのインスタンスをキーごとに保持する。
//
// HTTPではクリックごとに別のリクエスト（別のgoroutine）になるため、
// 同じセッション・同じ対象へのリクエストを同じインスタンスに集約し、
// 送信中フラグによる二重送信の抑止を有効にする。
type Registry[T Guarded] struct {
	mu      sync.Mutex
	entries map[string]*registryEntry[T]
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry はアイドル時間がttlを超えたインスタンスを破棄するRegistryを生成する。
func NewRegistry[T Guarded](ttl time.Duration) *Registry[T] {
	return &Registry[T]{
		entries: make(map[string]*registryEntry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetOrCreate はキーに対応するインスタンスを返す。存在しない場合はcreateで生成して登録する。
func (r *Registry[T]) GetOrCreate(key string, create func() (T, error)) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		e.lastUsed = r.now()
		return e.value, nil
	}

	v, err := create()
	if err != nil {
		var zero T
		return zero, err
	}
	r.entries[key] = &registryEntry[T]{value: v, lastUsed: r.now()}
	return v, nil
}

// Get はキーに対応するインスタンスを返す。
func (r *Registry[T]) Get(key string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// DeleteIdle はキーに対応するインスタンスが送信中でなければ破棄し、破棄したかを返す。
func (r *Registry[T]) DeleteIdle(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || e.value.IsSubmitting() {
		return false
	}
	delete(r.entries, key)
	return true
}

// Len は保持しているインスタンス数を返す。
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep はアイドル時間がttlを超えたインスタンスを破棄し、破棄した件数を返す。
// 送信中のインスタンスは破棄しない。
func (r *Registry[T]) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for key, e := range r.entries {
		if e.lastUsed.Before(cutoff) && !e.value.IsSubmitting() {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}
