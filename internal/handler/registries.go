package handler

import (
	"time"

	"github.com/hitoshi/devflow/internal/form"
	"github.com/hitoshi/devflow/internal/widget"
)

// Registries はリクエストをまたいで共有するコンポーネントのインスタンス置き場。
// 同じクライアント・同じ対象へのリクエストは同じインスタンスに集約される。
type Registries struct {
	Forms *widget.Registry[*form.Form]
	Votes *widget.Registry[*widget.Votes]
	Saves *widget.Registry[*widget.SaveQuestion]
}

// NewRegistries はアイドル時間idleTTLで掃除されるRegistriesを生成する。
func NewRegistries(idleTTL time.Duration) *Registries {
	return &Registries{
		Forms: widget.NewRegistry[*form.Form](idleTTL),
		Votes: widget.NewRegistry[*widget.Votes](idleTTL),
		Saves: widget.NewRegistry[*widget.SaveQuestion](idleTTL),
	}
}

// lookup はkeyに対応するインスタンスを返す。keyが空の場合は登録せずに生成する。
func lookup[T widget.Guarded](reg *widget.Registry[T], key string, create func() (T, error)) (T, error) {
	if key == "" {
		return create()
	}
	return reg.GetOrCreate(key, create)
}

// peek は登録済みのインスタンスがあればそれを、なければ登録せずに生成したものを返す。
// 表示のみのGETリクエストでインスタンスを増やさないために使う。
func peek[T widget.Guarded](reg *widget.Registry[T], key string, create func() T) T {
	if key != "" {
		if v, ok := reg.Get(key); ok {
			return v
		}
	}
	return create()
}
