package form

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/devflow/internal/model"
)

// Kind はフォームの種別を表す。
type Kind string

const (
	// KindSignIn はサインインフォーム。
	KindSignIn Kind = "SIGN_IN"
	// KindSignUp はサインアップフォーム。
	KindSignUp Kind = "SIGN_UP"
)

// SubmissionResult は送信関数の結果。送信1回につき1つだけ生成される。
type SubmissionResult = model.ActionResponse

// SubmitFunc は検証済みの値を受け取り送信処理を行う関数。
// エラーを返した場合（reject相当）は汎用の失敗通知として扱われる。
type SubmitFunc func(ctx context.Context, values Values) (SubmissionResult, error)

// Descriptor はフォームを構成する設定一式。
// ページ描画ごとに生成し、遷移後は破棄する。
type Descriptor struct {
	Schema        Schema
	Fields        []Field
	DefaultValues Values
	Kind          Kind
	Submit        SubmitFunc
}

// Validate はDescriptorの不変条件を検証する。
//   - すべてのフィールドと初期値のキーに検証規則が存在する
//   - 同名のフィールドが存在しない
func (d Descriptor) Validate() error {
	if d.Schema == nil {
		return errors.New("form: schema is required")
	}
	if d.Submit == nil {
		return errors.New("form: submit function is required")
	}
	if d.Kind != KindSignIn && d.Kind != KindSignUp {
		return fmt.Errorf("form: unknown form kind %q", d.Kind)
	}
	if len(d.Fields) == 0 {
		return errors.New("form: at least one field is required")
	}

	seen := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			return errors.New("form: field name must not be empty")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("form: duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if !d.Schema.Has(f.Name) {
			return fmt.Errorf("form: field %q has no validation rule", f.Name)
		}
	}
	for name := range d.DefaultValues {
		if !d.Schema.Has(name) {
			return fmt.Errorf("form: default value %q has no validation rule", name)
		}
	}
	return nil
}
