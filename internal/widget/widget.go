// Package widget は投票ウィジェットと質問保存ウィジェットを提供する。
//
// 各ウィジェットは送信中フラグを1つ持ち、送信中のクリックは無視する。
// 結果は通知の出力先（notify.Sink）へ送られる。
package widget

import "github.com/hitoshi/devflow/internal/model"

// Outcome は1回のクリックの処理結果。
type Outcome int

const (
	// OutcomeIgnored は送信中のため無視されたことを示す。
	OutcomeIgnored Outcome = iota
	// OutcomeUnauthorized は未ログインのためアクションを呼ばなかったことを示す。
	OutcomeUnauthorized
	// OutcomeSucceeded はアクションが成功したことを示す。
	OutcomeSucceeded
	// OutcomeFailed はアクションが失敗を返した、またはエラーになったことを示す。
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result はクリック1回の結果。
// ResponseはアクションがActionResponseを返した場合のみ設定される。
type Result struct {
	Outcome  Outcome
	Response model.ActionResponse
}
