package model

// ActionError はアクション失敗時にユーザーへ表示するエラー情報。
type ActionError struct {
	Message string `json:"message,omitempty"`
}

// ActionResponse はサーバーアクションの結果を表す。
// フォーム送信・投票・質問保存で共通の契約として使う。
type ActionResponse struct {
	Success bool         `json:"success"`
	Status  int          `json:"status,omitempty"`
	Error   *ActionError `json:"error,omitempty"`
	Data    any          `json:"-"`
}

// ErrorMessage はエラーメッセージを返す。メッセージがない場合は空文字。
func (r ActionResponse) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// Succeeded は成功レスポンスを生成する。
func Succeeded(data any) ActionResponse {
	return ActionResponse{Success: true, Data: data}
}

// Failed は失敗レスポンスを生成する。
func Failed(status int, message string) ActionResponse {
	return ActionResponse{
		Success: false,
		Status:  status,
		Error:   &ActionError{Message: message},
	}
}
