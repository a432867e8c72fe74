// Package notify はユーザー向けの一時通知（トースト）と画面遷移の出力先を提供する。
//
// 通知は送りっぱなし（fire-and-forget）で、呼び出し側は確認応答を受け取らない。
package notify

import "sync"

// Kind は通知の種別を表す。
type Kind string

const (
	// KindSuccess は成功通知。
	KindSuccess Kind = "success"
	// KindError はエラー通知。
	KindError Kind = "error"
)

// Notification はユーザーに表示する1件の通知。
type Notification struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Sink は通知の出力先。
type Sink interface {
	Success(message string)
	Error(message string)
}

// Navigator は画面遷移要求の出力先。
type Navigator interface {
	Push(route string)
}

// Recorder は通知と遷移要求をメモリ上に記録するSink/Navigator実装。
// HTTPハンドラーは1リクエストにつき1つのRecorderを使い、
// 処理後にフラッシュCookieまたはJSONへ変換する。
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
	routes        []string
}

// NewRecorder は空のRecorderを生成する。
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Success は成功通知を記録する。
func (r *Recorder) Success(message string) {
	r.add(KindSuccess, message)
}

// Error はエラー通知を記録する。
func (r *Recorder) Error(message string) {
	r.add(KindError, message)
}

// Push は遷移要求を記録する。
func (r *Recorder) Push(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

// Notifications は記録された通知のコピーを返す。
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// Routes は記録された遷移先のコピーを返す。
func (r *Recorder) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.routes))
	copy(out, r.routes)
	return out
}

// LastRoute は最後に要求された遷移先を返す。遷移要求がない場合は空文字とfalse。
func (r *Recorder) LastRoute() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.routes) == 0 {
		return "", false
	}
	return r.routes[len(r.routes)-1], true
}

func (r *Recorder) add(kind Kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, Notification{Kind: kind, Message: message})
}

// Tee は複数のSinkへ同じ通知を配信するSinkを返す。nilは無視する。
func Tee(sinks ...Sink) Sink {
	var filtered []Sink
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return teeSink(filtered)
}

type teeSink []Sink

func (t teeSink) Success(message string) {
	for _, s := range t {
		s.Success(message)
	}
}

func (t teeSink) Error(message string) {
	for _, s := range t {
		s.Error(message)
	}
}

// compile-time interface check
var (
	_ Sink      = (*Recorder)(nil)
	_ Navigator = (*Recorder)(nil)
)
