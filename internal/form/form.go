package form

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hitoshi/devflow/internal/notify"
	"github.com/hitoshi/devflow/internal/routes"
)

// 通知メッセージ
const (
	MsgSignedIn      = "Signed in successfully"
	MsgSignedUp      = "Signed up successfully"
	MsgGenericFailed = "Something went wrong"
)

// Outcome は1回の送信試行の結果区分。
type Outcome int

const (
	// OutcomeIgnored は送信中のため無視されたことを示す。
	OutcomeIgnored Outcome = iota
	// OutcomeInvalid は検証エラーで送信関数を呼ばなかったことを示す。
	OutcomeInvalid
	// OutcomeSucceeded は送信に成功したことを示す。
	OutcomeSucceeded
	// OutcomeFailed は送信関数が失敗を返した、またはエラーになったことを示す。
	OutcomeFailed
)

// String はメトリクスのラベル等に使う文字列表現を返す。
func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result は送信試行の結果。
// ResponseはOutcomeSucceededまたはOutcomeFailedの場合のみ意味を持つ。
type Result struct {
	Outcome  Outcome
	Response SubmissionResult
}

// Form はDescriptorから生成されるフォームの1インスタンス。
// 入力値・検証エラー・パスワード表示トグル・送信中フラグを保持する。
// パスワード欄の値は送信中の検証と送信関数に渡すだけで、状態には残さない。
type Form struct {
	desc   Descriptor
	logger *slog.Logger

	mu           sync.Mutex
	values       Values
	errors       FieldErrors
	showPassword bool

	submitting atomic.Bool
}

// New はDescriptorを検証し、初期値で状態を初期化したFormを生成する。
func New(desc Descriptor) (*Form, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	values := make(Values, len(desc.Fields))
	for _, f := range desc.Fields {
		values[f.Name] = desc.DefaultValues[f.Name]
	}

	return &Form{
		desc:   desc,
		logger: slog.Default(),
		values: values,
		errors: FieldErrors{},
	}, nil
}

// Kind はフォーム種別を返す。
func (f *Form) Kind() Kind {
	return f.desc.Kind
}

// Fields はフィールド記述子のコピーを返す。
func (f *Form) Fields() []Field {
	out := make([]Field, len(f.desc.Fields))
	copy(out, f.desc.Fields)
	return out
}

// IsSubmitting は送信中かどうかを返す。
func (f *Form) IsSubmitting() bool {
	return f.submitting.Load()
}

// Values は現在の入力値のコピーを返す。
func (f *Form) Values() Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(Values, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Errors は現在の検証エラーのコピーを返す。
func (f *Form) Errors() FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(FieldErrors, len(f.errors))
	for k, v := range f.errors {
		out[k] = v
	}
	return out
}

// SetValues は検証を行わずに入力値を更新する。
// 記述子にないキーとパスワード欄は無視する。
func (f *Form) SetValues(input Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignLocked(input)
}

// ShowPassword はパスワード欄を平文表示しているかを返す。
func (f *Form) ShowPassword() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.showPassword
}

// SetShowPassword はパスワード表示トグルの状態を設定する。
func (f *Form) SetShowPassword(show bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.showPassword = show
}

// TogglePassword はパスワード表示トグルを反転し、反転後の状態を返す。
// 検証には影響しない。
func (f *Form) TogglePassword() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.showPassword = !f.showPassword
	return f.showPassword
}

// Submit はフォームを送信する。
//
// 送信中の場合は何もしない。検証に失敗した場合はフィールドごとのエラーを保持し、
// 送信関数は呼ばない。検証に成功した場合は送信関数をちょうど1回呼び出し、
// 成功時は成功通知とホームへの遷移、失敗時はエラー通知を出す。
// 送信関数がエラーを返した場合も失敗として汎用メッセージで通知する。
func (f *Form) Submit(ctx context.Context, input Values, sink notify.Sink, nav notify.Navigator) Result {
	if !f.submitting.CompareAndSwap(false, true) {
		return Result{Outcome: OutcomeIgnored}
	}
	defer f.submitting.Store(false)

	f.mu.Lock()
	f.assignLocked(input)
	values := make(Values, len(f.values))
	for k, v := range f.values {
		values[k] = v
	}
	for _, field := range f.desc.Fields {
		if field.Kind == FieldPassword {
			values[field.Name] = input[field.Name]
		}
	}
	f.errors = FieldErrors{}
	f.mu.Unlock()

	validated, fieldErrs := f.desc.Schema.Validate(values)
	if len(fieldErrs) > 0 {
		f.mu.Lock()
		f.errors = fieldErrs
		f.mu.Unlock()
		return Result{Outcome: OutcomeInvalid}
	}

	resp, err := f.desc.Submit(ctx, validated)
	if err != nil {
		f.logger.Error("form submit failed",
			slog.String("form_kind", string(f.desc.Kind)),
			slog.String("error", err.Error()),
		)
		sink.Error(MsgGenericFailed)
		return Result{Outcome: OutcomeFailed, Response: SubmissionResult{Success: false}}
	}

	if resp.Success {
		sink.Success(successMessage(f.desc.Kind))
		nav.Push(routes.Home)
		return Result{Outcome: OutcomeSucceeded, Response: resp}
	}

	msg := resp.ErrorMessage()
	if msg == "" {
		msg = MsgGenericFailed
	}
	sink.Error(msg)
	return Result{Outcome: OutcomeFailed, Response: resp}
}

func (f *Form) assignLocked(input Values) {
	for _, field := range f.desc.Fields {
		if field.Kind == FieldPassword {
			continue
		}
		if v, ok := input[field.Name]; ok {
			f.values[field.Name] = v
		}
	}
}

func successMessage(kind Kind) string {
	if kind == KindSignIn {
		return MsgSignedIn
	}
	return MsgSignedUp
}
