package form

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/html"

	"github.com/hitoshi/devflow/internal/model"
	"github.com/hitoshi/devflow/internal/notify"
)

// --- ヘルパー ---

// submitSpy は送信関数の呼び出しを記録するスパイ。
type submitSpy struct {
	mu     sync.Mutex
	calls  []Values
	result SubmissionResult
	err    error
}

func (s *submitSpy) submit(ctx context.Context, values Values) (SubmissionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, values)
	return s.result, s.err
}

func (s *submitSpy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newSignInForm(t *testing.T, spy *submitSpy) *Form {
	t.Helper()
	f, err := New(Descriptor{
		Schema:        SignInSchema(),
		Fields:        SignInFields,
		DefaultValues: DefaultsFor(SignInFields),
		Kind:          KindSignIn,
		Submit:        spy.submit,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return f
}

func newSignUpForm(t *testing.T, spy *submitSpy) *Form {
	t.Helper()
	f, err := New(Descriptor{
		Schema:        SignUpSchema(),
		Fields:        SignUpFields,
		DefaultValues: DefaultsFor(SignUpFields),
		Kind:          KindSignUp,
		Submit:        spy.submit,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return f
}

// renderedInputs はレンダリング結果からテキスト系input要素のname/type/required属性を順に取り出す。
func renderedInputs(t *testing.T, f *Form) []map[string]string {
	t.Helper()
	var buf bytes.Buffer
	if err := f.Render(&buf, RenderOptions{CSRFToken: "tok"}); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	doc, err := html.Parse(&buf)
	if err != nil {
		t.Fatalf("failed to parse rendered HTML: %v", err)
	}

	var inputs []map[string]string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			attrs := map[string]string{}
			for _, a := range n.Attr {
				attrs[a.Key] = a.Val
			}
			if attrs["type"] != "hidden" {
				inputs = append(inputs, attrs)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return inputs
}

var validSignIn = Values{"email": "user@example.com", "password": "secret123"}

var validSignUp = Values{
	"email":    "user@example.com",
	"password": "Secret#123",
	"name":     "Jane Doe",
	"username": "jane_doe",
}

// --- ラベル導出 ---

func TestDeriveLabel(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"email", "Email Address"},
		{"password", "Password"},
		{"username", "Username"},
		{"name", "Name"},
		{"firstName", "FirstName"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DeriveLabel(tt.name); got != tt.want {
			t.Errorf("DeriveLabel(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestField_ExplicitLabelOverridesDerivation(t *testing.T) {
	f := Field{Name: "email", Label: "Work Email"}
	if got := f.DisplayLabel(); got != "Work Email" {
		t.Errorf("DisplayLabel = %q, want %q", got, "Work Email")
	}
}

// --- Descriptorの不変条件 ---

func TestNew_RejectsDuplicateFields(t *testing.T) {
	_, err := New(Descriptor{
		Schema: SignInSchema(),
		Fields: []Field{{Name: "email"}, {Name: "email"}},
		Kind:   KindSignIn,
		Submit: (&submitSpy{}).submit,
	})
	if err == nil {
		t.Fatal("expected error for duplicate field names")
	}
}

func TestNew_RejectsFieldWithoutRule(t *testing.T) {
	_, err := New(Descriptor{
		Schema: SignInSchema(),
		Fields: []Field{{Name: "email"}, {Name: "nickname"}},
		Kind:   KindSignIn,
		Submit: (&submitSpy{}).submit,
	})
	if err == nil {
		t.Fatal("expected error for field without validation rule")
	}
}

func TestNew_RejectsDefaultWithoutRule(t *testing.T) {
	_, err := New(Descriptor{
		Schema:        SignInSchema(),
		Fields:        SignInFields,
		DefaultValues: Values{"email": "", "password": "", "extra": ""},
		Kind:          KindSignIn,
		Submit:        (&submitSpy{}).submit,
	})
	if err == nil {
		t.Fatal("expected error for default value without validation rule")
	}
}

func TestNew_RejectsMissingSubmit(t *testing.T) {
	_, err := New(Descriptor{Schema: SignInSchema(), Fields: SignInFields, Kind: KindSignIn})
	if err == nil {
		t.Fatal("expected error for missing submit function")
	}
}

func TestNew_InitializesFromDefaults(t *testing.T) {
	f, err := New(Descriptor{
		Schema:        SignInSchema(),
		Fields:        SignInFields,
		DefaultValues: Values{"email": "prefill@example.com"},
		Kind:          KindSignIn,
		Submit:        (&submitSpy{}).submit,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	values := f.Values()
	if values["email"] != "prefill@example.com" {
		t.Errorf("email = %q, want %q", values["email"], "prefill@example.com")
	}
	if v, ok := values["password"]; !ok || v != "" {
		t.Errorf("password = %q (present=%v), want empty string", v, ok)
	}
}

// --- レンダリング ---

func TestRender_FieldsInDescriptorOrder(t *testing.T) {
	f := newSignUpForm(t, &submitSpy{})
	inputs := renderedInputs(t, f)

	want := []string{"email", "password", "name", "username"}
	if len(inputs) != len(want) {
		t.Fatalf("rendered %d inputs, want %d", len(inputs), len(want))
	}
	for i, name := range want {
		if inputs[i]["name"] != name {
			t.Errorf("inputs[%d].name = %q, want %q", i, inputs[i]["name"], name)
		}
		if _, ok := inputs[i]["required"]; !ok {
			t.Errorf("input %q should be required", name)
		}
	}
}

func TestRender_LabelsAndModeHint(t *testing.T) {
	var buf bytes.Buffer
	f := newSignInForm(t, &submitSpy{})
	if err := f.Render(&buf, RenderOptions{}); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		">Email Address</label>",
		">Password</label>",
		`action="/sign-in"`,
		`href="/sign-up"`,
		"Sign up</a>",
		">Sign In</button>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered form should contain %q", want)
		}
	}

	buf.Reset()
	su := newSignUpForm(t, &submitSpy{})
	if err := su.Render(&buf, RenderOptions{}); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if !strings.Contains(buf.String(), `href="/sign-in"`) {
		t.Error("sign-up form should link to sign-in")
	}
	if !strings.Contains(buf.String(), ">Sign Up</button>") {
		t.Error("sign-up form should render Sign Up button")
	}
}

func TestRender_NonPasswordFieldsAreText(t *testing.T) {
	inputs := renderedInputs(t, newSignUpForm(t, &submitSpy{}))
	for _, in := range inputs {
		if in["name"] != "password" && in["type"] != "text" {
			t.Errorf("%s input type = %q, want text", in["name"], in["type"])
		}
	}
}

func TestRender_PasswordToggle(t *testing.T) {
	f := newSignInForm(t, &submitSpy{})

	inputs := renderedInputs(t, f)
	if inputs[1]["type"] != "password" {
		t.Errorf("password input type = %q, want %q", inputs[1]["type"], "password")
	}

	if !f.TogglePassword() {
		t.Fatal("TogglePassword should return true after first toggle")
	}
	inputs = renderedInputs(t, f)
	if inputs[1]["type"] != "text" {
		t.Errorf("password input type after toggle = %q, want %q", inputs[1]["type"], "text")
	}

	// トグルは検証に影響しない
	spy := &submitSpy{result: SubmissionResult{Success: true}}
	f2 := newSignInForm(t, spy)
	f2.TogglePassword()
	res := f2.Submit(context.Background(), validSignIn, notify.NewRecorder(), notify.NewRecorder())
	if res.Outcome != OutcomeSucceeded {
		t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeSucceeded)
	}
}

func TestRender_InlineErrors(t *testing.T) {
	f := newSignInForm(t, &submitSpy{})
	f.Submit(context.Background(), Values{"email": "not-an-email", "password": "123"}, notify.NewRecorder(), notify.NewRecorder())

	var buf bytes.Buffer
	if err := f.Render(&buf, RenderOptions{}); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Please provide a valid email address.") {
		t.Error("expected inline email error")
	}
	if !strings.Contains(out, "Password must be at least 6 characters long.") {
		t.Error("expected inline password error")
	}
	// 入力値は保持される
	if !strings.Contains(out, `value="not-an-email"`) {
		t.Error("expected submitted value to be preserved")
	}
}

// --- 送信 ---

func TestSubmit_ValidationFailureDoesNotCallSubmit(t *testing.T) {
	spy := &submitSpy{result: SubmissionResult{Success: true}}
	f := newSignUpForm(t, spy)
	sink := notify.NewRecorder()

	res := f.Submit(context.Background(), Values{
		"email":    "",
		"password": "weakpass",
		"name":     "J4ne",
		"username": "ab",
	}, sink, sink)

	if res.Outcome != OutcomeInvalid {
		t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeInvalid)
	}
	if spy.callCount() != 0 {
		t.Errorf("submit called %d times, want 0", spy.callCount())
	}
	if n := len(sink.Notifications()); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}

	want := FieldErrors{
		"email":    "Email is required",
		"password": "Password must contain at least one uppercase letter.",
		"name":     "Name can only contain letters and spaces.",
		"username": "Username must be at least 3 characters long.",
	}
	got := f.Errors()
	for field, msg := range want {
		if got[field] != msg {
			t.Errorf("errors[%q] = %q, want %q", field, got[field], msg)
		}
	}
}

func TestSubmit_SuccessNotifiesAndNavigatesOnce(t *testing.T) {
	tests := []struct {
		name    string
		newForm func(*testing.T, *submitSpy) *Form
		values  Values
		want    string
	}{
		{"sign-in", newSignInForm, validSignIn, MsgSignedIn},
		{"sign-up", newSignUpForm, validSignUp, MsgSignedUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &submitSpy{result: SubmissionResult{Success: true}}
			f := tt.newForm(t, spy)
			rec := notify.NewRecorder()

			res := f.Submit(context.Background(), tt.values, rec, rec)

			if res.Outcome != OutcomeSucceeded {
				t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeSucceeded)
			}
			if spy.callCount() != 1 {
				t.Errorf("submit called %d times, want 1", spy.callCount())
			}
			notes := rec.Notifications()
			if len(notes) != 1 || notes[0].Kind != notify.KindSuccess || notes[0].Message != tt.want {
				t.Errorf("notifications = %+v, want single success %q", notes, tt.want)
			}
			if r := rec.Routes(); len(r) != 1 || r[0] != "/" {
				t.Errorf("routes = %v, want [/]", r)
			}
		})
	}
}

func TestSubmit_PassesOnlyValidatedFields(t *testing.T) {
	spy := &submitSpy{result: SubmissionResult{Success: true}}
	f := newSignInForm(t, spy)

	input := Values{"email": "user@example.com", "password": "secret123", "role": "admin"}
	f.Submit(context.Background(), input, notify.NewRecorder(), notify.NewRecorder())

	if spy.callCount() != 1 {
		t.Fatalf("submit called %d times, want 1", spy.callCount())
	}
	if _, ok := spy.calls[0]["role"]; ok {
		t.Error("unknown field should not reach submit function")
	}
}

func TestSubmit_FailedSubmissionDoesNotRetainPassword(t *testing.T) {
	spy := &submitSpy{result: SubmissionResult{Success: false, Error: &model.ActionError{Message: "X"}}}
	f := newSignInForm(t, spy)

	f.Submit(context.Background(), Values{"email": "user@example.com", "password": "S3cret!pass"}, notify.NewRecorder(), notify.NewRecorder())

	// 送信関数には入力どおりのパスワードが渡る
	if spy.callCount() != 1 || spy.calls[0]["password"] != "S3cret!pass" {
		t.Fatalf("submit calls = %+v", spy.calls)
	}
	if v := f.Values()["password"]; v != "" {
		t.Errorf("password retained in form state: %q", v)
	}

	var buf bytes.Buffer
	if err := f.Render(&buf, RenderOptions{}); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if strings.Contains(buf.String(), "S3cret!pass") {
		t.Error("password written back into rendered HTML")
	}
	if !strings.Contains(buf.String(), `value="user@example.com"`) {
		t.Error("email should be preserved")
	}
}

func TestSetValues_IgnoresPassword(t *testing.T) {
	f := newSignInForm(t, &submitSpy{})
	f.SetValues(Values{"email": "user@example.com", "password": "S3cret!pass"})
	f.TogglePassword()

	inputs := renderedInputs(t, f)
	if inputs[1]["type"] != "text" {
		t.Errorf("password input type = %q, want text", inputs[1]["type"])
	}
	if inputs[1]["value"] != "" {
		t.Errorf("password input value = %q, want empty", inputs[1]["value"])
	}
}

func TestSubmit_FailureWithMessage(t *testing.T) {
	spy := &submitSpy{result: SubmissionResult{Success: false, Error: &model.ActionError{Message: "X"}}}
	f := newSignInForm(t, spy)
	rec := notify.NewRecorder()

	res := f.Submit(context.Background(), validSignIn, rec, rec)

	if res.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeFailed)
	}
	notes := rec.Notifications()
	if len(notes) != 1 || notes[0].Kind != notify.KindError || notes[0].Message != "X" {
		t.Errorf("notifications = %+v, want single error %q", notes, "X")
	}
	if len(rec.Routes()) != 0 {
		t.Errorf("routes = %v, want none", rec.Routes())
	}
}

func TestSubmit_FailureWithoutMessageUsesFallback(t *testing.T) {
	spy := &submitSpy{result: SubmissionResult{Success: false}}
	f := newSignInForm(t, spy)
	rec := notify.NewRecorder()

	f.Submit(context.Background(), validSignIn, rec, rec)

	notes := rec.Notifications()
	if len(notes) != 1 || notes[0].Message != MsgGenericFailed {
		t.Errorf("notifications = %+v, want single error %q", notes, MsgGenericFailed)
	}
}

func TestSubmit_SubmitErrorIsCaught(t *testing.T) {
	spy := &submitSpy{err: errors.New("connection refused")}
	f := newSignInForm(t, spy)
	rec := notify.NewRecorder()

	res := f.Submit(context.Background(), validSignIn, rec, rec)

	if res.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeFailed)
	}
	notes := rec.Notifications()
	if len(notes) != 1 || notes[0].Kind != notify.KindError || notes[0].Message != MsgGenericFailed {
		t.Errorf("notifications = %+v", notes)
	}
	if f.IsSubmitting() {
		t.Error("submitting flag should be released after error")
	}
}

func TestSubmit_ConcurrentSubmissionIgnored(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int
	var mu sync.Mutex

	f, err := New(Descriptor{
		Schema:        SignInSchema(),
		Fields:        SignInFields,
		DefaultValues: DefaultsFor(SignInFields),
		Kind:          KindSignIn,
		Submit: func(ctx context.Context, values Values) (SubmissionResult, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			close(started)
			<-release
			return SubmissionResult{Success: true}, nil
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	done := make(chan Result)
	go func() {
		done <- f.Submit(context.Background(), validSignIn, notify.NewRecorder(), notify.NewRecorder())
	}()
	<-started

	if !f.IsSubmitting() {
		t.Error("expected submitting flag while submit is in flight")
	}
	var buf bytes.Buffer
	if err := f.Render(&buf, RenderOptions{}); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "disabled>Signing In...</button>") {
		t.Error("submit button should be disabled while submitting")
	}

	second := f.Submit(context.Background(), validSignIn, notify.NewRecorder(), notify.NewRecorder())
	if second.Outcome != OutcomeIgnored {
		t.Errorf("second Outcome = %v, want %v", second.Outcome, OutcomeIgnored)
	}

	close(release)
	if first := <-done; first.Outcome != OutcomeSucceeded {
		t.Errorf("first Outcome = %v, want %v", first.Outcome, OutcomeSucceeded)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("submit called %d times, want 1", calls)
	}
	if f.IsSubmitting() {
		t.Error("submitting flag should be released")
	}
}

func TestOutcome_String(t *testing.T) {
	if OutcomeSucceeded.String() != "succeeded" || OutcomeIgnored.String() != "ignored" {
		t.Error("unexpected Outcome string representation")
	}
}
