package form

import (
	"html/template"
	"io"

	"github.com/hitoshi/devflow/internal/routes"
)

// RenderOptions はレンダリング時にリクエストごとに変わる値。
type RenderOptions struct {
	// Actionはフォームの送信先。空の場合はフォーム種別から決まる。
	Action    string
	CSRFToken string
}

type fieldView struct {
	Name       string
	Label      string
	Type       string
	Value      string
	Error      string
	IsPassword bool
}

type formView struct {
	Action       string
	CSRFToken    string
	Fields       []fieldView
	ShowPassword bool
	Submitting   bool
	ButtonText   string
	IsSignIn     bool
	SignInRoute  string
	SignUpRoute  string
}

var formTemplate = template.Must(template.New("form").Parse(`<form method="post" action="{{.Action}}" class="mt-10 space-y-6">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<input type="hidden" name="show_password" value="{{if .ShowPassword}}1{{else}}0{{end}}">
{{- range .Fields}}
<div class="flex w-full flex-col gap-2.5" data-field="{{.Name}}">
<label for="field-{{.Name}}">{{.Label}}</label>
<div class="relative">
<input id="field-{{.Name}}" name="{{.Name}}" type="{{.Type}}" value="{{.Value}}" required class="pr-10">
{{- if .IsPassword}}
<button type="submit" name="toggle_password" value="1" formnovalidate aria-label="{{if $.ShowPassword}}Hide password{{else}}Show password{{end}}" class="text-muted-foreground absolute top-1/2 right-3 -translate-y-1/2">{{if $.ShowPassword}}Hide{{else}}Show{{end}}</button>
{{- end}}
</div>
{{- if .Error}}
<p class="form-message" role="alert">{{.Error}}</p>
{{- end}}
</div>
{{- end}}
<button type="submit" class="w-full"{{if .Submitting}} disabled{{end}}>{{.ButtonText}}</button>
{{- if .IsSignIn}}
<p class="text-sm">Don&#39;t have an account? <a href="{{.SignUpRoute}}" class="font-medium underline">Sign up</a></p>
{{- else}}
<p class="text-sm">Already have an account? <a href="{{.SignInRoute}}" class="font-medium underline">Sign in</a></p>
{{- end}}
</form>
`))

// Render はフォームをHTMLとして書き出す。
// 入力欄はフィールド記述子の順序どおりに1つずつ生成され、すべてrequired属性を持つ。
func (f *Form) Render(w io.Writer, opts RenderOptions) error {
	f.mu.Lock()
	view := formView{
		Action:       opts.Action,
		CSRFToken:    opts.CSRFToken,
		ShowPassword: f.showPassword,
		Submitting:   f.submitting.Load(),
		IsSignIn:     f.desc.Kind == KindSignIn,
		SignInRoute:  routes.SignIn,
		SignUpRoute:  routes.SignUp,
	}
	for _, field := range f.desc.Fields {
		fv := fieldView{
			Name:       field.Name,
			Label:      field.DisplayLabel(),
			Type:       field.inputType(f.showPassword),
			Error:      f.errors[field.Name],
			IsPassword: field.Kind == FieldPassword,
		}
		// パスワードはHTMLに書き戻さない
		if !fv.IsPassword {
			fv.Value = f.values[field.Name]
		}
		view.Fields = append(view.Fields, fv)
	}
	f.mu.Unlock()

	if view.Action == "" {
		view.Action = routes.SignUp
		if view.IsSignIn {
			view.Action = routes.SignIn
		}
	}
	view.ButtonText = buttonText(f.desc.Kind, view.Submitting)

	return formTemplate.Execute(w, view)
}

func buttonText(kind Kind, submitting bool) string {
	switch {
	case kind == KindSignIn && submitting:
		return "Signing In..."
	case kind == KindSignIn:
		return "Sign In"
	case submitting:
		return "Signing Up..."
	default:
		return "Sign Up"
	}
}
