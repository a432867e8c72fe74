package handler

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/devflow/internal/middleware"
	"github.com/hitoshi/devflow/internal/notify"
	"github.com/hitoshi/devflow/internal/routes"
	"github.com/hitoshi/devflow/internal/widget"
)

type layoutView struct {
	Title     string
	SignedIn  bool
	CSRFToken string
	Toasts    []notify.Notification
	Content   template.HTML
	Home      string
	SignIn    string
	SignUp    string
	Logout    string
}

var layoutTemplate = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} | DevFlow</title>
</head>
<body class="background-light850_dark100">
<nav class="flex-between w-full gap-5 p-6">
<a href="{{.Home}}" class="h2-bold">Dev<span class="text-primary-500">Flow</span></a>
{{- if .SignedIn}}
<form method="post" action="{{.Logout}}">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<button type="submit">Logout</button>
</form>
{{- else}}
<div class="flex gap-3"><a href="{{.SignIn}}">Sign In</a><a href="{{.SignUp}}">Sign Up</a></div>
{{- end}}
</nav>
{{- if .Toasts}}
<ol class="toaster" aria-live="polite">
{{- range .Toasts}}
<li class="toast toast-{{.Kind}}" role="status" data-kind="{{.Kind}}">{{.Message}}</li>
{{- end}}
</ol>
{{- end}}
<main class="mx-auto w-full max-w-5xl px-6 pb-10">
{{.Content}}
</main>
</body>
</html>
`))

var contentTemplates = template.Must(template.New("pages").Funcs(template.FuncMap{
	"date":     func(t time.Time) string { return t.Format("Jan 2, 2006") },
	"number":   widget.FormatNumber,
	"question": routes.Question,
}).Parse(`
{{- define "home" -}}
<section>
{{- if .Name}}
<h1 class="h1-bold">Welcome, {{.Name}}</h1>
{{- else}}
<h1 class="h1-bold">All Questions</h1>
{{- end}}
{{- if .Questions}}
<ul class="mt-10 flex w-full flex-col gap-6">
{{- range .Questions}}
<li class="card-wrapper rounded-[10px] p-9">
<a href="{{question .ID}}"><h3 class="base-semibold">{{.Title}}</h3></a>
<p class="line-clamp-2">{{.Excerpt}}</p>
<p class="small-regular">{{number .Upvotes}} Votes · {{number .Answers}} Answers · {{number .Views}} Views · asked {{date .CreatedAt}}</p>
</li>
{{- end}}
</ul>
{{- else}}
<p class="mt-10">There are no questions yet.</p>
{{- end}}
</section>
{{- end -}}

{{- define "auth" -}}
<section class="light-border background-light800_dark200 mx-auto w-full max-w-lg rounded-[10px] border px-4 py-10 sm:px-8">
<h1 class="h2-bold">{{.Heading}}</h1>
<p class="paragraph-regular">{{.Subheading}}</p>
{{.Form}}
{{- if .GoogleLogin}}
<div class="mt-6"><a href="{{.GoogleLogin}}" class="background-dark400_light900 body-medium rounded-2 min-h-12 flex-1 px-4 py-3.5">Log in with Google</a></div>
{{- end}}
</section>
{{- end -}}

{{- define "question" -}}
<article>
<div class="flex-between w-full gap-5">
<h1 class="h2-semibold">{{.Title}}</h1>
<div class="flex justify-end gap-4">
{{.Votes}}
{{.Save}}
</div>
</div>
<p class="small-regular">asked {{date .CreatedAt}} · {{number .Views}} Views</p>
<div class="markdown mt-6">{{.Content}}</div>
</article>
<section class="mt-11">
<h3 class="primary-text-gradient">{{len .Answers}} Answers</h3>
{{- range .Answers}}
<article class="light-border border-b py-10" id="answer-{{.ID}}">
<div class="flex justify-end">{{.Votes}}</div>
<div class="markdown mt-4">{{.Content}}</div>
<p class="small-regular">answered {{date .CreatedAt}}</p>
</article>
{{- end}}
</section>
{{- end -}}

{{- define "error" -}}
<section class="mt-20 text-center">
<h1 class="h1-bold">{{.Heading}}</h1>
<p class="paragraph-regular mt-4">{{.Message}}</p>
<a href="{{.Home}}" class="mt-6 inline-block">Back to home</a>
</section>
{{- end -}}
`))

type errorPage struct {
	Heading string
	Message string
	Home    string
}

// pageRenderer はレイアウトとページ本体を組み合わせてHTMLを書き出す。
type pageRenderer struct {
	cookies CookieConfig
}

// render はページ本体nameをレイアウトに埋め込んで書き出す。
// フラッシュCookieの通知とtoastsをトーストとして表示する。
func (p pageRenderer) render(w http.ResponseWriter, r *http.Request, status int, title, name string, data any, toasts []notify.Notification) {
	var content bytes.Buffer
	if err := contentTemplates.ExecuteTemplate(&content, name, data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	view := layoutView{
		Title:     title,
		SignedIn:  middleware.IdentityFromContext(r.Context()).SignedIn(),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Toasts:    append(notify.ReadFlash(w, r, p.cookies.flash()), toasts...),
		Content:   template.HTML(content.String()),
		Home:      routes.Home,
		SignIn:    routes.SignIn,
		SignUp:    routes.SignUp,
		Logout:    routes.Logout,
	}

	var page bytes.Buffer
	if err := layoutTemplate.Execute(&page, view); err != nil {
		slog.Error("failed to render layout", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(page.Bytes())
}

// renderError はエラーページを書き出す。
func (p pageRenderer) renderError(w http.ResponseWriter, r *http.Request, status int, heading, message string) {
	p.render(w, r, status, heading, "error", errorPage{
		Heading: heading,
		Message: message,
		Home:    routes.Home,
	}, nil)
}
