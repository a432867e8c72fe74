package security

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Excerpt はHTMLからテキストのみを取り出し、maxRunes文字以内に切り詰めた抜粋を返す。
// 連続する空白は1つにまとめる。切り詰めた場合は末尾に "..." を付ける。
// script/style要素の中身は含めない。
func Excerpt(rawHTML string, maxRunes int) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := strings.Join(strings.Fields(b.String()), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxRunes])) + "..."
}
