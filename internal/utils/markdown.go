package utils

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	// 评论只有一行，不需要标题、表格之类的块级语法
	commentParser = goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)
	commentPolicy = bluemonday.UGCPolicy()

	newlines   = regexp.MustCompile(`(\r?\n)+`)
	whitespace = regexp.MustCompile(`\s+`)
)

func init() {
	commentPolicy.AllowImages()
	// Force links to open in new tab
	commentPolicy.AddTargetBlankToFullyQualifiedLinks(true)
	commentPolicy.RequireNoReferrerOnLinks(true)
}

// CookComment 把评论 markdown 渲染成安全的 HTML，换行折叠为空格
func CookComment(raw string) string {
	source := newlines.ReplaceAllString(strings.TrimSpace(raw), " ")

	var buf bytes.Buffer
	if err := commentParser.Convert([]byte(source), &buf); err != nil {
		return commentPolicy.Sanitize(source) // Fallback
	}

	sanitized := commentPolicy.SanitizeBytes(buf.Bytes())
	return strings.TrimSpace(EnhanceHTMLContent(string(sanitized)))
}

// StrippedLength 去掉首尾空白并把连续空白算作一个字符后的长度
func StrippedLength(raw string) int {
	return utf8.RuneCountInString(whitespace.ReplaceAllString(strings.TrimSpace(raw), " "))
}
