package markup

import (
	"fmt"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizeOnce   sync.Once
	sanitizePolicy *bluemonday.Policy

	mdOnce      sync.Once
	mdConverter *converter.Converter
)

// Sanitize strips scripts, event handlers and other active content from
// raw markup using the bluemonday UGC policy. Structure, text, roles and
// class attributes survive so queries still work on the result.
func Sanitize(raw string) string {
	sanitizeOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("role", "class", "id").Globally()
		p.AllowAttrs("type", "name", "value", "checked", "disabled").OnElements("input", "button")
		p.AllowElements("button", "input", "nav", "main", "header", "footer", "section", "article", "aside", "form", "dialog", "progress")
		sanitizePolicy = p
	})
	return sanitizePolicy.Sanitize(raw)
}

// Markdown renders raw markup as Markdown, for human-readable diagnostics.
func Markdown(raw string) (string, error) {
	mdOnce.Do(func() {
		mdConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	})
	out, err := mdConverter.ConvertString(raw)
	if err != nil {
		return "", fmt.Errorf("markup: markdown: %w", err)
	}
	return out, nil
}

// Markdown renders the screen's markup as Markdown.
func (s *Screen) Markdown() (string, error) {
	return Markdown(s.raw)
}
