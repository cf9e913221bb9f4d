package main

import (
	"bytes"
	"log/slog"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	longFormMarkdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
	)
	longFormPolicy = bluemonday.UGCPolicy()
)

// RenderLongForm converts kind 30023 markdown content to sanitized HTML.
// Returns an empty string when the markdown won't convert; the raw
// content is still available to callers.
func RenderLongForm(markdown string) string {
	var buf bytes.Buffer
	if err := longFormMarkdown.Convert([]byte(markdown), &buf); err != nil {
		slog.Debug("markdown render failed", "error", err)
		return ""
	}
	return longFormPolicy.Sanitize(buf.String())
}
