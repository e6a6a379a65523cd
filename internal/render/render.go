// Package render turns conversation content into HTML that is safe to insert
// into the chat page.
package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Mode selects how turn content is presented.
type Mode string

const (
	// ModePlain escapes everything; whitespace is preserved by the page CSS.
	ModePlain Mode = "plain"
	// ModeMarkdown renders markdown and sanitizes the result with an allow-list.
	ModeMarkdown Mode = "markdown"
)

// Renderer converts turn content to HTML.
type Renderer struct {
	mode     Mode
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// New returns a Renderer for mode.
func New(mode Mode) (*Renderer, error) {
	switch mode {
	case ModePlain:
		return &Renderer{mode: mode}, nil
	case ModeMarkdown:
		return &Renderer{
			mode:     mode,
			markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
			policy:   bluemonday.UGCPolicy(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown render mode %q", mode)
	}
}

// Mode returns the configured mode.
func (r *Renderer) Mode() Mode {
	return r.mode
}

// HTML returns content ready for insertion into a template.
func (r *Renderer) HTML(content string) template.HTML {
	if r.mode == ModePlain {
		return template.HTML(template.HTMLEscapeString(content))
	}

	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(content), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(content))
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}
