// Package generator defines the content generation collaborator. The core
// only depends on the interface; production wiring may plug an LLM-backed
// implementation.
package generator

import (
	"context"
	"fmt"
)

// Generator produces (title, body) for one theme. Implementations should
// respect ctx for timeout and cancellation; generation happens outside any
// database transaction.
type Generator interface {
	Generate(ctx context.Context, role, work, keyword string) (title, body string, err error)
}

// Template is a deterministic generator used for smoke runs and tests: it
// renders a fixed analysis skeleton around the theme.
type Template struct {
	Style string
}

func NewTemplate(style string) *Template {
	if style == "" {
		style = "psychology_analysis"
	}
	return &Template{Style: style}
}

func (t *Template) Generate(_ context.Context, role, work, keyword string) (string, string, error) {
	if role == "" || work == "" || keyword == "" {
		return "", "", fmt.Errorf("generate: role, work and keyword must be non-empty")
	}
	title := fmt.Sprintf("%s · %s", role, keyword)
	body := fmt.Sprintf("【%s】%s × %s —— 结合关键词 %s 的心理剖析", t.Style, role, work, keyword)
	return title, body, nil
}
