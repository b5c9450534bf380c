package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateGenerate(t *testing.T) {
	gen := NewTemplate("")
	assert.Equal(t, "psychology_analysis", gen.Style)

	title, body, err := gen.Generate(context.Background(), "阴影工作者", "荣格心理学", "投射")
	require.NoError(t, err)
	assert.Equal(t, "阴影工作者 · 投射", title)
	assert.Contains(t, body, "投射")
	assert.Contains(t, body, "psychology_analysis")
}

func TestTemplateRejectsEmptyTheme(t *testing.T) {
	gen := NewTemplate("custom")
	_, _, err := gen.Generate(context.Background(), "", "work", "keyword")
	assert.Error(t, err)
	_, _, err = gen.Generate(context.Background(), "role", "work", "")
	assert.Error(t, err)
}
