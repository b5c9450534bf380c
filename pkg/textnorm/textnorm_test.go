package textnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "Hello World", "hello world"},
		{"collapse whitespace", "a \t b\n\nc", "a b c"},
		{"strip punctuation", "hello, world!!", "hello world"},
		{"keep cjk", "心理学：影子与光", "心理学 影子与光"},
		{"fullwidth folding", "ＨＥＬＬＯ　ｗｏｒｌｄ１２３", "hello world123"},
		{"empty", "   ", ""},
		{"only punctuation", "!?,。！", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Hello, World!", "心理学　研究：深度", "  a  b  "}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestSlug(t *testing.T) {
	slug, err := Slug("The Shadow Worker")
	require.NoError(t, err)
	assert.Equal(t, "the-shadow-worker", slug)

	slug, err = Slug("阴影 工作者")
	require.NoError(t, err)
	assert.Equal(t, "阴影-工作者", slug)

	_, err = Slug("!!!")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTitleSignatureStable(t *testing.T) {
	a, err := TitleSignature("Hello, World")
	require.NoError(t, err)
	b, err := TitleSignature("hello   world!")
	require.NoError(t, err)
	assert.Equal(t, a, b, "signatures must agree after normalization")
	assert.Len(t, a, 64)

	c, err := TitleSignature("another title")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = TitleSignature(" ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestContentSignatureFormat(t *testing.T) {
	sig, err := ContentSignature("some body of text for hashing")
	require.NoError(t, err)

	idx := strings.LastIndex(sig, "-")
	require.Greater(t, idx, 0)
	assert.Len(t, sig[:idx], 64)
	assert.Len(t, sig[idx+1:], 16)

	h, ok := SimhashFromSignature(sig)
	require.True(t, ok)
	assert.Equal(t, Simhash("some body of text for hashing"), h)
}

func TestSimhashFromSignatureRejectsMalformed(t *testing.T) {
	_, ok := SimhashFromSignature("deadbeef")
	assert.False(t, ok)
	_, ok = SimhashFromSignature("deadbeef-")
	assert.False(t, ok)
	_, ok = SimhashFromSignature("deadbeef-zzzz")
	assert.False(t, ok)
}

func TestSimhashNearDuplicates(t *testing.T) {
	base := "the quick brown fox jumps over the lazy dog near the river bank today"
	tweaked := "the quick brown fox jumps over the lazy dog near the river bank tonight"
	other := "完全不同的一段中文内容，讨论心理学中的防御机制与投射认同"

	hBase := Simhash(base)
	hTweak := Simhash(tweaked)
	hOther := Simhash(other)

	assert.Less(t, HammingDistance(hBase, hTweak), 16)
	assert.Greater(t, HammingDistance(hBase, hOther), 16)
	assert.Equal(t, 0, HammingDistance(hBase, hBase))
}

func TestSimhashEmptyAndShort(t *testing.T) {
	assert.Equal(t, uint64(0), Simhash(""))
	assert.NotEqual(t, uint64(0), Simhash("ab"))
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, TokenOverlap("Hello World", "hello  world!"))
	assert.Equal(t, 0.0, TokenOverlap("", "anything"))
	assert.Equal(t, 0.0, TokenOverlap("alpha beta", "gamma delta"))

	partial := TokenOverlap("alpha beta gamma", "alpha beta delta")
	assert.Greater(t, partial, 0.5)
	assert.Less(t, partial, 1.0)
}

func TestTokenOverlapCJKBigrams(t *testing.T) {
	score := TokenOverlap("心理防御机制研究", "心理防御机制分析")
	assert.Greater(t, score, 0.5)

	unrelated := TokenOverlap("心理防御机制研究", "量子计算基础入门")
	assert.Less(t, unrelated, 0.2)
}
