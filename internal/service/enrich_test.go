package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autopress/autopress/internal/models"
)

func TestDerivedCandidatesFullGroupsOnly(t *testing.T) {
	consumed := []models.Article{
		{Role: "r1", Work: "w1", Keyword: "k1", Lang: "zh"},
		{Role: "r2", Work: "w2", Keyword: "k2", Lang: "zh"},
		{Role: "r3", Work: "w3", Keyword: "k3", Lang: "zh"},
		{Role: "r4", Work: "w4", Keyword: "k4", Lang: "zh"},
	}

	derived := DerivedCandidates(consumed, 3)
	// one full group of three; the trailing keyword waits for a later run
	assert.Len(t, derived, 3)
	assert.Equal(t, "k1心理延展1-1", derived[0].Keyword)
	assert.Equal(t, "k2心理延展1-2", derived[1].Keyword)
	assert.Equal(t, "k3心理延展1-3", derived[2].Keyword)
	assert.Equal(t, "r1", derived[0].Role)
	assert.Equal(t, "w1", derived[0].Work)
	assert.True(t, derived[0].Active)
}

func TestDerivedCandidatesSecondBatchNumbering(t *testing.T) {
	consumed := make([]models.Article, 4)
	for i := range consumed {
		consumed[i] = models.Article{Role: "r", Work: "w", Keyword: string(rune('a' + i)), Lang: "zh"}
	}

	derived := DerivedCandidates(consumed, 2)
	assert.Len(t, derived, 4)
	assert.Equal(t, "a心理延展1-1", derived[0].Keyword)
	assert.Equal(t, "b心理延展1-2", derived[1].Keyword)
	assert.Equal(t, "c心理延展2-1", derived[2].Keyword)
	assert.Equal(t, "d心理延展2-2", derived[3].Keyword)
}

func TestDerivedCandidatesEdgeCases(t *testing.T) {
	assert.Empty(t, DerivedCandidates(nil, 3))
	assert.Empty(t, DerivedCandidates([]models.Article{{Keyword: ""}}, 3))
	// non-positive group size falls back to 3
	short := []models.Article{{Role: "r", Work: "w", Keyword: "k", Lang: "zh"}}
	assert.Empty(t, DerivedCandidates(short, 0))
}
