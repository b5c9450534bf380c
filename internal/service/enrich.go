package service

import (
	"fmt"

	"github.com/autopress/autopress/internal/models"
)

// DerivedCandidates applies the pool replenishment rule: every full group of
// groupSize consumed themes seeds an equal-sized batch of follow-up keywords
// on the same role and work. An incomplete trailing group is carried over to
// a later run rather than padded.
func DerivedCandidates(consumed []models.Article, groupSize int) []models.ThemeCandidate {
	if groupSize <= 0 {
		groupSize = 3
	}
	seeds := make([]models.Article, 0, len(consumed))
	for _, a := range consumed {
		if a.Keyword == "" {
			continue
		}
		seeds = append(seeds, a)
	}

	var derived []models.ThemeCandidate
	for start := 0; start+groupSize <= len(seeds); start += groupSize {
		batch := start/groupSize + 1
		for offset, seed := range seeds[start : start+groupSize] {
			derived = append(derived, models.ThemeCandidate{
				Role:    seed.Role,
				Work:    seed.Work,
				Keyword: fmt.Sprintf("%s心理延展%d-%d", seed.Keyword, batch, offset+1),
				Lang:    seed.Lang,
				Active:  true,
			})
		}
	}
	return derived
}
