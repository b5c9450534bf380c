package textnorm

import "strings"

// SimilarityFunc scores two normalized strings on a 0–1 scale, 1 meaning
// identical. Implementations must be deterministic and monotonically
// decreasing as the strings diverge.
type SimilarityFunc func(a, b string) float64

// TokenOverlap is the baseline similarity strategy: the Dice coefficient
// over the token sets of the normalized inputs. CJK text with no spaces
// falls back to character bigrams so the score stays meaningful.
func TokenOverlap(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	sa := tokenSet(na)
	sb := tokenSet(nb)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	shared := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(sa)+len(sb))
}

func tokenSet(n string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(n) {
		runes := []rune(tok)
		if len(runes) > 1 && isHan(runes[0]) {
			// unsegmented CJK runs: use bigrams instead of whole-word tokens
			for i := 0; i+2 <= len(runes); i++ {
				set[string(runes[i:i+2])] = struct{}{}
			}
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

func isHan(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}
