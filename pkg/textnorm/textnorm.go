package textnorm

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"regexp"
	"strings"
)

// ErrEmptyInput is returned when a field normalizes to the empty string.
var ErrEmptyInput = errors.New("textnorm: input empty after normalization")

var (
	wsRe    = regexp.MustCompile(`\s+`)
	punctRe = regexp.MustCompile(`[^a-z0-9\p{Han}\s]+`)
)

// toHalfwidth folds full-width ASCII variants (U+FF01–U+FF5E) and the
// ideographic space down to their half-width counterparts so that signatures
// do not depend on the input method used to type the text.
func toHalfwidth(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0x3000:
			r = ' '
		case r >= 0xFF01 && r <= 0xFF5E:
			r -= 0xFEE0
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize lowercases the input, folds full-width characters, strips
// punctuation (keeping letters, digits and CJK) and collapses whitespace.
// Two strings with the same Normalize output are treated as identical for
// uniqueness purposes.
func Normalize(s string) string {
	s = toHalfwidth(s)
	s = strings.ToLower(s)
	s = wsRe.ReplaceAllString(s, " ")
	s = punctRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// Slug produces a stable identifier slug: normalized text with spaces
// replaced by hyphens.
func Slug(s string) (string, error) {
	n := Normalize(s)
	if n == "" {
		return "", ErrEmptyInput
	}
	return strings.ReplaceAll(n, " ", "-"), nil
}

// TitleSignature returns the SHA-256 hex digest of the normalized title.
func TitleSignature(title string) (string, error) {
	n := Normalize(title)
	if n == "" {
		return "", ErrEmptyInput
	}
	sum := sha256.Sum256([]byte(n))
	return fmt.Sprintf("%x", sum), nil
}

// ContentSignature returns "<sha256 hex>-<simhash hex>" of the normalized
// body. The SHA-256 part is the exact-duplicate guard, the trailing 64-bit
// SimHash allows near-duplicate scanning without re-reading bodies.
func ContentSignature(body string) (string, error) {
	n := Normalize(body)
	if n == "" {
		return "", ErrEmptyInput
	}
	sum := sha256.Sum256([]byte(n))
	return fmt.Sprintf("%x-%016x", sum, simhashNormalized(n)), nil
}

// SimhashFromSignature extracts the SimHash component of a content
// signature produced by ContentSignature. ok is false when the signature
// does not carry one.
func SimhashFromSignature(sig string) (uint64, bool) {
	idx := strings.LastIndex(sig, "-")
	if idx < 0 || idx+1 >= len(sig) {
		return 0, false
	}
	var h uint64
	if _, err := fmt.Sscanf(sig[idx+1:], "%x", &h); err != nil {
		return 0, false
	}
	return h, true
}

// Simhash computes a 64-bit SimHash over character trigrams of the
// normalized text. Empty text hashes to zero.
func Simhash(s string) uint64 {
	return simhashNormalized(Normalize(s))
}

const simhashNgram = 3

func simhashNormalized(n string) uint64 {
	if n == "" {
		return 0
	}
	runes := []rune(n)
	counts := make(map[string]int)
	if len(runes) < simhashNgram {
		counts[string(runes)] = 1
	} else {
		for i := 0; i+simhashNgram <= len(runes); i++ {
			counts[string(runes[i:i+simhashNgram])]++
		}
	}
	var vector [64]int
	for gram, weight := range counts {
		digest := md5.Sum([]byte(gram))
		// low 64 bits of the 128-bit digest integer
		h := binary.BigEndian.Uint64(digest[8:])
		for bit := 0; bit < 64; bit++ {
			if h>>uint(bit)&1 == 1 {
				vector[bit] += weight
			} else {
				vector[bit] -= weight
			}
		}
	}
	var result uint64
	for bit, v := range vector {
		if v >= 0 {
			result |= 1 << uint(bit)
		}
	}
	return result
}

// HammingDistance counts differing bits between two SimHash values.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
