package handoff

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer wraps job descriptors in signed JWTs so the executor can verify
// that a job really came from the planner and has not expired in transit.
type Signer struct {
	key []byte
	ttl time.Duration
}

func NewSigner(key string, ttl time.Duration) *Signer {
	return &Signer{key: []byte(key), ttl: ttl}
}

type jobClaims struct {
	Job JobDescriptor `json:"job"`
	jwt.RegisteredClaims
}

// Sign produces the signed token for a descriptor.
func (s *Signer) Sign(desc JobDescriptor) (string, error) {
	now := time.Now().UTC()
	claims := jobClaims{
		Job: desc,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   desc.RunID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign job %s: %w", desc.RunID, err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded descriptor.
func (s *Signer) Verify(token string) (*JobDescriptor, error) {
	var claims jobClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify job token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("verify job token: invalid")
	}
	if claims.Job.RunID == "" {
		return nil, fmt.Errorf("verify job token: missing run_id")
	}
	return &claims.Job, nil
}
