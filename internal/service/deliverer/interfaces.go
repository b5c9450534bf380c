package deliverer

import (
	"context"
	"time"
)

// Payload is the platform-independent snapshot of one article to deliver.
// It is stored on the platform_logs row so a retry never needs the original
// article row to be re-read.
type Payload struct {
	ArticleID uint              `json:"article_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Role      string            `json:"role"`
	Work      string            `json:"work"`
	Keyword   string            `json:"keyword"`
	Lang      string            `json:"lang"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Credentials is the per-platform secret bundle handed to a deliverer for a
// single run. It must never be persisted with the delivery record.
type Credentials map[string]string

// Result is the unified outcome of one delivery invocation.
type Result struct {
	Platform    string     `json:"platform"`
	Status      string     `json:"status"`
	TargetID    string     `json:"target_id,omitempty"`
	OutDir      string     `json:"out_dir,omitempty"`
	Err         error      `json:"-"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Deliverer publishes one article payload to a single platform. The error
// returned (or carried in Result.Err) should be classified so the ledger
// can decide between retry and dead-letter.
type Deliverer interface {
	PlatformName() string
	Deliver(ctx context.Context, payload Payload, creds Credentials) (*Result, error)
}
