package deliverer

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Registry holds the configured platform deliverers. Delivery policy
// (retry, dead-letter, ordering) lives in the ledger; the registry only
// resolves platform names to adapters.
type Registry struct {
	logger     *zap.Logger
	deliverers map[string]Deliverer
	creds      map[string]Credentials
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:     logger,
		deliverers: make(map[string]Deliverer),
		creds:      make(map[string]Credentials),
	}
}

func (r *Registry) Register(d Deliverer) error {
	name := d.PlatformName()
	if _, exists := r.deliverers[name]; exists {
		return fmt.Errorf("deliverer for platform %s already registered", name)
	}
	r.deliverers[name] = d
	r.logger.Info("Deliverer registered", zap.String("platform", name))
	return nil
}

func (r *Registry) Get(platform string) (Deliverer, error) {
	d, exists := r.deliverers[platform]
	if !exists {
		return nil, fmt.Errorf("deliverer for platform %s not found", platform)
	}
	return d, nil
}

// SetCredentials stores the static credentials used when no run-scoped
// bundle is supplied.
func (r *Registry) SetCredentials(platform string, creds Credentials) {
	r.creds[platform] = creds
}

func (r *Registry) Credentials(platform string) Credentials {
	return r.creds[platform]
}

// Platforms returns registered platform names in stable order.
func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.deliverers))
	for name := range r.deliverers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
