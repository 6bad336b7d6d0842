package source

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/curator-agent/internal/models"
)

// Adapter fetches content items for one kind of source. Implementations own
// their timeout, retry, and rate-limit policy; the pipeline only sees the
// Fetch contract.
type Adapter interface {
	// Kind returns the adapter's source kind (rss, youtube, scrape).
	Kind() string

	// Fetch retrieves the current items behind one source reference.
	Fetch(ctx context.Context, sourceRef string) ([]models.ContentItem, error)

	// HealthCheck verifies the source reference is reachable.
	HealthCheck(ctx context.Context, sourceRef string) error
}

// FetchFn is the narrow fetch contract the selector depends on.
type FetchFn func(ctx context.Context, sourceRef string) ([]models.ContentItem, error)

// GenerateExternalID derives a stable id for items whose source provides
// none, from the source kind and URL.
func GenerateExternalID(kind, url string) string {
	hash := sha256.Sum256([]byte(kind + ":" + url))
	return fmt.Sprintf("%x", hash[:16])
}

// Registry maps content types to the adapter that serves them.
type Registry struct {
	adapters map[models.ContentType]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.ContentType]Adapter)}
}

// Register binds an adapter to a content type, replacing any previous one.
func (r *Registry) Register(contentType models.ContentType, adapter Adapter) {
	r.adapters[contentType] = adapter
}

// ForType returns the adapter serving a content type.
func (r *Registry) ForType(contentType models.ContentType) (Adapter, error) {
	adapter, ok := r.adapters[contentType]
	if !ok {
		return nil, fmt.Errorf("no source adapter registered for content type %q", contentType)
	}
	return adapter, nil
}
