package bitrix

import (
	"fmt"
	"strings"
)

// Registry holds the repositories keyed by entity type. It is populated
// once, at construction time, and read-only afterwards — safe to share
// across any number of concurrent callers with no locking.
type Registry struct {
	repositories map[string]Repository
	order        []string
}

// NewRegistry registers the given repositories under their entity types. A
// repeated entity type fails immediately rather than shadowing an earlier
// registration.
func NewRegistry(repositories ...Repository) (*Registry, error) {
	registry := &Registry{
		repositories: make(map[string]Repository, len(repositories)),
	}

	for _, repository := range repositories {
		entityType := strings.ToLower(repository.EntityType())
		if _, exists := registry.repositories[entityType]; exists {
			return nil, fmt.Errorf("%w: repository for %q registered twice", ErrUnknownEntityType, entityType)
		}

		registry.repositories[entityType] = repository
		registry.order = append(registry.order, entityType)
	}

	return registry, nil
}

// Get returns the repository for the entity-type token. Token matching is
// case-insensitive. An unregistered token fails with ErrUnknownEntityType.
func (r *Registry) Get(entityType string) (Repository, error) {
	repository, ok := r.repositories[strings.ToLower(entityType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}

	return repository, nil
}

// EntityTypes returns the registered tokens in registration order.
func (r *Registry) EntityTypes() []string {
	types := make([]string, len(r.order))
	copy(types, r.order)

	return types
}
