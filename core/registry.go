package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry tracks actors by ID so that monitoring and shutdown code can
// reach them without knowing their message type.
type Registry struct {
	// Map of Actor ID to Actor instance
	actors sync.Map // map[string]Inspectable
}

// NewRegistry creates a new Registry instance.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an Actor to the registry.
func (r *Registry) Register(actor Inspectable) error {
	if actor == nil {
		return fmt.Errorf("cannot register nil actor")
	}

	id := actor.ID()
	if _, exists := r.actors.LoadOrStore(id, actor); exists {
		return fmt.Errorf("actor %q: %w", id, ErrActorExists)
	}

	return nil
}

// Unregister removes an Actor from the registry.
func (r *Registry) Unregister(id string) error {
	if _, exists := r.actors.LoadAndDelete(id); !exists {
		return fmt.Errorf("actor %q: %w", id, ErrActorNotFound)
	}

	return nil
}

// Lookup finds an Actor by its ID.
func (r *Registry) Lookup(id string) (Inspectable, bool) {
	if actor, exists := r.actors.Load(id); exists {
		return actor.(Inspectable), true
	}
	return nil, false
}

// List returns all registered Actor IDs in sorted order.
func (r *Registry) List() []string {
	var ids []string

	r.actors.Range(func(key, value any) bool {
		ids = append(ids, key.(string))
		return true
	})

	sort.Strings(ids)
	return ids
}

// Stats returns statistics for all registered actors, ordered by ID.
func (r *Registry) Stats() []ActorStats {
	var stats []ActorStats

	r.actors.Range(func(key, value any) bool {
		stats = append(stats, value.(Inspectable).Stats())
		return true
	})

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].ID < stats[j].ID
	})
	return stats
}

// WaitIdle blocks until every registered actor is idle or ctx is done.
func (r *Registry) WaitIdle(ctx context.Context) error {
	for _, id := range r.List() {
		actor, ok := r.Lookup(id)
		if !ok {
			continue
		}
		if err := actor.WaitIdle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ExitAll calls Exit on every registered actor.
func (r *Registry) ExitAll() {
	r.actors.Range(func(key, value any) bool {
		value.(Inspectable).Exit()
		return true
	})
}
