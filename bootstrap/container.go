package bootstrap

import (
	"fmt"
	"sort"
	"sync"
)

// Names under which an application registers its components
const (
	ComponentConfig    = "config"
	ComponentLogger    = "logger"
	ComponentScheduler = "scheduler"
	ComponentActors    = "actors"
	ComponentTracing   = "tracing"
	ComponentTracer    = "tracer"
	ComponentMetrics   = "metrics"
	ComponentNATS      = "nats"
)

// DefaultContainer is a name to component map with lazy factories
type DefaultContainer struct {
	// factories holds registered component factories
	factories map[string]ServiceFactory

	// instances holds created or registered components
	instances map[string]interface{}

	// mutex protects concurrent access
	mutex sync.RWMutex
}

// NewContainer creates a new container
func NewContainer() *DefaultContainer {
	return &DefaultContainer{
		factories: make(map[string]ServiceFactory),
		instances: make(map[string]interface{}),
	}
}

// Register registers a component factory. The factory runs once, on the
// first Resolve.
func (c *DefaultContainer) Register(name string, factory ServiceFactory) error {
	if name == "" {
		return fmt.Errorf("component name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("component factory cannot be nil")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.has(name) {
		return fmt.Errorf("component %s is already registered", name)
	}

	c.factories[name] = factory
	return nil
}

// RegisterInstance registers an existing component
func (c *DefaultContainer) RegisterInstance(name string, instance interface{}) error {
	if name == "" {
		return fmt.Errorf("component name cannot be empty")
	}
	if instance == nil {
		return fmt.Errorf("component instance cannot be nil")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.has(name) {
		return fmt.Errorf("component %s is already registered", name)
	}

	c.instances[name] = instance
	return nil
}

// Resolve resolves a component by name
func (c *DefaultContainer) Resolve(name string) (interface{}, error) {
	c.mutex.RLock()
	instance, exists := c.instances[name]
	factory, hasFactory := c.factories[name]
	c.mutex.RUnlock()

	if exists {
		return instance, nil
	}
	if !hasFactory {
		return nil, fmt.Errorf("component %s is not registered", name)
	}

	// The factory may resolve other components, so it runs unlocked
	instance, err := factory(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create component %s: %w", name, err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if existing, ok := c.instances[name]; ok {
		return existing, nil
	}
	c.instances[name] = instance
	return instance, nil
}

// Has checks if a component is registered
func (c *DefaultContainer) Has(name string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.has(name)
}

func (c *DefaultContainer) has(name string) bool {
	_, hasFactory := c.factories[name]
	_, hasInstance := c.instances[name]
	return hasFactory || hasInstance
}

// Names returns all registered component names, sorted
func (c *DefaultContainer) Names() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	nameSet := make(map[string]struct{}, len(c.factories)+len(c.instances))
	for name := range c.factories {
		nameSet[name] = struct{}{}
	}
	for name := range c.instances {
		nameSet[name] = struct{}{}
	}

	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveAs resolves a component and asserts its type
func ResolveAs[T any](c Container, name string) (T, error) {
	var zero T

	instance, err := c.Resolve(name)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("component %s of type %T is not a %T", name, instance, zero)
	}
	return typed, nil
}
