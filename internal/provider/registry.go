package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр провайдеров.
//
// Позволяет регистрировать и получать реализации Provider по Kind.
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	providers map[Kind]Provider
}

// NewRegistry создаёт реестр с переданными провайдерами.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[Kind]Provider),
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register регистрирует провайдера.
// Если провайдер с таким Kind уже существует, он будет перезаписан.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Kind()] = p
}

// Get возвращает провайдера по Kind.
// Возвращает ErrUnknownProvider, если провайдер не найден.
func (r *Registry) Get(kind Kind) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, kind)
	}
	return p, nil
}

// Has проверяет, зарегистрирован ли провайдер.
func (r *Registry) Has(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.providers[kind]
	return exists
}

// Kinds возвращает имена всех зарегистрированных провайдеров.
// Используется для сброса счётчиков ConcurrencyGovernor при старте.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	return kinds
}

// Count возвращает количество зарегистрированных провайдеров.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
