package provider

import (
	"fmt"
	"strings"

	"github.com/shaiso/Callflow/internal/domain"
)

// Selector выбирает провайдера для task.
//
// Порядок:
//  1. явный "provider" в model config (или в data);
//  2. "quality": "high" → direct;
//  3. провайдер по умолчанию (DEFAULT_CALL_PROVIDER);
//  4. первый провайдер из SelectionOrder, чей CanHandle принял data.
type Selector struct {
	registry    *Registry
	defaultKind Kind
}

// NewSelector создаёт Selector. defaultKind может быть пустым.
func NewSelector(registry *Registry, defaultKind Kind) *Selector {
	return &Selector{registry: registry, defaultKind: defaultKind}
}

// Registry возвращает реестр провайдеров.
func (s *Selector) Registry() *Registry {
	return s.registry
}

// Select возвращает Kind провайдера для data.
func (s *Selector) Select(data, modelConfig map[string]any) (Kind, error) {
	override := domain.StringField(modelConfig, "provider")
	if override == "" {
		override = domain.StringField(data, "provider")
	}
	if override != "" {
		kind := Kind(strings.ToLower(override))
		if !s.registry.Has(kind) {
			return "", fmt.Errorf("%w: %w: %s", ErrProviderSelection, ErrUnknownProvider, override)
		}
		return kind, nil
	}

	quality := domain.StringField(modelConfig, "quality")
	if quality == "" {
		quality = domain.StringField(data, "quality")
	}
	if strings.EqualFold(quality, "high") && s.registry.Has(KindDirect) {
		return KindDirect, nil
	}

	if s.defaultKind != "" && s.registry.Has(s.defaultKind) {
		return s.defaultKind, nil
	}

	for _, kind := range SelectionOrder {
		p, err := s.registry.Get(kind)
		if err != nil {
			continue
		}
		if p.CanHandle(data) {
			return kind, nil
		}
	}

	return "", ErrProviderSelection
}

// Resolve выбирает провайдера и возвращает его реализацию.
func (s *Selector) Resolve(data, modelConfig map[string]any) (Provider, error) {
	kind, err := s.Select(data, modelConfig)
	if err != nil {
		return nil, err
	}
	return s.registry.Get(kind)
}
