package ai

import (
	"context"
	"sort"

	"github.com/taskrelay/server/internal/modules/model"
	"go.uber.org/zap"
)

// Router resolves model names to provider services. It is immutable after
// construction and safe for concurrent use.
type Router struct {
	services []Service
	byModel  map[string]Service
	log      *zap.Logger
}

// NewRouter indexes every service's static catalog, configured or not, so
// that an unconfigured provider can be told apart from an unknown model.
func NewRouter(log *zap.Logger, services ...Service) *Router {
	if log == nil {
		log = zap.NewNop()
	}

	seen := make(map[Provider]bool)
	ordered := make([]Service, 0, len(services))
	for _, s := range services {
		if s == nil || seen[s.Provider()] {
			continue
		}
		seen[s.Provider()] = true
		ordered = append(ordered, s)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Provider().priority() < ordered[j].Provider().priority()
	})

	byModel := make(map[string]Service)
	for _, s := range ordered {
		for _, m := range s.ListModels() {
			if _, dup := byModel[m.Name]; !dup {
				byModel[m.Name] = s
			}
		}
	}

	r := &Router{services: ordered, byModel: byModel, log: log}
	log.Sugar().Infow("ai router ready", "providers", r.AvailableProviders())
	return r
}

func (r *Router) IsAvailable() bool {
	for _, s := range r.services {
		if s.IsAvailable() {
			return true
		}
	}
	return false
}

// AvailableProviders lists configured providers in priority order.
func (r *Router) AvailableProviders() []Provider {
	out := make([]Provider, 0, len(r.services))
	for _, s := range r.services {
		if s.IsAvailable() {
			out = append(out, s.Provider())
		}
	}
	return out
}

// ListAllModels concatenates the models of every configured provider.
func (r *Router) ListAllModels() []ModelInfo {
	var out []ModelInfo
	for _, s := range r.services {
		if s.IsAvailable() {
			out = append(out, s.ListModels()...)
		}
	}
	return out
}

func (r *Router) ServiceForModel(name string) (Service, error) {
	s, ok := r.byModel[name]
	if !ok {
		return nil, invalidModel(name)
	}
	if !s.IsAvailable() {
		return nil, providerUnavailable(s.Provider())
	}
	return s, nil
}

// DefaultService returns the first configured provider and its default model.
func (r *Router) DefaultService() (Service, string, error) {
	for _, s := range r.services {
		if s.IsAvailable() {
			return s, DefaultModel(s.Provider()), nil
		}
	}
	return nil, "", noProviders()
}

// Resolve picks the service for name, or the default service when name is empty.
func (r *Router) Resolve(name string) (Service, string, error) {
	if name == "" {
		return r.DefaultService()
	}
	s, err := r.ServiceForModel(name)
	if err != nil {
		return nil, "", err
	}
	return s, name, nil
}

// ResolveDescriptor is Resolve returning the catalog entry for the chosen model.
func (r *Router) ResolveDescriptor(name string) (model.ModelDescriptor, error) {
	s, resolved, err := r.Resolve(name)
	if err != nil {
		return model.ModelDescriptor{}, err
	}
	for _, m := range s.ListModels() {
		if m.Name == resolved {
			return m.Descriptor(), nil
		}
	}
	return model.ModelDescriptor{Provider: string(s.Provider()), Name: resolved}, nil
}

func (r *Router) GenerateResponse(ctx context.Context, systemPrompt string, messages []model.Message, modelName string, useTools bool) ([]model.ContentBlock, error) {
	s, resolved, err := r.Resolve(modelName)
	if err != nil {
		return nil, err
	}
	r.log.Debug("routing generation", zap.String("provider", string(s.Provider())), zap.String("model", resolved))
	return s.GenerateResponse(ctx, systemPrompt, messages, resolved, useTools)
}
