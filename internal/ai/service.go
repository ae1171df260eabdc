package ai

import (
	"context"
	"time"

	"github.com/taskrelay/server/internal/modules/model"
)

const defaultRequestTimeout = 300 * time.Second

// Service is the capability every provider adapter implements.
type Service interface {
	Provider() Provider
	IsAvailable() bool
	ListModels() []ModelInfo
	// GenerateResponse runs one completion. An empty modelName selects the
	// adapter default. Cancelling ctx abandons the call.
	GenerateResponse(ctx context.Context, systemPrompt string, messages []model.Message, modelName string, useTools bool) ([]model.ContentBlock, error)
}

// Options configure a provider adapter.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultRequestTimeout
	}
	return o.Timeout
}

// prepare performs the checks shared by all adapters before any I/O.
func prepare(ctx context.Context, p Provider, apiKey, modelName string) (string, error) {
	if apiKey == "" {
		return "", providerUnavailable(p)
	}
	if modelName == "" {
		modelName = DefaultModel(p)
	}
	if !inCatalog(p, modelName) {
		return "", invalidModel(modelName)
	}
	if err := ctx.Err(); err != nil {
		return "", transportError(ctx, p, err)
	}
	return modelName, nil
}
