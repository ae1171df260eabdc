package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/modules/model"
)

func newTestRouter(anthropicKey, openaiKey, googleKey string) *Router {
	log := zap.NewNop()
	// deliberately out of priority order
	return NewRouter(log,
		NewGoogleService(Options{APIKey: googleKey}, log),
		NewOpenAIService(Options{APIKey: openaiKey}, log),
		NewAnthropicService(Options{APIKey: anthropicKey}, log),
	)
}

func TestRouter_ServiceForModel(t *testing.T) {
	tests := []struct {
		name         string
		router       *Router
		model        string
		wantProvider Provider
		wantKind     Kind
		wantStatus   int
	}{
		{
			name:         "configured openai model",
			router:       newTestRouter("", "sk-openai", ""),
			model:        "gpt-4o",
			wantProvider: ProviderOpenAI,
		},
		{
			name:       "known model of unconfigured provider",
			router:     newTestRouter("", "sk-openai", ""),
			model:      "claude-opus-4-20250514",
			wantKind:   KindProviderUnavailable,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown model",
			router:     newTestRouter("a", "b", "c"),
			model:      "llama-3",
			wantKind:   KindInvalidModel,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "prefix of a known model is not a match",
			router:     newTestRouter("a", "b", "c"),
			model:      "gpt-4",
			wantKind:   KindInvalidModel,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty name",
			router:     newTestRouter("a", "b", "c"),
			model:      "",
			wantKind:   KindInvalidModel,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:         "google model",
			router:       newTestRouter("a", "b", "c"),
			model:        "gemini-2.0-flash-exp",
			wantProvider: ProviderGoogle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 3 {
				svc, err := tt.router.ServiceForModel(tt.model)
				if tt.wantKind == "" {
					require.NoError(t, err)
					assert.Equal(t, tt.wantProvider, svc.Provider())
					continue
				}
				require.Error(t, err)
				var aiErr *Error
				require.True(t, errors.As(err, &aiErr))
				assert.Equal(t, tt.wantKind, aiErr.Kind)
				assert.Equal(t, tt.wantStatus, aiErr.HTTPStatus())
			}
		})
	}
}

func TestRouter_UnavailableMessageNamesCredential(t *testing.T) {
	r := newTestRouter("", "sk-openai", "")
	_, err := r.ServiceForModel("claude-sonnet-4-20250514")
	require.Error(t, err)
	assert.Equal(t, "Anthropic API key not configured", err.Error())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidModel)
}

func TestRouter_DefaultService(t *testing.T) {
	tests := []struct {
		name      string
		router    *Router
		wantModel string
		wantErr   bool
	}{
		{name: "all configured", router: newTestRouter("a", "b", "c"), wantModel: "claude-opus-4-20250514"},
		{name: "openai and google", router: newTestRouter("", "b", "c"), wantModel: "gpt-4o"},
		{name: "only openai", router: newTestRouter("", "b", ""), wantModel: "gpt-4o"},
		{name: "only google", router: newTestRouter("", "", "c"), wantModel: "gemini-1.5-pro"},
		{name: "none", router: newTestRouter("", "", ""), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, modelName, err := tt.router.DefaultService()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrNoProviders)
				var aiErr *Error
				require.True(t, errors.As(err, &aiErr))
				assert.Equal(t, http.StatusServiceUnavailable, aiErr.HTTPStatus())
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, modelName)
			assert.True(t, svc.IsAvailable())
		})
	}
}

func TestRouter_ProvidersAndModels(t *testing.T) {
	r := newTestRouter("a", "", "c")

	assert.True(t, r.IsAvailable())
	assert.Equal(t, []Provider{ProviderAnthropic, ProviderGoogle}, r.AvailableProviders())

	models := r.ListAllModels()
	require.Len(t, models, 5)
	for _, m := range models {
		assert.True(t, m.Available)
		assert.NotEqual(t, ProviderOpenAI, m.Provider)
	}
	assert.Equal(t, "claude-opus-4-20250514", models[0].Name)

	empty := newTestRouter("", "", "")
	assert.False(t, empty.IsAvailable())
	assert.Empty(t, empty.AvailableProviders())
	assert.Empty(t, empty.ListAllModels())
}

func TestRouter_DuplicateProviderIgnored(t *testing.T) {
	log := zap.NewNop()
	r := NewRouter(log,
		NewOpenAIService(Options{APIKey: "first"}, log),
		NewOpenAIService(Options{APIKey: ""}, log),
	)
	assert.Equal(t, []Provider{ProviderOpenAI}, r.AvailableProviders())
	assert.Len(t, r.ListAllModels(), 4)
}

func TestRouter_ResolveDescriptor(t *testing.T) {
	r := newTestRouter("", "b", "")

	md, err := r.ResolveDescriptor("")
	require.NoError(t, err)
	assert.Equal(t, model.ModelDescriptor{Provider: "openai", Name: "gpt-4o", Title: "GPT-4o"}, md)

	md, err = r.ResolveDescriptor("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "GPT-4o Mini", md.Title)

	_, err = r.ResolveDescriptor("gemini-1.5-pro")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestRouter_GenerateResponsePropagatesRoutingErrors(t *testing.T) {
	r := newTestRouter("", "", "")
	_, err := r.GenerateResponse(context.Background(), "", nil, "", false)
	assert.ErrorIs(t, err, ErrNoProviders)

	_, err = r.GenerateResponse(context.Background(), "", nil, "not-a-model", false)
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestCatalog(t *testing.T) {
	assert.Len(t, Catalog(ProviderAnthropic, false), 2)
	assert.Len(t, Catalog(ProviderOpenAI, false), 4)
	assert.Len(t, Catalog(ProviderGoogle, false), 3)

	m, ok := LookupModel("gemini-2.0-flash-exp")
	require.True(t, ok)
	assert.Equal(t, "Gemini 2.0 Flash (Experimental)", m.Title)

	_, ok = LookupModel("gemini")
	assert.False(t, ok)

	// callers get copies
	c := Catalog(ProviderOpenAI, true)
	c[0].Name = "mutated"
	assert.Equal(t, "gpt-4o", Catalog(ProviderOpenAI, false)[0].Name)
}
