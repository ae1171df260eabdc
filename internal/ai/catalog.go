package ai

import "github.com/taskrelay/server/internal/modules/model"

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
)

// providerPriority is the order used to pick a default service.
var providerPriority = []Provider{ProviderAnthropic, ProviderOpenAI, ProviderGoogle}

func (p Provider) DisplayName() string {
	switch p {
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderGoogle:
		return "Google"
	}
	return string(p)
}

func (p Provider) priority() int {
	for i, q := range providerPriority {
		if q == p {
			return i
		}
	}
	return len(providerPriority)
}

type ModelInfo struct {
	Provider  Provider `json:"provider"`
	Name      string   `json:"name"`
	Title     string   `json:"title"`
	Available bool     `json:"available"`
}

func (m ModelInfo) Descriptor() model.ModelDescriptor {
	return model.ModelDescriptor{Provider: string(m.Provider), Name: m.Name, Title: m.Title}
}

var catalog = map[Provider][]ModelInfo{
	ProviderAnthropic: {
		{Provider: ProviderAnthropic, Name: "claude-opus-4-20250514", Title: "Claude Opus 4"},
		{Provider: ProviderAnthropic, Name: "claude-sonnet-4-20250514", Title: "Claude Sonnet 4"},
	},
	ProviderOpenAI: {
		{Provider: ProviderOpenAI, Name: "gpt-4o", Title: "GPT-4o"},
		{Provider: ProviderOpenAI, Name: "gpt-4o-mini", Title: "GPT-4o Mini"},
		{Provider: ProviderOpenAI, Name: "gpt-4-turbo", Title: "GPT-4 Turbo"},
		{Provider: ProviderOpenAI, Name: "gpt-3.5-turbo", Title: "GPT-3.5 Turbo"},
	},
	ProviderGoogle: {
		{Provider: ProviderGoogle, Name: "gemini-1.5-pro", Title: "Gemini 1.5 Pro"},
		{Provider: ProviderGoogle, Name: "gemini-1.5-flash", Title: "Gemini 1.5 Flash"},
		{Provider: ProviderGoogle, Name: "gemini-2.0-flash-exp", Title: "Gemini 2.0 Flash (Experimental)"},
	},
}

var defaultModels = map[Provider]string{
	ProviderAnthropic: "claude-opus-4-20250514",
	ProviderOpenAI:    "gpt-4o",
	ProviderGoogle:    "gemini-1.5-pro",
}

// Catalog returns a copy of the static model list for p with the given availability.
func Catalog(p Provider, available bool) []ModelInfo {
	src := catalog[p]
	out := make([]ModelInfo, len(src))
	for i, m := range src {
		m.Available = available
		out[i] = m
	}
	return out
}

func DefaultModel(p Provider) string {
	return defaultModels[p]
}

// LookupModel finds an exact model name in the static catalogs.
func LookupModel(name string) (ModelInfo, bool) {
	for _, p := range providerPriority {
		for _, m := range catalog[p] {
			if m.Name == name {
				return m, true
			}
		}
	}
	return ModelInfo{}, false
}

func inCatalog(p Provider, name string) bool {
	for _, m := range catalog[p] {
		if m.Name == name {
			return true
		}
	}
	return false
}
