package catalog

import "strings"

// Providers understood by the ai service.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// Model is one selectable entry of the model picker.
type Model struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Provider string `json:"provider"`
	Default  bool   `json:"default,omitempty"`
}

// Seed returns the built-in model list for a provider. Ark has none because its
// model identifiers are per-account endpoint IDs.
func Seed(provider string) []Model {
	switch provider {
	case ProviderGemini:
		return []Model{
			{ID: "gemini-2.5-flash", Label: "Gemini 2.5 Flash", Provider: ProviderGemini, Default: true},
			{ID: "gemini-2.0-pro-exp-02-05", Label: "Gemini 2.0 Pro (experimental)", Provider: ProviderGemini},
			{ID: "gemini-1.5-pro", Label: "Gemini 1.5 Pro", Provider: ProviderGemini},
		}
	case ProviderOpenAI:
		return []Model{
			{ID: "gpt-4o-mini", Label: "GPT-4o mini", Provider: ProviderOpenAI, Default: true},
			{ID: "gpt-4o", Label: "GPT-4o", Provider: ProviderOpenAI},
		}
	default:
		return nil
	}
}

// FromIDs builds a model list from configured identifiers; the first one becomes
// the default.
func FromIDs(provider string, ids []string) []Model {
	models := make([]Model, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		models = append(models, Model{
			ID:       id,
			Label:    id,
			Provider: provider,
			Default:  len(models) == 0,
		})
	}
	return models
}
