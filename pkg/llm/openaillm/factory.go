package openaillm

import (
	"frevagpt/pkg/llm"
)

// Factory creates OpenAI clients from a provider group configuration.
type Factory struct{}

// Create implements llm.ProviderFactory.
func (f *Factory) Create(group llm.ProviderGroupConfig) (map[string]llm.Client, error) {
	apiKey := ""
	if len(group.APIKeys) > 0 {
		apiKey = group.APIKeys[0]
	}

	clients := make(map[string]llm.Client, len(group.Models))
	for _, model := range group.Models {
		clients[model] = NewClient(apiKey, model, group.BaseURL)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("openai", &Factory{})
}
