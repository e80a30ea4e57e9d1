package geminillm

import (
	"context"
	"log/slog"

	"frevagpt/pkg/llm"
)

// Factory creates Gemini clients from a provider group configuration.
type Factory struct{}

// Create implements llm.ProviderFactory.
func (f *Factory) Create(group llm.ProviderGroupConfig) (map[string]llm.Client, error) {
	apiKey := ""
	if len(group.APIKeys) > 0 {
		apiKey = group.APIKeys[0]
	}

	clients := make(map[string]llm.Client, len(group.Models))
	for _, model := range group.Models {
		client, err := NewClient(context.Background(), apiKey, model)
		if err != nil {
			slog.Error("Failed to create Gemini client", "model", model, "error", err)
			continue
		}
		clients[model] = client
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("gemini", &Factory{})
}
