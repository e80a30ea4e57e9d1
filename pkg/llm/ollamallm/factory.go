package ollamallm

import (
	"log/slog"

	"frevagpt/pkg/llm"
)

// Factory creates Ollama clients from a provider group configuration.
type Factory struct{}

// Create implements llm.ProviderFactory. Models that fail to initialize are
// skipped so one broken endpoint does not block the rest of the catalog.
func (f *Factory) Create(group llm.ProviderGroupConfig) (map[string]llm.Client, error) {
	clients := make(map[string]llm.Client, len(group.Models))
	for _, model := range group.Models {
		client, err := NewClient(model, group.BaseURL)
		if err != nil {
			slog.Error("Failed to create Ollama client", "model", model, "error", err)
			continue
		}
		clients[model] = client
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("ollama", &Factory{})
}
