package llm

import (
	"fmt"
	"log/slog"

	jsoniter "github.com/json-iterator/go"
)

// ClientSet holds every initialized model client plus the catalog order the
// frontend sees. The first catalog entry is the default chatbot.
type ClientSet struct {
	clients map[string]Client
	catalog []string
}

// NewFromConfig instantiates clients for every provider group in the raw
// "llm" section of the application config. Groups with unknown provider types
// or failing factories are skipped with a log line so a single misconfigured
// provider cannot take the whole backend down.
func NewFromConfig(rawLLM jsoniter.RawMessage) (*ClientSet, error) {
	if len(rawLLM) == 0 {
		return nil, fmt.Errorf("missing 'llm' config")
	}

	var groups []ProviderGroupConfig
	if err := jsoniter.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %w", err)
	}

	set := &ClientSet{clients: make(map[string]Client)}
	for _, group := range groups {
		slog.Info("Loading LLM group", "type", group.Type, "models", len(group.Models))

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown provider type", "type", group.Type)
			continue
		}

		clients, err := factory.Create(group)
		if err != nil {
			slog.Error("Failed to create clients", "type", group.Type, "error", err)
			continue
		}

		for _, model := range group.Models {
			client, ok := clients[model]
			if !ok {
				continue
			}
			if _, dup := set.clients[model]; dup {
				slog.Warn("Duplicate model in LLM config, keeping the first", "model", model)
				continue
			}
			set.clients[model] = client
			set.catalog = append(set.catalog, model)
		}
	}

	if len(set.catalog) == 0 {
		return nil, fmt.Errorf("no LLM clients could be initialized")
	}

	slog.Info("LLM clients initialized", "count", len(set.catalog), "default", set.catalog[0])
	return set, nil
}

// Default returns the default model name (the first catalog entry).
func (s *ClientSet) Default() string {
	return s.catalog[0]
}

// Catalog returns the model names in configuration order.
func (s *ClientSet) Catalog() []string {
	return append([]string{}, s.catalog...)
}

// Select returns the client for the named model, falling back to the default
// when the name is unknown or empty.
func (s *ClientSet) Select(model string) (string, Client) {
	if client, ok := s.clients[model]; ok {
		return model, client
	}
	if model != "" {
		slog.Debug("Unknown chatbot requested, falling back to default", "requested", model)
	}
	return s.catalog[0], s.clients[s.catalog[0]]
}

// NewClientSet builds a set directly from a model->client map and catalog
// order. Used by tests and by callers that construct clients manually.
func NewClientSet(clients map[string]Client, catalog []string) *ClientSet {
	return &ClientSet{clients: clients, catalog: catalog}
}
