package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/joho/godotenv"
)

// Config is the application-level configuration, mapped from config.json.
// The LLM and MCP sections stay raw here; their owners parse them.
type Config struct {
	// LLM holds the provider group array for the chatbot catalog.
	LLM jsoniter.RawMessage `json:"llm"`
	// MCP holds the list of MCP server connections, if any.
	MCP jsoniter.RawMessage `json:"mcp,omitempty"`
}

// Env carries everything the backend reads from the process environment.
// AUTH_KEY is the only hard requirement.
type Env struct {
	AuthKey         string
	Host            string
	Port            string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GeminiAPIKey    string
	ThreadsDir      string
}

// LoadEnv reads the .env file into the process environment and collects the
// backend's variables. The .env search starts at the working directory, not
// where the executable lies.
func LoadEnv() Env {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "No .env file loaded: %v. Falling back to the process environment.\n", err)
	}

	return Env{
		AuthKey:         os.Getenv("AUTH_KEY"),
		Host:            envOr("HOST", "localhost"),
		Port:            envOr("PORT", "8502"),
		MongoURI:        os.Getenv("MONGODB_URI"),
		MongoDatabase:   envOr("MONGODB_DATABASE_NAME", "frevagpt"),
		MongoCollection: envOr("MONGODB_COLLECTION_NAME", "threads"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		ThreadsDir:      envOr("THREADS_DIR", "threads"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load reads config.json when present; otherwise the default catalog built
// from the environment is used so a bare deployment still serves the stock
// models.
func Load(env Env) (*Config, error) {
	data, err := os.ReadFile("config.json")
	if os.IsNotExist(err) {
		return defaultConfig(env), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(cfg.LLM) == 0 {
		return nil, fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	return &cfg, nil
}

// defaultConfig mirrors the stock chatbot catalog: the OpenAI models first
// (the very first entry is the default chatbot), then the local Ollama
// models, then Gemini when a key is available.
func defaultConfig(env Env) *Config {
	groups := []map[string]any{
		{
			"type":     "openai",
			"api_keys": []string{env.OpenAIAPIKey},
			"base_url": env.OpenAIBaseURL,
			"models":   []string{"gpt-4o-mini", "gpt-4o", "o1-mini"},
		},
		{
			"type":   "ollama",
			"models": []string{"llama3.2", "llama3.1:70b", "llama3.1:8b", "gemma2", "qwen2.5:3b", "qwen2.5", "qwen2.5:32b"},
		},
	}
	if env.GeminiAPIKey != "" {
		groups = append(groups, map[string]any{
			"type":     "gemini",
			"api_keys": []string{env.GeminiAPIKey},
			"models":   []string{"gemini-2.0-flash"},
		})
	}

	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(groups)
	if err != nil {
		// A static literal cannot fail to marshal.
		panic(err)
	}
	return &Config{LLM: raw}
}
