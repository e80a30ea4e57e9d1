package ollamallm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"

	"frevagpt/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client streams chat completions from a local or remote Ollama instance.
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a client bound to one model. With an empty baseURL the
// endpoint is taken from the OLLAMA_HOST environment.
func NewClient(model, baseURL string) (*Client, error) {
	// Generation can take minutes on large local models, so the HTTP client
	// must not impose a response timeout of its own.
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 0,
		},
		Timeout: 0,
	}

	var client *api.Client
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama base URL: %w", err)
		}
		client = api.NewClient(u, httpClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	return &Client{client: client, model: model}, nil
}

// StreamChat implements llm.Client. Ollama delivers tool calls whole rather
// than fragmented, so a single ToolCallDelta carries the complete arguments
// and the finish reason is normalized to tool_calls.
func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts llm.Options) (<-chan llm.StreamDelta, error) {
	deltaCh := make(chan llm.StreamDelta, 100)

	stream := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: convertMessages(messages),
		Tools:    convertTools(tools),
		Stream:   &stream,
		Options: map[string]any{
			"num_predict":       opts.MaxTokens,
			"temperature":       opts.Temperature,
			"frequency_penalty": opts.FrequencyPenalty,
		},
	}

	go func() {
		defer close(deltaCh)

		sawToolCall := false
		callCounter := 0

		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				text := resp.Message.Content
				deltaCh <- llm.StreamDelta{Text: &text}
			}

			if len(resp.Message.ToolCalls) > 0 {
				sawToolCall = true
				tc := resp.Message.ToolCalls[0]
				argsB, _ := json.Marshal(tc.Function.Arguments)
				callCounter++
				deltaCh <- llm.StreamDelta{ToolCall: &llm.ToolCallDelta{
					ID:        fmt.Sprintf("ollama_call_%d", callCounter),
					Name:      tc.Function.Name,
					Arguments: string(argsB),
					Parallel:  len(resp.Message.ToolCalls),
				}}
			}

			if resp.Done {
				deltaCh <- llm.StreamDelta{FinishReason: normalizeDoneReason(resp.DoneReason, sawToolCall)}
			}
			return nil
		})
		if err != nil {
			deltaCh <- llm.StreamDelta{Err: fmt.Errorf("ollama stream: %w", err)}
		}
	}()

	return deltaCh, nil
}

func convertMessages(messages []llm.Message) []api.Message {
	var items []api.Message
	for _, m := range messages {
		msg := api.Message{
			Role:    m.Role,
			Content: m.Content,
		}
		for _, tc := range m.ToolCalls {
			var args api.ToolCallFunctionArguments
			if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
				continue
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		items = append(items, msg)
	}
	return items
}

// convertTools goes through a JSON round-trip because the SDK's schema types
// are not directly constructible from a generic parameters map.
func convertTools(tools []llm.ToolDefinition) []api.Tool {
	if len(tools) == 0 {
		return nil
	}

	raw := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		raw = append(raw, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}

	rawB, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var apiTools []api.Tool
	if err := json.Unmarshal(rawB, &apiTools); err != nil {
		return nil
	}
	return apiTools
}

func normalizeDoneReason(reason string, sawToolCall bool) llm.FinishReason {
	if sawToolCall {
		return llm.FinishToolCalls
	}
	switch reason {
	case "length":
		return llm.FinishLength
	default:
		return llm.FinishStop
	}
}
