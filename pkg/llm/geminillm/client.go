package geminillm

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"

	"frevagpt/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client streams chat completions from the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a client bound to one model.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

// StreamChat implements llm.Client. Gemini delivers function calls whole, so
// a single ToolCallDelta carries the complete arguments. Stream ids are
// synthesized because the API omits them.
func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts llm.Options) (<-chan llm.StreamDelta, error) {
	contents, systemInstruction := convertMessages(messages)

	temp := float32(opts.Temperature)
	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             convertTools(tools),
		MaxOutputTokens:   int32(opts.MaxTokens),
		Temperature:       &temp,
	}

	deltaCh := make(chan llm.StreamDelta, 100)

	go func() {
		defer close(deltaCh)

		iter := c.client.Models.GenerateContentStream(ctx, c.model, contents, config)

		sawToolCall := false
		callCounter := 0

		for resp, err := range iter {
			if err != nil {
				deltaCh <- llm.StreamDelta{Err: fmt.Errorf("gemini stream: %w", err)}
				return
			}
			for _, candidate := range resp.Candidates {
				if candidate.Content != nil {
					for _, part := range candidate.Content.Parts {
						if part.Text != "" && !part.Thought {
							text := part.Text
							deltaCh <- llm.StreamDelta{Text: &text}
						}
						if part.FunctionCall != nil {
							sawToolCall = true
							argsB, _ := json.Marshal(part.FunctionCall.Args)
							callCounter++
							deltaCh <- llm.StreamDelta{ToolCall: &llm.ToolCallDelta{
								ID:        fmt.Sprintf("gemini_call_%d", callCounter),
								Name:      part.FunctionCall.Name,
								Arguments: string(argsB),
								Parallel:  1,
							}}
						}
					}
				}
				if candidate.FinishReason != "" {
					deltaCh <- llm.StreamDelta{
						FinishReason: normalizeFinishReason(candidate.FinishReason, sawToolCall),
					}
				}
			}
		}
	}()

	return deltaCh, nil
}

func convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			// Gemini takes one system instruction; concatenate if several.
			if systemInstruction == nil {
				systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
			} else {
				systemInstruction.Parts = append(systemInstruction.Parts, &genai.Part{Text: "\n" + m.Content})
			}

		case llm.RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     m.ToolCallID,
						Response: map[string]any{"output": m.Content},
					},
				}},
			})

		case llm.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}

		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}

	return contents, systemInstruction
}

func convertTools(tools []llm.ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var fds []*genai.FunctionDeclaration
	for _, t := range tools {
		fds = append(fds, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

func normalizeFinishReason(reason genai.FinishReason, sawToolCall bool) llm.FinishReason {
	if sawToolCall {
		return llm.FinishToolCalls
	}
	switch reason {
	case genai.FinishReasonStop:
		return llm.FinishStop
	case genai.FinishReasonMaxTokens:
		return llm.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return llm.FinishContentFilter
	default:
		return llm.FinishStop
	}
}
