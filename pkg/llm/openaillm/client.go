package openaillm

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"frevagpt/pkg/llm"
)

// Client wraps the official OpenAI Go SDK behind the llm.Client interface.
// It also serves any OpenAI-compatible endpoint when a base URL is given.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a client bound to one model.
func NewClient(apiKey, model, baseURL string) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)
	return &Client{
		client: &client,
		model:  model,
	}
}

// StreamChat opens a streaming chat completion and forwards every upstream
// event as an llm.StreamDelta. Parallel tool calls are disabled in the
// request; if the provider sends several in one delta anyway, only the first
// is forwarded and the count is reported on the delta.
func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts llm.Options) (<-chan llm.StreamDelta, error) {
	params := openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(c.model),
		Messages:         convertMessages(messages),
		N:                openai.Int(1),
		MaxTokens:        openai.Int(opts.MaxTokens),
		Temperature:      openai.Float(opts.Temperature),
		FrequencyPenalty: openai.Float(opts.FrequencyPenalty),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
		params.ParallelToolCalls = openai.Bool(false)
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
	}

	deltaCh := make(chan llm.StreamDelta, 100)

	go func() {
		defer close(deltaCh)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			if len(event.Choices) == 0 {
				continue
			}
			choice := event.Choices[0]

			var delta llm.StreamDelta

			// The SDK cannot distinguish "no content field" from an empty
			// string, so an empty text delta is only forwarded when neither a
			// tool call nor a finish reason is present. That keeps the
			// keep-alive semantics of the wire protocol intact.
			if choice.Delta.Content != "" {
				text := choice.Delta.Content
				delta.Text = &text
			}

			if len(choice.Delta.ToolCalls) > 0 {
				tc := choice.Delta.ToolCalls[0]
				delta.ToolCall = &llm.ToolCallDelta{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
					Parallel:  len(choice.Delta.ToolCalls),
				}
			}

			if choice.FinishReason != "" {
				delta.FinishReason = normalizeFinishReason(choice.FinishReason)
			}

			if delta.Text == nil && delta.ToolCall == nil && delta.FinishReason == llm.FinishNone {
				empty := ""
				delta.Text = &empty
			}

			deltaCh <- delta
		}

		if err := stream.Err(); err != nil {
			deltaCh <- llm.StreamDelta{Err: fmt.Errorf("openai stream: %w", err)}
		}
	}()

	return deltaCh, nil
}

// Complete performs a one-shot, non-streaming completion. Used by the topic
// summarizer.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, maxTokens int64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            convertMessages(messages),
		N:                   openai.Int(1),
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: empty choice list")
	}
	return resp.Choices[0].Message.Content, nil
}

func convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	var items []openai.ChatCompletionMessageParamUnion

	for _, m := range messages {
		switch m.Role {
		case llm.RoleTool:
			items = append(items, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Role: "tool",
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
					ToolCallID: m.ToolCallID,
				},
			})

		case llm.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				var toolCalls []openai.ChatCompletionMessageToolCallUnionParam
				for _, tc := range m.ToolCalls {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID:   tc.ID,
							Type: "function",
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: tc.Arguments,
							},
						},
					})
				}
				items = append(items, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Role:      "assistant",
						ToolCalls: toolCalls,
					},
				})
				continue
			}
			items = append(items, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role: "assistant",
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})

		case llm.RoleSystem:
			sys := &openai.ChatCompletionSystemMessageParam{
				Role: "system",
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(m.Content),
				},
			}
			if m.Name != "" {
				sys.Name = openai.String(m.Name)
			}
			items = append(items, openai.ChatCompletionMessageParamUnion{OfSystem: sys})

		default: // user
			usr := &openai.ChatCompletionUserMessageParam{
				Role: "user",
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(m.Content),
				},
			}
			if m.Name != "" {
				usr.Name = openai.String(m.Name)
			}
			items = append(items, openai.ChatCompletionMessageParamUnion{OfUser: usr})
		}
	}

	return items
}

func convertTools(tools []llm.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	var items []openai.ChatCompletionToolUnionParam
	for _, t := range tools {
		items = append(items, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.Parameters),
				},
			},
		})
	}
	return items
}

// normalizeFinishReason converts the provider-specific finish_reason to the
// normalized lowercase format.
func normalizeFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "stop":
		return llm.FinishStop
	case "length":
		return llm.FinishLength
	case "content_filter":
		return llm.FinishContentFilter
	case "tool_calls":
		return llm.FinishToolCalls
	case "function_call":
		return llm.FinishFunctionCall
	default:
		return llm.FinishReason(reason)
	}
}
