package provider

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-6"
	defaultAnthropicMaxTokens = 4096
)

func init() {
	RegisterDriver("anthropic", newAnthropicProvider)
}

// anthropicProvider drives the Anthropic messages API and maps its SSE
// stream onto the StreamEvent tagged union.
type anthropicProvider struct {
	client    anthropic.Client
	modelName string
	maxTokens int
}

func newAnthropicProvider(ctx context.Context, cfg Config) (Provider, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}

	var opts []option.RequestOption
	opts = append(opts, option.WithAPIKey(cfg.APIKey))
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, option.WithRequestTimeout(60*time.Second))

	maxTokens := defaultAnthropicMaxTokens
	if v, ok := cfg.Settings["max_tokens"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxTokens = n
		}
	}

	return &anthropicProvider{
		client:    anthropic.NewClient(opts...),
		modelName: modelName,
		maxTokens: maxTokens,
	}, nil
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Stream(ctx context.Context, opts StreamOptions) (<-chan StreamEvent, error) {
	params := p.buildParams(opts)
	stream := p.client.Messages.NewStreaming(ctx, params)

	out := make(chan StreamEvent, 16)
	go p.pump(ctx, stream, out)
	return out, nil
}

func (p *anthropicProvider) buildParams(opts StreamOptions) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelName),
		MaxTokens: int64(p.maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(opts.Prompt))},
	}

	for _, tool := range opts.Tools {
		var schemaMap map[string]any
		if len(tool.InputSchema) > 0 {
			_ = json.Unmarshal(tool.InputSchema, &schemaMap)
		}
		inputSchema := anthropic.ToolInputSchemaParam{}
		if props, ok := schemaMap["properties"]; ok {
			inputSchema.Properties = props
		}
		toolParam := anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		params.Tools = append(params.Tools, toolParam)
	}

	return params
}

// pump translates Anthropic's SSE event stream into StreamEvents in the
// order the spec requires: SessionInit, then per-block deltas/completes
// and tool calls, a Usage event at the message delta, then a terminal Stop
// followed by the Result. A stream error instead ends with a Stop whose
// reason starts with "error:" and no Result.
func (p *anthropicProvider) pump(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- StreamEvent) {
	defer close(out)

	var (
		textBuf      strings.Builder
		fullText     strings.Builder
		toolID       string
		toolName     string
		toolArgs     strings.Builder
		lastToolArgs json.RawMessage
		inputUsage   int
	)

	send := func(e StreamEvent) bool {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for stream.Next() {
		if ctx.Err() != nil {
			return
		}
		event := stream.Current()

		switch event.Type {
		case "message_start":
			inputUsage = int(event.Message.Usage.InputTokens)
			if !send(StreamEvent{Kind: KindSessionInit, ProviderSessionID: event.Message.ID}) {
				return
			}

		case "content_block_start":
			cb := event.ContentBlock
			if cb.Type == "tool_use" {
				toolID, toolName = cb.ID, cb.Name
				toolArgs.Reset()
			}

		case "content_block_delta":
			delta := event.Delta
			switch delta.Type {
			case "text_delta":
				textBuf.WriteString(delta.Text)
				fullText.WriteString(delta.Text)
				if !send(StreamEvent{Kind: KindTextDelta, Text: delta.Text}) {
					return
				}
			case "thinking_delta":
				if !send(StreamEvent{Kind: KindThinkingDelta, Thinking: delta.Thinking}) {
					return
				}
			case "input_json_delta":
				toolArgs.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if toolID != "" {
				lastToolArgs = json.RawMessage(toolArgs.String())
				if !send(StreamEvent{
					Kind:         KindToolCall,
					ToolCallID:   toolID,
					ToolName:     toolName,
					ToolArgsJSON: lastToolArgs,
				}) {
					return
				}
				toolID = ""
			} else if textBuf.Len() > 0 {
				if !send(StreamEvent{Kind: KindTextComplete, Text: textBuf.String()}) {
					return
				}
				textBuf.Reset()
			}

		case "message_delta":
			if !send(StreamEvent{
				Kind:         KindUsage,
				InputTokens:  inputUsage,
				OutputTokens: int(event.Usage.OutputTokens),
			}) {
				return
			}

		case "message_stop":
			send(StreamEvent{Kind: KindStop, StopReason: "end_turn"})
			send(StreamEvent{Kind: KindResult, Result: AssembleResult(fullText.String(), lastToolArgs)})
			return
		}
	}

	if err := stream.Err(); err != nil {
		send(StreamEvent{Kind: KindStop, StopReason: "error:" + Classify("anthropic", err).Error()})
	}
}

