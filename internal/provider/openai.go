package provider

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

func init() {
	RegisterDriver("openai", newOpenAIProvider)
}

// openaiProvider drives the Chat Completions streaming API and maps its
// delta chunks onto the StreamEvent tagged union.
type openaiProvider struct {
	client    *openai.Client
	modelName string
}

func newOpenAIProvider(ctx context.Context, cfg Config) (Provider, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &openaiProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		modelName: modelName,
	}, nil
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) Stream(ctx context.Context, opts StreamOptions) (<-chan StreamEvent, error) {
	req := openai.ChatCompletionRequest{
		Model: p.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: opts.Prompt},
		},
		Stream: true,
	}
	for _, tool := range opts.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, Classify("openai", err)
	}

	out := make(chan StreamEvent, 16)
	go p.pump(ctx, stream, out)
	return out, nil
}

func (p *openaiProvider) pump(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- StreamEvent) {
	defer close(out)
	defer stream.Close()

	send := func(e StreamEvent) bool {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var (
		textBuf  strings.Builder
		toolID   string
		toolName string
		toolArgs string
	)

	// finish emits the turn's terminal events exactly once, in spec order:
	// any pending tool call, then Stop, then the Result it precedes.
	finish := func(stopReason string) {
		if toolID != "" {
			send(StreamEvent{Kind: KindToolCall, ToolCallID: toolID, ToolName: toolName, ToolArgsJSON: []byte(toolArgs)})
		}
		send(StreamEvent{Kind: KindStop, StopReason: stopReason})
		send(StreamEvent{Kind: KindResult, Result: AssembleResult(textBuf.String(), []byte(toolArgs))})
	}

	for {
		if ctx.Err() != nil {
			return
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			finish("stop")
			return
		}
		if err != nil {
			send(StreamEvent{Kind: KindStop, StopReason: "error:" + Classify("openai", err).Error()})
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if delta.Content != "" {
			textBuf.WriteString(delta.Content)
			if !send(StreamEvent{Kind: KindTextDelta, Text: delta.Content}) {
				return
			}
		}
		for _, tc := range delta.ToolCalls {
			if tc.ID != "" {
				toolID = tc.ID
			}
			if tc.Function.Name != "" {
				toolName = tc.Function.Name
			}
			toolArgs += tc.Function.Arguments
		}

		if resp.Choices[0].FinishReason != "" {
			if toolID != "" {
				send(StreamEvent{Kind: KindToolCall, ToolCallID: toolID, ToolName: toolName, ToolArgsJSON: []byte(toolArgs)})
				toolID = ""
			}
			if resp.Usage != nil {
				send(StreamEvent{
					Kind:         KindUsage,
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
				})
			}
		}
	}
}
