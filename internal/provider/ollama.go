package provider

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const defaultOllamaBaseURL = "http://localhost:11434"

func init() {
	RegisterDriver("ollama", newOllamaProvider)
}

// ollamaProvider drives a local Ollama server's chat streaming endpoint.
type ollamaProvider struct {
	client    *api.Client
	modelName string
}

func newOllamaProvider(ctx context.Context, cfg Config) (Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout:   300 * time.Second,
		Transport: &validatingTransport{inner: http.DefaultTransport, provider: "ollama"},
	}

	return &ollamaProvider{
		client:    api.NewClient(u, httpClient),
		modelName: cfg.Model,
	}, nil
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Stream(ctx context.Context, opts StreamOptions) (<-chan StreamEvent, error) {
	out := make(chan StreamEvent, 16)

	req := &api.ChatRequest{
		Model: p.modelName,
		Messages: []api.Message{
			{Role: "user", Content: opts.Prompt},
		},
		Stream: boolPtr(true),
	}

	go func() {
		defer close(out)
		send := func(e StreamEvent) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var textBuf strings.Builder

		err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				textBuf.WriteString(resp.Message.Content)
				if !send(StreamEvent{Kind: KindTextDelta, Text: resp.Message.Content}) {
					return ctx.Err()
				}
			}
			if resp.Done {
				send(StreamEvent{
					Kind:         KindUsage,
					InputTokens:  resp.PromptEvalCount,
					OutputTokens: resp.EvalCount,
				})
			}
			return nil
		})
		if err != nil {
			send(StreamEvent{Kind: KindStop, StopReason: "error:" + Classify("ollama", err).Error()})
			return
		}
		send(StreamEvent{Kind: KindStop, StopReason: "stop"})
		send(StreamEvent{Kind: KindResult, Result: AssembleResult(textBuf.String(), nil)})
	}()

	return out, nil
}

func boolPtr(b bool) *bool { return &b }

// validatingTransport detects non-JSON error responses from an Ollama
// backend (e.g. a reverse proxy returning plain text instead of the
// expected ndjson stream), surfacing them as classifiable errors instead
// of a downstream JSON decode failure.
type validatingTransport struct {
	inner    http.RoundTripper
	provider string
}

func (t *validatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &Error{Provider: t.provider, Code: CodeTransient, Cause: err}
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &Error{Provider: t.provider, Code: CodeUnknown, Cause: errBadResponse(strings.TrimSpace(string(body)))}
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "ndjson") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &Error{Provider: t.provider, Code: CodeUnknown, Cause: errBadResponse(strings.TrimSpace(string(body)))}
	}

	return resp, nil
}

type errBadResponse string

func (e errBadResponse) Error() string { return "unexpected response: " + string(e) }
