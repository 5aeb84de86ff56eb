package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/fxsettle/confirm-cli/pkg/anthropic"
	"github.com/fxsettle/confirm-cli/pkg/nvidia"
)

// ModelInfo identifies which provider and model produced a parse.
type ModelInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Parser turns extracted confirmation text into the structured payload.
// Implementations make no guarantee about payload nesting beyond "valid
// JSON object"; the deriver normalizes defensively.
type Parser interface {
	ParseConfirmation(ctx context.Context, text, modelID string) (map[string]any, ModelInfo, error)
}

// ParserRegistry routes model IDs to provider clients.
type ParserRegistry struct {
	anthropic anthropic.Client // nil when unconfigured
	nvidia    nvidia.Client    // nil when unconfigured
}

// NewParserRegistry creates a registry over the configured providers. A nil
// client disables its provider.
func NewParserRegistry(anthropicClient anthropic.Client, nvidiaClient nvidia.Client) *ParserRegistry {
	return &ParserRegistry{anthropic: anthropicClient, nvidia: nvidiaClient}
}

// For returns the parser handling the given model ID. Claude model IDs map
// to the Anthropic client; everything else (NIM uses org/model IDs) maps to
// the NVIDIA client.
func (r *ParserRegistry) For(modelID string) (Parser, error) {
	if modelID == "" {
		return nil, eris.New("pipeline: model id is required")
	}
	if strings.HasPrefix(modelID, "claude") {
		if r.anthropic == nil {
			return nil, eris.Errorf("pipeline: anthropic is not configured for model %q", modelID)
		}
		return &anthropicParser{client: r.anthropic}, nil
	}
	if r.nvidia == nil {
		return nil, eris.Errorf("pipeline: nvidia is not configured for model %q", modelID)
	}
	return &nvidiaParser{client: r.nvidia}, nil
}

type anthropicParser struct {
	client anthropic.Client
}

func (p *anthropicParser) ParseConfirmation(ctx context.Context, text, modelID string) (map[string]any, ModelInfo, error) {
	info := ModelInfo{Provider: "anthropic", Model: modelID}

	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     modelID,
		MaxTokens: 4096,
		System:    confirmationPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: text}},
	})
	if err != nil {
		return nil, info, err
	}
	resp.Usage.LogCost(modelID, "parse_confirmation")

	payload, err := decodeModelJSON(resp.Text())
	if err != nil {
		return nil, info, err
	}
	return payload, info, nil
}

type nvidiaParser struct {
	client nvidia.Client
}

func (p *nvidiaParser) ParseConfirmation(ctx context.Context, text, modelID string) (map[string]any, ModelInfo, error) {
	info := ModelInfo{Provider: "nvidia", Model: modelID}

	temperature := 0.6
	topP := 0.7
	maxTokens := 4096
	resp, err := p.client.ChatCompletion(ctx, nvidia.ChatCompletionRequest{
		Model: modelID,
		Messages: []nvidia.Message{
			{Role: "system", Content: confirmationPrompt},
			{Role: "user", Content: text},
		},
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, info, err
	}
	if len(resp.Choices) == 0 {
		return nil, info, eris.New("pipeline: empty completion from nvidia")
	}

	payload, err := decodeModelJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, info, err
	}
	return payload, info, nil
}
