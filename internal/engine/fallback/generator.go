package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/nextmove-ai/convocore/internal/engine/model"
	logx "github.com/nextmove-ai/convocore/pkg/logger"
)

// GeminiGenerator implements Generator on top of a Gemini chat model.
type GeminiGenerator struct {
	chatModel *gemini.ChatModel
	modelName string
}

// NewGeminiGenerator creates the Gemini client and chat model. Callers
// should treat a nil generator as "collaborator absent" and skip it.
func NewGeminiGenerator(ctx context.Context, apiKey, baseURL string, cfg model.GeneratorConfig) (*GeminiGenerator, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating generator model")
		return nil, fmt.Errorf("error creating generator model: %w", err)
	}

	return &GeminiGenerator{chatModel: chatModel, modelName: cfg.Model}, nil
}

// Generate sends the system prompt plus the short conversation history to
// the model and returns the generated text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, history []*schema.Message) (string, error) {
	messages := make([]*schema.Message, 0, len(history)+1)
	messages = append(messages, schema.SystemMessage(prompt))
	for _, m := range history {
		if m == nil || m.Content == "" {
			continue
		}
		messages = append(messages, m)
	}

	out, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if out == nil {
		return "", fmt.Errorf("generate: empty result")
	}

	logx.Debug().Str("model", g.modelName).Int("history", len(history)).Msg("generator produced fallback text")
	return strings.TrimSpace(out.Content), nil
}

var _ Generator = (*GeminiGenerator)(nil)
