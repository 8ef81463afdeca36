package upstream

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ArkGenerator answers prompts with a chat model instead of the hosted endpoint.
// Its replies use the {"response": "..."} layout so they flow through the same
// normalization as HTTP replies.
type ArkGenerator struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
	logger       zerolog.Logger
}

// NewArkGenerator compiles the system prompt, user prompt and chat model chain.
func NewArkGenerator(ctx context.Context, chatModel model.BaseChatModel, systemPrompt string, logger zerolog.Logger) (*ArkGenerator, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "compile chat chain")
	}

	return &ArkGenerator{
		chain:        runnable,
		systemPrompt: systemPrompt,
		logger:       logger,
	}, nil
}

type generated struct {
	Response string `json:"response"`
}

// Fetch runs the chain for prompt.
func (g *ArkGenerator) Fetch(ctx context.Context, query string) ([]byte, error) {
	msg, err := g.chain.Invoke(ctx, map[string]any{
		"system": g.systemPrompt,
		"query":  query,
	})
	if err != nil {
		return nil, errors.Wrap(err, "run chat chain")
	}
	if msg == nil {
		return nil, errors.New("chat model returned no message")
	}

	g.logger.Debug().Int("length", len(msg.Content)).Msg("chat model answered")
	return json.Marshal(generated{Response: msg.Content})
}

// Do wraps Fetch in a Response so the relay can serve the generator directly.
func (g *ArkGenerator) Do(ctx context.Context, query string) (*Response, error) {
	body, err := g.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: http.StatusOK, ContentType: "application/json", Body: body}, nil
}
