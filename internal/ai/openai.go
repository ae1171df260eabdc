package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/taskrelay/server/internal/modules/model"
	"go.uber.org/zap"
)

const openaiMaxTokens = 4096

type OpenAIService struct {
	apiKey string
	client openai.Client
	log    *zap.Logger
}

func NewOpenAIService(opts Options, log *zap.Logger) *OpenAIService {
	if log == nil {
		log = zap.NewNop()
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(opts.timeout()),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIService{
		apiKey: opts.APIKey,
		client: openai.NewClient(reqOpts...),
		log:    log,
	}
}

func (s *OpenAIService) Provider() Provider { return ProviderOpenAI }

func (s *OpenAIService) IsAvailable() bool { return s.apiKey != "" }

func (s *OpenAIService) ListModels() []ModelInfo {
	return Catalog(ProviderOpenAI, s.IsAvailable())
}

func (s *OpenAIService) GenerateResponse(ctx context.Context, systemPrompt string, messages []model.Message, modelName string, useTools bool) ([]model.ContentBlock, error) {
	modelName, err := prepare(ctx, ProviderOpenAI, s.apiKey, modelName)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(modelName),
		Messages:  buildOpenAIMessages(systemPrompt, messages),
		MaxTokens: openai.Int(openaiMaxTokens),
	}

	s.log.Debug("openai request", zap.String("model", modelName), zap.Int("messages", len(params.Messages)), zap.Bool("use_tools", useTools))
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, statusError(ProviderOpenAI, apiErr.StatusCode, openaiErrorMessage(apiErr))
		}
		return nil, transportError(ctx, ProviderOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindSerialization, Provider: ProviderOpenAI, Message: "response has no choices"}
	}

	reply := resp.Choices[0].Message
	var blocks []model.ContentBlock
	if reply.Content != "" {
		blocks = append(blocks, model.NewTextBlock(reply.Content))
	}
	for _, tc := range reply.ToolCalls {
		input := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := sonic.UnmarshalString(tc.Function.Arguments, &input); err != nil {
				return nil, &Error{Kind: KindSerialization, Provider: ProviderOpenAI, Message: "decode tool arguments", Err: err}
			}
		}
		blocks = append(blocks, model.NewToolUseBlock(tc.ID, tc.Function.Name, input))
	}
	return blocks, nil
}

func buildOpenAIMessages(systemPrompt string, messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}

	for i := range messages {
		blocks := messages[i].Blocks()
		if messages[i].Role == model.RoleAssistant {
			var texts []string
			for _, b := range blocks {
				if t, ok := openaiText(b); ok {
					texts = append(texts, t)
				}
			}
			if len(texts) > 0 {
				out = append(out, openai.AssistantMessage(strings.Join(texts, "\n")))
			}
			continue
		}

		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(blocks))
		for _, b := range blocks {
			if b.Type == model.BlockImage && b.Source != nil {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: fmt.Sprintf("data:%s;base64,%s", b.Source.MediaType, b.Source.Data),
				}))
				continue
			}
			if t, ok := openaiText(b); ok {
				parts = append(parts, openai.TextContentPart(t))
			}
		}
		if len(parts) > 0 {
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

func openaiErrorMessage(apiErr *openai.Error) string {
	if apiErr.Message != "" {
		return apiErr.Message
	}
	if apiErr.Response == nil || apiErr.Response.Body == nil {
		return ""
	}
	body, err := io.ReadAll(apiErr.Response.Body)
	if err != nil {
		return ""
	}
	return upstreamMessage(body)
}

// openaiText renders a block as plain text; thinking blocks are dropped.
func openaiText(b model.ContentBlock) (string, bool) {
	switch b.Type {
	case model.BlockText:
		return b.Text, b.Text != ""
	case model.BlockDocument:
		return "[Document: " + b.Name + "]", true
	case model.BlockImage:
		return "[Image]", true
	case model.BlockToolUse:
		input, _ := sonic.MarshalString(b.Input)
		return fmt.Sprintf("[Tool use: %s(%s)]", b.Name, input), true
	case model.BlockToolResult:
		var texts []string
		for _, c := range b.Content {
			if c.Type == model.BlockText {
				texts = append(texts, c.Text)
			}
		}
		prefix := "Tool result"
		if b.IsError != nil && *b.IsError {
			prefix = "Tool error"
		}
		return fmt.Sprintf("[%s for %s]: %s", prefix, b.ToolUseID, strings.Join(texts, "\n")), true
	}
	return "", false
}
