package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/taskrelay/server/internal/infra/httpclient"
	"github.com/taskrelay/server/internal/modules/model"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const (
	anthropicBaseURL   = "https://api.anthropic.com"
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 8192 * 2
)

var ephemeral = map[string]any{"type": "ephemeral"}

type AnthropicService struct {
	apiKey string
	client *httpclient.Client
	log    *zap.Logger
}

func NewAnthropicService(opts Options, log *zap.Logger) *AnthropicService {
	if log == nil {
		log = zap.NewNop()
	}
	base := opts.BaseURL
	if base == "" {
		base = anthropicBaseURL
	}
	return &AnthropicService{
		apiKey: opts.APIKey,
		client: httpclient.New("anthropic", base, opts.timeout(), log),
		log:    log,
	}
}

func (s *AnthropicService) Provider() Provider { return ProviderAnthropic }

func (s *AnthropicService) IsAvailable() bool { return s.apiKey != "" }

func (s *AnthropicService) ListModels() []ModelInfo {
	return Catalog(ProviderAnthropic, s.IsAvailable())
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []map[string]any `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    []map[string]any   `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []ToolDefinition   `json:"tools,omitempty"`
	Thinking  map[string]any     `json:"thinking"`
}

func (s *AnthropicService) GenerateResponse(ctx context.Context, systemPrompt string, messages []model.Message, modelName string, useTools bool) ([]model.ContentBlock, error) {
	modelName, err := prepare(ctx, ProviderAnthropic, s.apiKey, modelName)
	if err != nil {
		return nil, err
	}

	body, err := s.buildRequest(systemPrompt, messages, modelName, useTools)
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Provider: ProviderAnthropic, Message: "encode request", Err: err}
	}

	headers := map[string]string{
		"x-api-key":         s.apiKey,
		"anthropic-version": anthropicVersion,
	}

	s.log.Debug("anthropic request", zap.String("model", modelName), zap.Int("messages", len(messages)))
	resp, err := s.client.PostRaw(ctx, "/v1/messages", headers, body)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			return nil, statusError(ProviderAnthropic, se.StatusCode, upstreamMessage(se.Body))
		}
		return nil, transportError(ctx, ProviderAnthropic, err)
	}

	return s.parseResponse(resp)
}

func (s *AnthropicService) buildRequest(systemPrompt string, messages []model.Message, modelName string, useTools bool) ([]byte, error) {
	req := anthropicRequest{
		Model:     modelName,
		MaxTokens: anthropicMaxTokens,
		Messages:  make([]anthropicMessage, 0, len(messages)),
		Thinking:  map[string]any{"type": "disabled"},
	}
	if systemPrompt != "" {
		req.System = []map[string]any{{"type": "text", "text": systemPrompt, "cache_control": ephemeral}}
	}
	if useTools {
		req.Tools = AgentTools()
	}

	for i := range messages {
		msg := &messages[i]
		// a user turn never carries tool_use; such rows are stale executor output
		if msg.Role == model.RoleUser && msg.HasToolUse() {
			continue
		}
		blocks := msg.Blocks()
		if len(blocks) == 0 {
			continue
		}
		content := make([]map[string]any, 0, len(blocks))
		for _, b := range blocks {
			content = append(content, anthropicBlock(b))
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: anthropicRole(msg.Role), Content: content})
	}

	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, err
	}

	if n := len(req.Messages); n > 0 {
		last := len(req.Messages[n-1].Content) - 1
		body, err = sjson.SetBytes(body, fmt.Sprintf("messages.%d.content.%d.cache_control", n-1, last), ephemeral)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func anthropicRole(r model.Role) string {
	if r == model.RoleAssistant {
		return "assistant"
	}
	return "user"
}

func anthropicSource(src *model.MediaSource) map[string]any {
	if src == nil {
		return map[string]any{"type": "base64"}
	}
	return map[string]any{"type": "base64", "media_type": src.MediaType, "data": src.Data}
}

func anthropicBlock(b model.ContentBlock) map[string]any {
	switch b.Type {
	case model.BlockImage:
		return map[string]any{"type": "image", "source": anthropicSource(b.Source)}
	case model.BlockDocument:
		out := map[string]any{"type": "document", "source": anthropicSource(b.Source)}
		if b.Name != "" {
			out["title"] = b.Name
		}
		return out
	case model.BlockToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return map[string]any{"type": "tool_use", "id": b.ID, "name": b.Name, "input": input}
	case model.BlockToolResult:
		content := make([]map[string]any, 0, len(b.Content))
		for _, c := range b.Content {
			content = append(content, anthropicBlock(c))
		}
		out := map[string]any{"type": "tool_result", "tool_use_id": b.ToolUseID, "content": content}
		if b.IsError != nil {
			out["is_error"] = *b.IsError
		}
		return out
	case model.BlockThinking:
		return map[string]any{"type": "thinking", "thinking": b.Thinking, "signature": b.Signature}
	case model.BlockRedactedThinking:
		return map[string]any{"type": "redacted_thinking", "data": b.Data}
	}
	return map[string]any{"type": "text", "text": b.Text}
}

func (s *AnthropicService) parseResponse(body []byte) ([]model.ContentBlock, error) {
	content := gjson.GetBytes(body, "content")
	if !content.IsArray() {
		return nil, &Error{Kind: KindSerialization, Provider: ProviderAnthropic, Message: "response has no content"}
	}

	var (
		blocks []model.ContentBlock
		decErr error
	)
	content.ForEach(func(_, item gjson.Result) bool {
		switch model.BlockType(item.Get("type").String()) {
		case model.BlockText, model.BlockToolUse, model.BlockThinking, model.BlockRedactedThinking:
		default:
			s.log.Debug("skipping unsupported anthropic block", zap.String("type", item.Get("type").String()))
			return true
		}
		var b model.ContentBlock
		if err := sonic.UnmarshalString(item.Raw, &b); err != nil {
			decErr = err
			return false
		}
		blocks = append(blocks, b)
		return true
	})
	if decErr != nil {
		return nil, &Error{Kind: KindSerialization, Provider: ProviderAnthropic, Message: "decode response", Err: decErr}
	}
	return blocks, nil
}
