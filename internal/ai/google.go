package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/taskrelay/server/internal/infra/httpclient"
	"github.com/taskrelay/server/internal/modules/model"
	"github.com/taskrelay/server/internal/pkg/utils"
	"go.uber.org/zap"
)

const (
	googleBaseURL         = "https://generativelanguage.googleapis.com/v1beta"
	googleTemperature     = 0.7
	googleMaxOutputTokens = 8192
)

type GoogleService struct {
	apiKey string
	client *httpclient.Client
	log    *zap.Logger
}

func NewGoogleService(opts Options, log *zap.Logger) *GoogleService {
	if log == nil {
		log = zap.NewNop()
	}
	base := opts.BaseURL
	if base == "" {
		base = googleBaseURL
	}
	return &GoogleService{
		apiKey: opts.APIKey,
		client: httpclient.New("google", base, opts.timeout(), log),
		log:    log,
	}
}

func (s *GoogleService) Provider() Provider { return ProviderGoogle }

func (s *GoogleService) IsAvailable() bool { return s.apiKey != "" }

func (s *GoogleService) ListModels() []ModelInfo {
	return Catalog(ProviderGoogle, s.IsAvailable())
}

type googleInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type googleFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type googleFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type googlePart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *googleInlineData       `json:"inlineData,omitempty"`
	FunctionCall     *googleFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *googleFunctionResponse `json:"functionResponse,omitempty"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type googleTool struct {
	FunctionDeclarations []googleFunctionDeclaration `json:"functionDeclarations"`
}

type googleGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type googleRequest struct {
	Contents          []googleContent        `json:"contents"`
	SystemInstruction *googleContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig"`
	Tools             []googleTool           `json:"tools,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (s *GoogleService) GenerateResponse(ctx context.Context, systemPrompt string, messages []model.Message, modelName string, useTools bool) ([]model.ContentBlock, error) {
	modelName, err := prepare(ctx, ProviderGoogle, s.apiKey, modelName)
	if err != nil {
		return nil, err
	}

	req := buildGoogleRequest(systemPrompt, messages, useTools)
	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Provider: ProviderGoogle, Message: "encode request", Err: err}
	}

	s.log.Debug("google request", zap.String("model", modelName), zap.Int("contents", len(req.Contents)))
	resp, err := s.client.PostRaw(ctx, "/models/"+modelName+":generateContent", map[string]string{"x-goog-api-key": s.apiKey}, body)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			return nil, statusError(ProviderGoogle, se.StatusCode, upstreamMessage(se.Body))
		}
		return nil, transportError(ctx, ProviderGoogle, err)
	}

	var out googleResponse
	if err := sonic.Unmarshal(resp, &out); err != nil {
		return nil, &Error{Kind: KindSerialization, Provider: ProviderGoogle, Message: "decode response", Err: err}
	}
	if len(out.Candidates) == 0 {
		return nil, &Error{Kind: KindSerialization, Provider: ProviderGoogle, Message: "response has no candidates"}
	}

	return convertGoogleParts(out.Candidates[0].Content.Parts)
}

func buildGoogleRequest(systemPrompt string, messages []model.Message, useTools bool) googleRequest {
	req := googleRequest{
		Contents: make([]googleContent, 0, len(messages)),
		GenerationConfig: googleGenerationConfig{
			Temperature:     googleTemperature,
			MaxOutputTokens: googleMaxOutputTokens,
		},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &googleContent{Parts: []googlePart{{Text: systemPrompt}}}
	}
	if useTools {
		decls := make([]googleFunctionDeclaration, 0)
		for _, t := range AgentTools() {
			decls = append(decls, googleFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
		}
		req.Tools = []googleTool{{FunctionDeclarations: decls}}
	}

	// functionResponse needs the function name, tool_result only has the call id
	callNames := make(map[string]string)
	for i := range messages {
		for _, b := range messages[i].Blocks() {
			if b.Type == model.BlockToolUse {
				callNames[b.ID] = b.Name
			}
		}
	}

	for i := range messages {
		role := "user"
		if messages[i].Role == model.RoleAssistant {
			role = "model"
		}
		var parts []googlePart
		for _, b := range messages[i].Blocks() {
			if p, ok := googlePartFor(b, callNames); ok {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		req.Contents = append(req.Contents, googleContent{Role: role, Parts: parts})
	}
	return req
}

func googlePartFor(b model.ContentBlock, callNames map[string]string) (googlePart, bool) {
	switch b.Type {
	case model.BlockText:
		return googlePart{Text: b.Text}, true
	case model.BlockImage, model.BlockDocument:
		if b.Source == nil {
			return googlePart{}, false
		}
		return googlePart{InlineData: &googleInlineData{MimeType: b.Source.MediaType, Data: b.Source.Data}}, true
	case model.BlockToolUse:
		args := b.Input
		if args == nil {
			args = map[string]any{}
		}
		return googlePart{FunctionCall: &googleFunctionCall{Name: b.Name, Args: args}}, true
	case model.BlockToolResult:
		var texts []string
		for _, c := range b.Content {
			if c.Type == model.BlockText {
				texts = append(texts, c.Text)
			}
		}
		resp := map[string]any{"content": strings.Join(texts, "\n")}
		if b.IsError != nil && *b.IsError {
			resp["is_error"] = true
		}
		name := callNames[b.ToolUseID]
		if name == "" {
			name = b.ToolUseID
		}
		return googlePart{FunctionResponse: &googleFunctionResponse{Name: name, Response: resp}}, true
	}
	// thinking blocks have no Gemini equivalent
	return googlePart{}, false
}

func convertGoogleParts(parts []googlePart) ([]model.ContentBlock, error) {
	blocks := make([]model.ContentBlock, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.FunctionCall != nil:
			id, err := utils.GenerateKey("call_", 8)
			if err != nil {
				return nil, &Error{Kind: KindSerialization, Provider: ProviderGoogle, Message: "generate call id", Err: err}
			}
			blocks = append(blocks, model.NewToolUseBlock(id, p.FunctionCall.Name, p.FunctionCall.Args))
		case p.Text != "":
			blocks = append(blocks, model.NewTextBlock(p.Text))
		}
	}
	return blocks, nil
}
