package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/slashbot/slashbot/pkg/models"
)

// Built-in provider ids.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// RegisterBuiltins installs the bundled providers into the registry.
func RegisterBuiltins(reg *Registry) error {
	builtins := []struct {
		def      Definition
		factory  Factory
		defaults CompletionDefaults
	}{
		{anthropicDefinition(), newAnthropicClient, CompletionDefaults{MaxTokens: 4096, Temperature: 1.0}},
		{openAIDefinition(), newOpenAIClient, CompletionDefaults{MaxTokens: 4096, Temperature: 1.0}},
		{googleDefinition(), newGoogleClient, CompletionDefaults{MaxTokens: 8192, Temperature: 1.0}},
	}
	for _, b := range builtins {
		if err := reg.Register(b.def, b.factory, b.defaults); err != nil {
			return err
		}
	}
	return nil
}

func anthropicDefinition() Definition {
	return Definition{
		ID:          ProviderAnthropic,
		PluginID:    "core",
		DisplayName: "Anthropic",
		Models: []Model{
			{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5", ContextWindow: 200000, Priority: 0, Capabilities: []string{"tools", "vision"}},
			{ID: "claude-opus-4-1", DisplayName: "Claude Opus 4.1", ContextWindow: 200000, Priority: 10, Capabilities: []string{"tools", "vision"}},
			{ID: "claude-3-5-haiku-latest", DisplayName: "Claude 3.5 Haiku", ContextWindow: 200000, Priority: 20, Capabilities: []string{"tools"}},
		},
		AuthHandlers:       []string{AuthOAuthPKCE, AuthAPIKey, AuthSetupToken, AuthClaudeCodeImport},
		PreferredAuthOrder: []string{AuthOAuthPKCE, AuthSetupToken, AuthAPIKey},
	}
}

func openAIDefinition() Definition {
	return Definition{
		ID:          ProviderOpenAI,
		PluginID:    "core",
		DisplayName: "OpenAI",
		Models: []Model{
			{ID: "gpt-4o", DisplayName: "GPT-4o", ContextWindow: 128000, Priority: 0, Capabilities: []string{"tools", "vision"}},
			{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", ContextWindow: 128000, Priority: 10, Capabilities: []string{"tools"}},
		},
		AuthHandlers:       []string{AuthAPIKey},
		PreferredAuthOrder: []string{AuthAPIKey},
	}
}

func googleDefinition() Definition {
	return Definition{
		ID:          ProviderGoogle,
		PluginID:    "core",
		DisplayName: "Google",
		Models: []Model{
			{ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", ContextWindow: 1048576, Priority: 0, Capabilities: []string{"tools", "vision"}},
			{ID: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", ContextWindow: 2097152, Priority: 10, Capabilities: []string{"tools", "vision"}},
		},
		AuthHandlers:       []string{AuthAPIKey},
		PreferredAuthOrder: []string{AuthAPIKey},
	}
}

type anthropicClient struct {
	client anthropic.Client
}

func newAnthropicClient(ctx context.Context, cfg ClientConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicClient{client: anthropic.NewClient(opts...)}, nil
}

func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	for _, t := range req.Tools {
		var schema struct {
			Properties any      `json:"properties"`
			Required   []string `json:"required"`
		}
		_ = json.Unmarshal(t.Parameters, &schema)
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}})
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content.ToText())
		switch m.Role {
		case models.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	out := &Completion{
		StopReason:   string(msg.StopReason),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			var args map[string]any
			_ = json.Unmarshal(block.Input, &args)
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}
	return out, nil
}

type openAIClient struct {
	client *openai.Client
}

func newOpenAIClient(ctx context.Context, cfg ClientConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	return &openAIClient{client: openai.NewClientWithConfig(conf)}, nil
}

func (c *openAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content.ToText()})
	}

	var specs []openai.Tool
	for _, t := range req.Tools {
		specs = append(specs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Tools:       specs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai completion: empty choices")
	}

	choice := resp.Choices[0]
	out := &Completion{
		Text:         choice.Message.Content,
		StopReason:   string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out, nil
}

type googleClient struct {
	client *genai.Client
}

func newGoogleClient(ctx context.Context, cfg ClientConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google client: %w", err)
	}
	return &googleClient{client: client}, nil
}

func (c *googleClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content.ToText(), role))
	}

	conf := &genai.GenerateContentConfig{}
	if req.System != "" {
		conf.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		conf.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != 0 {
		conf.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, t := range req.Tools {
			var schema any
			_ = json.Unmarshal(t.Parameters, &schema)
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: schema,
			})
		}
		conf.Tools = []*genai.Tool{tool}
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, conf)
	if err != nil {
		return nil, fmt.Errorf("google completion: %w", err)
	}

	out := &Completion{Text: resp.Text()}
	if len(resp.Candidates) > 0 {
		out.StopReason = string(resp.Candidates[0].FinishReason)
	}
	for _, fc := range resp.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
