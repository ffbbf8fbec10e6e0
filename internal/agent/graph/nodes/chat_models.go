package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	Client     *genai.Client
	Agent      *model.AgentModelConfig
	Moderation *model.ModerationConfig
}

// ChatModels holds the reasoning model and the moderation classifier. The
// eligibility stage runs a copy of the reasoning model with its own tools.
type ChatModels struct {
	Agent               *gemini.ChatModel
	Moderation          *gemini.ChatModel
	AgentModelName      string
	ModerationModelName string
}

// NewGenAIClient creates the Gemini API client shared by chat and embedding models.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
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
	return client, nil
}

// NewChatModels creates the agent and moderation chat models.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Client == nil || config.Agent == nil || config.Moderation == nil {
		return nil, fmt.Errorf("chat model config is incomplete")
	}

	agent, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.Agent.Model,
		Temperature: &config.Agent.Temperature,
		MaxTokens:   &config.Agent.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}

	// classification needs neither creativity nor long answers
	var (
		modTemperature float32 = 0
		modMaxTokens           = 512
	)
	moderationModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.Moderation.Model,
		Temperature: &modTemperature,
		MaxTokens:   &modMaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating moderation model")
		return nil, fmt.Errorf("error creating moderation model: %w", err)
	}

	return &ChatModels{
		Agent:               agent,
		Moderation:          moderationModel,
		AgentModelName:      config.Agent.Model,
		ModerationModelName: config.Moderation.Model,
	}, nil
}

// BindToolsToAgentModel binds the registry's tools to the agent model.
func (cm *ChatModels) BindToolsToAgentModel(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Agent.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Int("tool_count", len(tools)).Msg("Successfully bound tools to agent model")
	return nil
}

// EligibilityModel returns a copy of the agent model bound only to tools,
// leaving the advisory binding untouched.
func (cm *ChatModels) EligibilityModel(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	m, err := cm.Agent.WithTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind eligibility tools")
		return nil, fmt.Errorf("failed to bind eligibility tools: %w", err)
	}
	logx.Debug().Int("tool_count", len(tools)).Msg("Bound eligibility tools")
	return m, nil
}
