package graph

import (
	"context"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/nodes"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/tools"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/moderation"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

// Config holds everything needed to compose the full response graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat
// models, the tool registry and the moderation gate.
type Config struct {
	APIKey           string
	BaseURL          string
	AgentModel       model.AgentModelConfig
	Moderation       model.ModerationConfig
	Conversation     model.ConversationConfig
	Tools            model.ToolsConfig
	RetrievalTopK    int
	Store            model.LoanStore
	Retriever        model.Retriever
	ConversationRepo model.ConversationRepository
}

// GraphConfig holds all configuration needed to build the graph.
// EligibilityModel and EligibilityTools default to AgentModel and Executor.
type GraphConfig struct {
	AgentModel       einomodel.BaseChatModel
	AgentModelName   string
	Gate             *moderation.Gate
	Store            model.LoanStore
	Executor         *tools.Executor
	EligibilityModel einomodel.BaseChatModel
	EligibilityTools *tools.Executor
	MaxToolRounds    int
	MaxHistoryTokens int
	ModelCallTimeout time.Duration
}

// GraphBuilder handles the construction of the agent conversation graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.TurnInput, *schema.Message]
}

// BuildResponseGraph creates the Gemini models and tools, builds the graph and
// returns a Runner bound to the conversation repository.
func BuildResponseGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.Store == nil || cfg.Retriever == nil {
		return nil, fmt.Errorf("loan store and retriever are required")
	}

	client, err := nodes.NewGenAIClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		Client:     client,
		Agent:      &cfg.AgentModel,
		Moderation: &cfg.Moderation,
	})
	if err != nil {
		return nil, err
	}

	toolset, err := tools.NewLoanToolset(tools.Deps{
		Store:     cfg.Store,
		Retriever: cfg.Retriever,
		TopK:      cfg.RetrievalTopK,
	})
	if err != nil {
		return nil, err
	}
	registry, err := tools.NewRegistry(ctx, toolset...)
	if err != nil {
		return nil, err
	}
	if err := cms.BindToolsToAgentModel(ctx, registry.Infos()); err != nil {
		return nil, err
	}
	eligibilityRegistry, err := registry.Subset(tools.EligibilityToolNames...)
	if err != nil {
		return nil, err
	}
	eligibilityModel, err := cms.EligibilityModel(eligibilityRegistry.Infos())
	if err != nil {
		return nil, err
	}
	toolTimeout := ParseDuration(cfg.Tools.ToolCallTimeout, 15*time.Second)

	gate := moderation.NewGate(
		moderation.NewLLMDetector(cms.Moderation, cfg.Moderation.Threshold),
		ParseDuration(cfg.Moderation.Timeout, 10*time.Second),
		moderation.ParseFailPolicy(cfg.Moderation.FailPolicy),
	)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		AgentModel:       cms.Agent,
		AgentModelName:   cms.AgentModelName,
		Gate:             gate,
		Store:            cfg.Store,
		Executor:         tools.NewExecutor(registry, toolTimeout),
		EligibilityModel: eligibilityModel,
		EligibilityTools: tools.NewExecutor(eligibilityRegistry, toolTimeout),
		MaxToolRounds:    cfg.Tools.MaxRounds,
		MaxHistoryTokens: cfg.Conversation.MaxHistoryToken,
		ModelCallTimeout: ParseDuration(cfg.Tools.ModelCallTimeout, 60*time.Second),
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Strs("tools", registry.Names()).Msg("Response graph built successfully")
	return NewRunner(runnable, cfg.ConversationRepo, RunnerOptions{
		LockTimeout: ParseDuration(cfg.Conversation.LockTimeout, 30*time.Second),
	}), nil
}

// BuildGraph constructs and returns the compiled agent graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.AgentModel == nil {
		return nil, fmt.Errorf("agent model is nil")
	}
	if config.Gate == nil {
		return nil, fmt.Errorf("moderation gate is nil")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("loan store is nil")
	}
	if config.Executor == nil {
		return nil, fmt.Errorf("tool executor is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{EligibilityFrom: -1}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

func (b *GraphBuilder) stageConfig(cm einomodel.BaseChatModel) nodes.StageConfig {
	return nodes.StageConfig{
		ChatModel:        cm,
		ModelName:        b.config.AgentModelName,
		ModelCallTimeout: b.config.ModelCallTimeout,
		MaxToolRounds:    b.config.MaxToolRounds,
		MaxHistoryTokens: b.config.MaxHistoryTokens,
	}
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	advisory := b.stageConfig(b.config.AgentModel)
	eligibilityModel := b.config.EligibilityModel
	if eligibilityModel == nil {
		eligibilityModel = b.config.AgentModel
	}
	eligibility := b.stageConfig(eligibilityModel)
	eligibilityTools := b.config.EligibilityTools
	if eligibilityTools == nil {
		eligibilityTools = b.config.Executor
	}

	steps := []struct {
		name string
		add  func() error
	}{
		{nodes.NodeModeration, func() error {
			return b.graph.AddLambdaNode(nodes.NodeModeration,
				nodes.NewModerationNode(b.config.Gate),
				compose.WithStatePreHandler(nodes.NewModerationPreHandler()),
			)
		}},
		{nodes.NodeBlocked, func() error {
			return b.graph.AddLambdaNode(nodes.NodeBlocked, nodes.NewBlockedNode())
		}},
		{nodes.NodeAdvisory, func() error {
			return b.graph.AddLambdaNode(nodes.NodeAdvisory, nodes.NewAdvisoryNode(advisory))
		}},
		{nodes.NodeAdvisoryTools, func() error {
			return b.graph.AddLambdaNode(nodes.NodeAdvisoryTools, nodes.NewToolsNode(b.config.Executor, model.StageAdvisory))
		}},
		{nodes.NodeEligibility, func() error {
			return b.graph.AddLambdaNode(nodes.NodeEligibility, nodes.NewEligibilityNode(eligibility, b.config.Store))
		}},
		{nodes.NodeEligibilityTools, func() error {
			return b.graph.AddLambdaNode(nodes.NodeEligibilityTools, nodes.NewToolsNode(eligibilityTools, model.StageEligibility))
		}},
	}
	for _, s := range steps {
		if err := s.add(); err != nil {
			logx.Error().Err(err).Str("node", s.name).Msg("Error adding node")
			return fmt.Errorf("error adding node %s: %w", s.name, err)
		}
	}
	return nil
}

// addEdges creates the unconditional connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeModeration},
		{nodes.NodeBlocked, compose.END},
		{nodes.NodeAdvisoryTools, nodes.NodeAdvisory},
		{nodes.NodeEligibilityTools, nodes.NodeEligibility},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	moderationBranch := compose.NewGraphBranch(
		nodes.NewModerationCondition(),
		map[string]bool{
			nodes.NodeBlocked:  true,
			nodes.NodeAdvisory: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeModeration, moderationBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding moderation branch")
		return fmt.Errorf("error adding moderation branch: %w", err)
	}

	advisoryBranch := compose.NewGraphBranch(
		nodes.NewAdvisoryCondition(),
		map[string]bool{
			nodes.NodeAdvisoryTools: true,
			nodes.NodeEligibility:   true,
			compose.END:             true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeAdvisory, advisoryBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding advisory branch")
		return fmt.Errorf("error adding advisory branch: %w", err)
	}

	eligibilityBranch := compose.NewGraphBranch(
		nodes.NewEligibilityCondition(),
		map[string]bool{
			nodes.NodeEligibilityTools: true,
			compose.END:                true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeEligibility, eligibilityBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding eligibility branch")
		return fmt.Errorf("error adding eligibility branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *schema.Message], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(MaxRunSteps(b.config.MaxToolRounds)))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// MaxRunSteps bounds one turn: both stages may each run their full tool
// loop, and every round costs a stage step plus a tools step.
func MaxRunSteps(maxRounds int) int {
	if maxRounds <= 0 {
		maxRounds = nodes.DefaultMaxToolRounds
	}
	steps := 4*(maxRounds+1) + 8
	if steps < 20 {
		steps = 20
	}
	return steps
}

// ParseDuration parses s, falling back to def when s is empty or invalid.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		logx.Warn().Str("value", s).Dur("default", def).Msg("Invalid duration; using default")
		return def
	}
	return d
}
