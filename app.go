package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/nodes"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/repo"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/core"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/rag"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/store"
	"github.com/Chative-core-poc-v1/loanadvisor/pkg/database"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
	pkgredis "github.com/Chative-core-poc-v1/loanadvisor/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Env         string `envconfig:"APP_ENV" default:"development"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	// Infrastructure
	Redis    pkgredis.Config
	Database database.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Agent        model.AgentModelConfig
	Moderation   model.ModerationConfig
	Conversation model.ConversationConfig
	Tools        model.ToolsConfig
	RAG          model.RAGConfig
}

func loadConfig() (*AppConfig, error) {
	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Env)})
	return &cfg, nil
}

// app owns every long-lived resource of a command.
type app struct {
	cfg      *AppConfig
	db       *sql.DB
	store    *store.SQLStore
	vectorDB *sql.DB
	rag      *rag.Service
	rdb      *goredis.Client
	runner   graph.Runner
	metrics  *http.Server
}

// newApp opens the databases and the knowledge base. The agent graph is
// only built when withAgent is set.
func newApp(ctx context.Context, withAgent bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openKnowledgeBase(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if withAgent {
		if err := a.buildAgent(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.serveMetrics()
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	db, err := a.cfg.Database.Open(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.store = store.New(db, a.cfg.Database.Driver)
	if err := a.store.Migrate(ctx); err != nil {
		return err
	}
	logx.Debug().Str("driver", a.cfg.Database.Driver).Msg("Connected to database")
	return nil
}

func (a *app) openKnowledgeBase(ctx context.Context) error {
	vcfg := database.Config{Driver: database.DriverSQLite, DSN: a.cfg.RAG.VectorDSN, MaxOpenConns: 1}
	vdb, err := vcfg.Open(ctx)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	a.vectorDB = vdb
	vs := rag.NewVectorStore(vdb)
	if err := vs.Migrate(ctx); err != nil {
		return err
	}

	client, err := nodes.NewGenAIClient(ctx, a.cfg.APIKey, a.cfg.BaseURL)
	if err != nil {
		return err
	}
	embedder, err := rag.NewGeminiEmbedder(client, a.cfg.RAG.EmbeddingModel)
	if err != nil {
		return err
	}
	a.rag = rag.NewService(embedder, vs, rag.NewSplitter(a.cfg.RAG.ChunkSize, a.cfg.RAG.ChunkOverlap))
	return nil
}

func (a *app) conversationRepo(ctx context.Context) (model.ConversationRepository, error) {
	switch strings.ToLower(a.cfg.Conversation.Backend) {
	case "memory":
		logx.Warn().Msg("Using in-memory conversation store; history is lost on exit")
		return repo.NewMemoryConversationRepository(), nil
	case "redis", "":
		rdb, err := a.cfg.Redis.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialise redis client: %w", err)
		}
		a.rdb = rdb
		logx.Debug().Msg("Connected to Redis successfully")
		return repo.NewRedisConversationRepository(rdb, graph.ParseDuration(a.cfg.Conversation.TTL, 24*time.Hour)), nil
	default:
		return nil, fmt.Errorf("unknown conversation backend %q", a.cfg.Conversation.Backend)
	}
}

func (a *app) buildAgent(ctx context.Context) error {
	convRepo, err := a.conversationRepo(ctx)
	if err != nil {
		return err
	}
	runner, err := graph.BuildResponseGraph(ctx, graph.Config{
		APIKey:           a.cfg.APIKey,
		BaseURL:          a.cfg.BaseURL,
		AgentModel:       a.cfg.Agent,
		Moderation:       a.cfg.Moderation,
		Conversation:     a.cfg.Conversation,
		Tools:            a.cfg.Tools,
		RetrievalTopK:    a.cfg.RAG.TopK,
		Store:            a.store,
		Retriever:        a.rag,
		ConversationRepo: convRepo,
	})
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	a.runner = runner
	return nil
}

func (a *app) serveMetrics() {
	if a.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Str("addr", a.cfg.MetricsAddr).Msg("Metrics server stopped")
		}
	}()
	logx.Info().Str("addr", a.cfg.MetricsAddr).Msg("Serving metrics")
}

func (a *app) Close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metrics.Shutdown(ctx)
		cancel()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.vectorDB != nil {
		_ = a.vectorDB.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	} else if a.db != nil {
		_ = a.db.Close()
	}
}
