package model

// ================ Config ================
type ConversationConfig struct {
	Backend         string `envconfig:"CONVERSATION_BACKEND" default:"redis"`
	TTL             string `envconfig:"CONVERSATION_TTL" default:"24h"`
	MaxHistoryToken int    `envconfig:"CONVERSATION_MAX_HISTORY_TOKENS" default:"1024"`
	LockTimeout     string `envconfig:"CONVERSATION_LOCK_TIMEOUT" default:"30s"`
}

type ToolsConfig struct {
	MaxRounds        int    `envconfig:"TOOLS_MAX_ROUNDS" default:"5"`
	ModelCallTimeout string `envconfig:"MODEL_CALL_TIMEOUT" default:"60s"`
	ToolCallTimeout  string `envconfig:"TOOL_CALL_TIMEOUT" default:"15s"`
}

type AgentModelConfig struct {
	Model       string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"AGENT_MAX_TOKENS" default:"4096"`
	Temperature float32 `envconfig:"AGENT_TEMPERATURE" default:"0.1"`
}

type ModerationConfig struct {
	Model      string  `envconfig:"MODERATION_MODEL" default:"gemini-2.5-flash-lite"`
	Timeout    string  `envconfig:"MODERATION_TIMEOUT" default:"10s"`
	FailPolicy string  `envconfig:"MODERATION_FAIL_POLICY" default:"closed"`
	Threshold  float64 `envconfig:"MODERATION_THRESHOLD" default:"0.6"`
}

type RAGConfig struct {
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	ChunkSize      int    `envconfig:"RAG_CHUNK_SIZE" default:"1000"`
	ChunkOverlap   int    `envconfig:"RAG_CHUNK_OVERLAP" default:"200"`
	TopK           int    `envconfig:"RAG_TOP_K" default:"3"`
	DocumentsDir   string `envconfig:"RAG_DOCUMENTS_DIR" default:"documents"`
	VectorDSN      string `envconfig:"RAG_VECTOR_DSN" default:"file:data/vectors.db?_pragma=busy_timeout(5000)"`
}
