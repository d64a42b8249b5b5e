package ragdex

import (
	"context"

	"go.uber.org/zap"
)

// EmbeddingResult is a computed embedding with token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder computes text embeddings. Implementations must be safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// Generator produces a text completion for a prompt. Only needed when the
// rerank stage is enabled.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Option configures the Engine.
type Option func(*engineConfig)

type engineConfig struct {
	driver    string
	addrs     []string
	password  string
	keyPrefix string

	embedder  Embedder
	generator Generator
	logger    *zap.Logger

	semanticWeight float64
	keywordWeight  float64
	mmrLambda      float64
	useMMR         *bool

	batchSize int
	workers   int
}

// WithMemoryStore selects the in-process store. This is the default.
func WithMemoryStore() Option {
	return func(c *engineConfig) {
		c.driver = "memory"
	}
}

// WithRedis selects a Redis/Valkey vector store backend.
func WithRedis(addr, password string) Option {
	return func(c *engineConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithKeyPrefix sets the Redis key prefix. Ignored by the memory store.
func WithKeyPrefix(prefix string) Option {
	return func(c *engineConfig) {
		c.keyPrefix = prefix
	}
}

// WithEmbedder sets the embedding provider. Required for both ingest and
// search.
func WithEmbedder(e Embedder) Option {
	return func(c *engineConfig) {
		c.embedder = e
	}
}

// WithGenerator sets the completion provider used by the rerank stage.
func WithGenerator(g Generator) Option {
	return func(c *engineConfig) {
		c.generator = g
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *engineConfig) {
		c.logger = l
	}
}

// WithWeights overrides the default fusion weights (0.7 semantic, 0.3
// keyword).
func WithWeights(semantic, keyword float64) Option {
	return func(c *engineConfig) {
		c.semanticWeight = semantic
		c.keywordWeight = keyword
	}
}

// WithMMR toggles the diversity stage and sets its lambda.
func WithMMR(enabled bool, lambda float64) Option {
	return func(c *engineConfig) {
		c.useMMR = &enabled
		c.mmrLambda = lambda
	}
}

// WithBatchSize sets the ingest chunk size (default 100).
func WithBatchSize(n int) Option {
	return func(c *engineConfig) {
		c.batchSize = n
	}
}

// WithWorkers sets the ingest embedding worker count (default 4).
func WithWorkers(n int) Option {
	return func(c *engineConfig) {
		c.workers = n
	}
}
