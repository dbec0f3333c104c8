package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/snipvault/internal/inference"
	"github.com/dshills/snipvault/internal/metrics"
	"github.com/dshills/snipvault/internal/tokenizer"
	"github.com/dshills/snipvault/pkg/types"
)

// Config holds generator settings
type Config struct {
	Model     string // Version tag stamped on every embedding
	Dimension int
	MaxChars  int // Input is truncated to this many characters before tokenizing
	CacheSize int // Zero disables the text cache

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Generator produces normalized sentence embeddings from a tokenizer and an
// inference session. It is safe for concurrent use; forward passes are
// serialized.
type Generator struct {
	tokenizer tokenizer.Tokenizer
	cache     *Cache
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu      sync.Mutex // guards session and closed
	session inference.Session
	closed  bool
}

var _ Embedder = (*Generator)(nil)

// New creates a generator that owns session
func New(tok tokenizer.Tokenizer, session inference.Session, cfg Config) (*Generator, error) {
	if tok == nil || session == nil {
		return nil, fmt.Errorf("%w: tokenizer and session are required", ErrInvalidInput)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidInput)
	}
	if cfg.MaxChars <= 0 {
		return nil, fmt.Errorf("%w: max chars must be positive", ErrInvalidInput)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Generator{
		tokenizer: tok,
		session:   session,
		cfg:       cfg,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
	if cfg.CacheSize > 0 {
		g.cache = NewCache(cfg.CacheSize)
	}
	return g, nil
}

// Generate returns the embedding for text. Empty effective input yields the
// zero vector.
func (g *Generator) Generate(ctx context.Context, text string) ([]float32, error) {
	emb, err := g.generate(ctx, text)
	if err != nil {
		return nil, err
	}
	return emb.Vector, nil
}

func (g *Generator) generate(ctx context.Context, text string) (*Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text = types.TruncateChars(text, g.cfg.MaxChars)
	hash := ComputeHash(text)

	if g.cache != nil {
		if emb, ok := g.cache.Get(hash); ok {
			g.metrics.RecordCacheHit()
			return emb, nil
		}
		g.metrics.RecordCacheMiss()
	}

	vector, err := g.embed(text)
	if err != nil {
		return nil, err
	}

	emb := &Embedding{
		Vector:    vector,
		Dimension: g.cfg.Dimension,
		Model:     g.cfg.Model,
		Hash:      hash,
	}
	if g.cache != nil {
		g.cache.Set(hash, emb)
	}
	return emb, nil
}

// embed runs tokenize, forward pass, pooling and normalization
func (g *Generator) embed(text string) ([]float32, error) {
	enc, err := g.tokenizer.Encode(text)
	if err != nil {
		g.metrics.RecordEmbedding("tokenize_error")
		return nil, fmt.Errorf("%w: %w", ErrTokenization, err)
	}
	if len(enc.IDs) != len(enc.AttentionMask) {
		g.metrics.RecordEmbedding("tokenize_error")
		return nil, fmt.Errorf("%w: %d ids but %d mask entries", ErrTokenization, len(enc.IDs), len(enc.AttentionMask))
	}
	if len(enc.IDs) == 0 {
		g.metrics.RecordEmbedding("ok")
		return make([]float32, g.cfg.Dimension), nil
	}

	typeIDs := make([]int64, len(enc.IDs))

	hidden, err := g.run(enc.IDs, enc.AttentionMask, typeIDs)
	if err != nil {
		g.metrics.RecordEmbedding("inference_error")
		return nil, err
	}

	if hidden.SeqLen != len(enc.IDs) || hidden.Dim != g.cfg.Dimension || len(hidden.Data) != hidden.SeqLen*hidden.Dim {
		g.metrics.RecordEmbedding("inference_error")
		return nil, fmt.Errorf("%w: unexpected hidden state shape (%d, %d), want (%d, %d)",
			ErrInference, hidden.SeqLen, hidden.Dim, len(enc.IDs), g.cfg.Dimension)
	}

	g.metrics.RecordEmbedding("ok")
	return NormalizeVector(MeanPool(hidden, enc.AttentionMask)), nil
}

// run holds the session lock for exactly one forward pass
func (g *Generator) run(ids, mask, typeIDs []int64) (*inference.HiddenState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	hidden, err := g.session.Run(ids, mask, typeIDs)
	g.metrics.RecordInference(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return hidden, nil
}

// Dimension returns the embedding dimension
func (g *Generator) Dimension() int {
	return g.cfg.Dimension
}

// Model returns the model version tag
func (g *Generator) Model() string {
	return g.cfg.Model
}

// CacheSize returns the number of cached texts
func (g *Generator) CacheSize() int {
	if g.cache == nil {
		return 0
	}
	return g.cache.Size()
}

// Close releases the inference session. Calls in flight finish first.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	if g.cache != nil {
		g.cache.Clear()
	}
	g.logger.Debug("embedding generator closed", "model", g.cfg.Model)
	return g.session.Close()
}
