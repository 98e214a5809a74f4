package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/log"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/classify"
	"github.com/becomeliminal/nim-memory/memory/embedder/hashing"
	openaiembed "github.com/becomeliminal/nim-memory/memory/embedder/openai"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
	"github.com/becomeliminal/nim-memory/memory/store/inmem"
	"github.com/becomeliminal/nim-memory/memory/store/postgres"
	"github.com/becomeliminal/nim-memory/memory/store/sqlite"
	"github.com/becomeliminal/nim-memory/memory/textsvc"
	"github.com/becomeliminal/nim-memory/memory/vector"
)

// Build wires the configured providers into a MemoryEngine. The engine owns
// every opened resource and releases them on Close. Start is left to the
// caller.
func Build(ctx context.Context, cfg *Config, logger log.Logger) (*engine.MemoryEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}

	var opened []io.Closer
	fail := func(err error) (*engine.MemoryEngine, error) {
		for i := len(opened) - 1; i >= 0; i-- {
			_ = opened[i].Close()
		}
		return nil, err
	}

	var pool *pgxpool.Pool
	if cfg.Storage.Driver == DriverPostgres || cfg.Vector.Driver == DriverPostgres {
		p, err := postgres.Connect(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, err
		}
		pool = p
	}
	// The document store owns a shared pool; the vector index owns it only
	// when documents live elsewhere. The engine closes the index first.
	docsOwnPool := cfg.Storage.Driver == DriverPostgres

	docs, err := openDocuments(ctx, cfg.Storage, pool, docsOwnPool)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}
	opened = append(opened, docs)

	classifier := classify.New(
		classify.WithFloor(cfg.Memory.ClassifierFloor),
		classify.WithTopN(cfg.Memory.ClassifierTopN),
	)

	opts := []engine.Option{
		engine.WithConfig(cfg.Memory),
		engine.WithLogger(logger),
		engine.WithDocumentStore(docs),
		engine.WithClassifier(classifier),
	}

	if cfg.Vector.Driver != DriverLexical {
		embedder, err := newEmbedder(cfg.Embedder, logger)
		if err != nil {
			return fail(err)
		}
		index, err := openIndex(ctx, cfg.Vector, pool, !docsOwnPool, embedder.Dimensions(), logger)
		if err != nil {
			return fail(err)
		}
		sim, err := vector.New(embedder, index, cfg.Vector.CacheEntries,
			vector.WithTimeout(cfg.Memory.ExternalTimeout),
			vector.WithLogger(logger),
		)
		if err != nil {
			_ = index.Close()
			return fail(err)
		}
		opts = append(opts, engine.WithSimilarity(sim))
	}

	text, err := newTextService(cfg, classifier, logger)
	if err != nil {
		return fail(err)
	}
	opts = append(opts, engine.WithTextService(text))

	logger.Infof(ctx, "[CONFIG] Engine built: storage=%s vector=%s embedder=%s text=%s",
		cfg.Storage.Driver, cfg.Vector.Driver, cfg.Embedder.Provider, cfg.Text.Provider)
	return engine.New(opts...), nil
}

func openDocuments(ctx context.Context, cfg StorageConfig, pool *pgxpool.Pool, owned bool) (memory.DocumentStore, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewDocumentStore(ctx, pool, owned)
	default:
		return inmem.New(), nil
	}
}

func openIndex(ctx context.Context, cfg VectorConfig, pool *pgxpool.Pool, owned bool, dims int, logger log.Logger) (memory.VectorIndex, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return postgres.NewVectorIndex(ctx, pool, dims, owned)
	default:
		if cfg.ChromemPath != "" {
			return chromem.NewPersistent(cfg.ChromemPath, logger)
		}
		return chromem.New(logger), nil
	}
}

func newEmbedder(cfg EmbedderConfig, logger log.Logger) (memory.Embedder, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return openaiembed.New(openaiembed.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderONNX:
		return newONNXEmbedder(cfg, logger)
	default:
		return hashing.New(cfg.Dimensions), nil
	}
}

// newTextService returns Local, or a network service wrapped in Resilient
// with Local as the fallback.
func newTextService(cfg *Config, classifier *classify.Classifier, logger log.Logger) (memory.TextService, error) {
	local := textsvc.NewLocal(classifier)

	var primary memory.TextService
	switch cfg.Text.Provider {
	case ProviderAnthropic:
		clientOpts := []option.RequestOption{option.WithAPIKey(cfg.Text.APIKey)}
		if cfg.Text.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(cfg.Text.BaseURL))
		}
		primary = textsvc.NewAnthropic(anthropic.NewClient(clientOpts...), cfg.Text.Model)
	case ProviderOpenAI:
		svc, err := textsvc.NewOpenAI(cfg.Text.APIKey, cfg.Text.BaseURL, cfg.Text.Model)
		if err != nil {
			return nil, fmt.Errorf("openai text service: %w", err)
		}
		primary = svc
	case ProviderLocal:
		return local, nil
	default:
		return nil, errors.New("unknown text provider " + cfg.Text.Provider)
	}

	return textsvc.NewResilient(cfg.Text.Provider, primary, local,
		textsvc.WithTimeout(cfg.Memory.ExternalTimeout),
		textsvc.WithRateLimit(cfg.Text.RateLimit, cfg.Text.Burst),
		textsvc.WithLogger(logger),
	), nil
}
