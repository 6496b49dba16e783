package common

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/newsflow/internal/analysis"
	"github.com/jonesrussell/newsflow/internal/analytics"
	"github.com/jonesrussell/newsflow/internal/archive"
	"github.com/jonesrussell/newsflow/internal/articles"
	"github.com/jonesrussell/newsflow/internal/crawl"
	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/executor"
	"github.com/jonesrussell/newsflow/internal/logs"
	"github.com/jonesrussell/newsflow/internal/metrics"
	"github.com/jonesrussell/newsflow/internal/pipeline"
	"github.com/jonesrussell/newsflow/internal/queue"
	"github.com/jonesrussell/newsflow/internal/reparse"
	"github.com/jonesrussell/newsflow/internal/search"
)

// LoadSources reads the configured sources file.
func (d *Deps) LoadSources() ([]*crawl.SourceConfig, error) {
	sources, err := crawl.LoadSources(d.Config.Crawler.SourcesFile, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	return sources, nil
}

// Registry loads the sources file and registers a list and an article
// crawler for every valid source.
func (d *Deps) Registry() (*crawl.Registry, error) {
	sources, err := d.LoadSources()
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	fetcher := crawl.NewFetcher(crawl.FetcherConfig{
		UserAgents: d.Config.Crawler.UserAgents,
		RateLimit:  d.Config.Crawler.RateLimit,
	}, m, d.Logger)

	registry := crawl.NewRegistry()
	for _, src := range sources {
		lc, err := crawl.NewListCrawler(src, fetcher, d.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build list crawler for %s: %w", src.Name, err)
		}
		if err := registry.Register(lc); err != nil {
			return nil, err
		}
		ac, err := crawl.NewArticleCrawler(src, fetcher, m, d.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build article crawler for %s: %w", src.Name, err)
		}
		if err := registry.Register(ac); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// QueueService builds the URL queue service.
func (d *Deps) QueueService() *queue.Service {
	return queue.NewService(
		database.NewPendingURLRepository(d.DB),
		database.NewArticleRepository(d.DB),
		d.Config.Crawler.MaxRetries,
		d.Logger,
	)
}

// Publisher builds the crawl event publisher; without Redis configured the
// nop publisher drops everything.
func (d *Deps) Publisher() logs.Publisher {
	if !d.Config.Redis.Enabled {
		return logs.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     d.Config.Redis.Addr,
		Password: d.Config.Redis.Password,
		DB:       d.Config.Redis.DB,
	})
	ttl := time.Duration(d.Config.Redis.StreamTTLSeconds) * time.Second
	return logs.NewRedisPublisher(client, d.Config.Redis.StreamPrefix, ttl)
}

// RedisPublisher builds the Redis-backed publisher for commands that read
// streams back; it fails when Redis is not configured.
func (d *Deps) RedisPublisher() (*logs.RedisPublisher, error) {
	if !d.Config.Redis.Enabled {
		return nil, fmt.Errorf("redis is not enabled; set redis.enabled to stream crawl logs")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     d.Config.Redis.Addr,
		Password: d.Config.Redis.Password,
		DB:       d.Config.Redis.DB,
	})
	ttl := time.Duration(d.Config.Redis.StreamTTLSeconds) * time.Second
	return logs.NewRedisPublisher(client, d.Config.Redis.StreamPrefix, ttl), nil
}

// ArticleService builds the article store, mirroring saves into the search
// index when Elasticsearch is enabled.
func (d *Deps) ArticleService() (*articles.Service, error) {
	var indexer articles.Indexer
	if d.Config.Elasticsearch.Enabled {
		client, err := d.SearchClient()
		if err != nil {
			return nil, err
		}
		indexer = client
	}
	return articles.NewService(database.NewArticleRepository(d.DB), indexer, d.Logger), nil
}

// Executor builds the crawl executor over a populated registry.
func (d *Deps) Executor(registry *crawl.Registry) (*executor.Executor, error) {
	store, err := d.ArticleService()
	if err != nil {
		return nil, err
	}
	return executor.New(
		registry,
		database.NewCrawlerConfigRepository(d.DB),
		d.QueueService(),
		store,
		d.Publisher(),
		metrics.New(),
		d.Config.Crawler.BatchSize,
		d.Logger,
	), nil
}

// ArchiveEngine builds the cold storage engine.
func (d *Deps) ArchiveEngine() (*archive.Engine, error) {
	return archive.NewEngine(
		database.NewArticleRepository(d.DB),
		database.NewArchiveRepository(d.DB),
		d.Config.Archive,
		d.Logger,
	)
}

// ReparseService builds the reparse service over a populated registry.
func (d *Deps) ReparseService(registry *crawl.Registry) (*reparse.Service, error) {
	engine, err := d.ArchiveEngine()
	if err != nil {
		return nil, err
	}
	return reparse.NewService(
		registry,
		database.NewArticleRepository(d.DB),
		database.NewArchiveRepository(d.DB),
		engine,
		database.NewReparseJobRepository(d.DB),
		d.Logger,
	), nil
}

// Coordinator builds the batch analysis coordinator, connecting the
// analytics database and the configured LLM provider.
func (d *Deps) Coordinator() (*analysis.Coordinator, error) {
	analyticsDB, err := d.OpenAnalytics()
	if err != nil {
		return nil, err
	}
	provider, err := analysis.NewProvider(d.Config.LLM, d.Logger)
	if err != nil {
		return nil, err
	}
	store := analytics.NewStore(analyticsDB, d.Logger)
	if err := store.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure analytics schema: %w", err)
	}
	return analysis.NewCoordinator(
		provider,
		database.NewAnalysisRepository(d.DB),
		database.NewPipelineRunRepository(d.DB),
		database.NewArticleRepository(d.DB),
		store,
		d.Config.LLM,
		d.Logger,
	), nil
}

// PipelineService builds the full analysis pipeline service.
func (d *Deps) PipelineService() (*pipeline.Service, error) {
	coordinator, err := d.Coordinator()
	if err != nil {
		return nil, err
	}
	return pipeline.NewService(
		database.NewPipelineRunRepository(d.DB),
		database.NewFilterResultRepository(d.DB),
		database.NewFilterRuleRepository(d.DB),
		database.NewArticleRepository(d.DB),
		database.NewAnalysisRepository(d.DB),
		coordinator,
		d.Config.Pipeline,
		d.Logger,
	), nil
}

// SearchClient builds the Elasticsearch client; it fails when search is not
// enabled in configuration.
func (d *Deps) SearchClient() (*search.Client, error) {
	if !d.Config.Elasticsearch.Enabled {
		return nil, fmt.Errorf("elasticsearch is not enabled; set elasticsearch.enabled to use search")
	}
	return search.NewClient(d.Config.Elasticsearch, d.Logger)
}
