package crawl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jonesrussell/newsflow/internal/database"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

// Registry holds every instantiated crawler, keyed by name and by
// (source, kind).
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Crawler
	bySource map[sourceKey]Crawler
}

type sourceKey struct {
	source string
	kind   domain.CrawlerKind
}

// NewRegistry creates an empty crawler registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]Crawler),
		bySource: make(map[sourceKey]Crawler),
	}
}

// Register adds a crawler. Duplicate names or duplicate (source, kind)
// pairs are rejected.
func (r *Registry) Register(c Crawler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[c.Name()]; exists {
		return fmt.Errorf("crawler already registered: %s", c.Name())
	}
	key := sourceKey{source: c.Source(), kind: c.Kind()}
	if _, exists := r.bySource[key]; exists {
		return fmt.Errorf("crawler already registered for source %s kind %s", c.Source(), c.Kind())
	}

	r.byName[c.Name()] = c
	r.bySource[key] = c
	return nil
}

// Get looks up a crawler by name.
func (r *Registry) Get(name string) (Crawler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("crawler not found: %s", name)
	}
	return c, nil
}

// GetBySource looks up a crawler by source and kind.
func (r *Registry) GetBySource(source string, kind domain.CrawlerKind) (Crawler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.bySource[sourceKey{source: source, kind: kind}]
	if !ok {
		return nil, fmt.Errorf("crawler not found for source %s kind %s", source, kind)
	}
	return c, nil
}

// GetArticleCrawler looks up a source's article crawler and asserts its
// capability.
func (r *Registry) GetArticleCrawler(source string) (ArticleCrawler, error) {
	c, err := r.GetBySource(source, domain.KindArticle)
	if err != nil {
		return nil, err
	}
	ac, ok := c.(ArticleCrawler)
	if !ok {
		return nil, fmt.Errorf("crawler %s does not implement article crawling", c.Name())
	}
	return ac, nil
}

// GetListCrawler looks up a source's list crawler and asserts its capability.
func (r *Registry) GetListCrawler(source string) (ListCrawler, error) {
	c, err := r.GetBySource(source, domain.KindList)
	if err != nil {
		return nil, err
	}
	lc, ok := c.(ListCrawler)
	if !ok {
		return nil, fmt.Errorf("crawler %s does not implement list crawling", c.Name())
	}
	return lc, nil
}

// List returns all registered crawlers ordered by name.
func (r *Registry) List() []Crawler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Crawler, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// SyncToDB reconciles the crawler_configs table with the registry. New
// crawlers are inserted with their defaults; existing rows get only their
// registration fields refreshed. Operator-owned fields (interval, active
// flag, timeout, statistics) are never overwritten.
func (r *Registry) SyncToDB(ctx context.Context, repo database.CrawlerConfigRepositoryInterface, log logger.Logger) error {
	existing, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load crawler configs: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, cfg := range existing {
		known[cfg.Name] = struct{}{}
	}

	for _, c := range r.List() {
		if _, ok := known[c.Name()]; ok {
			if err := repo.UpdateRegistration(ctx, c.Name(), c.DisplayName(), c.Source(), c.Kind()); err != nil {
				return fmt.Errorf("failed to refresh crawler %s: %w", c.Name(), err)
			}
			continue
		}

		cfg := &domain.CrawlerConfig{
			Name:            c.Name(),
			DisplayName:     c.DisplayName(),
			Source:          c.Source(),
			Kind:            c.Kind(),
			IsActive:        true,
			IntervalMinutes: c.DefaultIntervalMinutes(),
			TimeoutSeconds:  c.DefaultTimeoutSeconds(),
			LastRunStatus:   domain.RunStatusIdle,
		}
		if err := repo.Create(ctx, cfg); err != nil {
			return fmt.Errorf("failed to register crawler %s: %w", c.Name(), err)
		}
		log.Info("crawler registered",
			logger.String("name", c.Name()),
			logger.String("source", c.Source()),
			logger.String("kind", string(c.Kind())),
		)
	}
	return nil
}
