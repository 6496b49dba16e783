package crawl_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/crawl"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
)

type stubCrawler struct {
	name   string
	source string
	kind   domain.CrawlerKind
}

func (s *stubCrawler) Name() string                { return s.name }
func (s *stubCrawler) DisplayName() string         { return s.name }
func (s *stubCrawler) Source() string              { return s.source }
func (s *stubCrawler) Kind() domain.CrawlerKind    { return s.kind }
func (s *stubCrawler) DefaultIntervalMinutes() int { return 30 }
func (s *stubCrawler) DefaultTimeoutSeconds() int  { return 300 }

type stubListCrawler struct {
	stubCrawler
	urls []string
}

func (s *stubListCrawler) FetchURLs(_ context.Context) ([]string, error) {
	return s.urls, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := crawl.NewRegistry()
	c := &stubCrawler{name: "setn_article", source: "setn", kind: domain.KindArticle}
	require.NoError(t, r.Register(c))

	got, err := r.Get("setn_article")
	require.NoError(t, err)
	assert.Equal(t, c, got)

	got, err = r.GetBySource("setn", domain.KindArticle)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := crawl.NewRegistry()
	require.NoError(t, r.Register(&stubCrawler{name: "setn_list", source: "setn", kind: domain.KindList}))

	err := r.Register(&stubCrawler{name: "setn_list", source: "other", kind: domain.KindList})
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicateSourceKind(t *testing.T) {
	r := crawl.NewRegistry()
	require.NoError(t, r.Register(&stubCrawler{name: "setn_list", source: "setn", kind: domain.KindList}))

	err := r.Register(&stubCrawler{name: "setn_list_v2", source: "setn", kind: domain.KindList})
	assert.Error(t, err)
}

func TestRegistryGetUnknown(t *testing.T) {
	r := crawl.NewRegistry()

	_, err := r.Get("missing")
	assert.Error(t, err)

	_, err = r.GetBySource("missing", domain.KindList)
	assert.Error(t, err)
}

func TestRegistryListSorted(t *testing.T) {
	r := crawl.NewRegistry()
	require.NoError(t, r.Register(&stubCrawler{name: "udn_list", source: "udn", kind: domain.KindList}))
	require.NoError(t, r.Register(&stubCrawler{name: "setn_list", source: "setn", kind: domain.KindList}))

	all := r.List()
	require.Len(t, all, 2)
	assert.Equal(t, "setn_list", all[0].Name())
	assert.Equal(t, "udn_list", all[1].Name())
}

func TestRegistryGetListCrawlerCapability(t *testing.T) {
	r := crawl.NewRegistry()
	lc := &stubListCrawler{stubCrawler: stubCrawler{name: "setn_list", source: "setn", kind: domain.KindList}}
	require.NoError(t, r.Register(lc))
	// Registered under the LIST kind but lacking FetchURLs.
	require.NoError(t, r.Register(&stubCrawler{name: "udn_list", source: "udn", kind: domain.KindList}))

	got, err := r.GetListCrawler("setn")
	require.NoError(t, err)
	assert.Equal(t, lc, got)

	_, err = r.GetListCrawler("udn")
	assert.Error(t, err)
}

type fakeConfigRepo struct {
	existing []*domain.CrawlerConfig
	created  []*domain.CrawlerConfig
	updated  []string
}

func (f *fakeConfigRepo) List(_ context.Context) ([]*domain.CrawlerConfig, error) {
	return f.existing, nil
}

func (f *fakeConfigRepo) Create(_ context.Context, cfg *domain.CrawlerConfig) error {
	f.created = append(f.created, cfg)
	return nil
}

func (f *fakeConfigRepo) UpdateRegistration(_ context.Context, name, _, _ string, _ domain.CrawlerKind) error {
	f.updated = append(f.updated, name)
	return nil
}

func (f *fakeConfigRepo) GetByName(_ context.Context, _ string) (*domain.CrawlerConfig, error) {
	return nil, nil
}

func (f *fakeConfigRepo) ListActive(_ context.Context) ([]*domain.CrawlerConfig, error) {
	return nil, nil
}

func (f *fakeConfigRepo) SetActive(_ context.Context, _ string, _ bool) error { return nil }

func (f *fakeConfigRepo) SetInterval(_ context.Context, _ string, _ int) error { return nil }

func (f *fakeConfigRepo) MarkRunning(_ context.Context, _ string) error { return nil }

func (f *fakeConfigRepo) RecordRunResult(_ context.Context, _ string, _ domain.RunStatus,
	_ *string, _ int, _ *time.Time,
) error {
	return nil
}

func (f *fakeConfigRepo) UpdateNextRunTime(_ context.Context, _ string, _ *time.Time) error {
	return nil
}

func (f *fakeConfigRepo) ResetRunningToIdle(_ context.Context) (int, error) { return 0, nil }

func TestSyncToDBCreatesNewAndRefreshesExisting(t *testing.T) {
	r := crawl.NewRegistry()
	require.NoError(t, r.Register(&stubCrawler{name: "setn_list", source: "setn", kind: domain.KindList}))
	require.NoError(t, r.Register(&stubCrawler{name: "udn_list", source: "udn", kind: domain.KindList}))

	repo := &fakeConfigRepo{
		existing: []*domain.CrawlerConfig{{Name: "setn_list", IntervalMinutes: 7}},
	}
	require.NoError(t, r.SyncToDB(context.Background(), repo, logger.NewNop()))

	require.Len(t, repo.created, 1)
	assert.Equal(t, "udn_list", repo.created[0].Name)
	assert.True(t, repo.created[0].IsActive)
	assert.Equal(t, domain.RunStatusIdle, repo.created[0].LastRunStatus)

	assert.Equal(t, []string{"setn_list"}, repo.updated)
}
