package analysis_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/newsflow/internal/analysis"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	analysisMock "github.com/jonesrussell/newsflow/testutils/mocks/analysis"
)

func TestAnalyzeSubmitErrorAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	provider := analysisMock.NewMockProvider(ctrl)
	provider.EXPECT().
		SubmitBatch(gomock.Any(), gomock.Len(1)).
		Return("", errors.New("quota exceeded"))

	events := []string{}
	tracking := &fakeTracking{events: &events}

	coord := analysis.NewCoordinator(provider, tracking, &fakeRuns{events: &events},
		&fakeArticles{}, &fakeStore{}, llmConfig(), logger.NewNop())

	_, err := coord.Analyze(context.Background(), testArticles(1), &domain.PipelineRun{ID: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	// Nothing persisted: no batch id, no tracking rows.
	assert.Empty(t, events)
}

func TestAnalyzeStatusErrorAfterTracking(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	provider := analysisMock.NewMockProvider(ctrl)
	provider.EXPECT().
		SubmitBatch(gomock.Any(), gomock.Any()).
		Return("batch_x", nil)
	provider.EXPECT().
		CheckBatchStatus(gomock.Any(), "batch_x").
		Return(nil, errors.New("service unavailable"))

	events := []string{}
	tracking := &fakeTracking{events: &events}

	coord := analysis.NewCoordinator(provider, tracking, &fakeRuns{events: &events},
		&fakeArticles{}, &fakeStore{}, llmConfig(), logger.NewNop())

	_, err := coord.Analyze(context.Background(), testArticles(1), &domain.PipelineRun{ID: 7})
	require.Error(t, err)
	// The batch id and tracking rows survive the error so the run can resume.
	assert.Equal(t, []string{"batch_id", "tracking"}, events)
	require.Len(t, tracking.pending, 1)
}

func TestAnalyzeTerminalNonCompletedStateFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	provider := analysisMock.NewMockProvider(ctrl)
	provider.EXPECT().
		SubmitBatch(gomock.Any(), gomock.Any()).
		Return("batch_x", nil)
	provider.EXPECT().
		CheckBatchStatus(gomock.Any(), "batch_x").
		Return(&analysis.BatchStatus{State: analysis.BatchStateExpired}, nil)

	events := []string{}
	coord := analysis.NewCoordinator(provider, &fakeTracking{events: &events},
		&fakeRuns{events: &events}, &fakeArticles{}, &fakeStore{}, llmConfig(), logger.NewNop())

	_, err := coord.Analyze(context.Background(), testArticles(1), &domain.PipelineRun{ID: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXPIRED")
}
