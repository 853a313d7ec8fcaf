package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/events"
	"github.com/palamut62/ai-gant-news/internal/fetcher"
	"github.com/palamut62/ai-gant-news/internal/infrastructure/storage"
	"github.com/palamut62/ai-gant-news/internal/metrics"
	"github.com/palamut62/ai-gant-news/internal/parser"
)

var runNow = time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC)

// scriptedGenerator answers the Turkish prompt with primary and everything else with secondary.
type scriptedGenerator struct {
	primary, secondary       string
	primaryErr, secondaryErr error
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if strings.HasPrefix(prompt, "Bugünün") {
		return g.primary, g.primaryErr
	}
	return g.secondary, g.secondaryErr
}

const (
	primaryReply = "```json\n" + `{"updates":[
		{"event_date":"2024-01-10","short_description":"Yeni model duyuruldu","long_description":"Ayrıntılar","source_url":"https://example.com/a"},
		{"event_date":"2024-01-20","short_description":"Açık kaynak sürüm","long_description":"Ayrıntılar"},
		{"event_date":"2023-12-01","short_description":"Eski haber","long_description":"Pencere dışında"}
	]}` + "\n```"
	secondaryReply = `{"updates":[
		{"event_date":"2024-01-10","short_description":"New model announced","long_description":"Details"},
		{"event_date":"2024-01-20","short_description":"Open source release","long_description":"Details","source_url":"https://example.com/b"},
		{"event_date":"2023-12-01","short_description":"Old news","long_description":"Outside window"}
	]}`
)

type pipelineFixture struct {
	pipeline *Pipeline
	repo     *storage.SQLiteRepository
	bus      *events.Bus
	metrics  *metrics.Recorder
}

func newPipelineFixture(t *testing.T, gen *scriptedGenerator) pipelineFixture {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	t.Cleanup(func() { repo.Close() })

	clock := func() time.Time { return runNow }
	rec := metrics.New()
	bus := events.NewBus(4)
	t.Cleanup(bus.Close)

	pipeline := NewPipeline(PipelineDeps{
		Fetcher: fetcher.New(gen, fetcher.Options{
			MinItems: 5, MaxItems: 10, TopicPrimary: "yapay zeka", TopicSecondary: "artificial intelligence",
		}, nil, rec),
		Parser:     parser.New(nil, rec, clock),
		Persister:  NewPersister(repo, nil, rec, clock),
		Bus:        bus,
		Metrics:    rec,
		WindowDays: 30,
		Now:        clock,
	})
	return pipelineFixture{pipeline: pipeline, repo: repo, bus: bus, metrics: rec}
}

func TestPipelineRunStoresValidPairs(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t, &scriptedGenerator{primary: primaryReply, secondary: secondaryReply})
	changes, cancel := fx.bus.Subscribe(events.TopicDataChanged)
	defer cancel()

	report, err := fx.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, "2 new developments added.", report.Message)
	assert.Equal(t, 2, report.Stats.Total)
	assert.Equal(t, 2, report.Stats.Successful)
	require.Len(t, report.Updates, 2)
	assert.Equal(t, "Yeni model duyuruldu", report.Updates[0].ShortPrimary)
	assert.Equal(t, "New model announced", report.Updates[0].ShortSecondary)
	assert.Equal(t, "https://example.com/a", report.Updates[0].SourceURL)
	assert.Equal(t, "https://example.com/b", report.Updates[1].SourceURL)

	count, err := fx.repo.CountDevelopments(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	summary, err := fx.repo.LatestBatchSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SuccessCount)

	select {
	case msg := <-changes:
		changed, ok := msg.(events.DataChanged)
		require.True(t, ok)
		assert.Equal(t, 2, changed.Added)
		assert.NotEmpty(t, changed.RunID)
	case <-time.After(time.Second):
		t.Fatal("data changed not published")
	}

	runs, err := testutil.GatherAndCount(fx.metrics.Registry(), "timeline_ingest_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
}

func TestPipelineRunIsIdempotentOnNaturalKey(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t, &scriptedGenerator{primary: primaryReply, secondary: secondaryReply})

	_, err := fx.pipeline.Run(context.Background())
	require.NoError(t, err)
	report, err := fx.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.Successful)

	count, err := fx.repo.CountDevelopments(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestPipelineSecondaryFailureStoresNothing(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t, &scriptedGenerator{primary: primaryReply, secondaryErr: errors.New("503")})

	report, err := fx.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, "No new updates found.", report.Message)
	assert.Empty(t, report.Updates)
	assert.NotNil(t, report.Updates)

	count, err := fx.repo.CountDevelopments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipelineBothLocalesFail(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t, &scriptedGenerator{primaryErr: errors.New("timeout"), secondaryErr: errors.New("timeout")})

	report, err := fx.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.Equal(t, "No updates could be fetched.", report.Message)
	assert.Empty(t, report.Updates)
}

func TestPipelineContractViolation(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t, &scriptedGenerator{primary: "Üzgünüm, yardımcı olamam.", secondary: secondaryReply})

	_, err := fx.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrContractViolation)

	count, err := fx.repo.CountDevelopments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipelineEmptyUpdates(t *testing.T) {
	t.Parallel()

	fx := newPipelineFixture(t, &scriptedGenerator{primary: `{"updates":[]}`, secondary: `{"updates":[]}`})

	report, err := fx.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, "No new updates found.", report.Message)

	_, err = fx.repo.LatestBatchSummary(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		successful, failed int
		want               string
	}{
		{3, 0, "3 new developments added."},
		{2, 1, "2 new developments added. 1 records could not be added."},
		{0, 2, "0 new developments added. 2 records could not be added."},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_%d", tc.successful, tc.failed), func(t *testing.T) {
			stats := domain.RunStats{Total: tc.successful + tc.failed, Successful: tc.successful, Failed: tc.failed}
			assert.Equal(t, tc.want, runMessage(stats))
		})
	}
}
