package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/events"
	"github.com/palamut62/ai-gant-news/internal/infrastructure/storage"
	"github.com/palamut62/ai-gant-news/internal/notify"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubRunner struct {
	report domain.RunReport
	err    error
	calls  int
}

func (s *stubRunner) Run(context.Context) (domain.RunReport, error) {
	s.calls++
	return s.report, s.err
}

type fixture struct {
	router *gin.Engine
	repo   *storage.SQLiteRepository
	bridge *notify.Bridge
	bus    *events.Bus
	runner *stubRunner
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	t.Cleanup(func() { repo.Close() })

	bridge := notify.NewBridge(repo, repo, notify.Options{}, nil, nil)
	t.Cleanup(bridge.Close)
	bus := events.NewBus(8)
	t.Cleanup(bus.Close)

	runner := &stubRunner{report: domain.RunReport{
		Success: true,
		Message: "1 new developments added.",
		Stats:   domain.RunStats{Total: 1, Successful: 1},
		Updates: []domain.DevelopmentRecord{{ID: 1, ShortPrimary: "Yeni model"}},
	}}

	r := gin.New()
	RegisterIngestRoutes(r, runner, "s3cret")
	RegisterTimelineRoutes(r, repo, bus)
	RegisterFeedRoutes(r, bridge, bus)

	return fixture{router: r, repo: repo, bridge: bridge, bus: bus, runner: runner}
}

func (f fixture) do(t *testing.T, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func seed(t *testing.T, repo *storage.SQLiteRepository, day int, title string) domain.DevelopmentRecord {
	t.Helper()
	rec, err := repo.UpsertDevelopment(context.Background(), domain.DevelopmentRecord{
		EventDate:      domain.NewDate(2024, time.January, day),
		ShortPrimary:   title,
		ShortSecondary: title + " en",
		LongPrimary:    "uzun",
		LongSecondary:  "long",
		CreatedAt:      time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return rec
}

func TestUpdateAIReturnsReport(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/update-ai", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "1 new developments added.", body["message"])
	assert.Equal(t, map[string]any{"total": 1.0, "successful": 1.0, "failed": 0.0}, body["stats"])
	assert.Len(t, body["updates"], 1)
}

func TestUpdateAIContractViolation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.runner.err = errors.New("tr reply: generator reply violates contract")

	w := f.do(t, http.MethodGet, "/api/update-ai", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	body := decode(t, w)
	assert.Equal(t, "update failed", body["error"])
	assert.Contains(t, body["details"], "violates contract")
}

func TestCronRequiresSecret(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/cron", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/cron", http.Header{"X-Cron-Secret": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, f.runner.calls)

	w = f.do(t, http.MethodGet, "/api/cron", http.Header{"X-Cron-Secret": {"s3cret"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	result, ok := body["updateResult"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1 new developments added.", result["message"])
	assert.Equal(t, 1, f.runner.calls)
}

func TestCronEmptySecretRejectsAll(t *testing.T) {
	t.Parallel()

	r := gin.New()
	runner := &stubRunner{}
	RegisterIngestRoutes(r, runner, "")

	req := httptest.NewRequest(http.MethodGet, "/api/cron", nil)
	req.Header.Set(CronSecretHeader, "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, runner.calls)
}

func TestListDevelopments(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f.repo, 10, "eski")
	seed(t, f.repo, 20, "yeni")

	w := f.do(t, http.MethodGet, "/api/developments?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["total"])
	list, ok := body["developments"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "yeni", list[0].(map[string]any)["short_description"])
	assert.Equal(t, "2024-01-20", list[0].(map[string]any)["event_date"])

	w = f.do(t, http.MethodGet, "/api/developments?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDevelopment(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rec := seed(t, f.repo, 10, "bir")

	w := f.do(t, http.MethodGet, fmt.Sprintf("/api/developments/%d", rec.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bir", decode(t, w)["short_description"])

	w = f.do(t, http.MethodGet, "/api/developments/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/developments/x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetailRequestPublishes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rec := seed(t, f.repo, 10, "bir")

	msgs, cancel := f.bus.Subscribe(events.TopicDetailRequested)
	defer cancel()

	w := f.do(t, http.MethodPost, fmt.Sprintf("/api/developments/%d/detail", rec.ID), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["delivered"])

	select {
	case msg := <-msgs:
		assert.Equal(t, events.DetailRequested{DevelopmentID: rec.ID}, msg)
	case <-time.After(time.Second):
		t.Fatal("detail request not published")
	}

	w = f.do(t, http.MethodPost, "/api/developments/999/detail", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLastUpdate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/last-update", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	at := time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC)
	_, err := f.repo.InsertBatchSummary(context.Background(), domain.BatchSummary{SuccessCount: 4, CreatedAt: at})
	require.NoError(t, err)

	w = f.do(t, http.MethodGet, "/api/last-update", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 4, body["success_count"])
	assert.Equal(t, "2024-01-31T09:00:00Z", body["last_update"])
}

func TestRecentLogs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for i := 1; i <= 12; i++ {
		_, err := f.repo.InsertAuditEntry(context.Background(),
			domain.SummaryAuditEntry(i, time.Date(2024, time.January, 31, 9, i, 0, 0, time.UTC)))
		require.NoError(t, err)
	}

	w := f.do(t, http.MethodGet, "/api/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs, ok := decode(t, w)["logs"].([]any)
	require.True(t, ok)
	require.Len(t, logs, 10)
	assert.Equal(t, "12 Yeni Gelişme Eklendi", logs[0].(map[string]any)["title"])
}

// sseEvents yields the event names of a server-sent event stream.
func sseEvents(t *testing.T, resp *http.Response) <-chan string {
	t.Helper()
	out := make(chan string, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event:") {
				out <- strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
	}()
	return out
}

func expectEvent(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got, ok := <-ch:
		require.True(t, ok, "stream closed")
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("no %q event", want)
	}
}

func TestLogStream(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/logs/stream?subscriber=viewer-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stream := sseEvents(t, resp)
	expectEvent(t, stream, "snapshot")
	assert.Equal(t, 1, f.bridge.Active())

	_, err = f.repo.InsertAuditEntry(context.Background(), domain.SummaryAuditEntry(2, time.Now().UTC()))
	require.NoError(t, err)
	expectEvent(t, stream, "log")

	f.bus.Publish(events.DataChanged{RunID: "run", Added: 2, At: time.Now()})
	expectEvent(t, stream, "refresh")

	f.bus.Publish(events.DetailRequested{DevelopmentID: 7})
	expectEvent(t, stream, "detail")

	cancel()
	require.Eventually(t, func() bool { return f.bridge.Active() == 0 }, 2*time.Second, 10*time.Millisecond)
}
