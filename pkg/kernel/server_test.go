package kernel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/timsteinerr/transcriptor/internal/adapters/duckdb"
	"github.com/timsteinerr/transcriptor/internal/core/domain"
	"github.com/timsteinerr/transcriptor/internal/core/ports"
	"github.com/timsteinerr/transcriptor/internal/core/services"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, url, destDir string) (ports.FetchResult, error) {
	args := m.Called(ctx, url, destDir)
	return args.Get(0).(ports.FetchResult), args.Error(1)
}

type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audioPath string) (domain.Transcript, error) {
	args := m.Called(ctx, audioPath)
	return args.Get(0).(domain.Transcript), args.Error(1)
}

type testEnv struct {
	server      *httptest.Server
	fetcher     *MockFetcher
	transcriber *MockTranscriber
	scheduler   *services.JobScheduler
}

func newTestEnv(t *testing.T, history ports.HistoryRepository, staticDir string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := services.NewEventBus(logger)
	registry := services.NewJobRegistry()
	scheduler := services.NewJobScheduler(logger, services.SchedulerConfig{})
	fetcher := new(MockFetcher)
	transcriber := new(MockTranscriber)
	pipeline := services.NewWorkerPipeline(logger, registry, services.NewWorkspaceManager(t.TempDir()), bus,
		fetcher, transcriber, services.PipelineConfig{FetchTimeout: time.Second})
	jobs := services.NewJobService(logger, registry, scheduler, pipeline, bus)

	srv, err := NewServer(context.Background(), logger, jobs, history, staticDir)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		scheduler.Wait()
	})
	return &testEnv{server: ts, fetcher: fetcher, transcriber: transcriber, scheduler: scheduler}
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func writeClip(args mock.Arguments) {
	dir := args.String(2)
	os.WriteFile(filepath.Join(dir, "clip.mp3"), []byte("ID3"), 0o644)
}

func TestServer_E2E_SubmitPollCleanup(t *testing.T) {
	env := newTestEnv(t, nil, "")
	env.fetcher.On("Fetch", mock.Anything, "https://example.com/v", mock.Anything).
		Run(writeClip).
		Return(ports.FetchResult{}, nil)
	env.transcriber.On("Transcribe", mock.Anything, mock.Anything).
		Return(domain.Transcript{
			Text:     " hello world ",
			Segments: []domain.Segment{{Start: 0, End: 1.2, Text: " hello world "}},
			Language: "en",
		}, nil)

	code, body := env.do(t, http.MethodPost, "/api/transcribe", "application/json", `{"url": "https://example.com/v"}`)
	require.Equal(t, http.StatusOK, code)
	jobID, _ := body["job_id"].(string)
	require.Len(t, jobID, 12)

	var status map[string]interface{}
	require.Eventually(t, func() bool {
		_, status = env.do(t, http.MethodGet, "/api/status/"+jobID, "", "")
		return status["status"] == "done"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, float64(100), status["progress"])
	assert.Equal(t, "hello world", status["transcript"])
	assert.Equal(t, "en", status["language"])
	assert.Nil(t, status["error"])
	segments, _ := status["segments"].([]interface{})
	require.Len(t, segments, 1)
	assert.Equal(t, "hello world", segments[0].(map[string]interface{})["text"])

	code, body = env.do(t, http.MethodDelete, "/api/cleanup/"+jobID, "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])

	code, body = env.do(t, http.MethodGet, "/api/status/"+jobID, "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Job not found.", body["error"])

	env.fetcher.AssertExpectations(t)
	env.transcriber.AssertExpectations(t)
}

func TestServer_DownloadFailureIsPolled(t *testing.T) {
	env := newTestEnv(t, nil, "")
	env.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return(ports.FetchResult{ExitCode: 1, Stderr: "network unreachable"}, nil)

	_, body := env.do(t, http.MethodPost, "/api/transcribe", "application/json", `{"url": "https://example.com/v"}`)
	jobID := body["job_id"].(string)

	var status map[string]interface{}
	require.Eventually(t, func() bool {
		_, status = env.do(t, http.MethodGet, "/api/status/"+jobID, "", "")
		return status["status"] == "error"
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, status["error"], "Download failed")
	assert.Contains(t, status["error"], "network unreachable")
	assert.Equal(t, float64(10), status["progress"])
	assert.Nil(t, status["transcript"])
	assert.Nil(t, status["segments"])
	assert.Nil(t, status["language"])
	env.transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestServer_SubmitRejectsMissingURL(t *testing.T) {
	env := newTestEnv(t, nil, "")

	cases := map[string]struct {
		contentType string
		body        string
	}{
		"empty string":    {"application/json", `{"url": ""}`},
		"whitespace":      {"application/json", `{"url": "   "}`},
		"missing field":   {"application/json", `{}`},
		"no body":         {"application/json", ``},
		"not json":        {"application/json", `url=https://example.com`},
		"not an object":   {"application/json", `["https://example.com"]`},
		"wrong url type":  {"application/json", `{"url": 42}`},
		"no content type": {"", `{"url": " "}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			code, body := env.do(t, http.MethodPost, "/api/transcribe", tc.contentType, tc.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "No URL provided.", body["error"])
		})
	}

	_, health := env.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, float64(0), health["jobs"])
	env.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestServer_SubmitAcceptsAnyContentType(t *testing.T) {
	env := newTestEnv(t, nil, "")
	env.fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return(ports.FetchResult{ExitCode: 1, Stderr: "nope"}, nil)

	code, body := env.do(t, http.MethodPost, "/api/transcribe", "text/plain", `{"url": "https://example.com/v"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["job_id"])
}

func TestServer_StatusUnknownJob(t *testing.T) {
	env := newTestEnv(t, nil, "")

	code, body := env.do(t, http.MethodGet, "/api/status/doesnotexist", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Job not found.", body["error"])
}

func TestServer_CleanupIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil, "")

	for i := 0; i < 2; i++ {
		code, body := env.do(t, http.MethodDelete, "/api/cleanup/never-issued", "", "")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["ok"])
	}
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, nil, "")

	code, body := env.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["jobs"])
}

func TestServer_OpenAPIDocument(t *testing.T) {
	env := newTestEnv(t, nil, "")

	resp, err := http.Get(env.server.URL + "/api/openapi.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	doc, err := LoadOpenAPI(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/api/transcribe"))
	assert.NotNil(t, doc.Paths.Find("/api/status/{job_id}"))
	assert.NotNil(t, doc.Paths.Find("/api/cleanup/{job_id}"))
}

func TestServer_HistoryDisabled(t *testing.T) {
	env := newTestEnv(t, nil, "")

	code, body := env.do(t, http.MethodGet, "/api/history", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "History is disabled.", body["error"])
}

func TestServer_History(t *testing.T) {
	repo, err := duckdb.NewRepository(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.SaveOutcome(ctx, ports.HistoryEntry{JobID: "a", URL: "u1", Status: domain.JobStatusDone, Language: "en", FinishedAt: now}))
	require.NoError(t, repo.SaveOutcome(ctx, ports.HistoryEntry{JobID: "b", URL: "u2", Status: domain.JobStatusError, Error: "x", FinishedAt: now.Add(time.Second)}))

	env := newTestEnv(t, repo, "")

	code, body := env.do(t, http.MethodGet, "/api/history?limit=1", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
	jobs := body["jobs"].([]interface{})
	assert.Equal(t, "b", jobs[0].(map[string]interface{})["job_id"])

	code, body = env.do(t, http.MethodGet, "/api/history?limit=0", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "Invalid request")
}

func TestServer_StaticIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>transcriptor</html>"), 0o644))
	env := newTestEnv(t, nil, dir)

	resp, err := http.Get(env.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}
