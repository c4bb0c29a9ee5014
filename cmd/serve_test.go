package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/project-registry/internal/config"
	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/internal/pipeline"
	"github.com/sells-group/project-registry/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

type fakeIngester struct {
	mu       sync.Mutex
	messages []string
	sources  []string
	err      error
}

func (f *fakeIngester) ProcessMessage(_ context.Context, text, source string) (*pipeline.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	f.sources = append(f.sources, source)
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.IngestResult{
		Outcome: &pipeline.Outcome{Action: pipeline.ActionCreated, Project: &model.Project{ProjectID: "p-1"}},
		URL:     pipeline.FirstURL(text),
	}, nil
}

func (f *fakeIngester) Observe(context.Context, *model.Observation, string, string) (*pipeline.Outcome, error) {
	return nil, errors.New("registry unavailable")
}

func (f *fakeIngester) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

var testServerConfig = config.ServerConfig{DedupeMinutes: 10, DedupeCapacity: 16}

func serve(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	return m
}

func TestRoutes_Health(t *testing.T) {
	s := newServer(context.Background(), nil, nil, testServerConfig)
	rr := serve(s.routes([]string{"*"}), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decodeMap(t, rr)["status"])
}

func TestRoutes_CORSPreflight(t *testing.T) {
	s := newServer(context.Background(), nil, nil, testServerConfig)
	h := s.routes([]string{"https://registry.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/projects", nil)
	req.Header.Set("Origin", "https://registry.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://registry.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebhookMessage_AcceptsAndDedupes(t *testing.T) {
	ing := &fakeIngester{}
	s := newServer(context.Background(), ing, nil, testServerConfig)
	h := s.routes(nil)

	msg := map[string]string{"text": "看看这个 https://www.h2o-china.com/news/1.html 地下厂"}
	rr := serve(h, http.MethodPost, "/webhook/message", msg)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	body := decodeMap(t, rr)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "https://www.h2o-china.com/news/1.html", body["url"])

	rr = serve(h, http.MethodPost, "/webhook/message", msg)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "duplicate", decodeMap(t, rr)["status"])

	s.Wait()
	assert.Equal(t, 1, ing.calls())
	assert.Equal(t, []string{pipeline.SourceChat}, ing.sources)
}

func TestWebhookMessage_EventCallback(t *testing.T) {
	ing := &fakeIngester{}
	s := newServer(context.Background(), ing, nil, testServerConfig)

	content, _ := json.Marshal(map[string]string{"text": "https://e20.com.cn/a.html"})
	payload := map[string]any{
		"source": "group chat",
		"event":  map[string]any{"message": map[string]any{"content": string(content)}},
	}
	rr := serve(s.routes(nil), http.MethodPost, "/webhook/message", payload)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	s.Wait()
	require.Equal(t, 1, ing.calls())
	assert.Equal(t, "https://e20.com.cn/a.html", ing.messages[0])
	assert.Equal(t, "group chat", ing.sources[0])
}

func TestWebhookMessage_URLVerification(t *testing.T) {
	s := newServer(context.Background(), &fakeIngester{}, nil, testServerConfig)
	rr := serve(s.routes(nil), http.MethodPost, "/webhook/message",
		map[string]string{"type": "url_verification", "challenge": "abc123"})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "abc123", decodeMap(t, rr)["challenge"])
}

func TestWebhookMessage_NoURL(t *testing.T) {
	ing := &fakeIngester{}
	s := newServer(context.Background(), ing, nil, testServerConfig)
	rr := serve(s.routes(nil), http.MethodPost, "/webhook/message", map[string]string{"text": "hello"})

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no_url", decodeMap(t, rr)["status"])

	// The pipeline still answers the sender with a hint.
	s.Wait()
	assert.Equal(t, 1, ing.calls())
}

func TestWebhookMessage_FailureAllowsRedelivery(t *testing.T) {
	ing := &fakeIngester{err: errors.New("fetch failed")}
	s := newServer(context.Background(), ing, nil, testServerConfig)
	h := s.routes(nil)
	msg := map[string]string{"text": "https://bjx.com.cn/x"}

	rr := serve(h, http.MethodPost, "/webhook/message", msg)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	s.Wait()

	rr = serve(h, http.MethodPost, "/webhook/message", msg)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	s.Wait()
	assert.Equal(t, 2, ing.calls())
}

func TestServer_ClaimIsExclusive(t *testing.T) {
	s := newServer(context.Background(), nil, nil, testServerConfig)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.claim("https://h2o-china.com/n/1.html") {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, claimed)

	s.release("https://h2o-china.com/n/1.html")
	assert.True(t, s.claim("https://h2o-china.com/n/1.html"))
}

func TestWebhookMessage_InvalidBody(t *testing.T) {
	s := newServer(context.Background(), &fakeIngester{}, nil, testServerConfig)
	rr := serve(s.routes(nil), http.MethodPost, "/webhook/message", "{not json")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid request body", decodeMap(t, rr)["error"])
}

func TestWebhookObservation_CreatesThenMerges(t *testing.T) {
	reg := newTestStore(t)
	s := newServer(context.Background(), pipeline.New(reg, nil, nil), reg, testServerConfig)
	h := s.routes(nil)

	first := map[string]any{
		"name": "嘉兴秀洲地下污水处理厂", "location": "浙江·嘉兴",
		"near_term_scale": "15万吨/日", "total_investment": 12.5, "process_description": "AAO+MBR", "_source": "partner feed",
	}
	rr := serve(h, http.MethodPost, "/webhook/observation", first)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out pipeline.Outcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, pipeline.ActionCreated, out.Action)
	require.NotNil(t, out.Project)
	assert.Equal(t, "partner feed", out.Project.SourceOf(model.FieldName))

	second := map[string]any{
		"name": "嘉兴秀洲地下污水处理厂", "location": "浙江·嘉兴",
		"near_term_scale": 15, "process_description": "AAO", "contractor": "中国水务",
	}
	rr = serve(h, http.MethodPost, "/webhook/observation", second)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, pipeline.ActionMerged, out.Action)
	assert.Equal(t, 2, out.Project.SourceCount)
	assert.Equal(t, SourceAPI, out.Project.SourceOf(model.FieldContractor))
}

func TestWebhookObservation_Rejects(t *testing.T) {
	s := newServer(context.Background(), &fakeIngester{}, nil, testServerConfig)
	h := s.routes(nil)

	rr := serve(h, http.MethodPost, "/webhook/observation", map[string]any{"colour": "blue"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, http.MethodPost, "/webhook/observation", "[1,2]")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, http.MethodPost, "/webhook/observation", map[string]any{"name": "Plant"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	nilPipeline := newServer(context.Background(), nil, nil, testServerConfig)
	rr = serve(nilPipeline.routes(nil), http.MethodPost, "/webhook/observation", map[string]any{"name": "Plant"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestProjectsEndpoints(t *testing.T) {
	reg := newTestStore(t)
	s := newServer(context.Background(), nil, reg, testServerConfig)
	h := s.routes(nil)

	rr := serve(h, http.MethodGet, "/projects", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	p := &model.Project{ProjectID: "p-42", SourceCount: 1, Completeness: "10%"}
	p.Set(model.FieldName, "Plant 42")
	_, err := reg.InsertProject(context.Background(), p)
	require.NoError(t, err)

	rr = serve(h, http.MethodGet, "/projects", nil)
	var list []model.Project
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Plant 42", list[0].Name)

	rr = serve(h, http.MethodGet, "/projects/p-42", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "p-42", decodeMap(t, rr)["project_id"])

	rr = serve(h, http.MethodGet, "/projects/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNewServer_Defaults(t *testing.T) {
	s := newServer(context.Background(), nil, nil, config.ServerConfig{})
	s.seen.Add("https://a.cn", time.Now())
	_, ok := s.seen.Get("https://a.cn")
	assert.True(t, ok)
}

func TestNewSubmission(t *testing.T) {
	sub := newSubmission("https://a.cn/x", pipeline.SourceForm)
	assert.Equal(t, "https://a.cn/x", sub.URL)
	assert.Equal(t, pipeline.SourceForm, sub.Source)
	assert.False(t, sub.SubmittedAt.IsZero())
}
