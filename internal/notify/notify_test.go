package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/internal/resilience"
)

func fastRetry(n int) resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: n, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

type recorder struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (r *recorder) handler(status int, reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		r.mu.Lock()
		r.payloads = append(r.payloads, m)
		r.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}
}

func sampleProject() *model.Project {
	return &model.Project{
		Attributes: model.Attributes{
			Name:            "Jiaxing Xiuzhou Underground WWTP",
			Location:        "Zhejiang·Jiaxing",
			NearTermScale:   model.Float(15),
			TotalInvestment: model.Float(12.5),
		},
		ProjectID:    "a1b2c3d4e5f6",
		SourceCount:  2,
		Completeness: "62%",
	}
}

func TestWebhook_Text(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK, `{"code":0,"msg":"success"}`))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	require.True(t, w.Enabled())
	require.NoError(t, w.Text(context.Background(), "processing https://a.cn"))

	require.Len(t, rec.payloads, 1)
	assert.Equal(t, "text", rec.payloads[0]["msg_type"])
	content := rec.payloads[0]["content"].(map[string]any)
	assert.Equal(t, "processing https://a.cn", content["text"])
}

func TestWebhook_Card(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK, `{"code":0}`))
	defer srv.Close()

	card := MergedCard(sampleProject(), 1, "https://registry.example/base")
	require.NoError(t, NewWebhook(srv.URL).Card(context.Background(), card))

	require.Len(t, rec.payloads, 1)
	p := rec.payloads[0]
	assert.Equal(t, "interactive", p["msg_type"])
	c := p["card"].(map[string]any)
	header := c["header"].(map[string]any)
	assert.Equal(t, TemplateGreen, header["template"])
	elements := c["elements"].([]any)
	require.Len(t, elements, 2)
	text := elements[0].(map[string]any)["text"].(map[string]any)["content"].(string)
	assert.Contains(t, text, "**Jiaxing Xiuzhou Underground WWTP**")
	assert.Contains(t, text, "Scale: 15 10k t/d")
	assert.Contains(t, text, "Investment: 12.5 100M CNY")
	assert.Contains(t, text, "Sources: 2")
	assert.Contains(t, text, "1 conflicting value(s)")
	button := elements[1].(map[string]any)["actions"].([]any)[0].(map[string]any)
	assert.Equal(t, "https://registry.example/base", button["url"])
}

func TestWebhook_CardWithoutButton(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK, `{"code":0}`))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL).Card(context.Background(), FailureCard("https://a.cn", errors.New("timeout"))))
	elements := rec.payloads[0]["card"].(map[string]any)["elements"].([]any)
	assert.Len(t, elements, 1)
}

func TestWebhook_Disabled(t *testing.T) {
	w := NewWebhook("")
	assert.False(t, w.Enabled())
	assert.NoError(t, w.Text(context.Background(), "dropped"))
	assert.NoError(t, w.Card(context.Background(), Card{}))
}

func TestWebhook_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithRetry(fastRetry(3)))
	require.NoError(t, w.Text(context.Background(), "hi"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhook_RejectedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"code":19001,"msg":"param invalid"}`))
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, WithRetry(fastRetry(3))).Text(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 19001")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhook_ClientError(t *testing.T) {
	srv := httptest.NewServer((&recorder{}).handler(http.StatusBadRequest, ""))
	defer srv.Close()

	err := NewWebhook(srv.URL, WithRetry(fastRetry(3)), WithHTTPClient(srv.Client())).Text(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestCreatedCard(t *testing.T) {
	p := sampleProject()
	p.TotalInvestment = nil
	p.Location = ""
	card := CreatedCard(p, "")

	assert.Equal(t, TemplateBlue, card.Template)
	assert.Contains(t, card.Body, "📍 unrecognized")
	assert.Contains(t, card.Body, "Investment: unrecognized")
	assert.Contains(t, card.Body, "Project ID: a1b2c3d4...")
}

func TestMergedCard_NoConflicts(t *testing.T) {
	card := MergedCard(sampleProject(), 0, "")
	assert.NotContains(t, card.Body, "conflicting")
}

func TestDiscard(t *testing.T) {
	var n Notifier = Discard{}
	assert.NoError(t, n.Text(context.Background(), "x"))
	assert.NoError(t, n.Card(context.Background(), Card{}))
}
