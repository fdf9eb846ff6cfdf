package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mention-bot/internal/agent"
	"mention-bot/internal/config"
	"mention-bot/internal/mention"
	"mention-bot/internal/metrics"
	"mention-bot/internal/roster"
	"mention-bot/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStatus struct{}

func (staticStatus) Status() agent.Status {
	return agent.Status{Mode: "inject", Grammar: "bracket", SelfID: 10000}
}

type staticFetcher []roster.Entry

func (f staticFetcher) FetchRoster(ctx context.Context, groupID int64) ([]roster.Entry, error) {
	return f, nil
}

type fakeReplies struct {
	gotGroup int64
	gotPage  int
	gotSize  int
}

func (f *fakeReplies) ListReplies(ctx context.Context, groupID int64, page, pageSize int) ([]store.ReplyLog, int64, error) {
	f.gotGroup, f.gotPage, f.gotSize = groupID, page, pageSize
	return []store.ReplyLog{{RequestID: "r1", GroupID: groupID}}, 1, nil
}

func newTestServer(t *testing.T, replies ReplyLister) http.Handler {
	t.Helper()
	cfg, err := config.Parse([]byte("app:\n  debug: false\n"))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)
	svc := roster.NewService(staticFetcher{
		{UserID: "1001", Nickname: "Alice"},
		{UserID: "1002", Nickname: "Bob", Card: "Bobby"},
	}, 0, m)
	return NewServer(cfg, staticStatus{}, svc, mention.Bracket, replies, reg).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealthAndStatus(t *testing.T) {
	h := newTestServer(t, nil)

	w, body := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, body = do(t, h, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bracket", body["agent"].(map[string]interface{})["grammar"])
	assert.Equal(t, false, body["store"])
}

func TestRewriteEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	w, body := do(t, h, http.MethodPost, "/api/rewrite", `{"text":"Hello [at:1001] and [at:9999lol] there"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["mentions"])
	assert.Equal(t, float64(1), body["noise"])
	assert.Equal(t, "Hello @1001 and  there", body["rendered"])

	w, body = do(t, h, http.MethodPost, "/api/rewrite", `{"text":"hi <at id=\"5\"/>","grammar":"xml"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xml", body["grammar"])
	assert.Equal(t, float64(1), body["mentions"])

	w, _ = do(t, h, http.MethodPost, "/api/rewrite", `{"text":"x","grammar":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, h, http.MethodPost, "/api/rewrite", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMembersEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	w, body := do(t, h, http.MethodGet, "/api/members?group_id=42&keyword=bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["count"])

	_, body = do(t, h, http.MethodGet, "/api/members?keyword=bob", "")
	assert.Equal(t, "no_group_context", body["code"])

	w, _ = do(t, h, http.MethodGet, "/api/members?group_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRepliesEndpoint(t *testing.T) {
	w, _ := do(t, newTestServer(t, nil), http.MethodGet, "/api/replies", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	fr := &fakeReplies{}
	w, body := do(t, newTestServer(t, fr), http.MethodGet, "/api/replies?group_id=42&page=2&page_size=500", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, int64(42), fr.gotGroup)
	assert.Equal(t, 2, fr.gotPage)
	assert.Equal(t, 100, fr.gotSize)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	do(t, h, http.MethodGet, "/api/members?group_id=42&keyword=bob", "")

	w, _ := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `mention_bot_roster_fetch_total{result="ok"} 1`)
}
