package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhisuan/graphchat/config"
	"github.com/zhisuan/graphchat/llm"
	"github.com/zhisuan/graphchat/store"
	"github.com/zhisuan/graphchat/workflow"
)

type stubGenerator struct {
	tokens func(req llm.Request) []string
}

func (g *stubGenerator) GenerateStream(ctx context.Context, req llm.Request) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, token := range g.tokens(req) {
			select {
			case ch <- token:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (g *stubGenerator) GenerateBlocking(context.Context, llm.Request) string { return "" }

type memorySessions struct {
	turns map[string][]store.Message
}

func newMemorySessions() *memorySessions {
	return &memorySessions{turns: map[string][]store.Message{}}
}

func (m *memorySessions) Append(_ context.Context, sessionID string, msg store.Message) error {
	m.turns[sessionID] = append(m.turns[sessionID], msg)
	return nil
}

func (m *memorySessions) History(_ context.Context, sessionID string, _ int) ([]store.Message, error) {
	return m.turns[sessionID], nil
}

func (m *memorySessions) Clear(_ context.Context, sessionID string) error {
	delete(m.turns, sessionID)
	return nil
}

func (m *memorySessions) Close() error { return nil }

func newTestServer(sessions store.SessionStore) *Server {
	engine := workflow.NewEngine(workflow.Deps{
		Generator: &stubGenerator{tokens: func(req llm.Request) []string {
			return []string{"回答", "内容"}
		}},
		Config: config.NewHolder(config.Default()),
	})
	return New(engine, config.NewHolder(config.Default()), sessions)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestServer(nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatStreamsSSE(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestServer(nil).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/chat", "application/json",
		strings.NewReader(`{"sys_query": "你好"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames []map[string]any
	for _, block := range strings.Split(readAll(t, resp), "\n\n") {
		for _, line := range strings.Split(block, "\n") {
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var payload map[string]any
				require.NoError(t, json.Unmarshal([]byte(data), &payload))
				frames = append(frames, payload)
			}
		}
	}
	require.NotEmpty(t, frames)

	// First frame acknowledges the connection before any node output.
	assert.Equal(t, "node_started", frames[0]["events"])
	assert.Equal(t, "connection", frames[0]["node"])
	assert.Equal(t, "连接已建立，正在处理数据...", frames[0]["message"])
	assert.NotEmpty(t, frames[0]["conversion_id"])

	var answer strings.Builder
	for _, frame := range frames {
		if frame["events"] == "message" {
			answer.WriteString(frame["answer"].(string))
		}
	}
	assert.Equal(t, "回答内容", answer.String())

	last := frames[len(frames)-1]
	assert.Equal(t, "complete", last["events"])
}

func TestChatBlockingReturnsAnswer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestServer(nil).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/chat/blocking", "application/json",
		strings.NewReader(`{"sys_query": "你好"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "回答内容", payload["answer"])
	assert.NotEmpty(t, payload["conversion_id"])
	assert.Nil(t, payload["errors"])
}

func TestChatRejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestServer(nil).Router())
	t.Cleanup(srv.Close)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{`, "请求体不是合法的JSON"},
		{"empty query", `{}`, "用户查询不能为空"},
		{"file names without kb", `{"sys_query": "q", "file_names": ["a.pdf"]}`, "必须同时指定kb_names"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, err := http.Post(srv.URL+"/v1/chat", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var payload map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
			assert.Contains(t, payload["error"], tt.want)
		})
	}
}

func TestBlockingPersistsSessionTurns(t *testing.T) {
	t.Parallel()

	sessions := newMemorySessions()
	srv := httptest.NewServer(newTestServer(sessions).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/chat/blocking", "application/json",
		strings.NewReader(`{"sys_query": "第一个问题", "session_id": "s1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	turns := sessions.turns["s1"]
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "第一个问题", turns[0].Content)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, "回答内容", turns[1].Content)
}

func TestConfigReload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestServer(nil).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/admin/config/reload", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}
