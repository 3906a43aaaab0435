package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/my-life-chat/chats"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
	"github.com/xiaoyuanzhu-com/my-life-chat/notifications"
	"github.com/xiaoyuanzhu-com/my-life-chat/server"
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	srv, err := server.New(&server.Config{
		Env:          "production",
		DatabasePath: filepath.Join(dir, "chats.sqlite3"),
		HistoryPath:  filepath.Join(dir, "history", "chats.json"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	SetupRoutes(srv.Router(), NewHandlers(srv))
	return srv
}

func do(t *testing.T, srv *server.Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp DataResponse[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) ErrorCode {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error.Code
}

func TestTreeEndpoints(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/groups", gin.H{"name": "Work"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/Work", decodeData[pathResponse](t, w).Path)

	w = do(t, srv, http.MethodPost, "/api/chats", gin.H{"parent": "/Work", "name": "Plan"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, srv, http.MethodPost, "/api/chats", gin.H{"name": "Notes"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, srv, http.MethodPost, "/api/chats", gin.H{"parent": "/Work", "name": "Plan"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrCodeConflict, errorCode(t, w))

	w = do(t, srv, http.MethodPost, "/api/chats", gin.H{"parent": "/Missing", "name": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodPost, "/api/chats", gin.H{"parent": "/Notes", "name": "X"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodPost, "/api/chats", gin.H{"parent": "/"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodGet, "/api/nodes?path=/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	children := decodeData[[]chats.NodeInfo](t, w)
	require.Len(t, children, 2)
	assert.Equal(t, "Work", children[0].Name)
	assert.Equal(t, models.KindGroup, children[0].Kind)
	assert.Equal(t, "Notes", children[1].Name)

	w = do(t, srv, http.MethodPatch, "/api/nodes/rename", gin.H{"path": "/Work/Plan", "name": "Roadmap"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/Work/Roadmap", decodeData[pathResponse](t, w).Path)

	w = do(t, srv, http.MethodPatch, "/api/nodes/move", gin.H{"path": "/Notes", "target": "/Work", "position": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/Work/Notes", decodeData[pathResponse](t, w).Path)

	w = do(t, srv, http.MethodPatch, "/api/nodes/move", gin.H{"path": "/Work", "target": "/Work/Notes"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodGet, "/api/tree", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tree := decodeData[chats.TreeNode](t, w)
	require.Len(t, tree.Children, 1)
	work := tree.Children[0]
	require.Len(t, work.Children, 2)
	assert.Equal(t, "Notes", work.Children[0].Name)
	assert.Equal(t, "Roadmap", work.Children[1].Name)

	w = do(t, srv, http.MethodDelete, "/api/nodes?path=/Work", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, srv, http.MethodDelete, "/api/nodes?path=/Work", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, srv, http.MethodDelete, "/api/nodes", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActiveChatEndpoints(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/groups", gin.H{"name": "Work"})
	do(t, srv, http.MethodPost, "/api/chats", gin.H{"name": "Notes"})

	w := do(t, srv, http.MethodGet, "/api/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeData[activeResponse](t, w).Selected)

	w = do(t, srv, http.MethodPut, "/api/active", gin.H{"path": "/Work"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodPut, "/api/active", gin.H{"path": "/Notes"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/api/active", nil)
	assert.Equal(t, activeResponse{Path: "/Notes", Selected: true}, decodeData[activeResponse](t, w))

	w = do(t, srv, http.MethodDelete, "/api/active", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, srv, http.MethodGet, "/api/active", nil)
	assert.False(t, decodeData[activeResponse](t, w).Selected)
}

func TestMessageEndpoints(t *testing.T) {
	srv := newTestServer(t)

	// Nothing selected and no path given.
	w := do(t, srv, http.MethodGet, "/api/messages", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	do(t, srv, http.MethodPost, "/api/chats", gin.H{"name": "Notes"})
	do(t, srv, http.MethodPut, "/api/active", gin.H{"path": "/Notes"})

	w = do(t, srv, http.MethodPost, "/api/messages", gin.H{"role": "user", "content": "hello", "image": "cat.png"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, srv, http.MethodPost, "/api/messages", gin.H{"role": "robot", "content": "beep"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodGet, "/api/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	messages := decodeData[[]models.Message](t, w)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleTool, messages[0].Role)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "hello", Media: "cat.png"}, messages[1])

	w = do(t, srv, http.MethodGet, "/api/messages/last?path=/Notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", decodeData[models.Message](t, w).Content)

	w = do(t, srv, http.MethodPut, "/api/messages", gin.H{"messages": []gin.H{
		{"role": "user", "content": "a"},
		{"role": "assistant", "content": "b"},
		{"role": "user", "content": "c"},
		{"role": "assistant", "content": "d"},
	}})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = do(t, srv, http.MethodDelete, "/api/messages?mode=range&start=1&end=2", nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = do(t, srv, http.MethodDelete, "/api/messages?mode=range&start=2&end=9", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodDelete, "/api/messages?mode=role&role=system", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodDelete, "/api/messages?mode=role&role=user", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeData[clearByRoleResponse](t, w).Removed)

	w = do(t, srv, http.MethodDelete, "/api/messages?mode=last&n=5", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, "/api/messages/last", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodGet, "/api/messages", nil)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())

	w = do(t, srv, http.MethodDelete, "/api/messages?mode=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, srv, http.MethodDelete, "/api/messages?mode=last&n=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsAndStatsEndpoints(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/chats", gin.H{"name": "Notes"})

	w := do(t, srv, http.MethodGet, "/api/settings?path=/Notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DefaultChatSettings(), decodeData[models.ChatSettings](t, w))

	w = do(t, srv, http.MethodPut, "/api/settings", gin.H{
		"path":     "/Notes",
		"settings": gin.H{"replies_allowed": false, "llm": gin.H{"model_id": "small"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeData[models.ChatSettings](t, w)
	assert.True(t, got.MarkdownEnabled)
	assert.False(t, got.RepliesAllowed)
	assert.Equal(t, "small", got.LLM.ModelID)

	w = do(t, srv, http.MethodGet, "/api/settings?path=/", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	do(t, srv, http.MethodPost, "/api/messages", gin.H{"path": "/Notes", "role": "user", "content": "two words"})
	w = do(t, srv, http.MethodGet, "/api/stats?path=/Notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeData[chats.Stats](t, w)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, 2, stats.WordsPerRole[models.RoleUser])
}

func TestExportImportEndpoints(t *testing.T) {
	src := newTestServer(t)
	do(t, src, http.MethodPost, "/api/groups", gin.H{"name": "Work"})
	do(t, src, http.MethodPost, "/api/chats", gin.H{"parent": "/Work", "name": "Plan"})
	do(t, src, http.MethodPost, "/api/messages", gin.H{"path": "/Work/Plan", "role": "user", "content": "ship <it>"})
	do(t, src, http.MethodPut, "/api/active", gin.H{"path": "/Work/Plan"})

	for _, tc := range []struct {
		format      string
		contentType string
	}{
		{"json", "application/json"},
		{"yaml", "application/yaml"},
		{"tar.gz", "application/gzip"},
	} {
		t.Run(tc.format, func(t *testing.T) {
			w := do(t, src, http.MethodGet, "/api/export?format="+tc.format, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), tc.contentType))

			dst := newTestServer(t)
			req := httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewReader(w.Body.Bytes()))
			req.Header.Set("Content-Type", tc.contentType)
			rec := httptest.NewRecorder()
			dst.Router().ServeHTTP(rec, req)
			require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

			active, ok := dst.Store().Active()
			require.True(t, ok)
			assert.Equal(t, "/Work/Plan", active.String())

			messages, err := dst.Store().Messages(context.Background(), active)
			require.NoError(t, err)
			require.Len(t, messages, 2)
			assert.Equal(t, "ship <it>", messages[1].Content)
		})
	}

	w := do(t, src, http.MethodGet, "/api/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	src.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The failed import left the tree alone.
	_, ok := src.Store().Active()
	assert.True(t, ok)
}

func TestBackupEndpoint(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/chats", gin.H{"name": "Notes"})

	w := do(t, srv, http.MethodPost, "/api/backup", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeData[backupResponse](t, w)
	assert.Equal(t, srv.Config().HistoryPath, resp.Path)
	assert.Equal(t, 1, resp.Chats)

	data, err := os.ReadFile(srv.Config().HistoryPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Notes"`)

	srv.Config().HistoryPath = ""
	w = do(t, srv, http.MethodPost, "/api/backup", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

type fakeReplier struct {
	store *chats.Store
	err   error
}

func (f *fakeReplier) Reply(ctx context.Context, path chats.Path) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if err := f.store.Append(ctx, path, models.NewMessage(models.RoleAssistant, "pong")); err != nil {
		return "", err
	}
	return "pong", nil
}

func TestReplyEndpoint(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/chats", gin.H{"name": "Notes"})
	do(t, srv, http.MethodPut, "/api/active", gin.H{"path": "/Notes"})

	w := do(t, srv, http.MethodPost, "/api/reply", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	replier := &fakeReplier{store: srv.Store()}
	srv.SetReplier(replier)

	w = do(t, srv, http.MethodPost, "/api/reply", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, replyResponse{Path: "/Notes", Content: "pong"}, decodeData[replyResponse](t, w))

	w = do(t, srv, http.MethodPost, "/api/reply", gin.H{"path": "/Missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	replier.err = errors.New("upstream down")
	w = do(t, srv, http.MethodPost, "/api/reply", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func readEvent(t *testing.T, r *bufio.Reader) (notifications.Event, error) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return notifications.Event{}, err
		}
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var event notifications.Event
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		return event, nil
	}
}

func TestNotificationStream(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/notifications/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, err := readEvent(t, reader)
	require.NoError(t, err)
	assert.Equal(t, notifications.EventConnected, event.Type)

	w := do(t, srv, http.MethodPost, "/api/chats", gin.H{"name": "Notes"})
	require.Equal(t, http.StatusCreated, w.Code)

	event, err = readEvent(t, reader)
	require.NoError(t, err)
	assert.Equal(t, notifications.EventTreeChanged, event.Type)
	assert.Equal(t, "/Notes", event.Path)

	require.NoError(t, srv.Shutdown(context.Background()))
	_, err = readEvent(t, reader)
	assert.Error(t, err)
}
