package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/snaptrace/internal/logging"
	"github.com/fakeyudi/snaptrace/tracer"
)

type brokenLog struct{}

func (brokenLog) Append([]byte) error       { return errors.New("disk on fire") }
func (brokenLog) Lines() ([]string, error) { return nil, errors.New("disk on fire") }
func (brokenLog) Clear() error             { return errors.New("disk on fire") }

func newTestServer(t *testing.T, log Log) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(log, logging.NewDiscardLogger()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func seed(t *testing.T, sink tracer.Sink, class, method string) {
	t.Helper()
	ev := tracer.NewChangeEvent(class, method, tracer.ChangeSet{"count": {Before: 0, After: 1}}, nil)
	require.NoError(t, tracer.NewRecorder(sink).Record(ev))
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func Test_ListLogs_Empty(t *testing.T) {
	ts := newTestServer(t, tracer.NewFileSink(t.TempDir()+"/log.txt"))

	resp := do(t, http.MethodGet, ts.URL+"/api/logs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, map[string]any{"entries": []any{}}, decode(t, resp))
}

func Test_ListLogs_SkipsMalformedLines(t *testing.T) {
	sink := &tracer.MemorySink{}
	seed(t, sink, "Dict", "Set")
	require.NoError(t, sink.Append([]byte("not json")))
	seed(t, sink, "Tracer", "Toggle")
	ts := newTestServer(t, sink)

	body := decode(t, do(t, http.MethodGet, ts.URL+"/api/logs"))
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "Dict", entries[0].(map[string]any)["class"])
	assert.Equal(t, "Toggle", entries[1].(map[string]any)["method"])
}

func Test_ClearLogs(t *testing.T) {
	sink := &tracer.MemorySink{}
	seed(t, sink, "Dict", "Set")
	ts := newTestServer(t, sink)

	resp := do(t, http.MethodDelete, ts.URL+"/api/logs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"success": true}, decode(t, resp))

	lines, err := sink.Lines()
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func Test_Timeline(t *testing.T) {
	sink := &tracer.MemorySink{}
	seed(t, sink, "Dict", "Set")
	seed(t, sink, "Dict", "Set")
	ts := newTestServer(t, sink)

	body := decode(t, do(t, http.MethodGet, ts.URL+"/api/timeline"))
	timeline, ok := body["timeline"].([]any)
	require.True(t, ok)
	require.Len(t, timeline, 2)
	second := timeline[1].(map[string]any)
	assert.Equal(t, float64(1), second["index"])
	assert.Equal(t, map[string]any{"Dict": map[string]any{"count": float64(1)}}, second["state_after"])
}

func Test_State(t *testing.T) {
	sink := &tracer.MemorySink{}
	seed(t, sink, "Dict", "Set")
	ts := newTestServer(t, sink)

	body := decode(t, do(t, http.MethodGet, ts.URL+"/api/state/0"))
	assert.Equal(t, map[string]any{"Dict": map[string]any{"count": float64(1)}}, body["state"])

	body = decode(t, do(t, http.MethodGet, ts.URL+"/api/state/7"))
	assert.Equal(t, map[string]any{}, body["state"])
	assert.Equal(t, map[string]any{}, body["changes"])

	resp := do(t, http.MethodGet, ts.URL+"/api/state/abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func Test_Errors(t *testing.T) {
	ts := newTestServer(t, brokenLog{})

	for _, tc := range []struct {
		method, path, msg string
	}{
		{http.MethodGet, "/api/logs", "Failed to read log file"},
		{http.MethodDelete, "/api/logs", "Failed to clear log file"},
		{http.MethodGet, "/api/timeline", "Failed to read log file"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp := do(t, tc.method, ts.URL+tc.path)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			body := decode(t, resp)
			assert.Equal(t, tc.msg, body["error"])
			assert.NotContains(t, body["error"], "disk on fire")
		})
	}
}

func Test_UnknownRoute(t *testing.T) {
	ts := newTestServer(t, &tracer.MemorySink{})
	resp := do(t, http.MethodPost, ts.URL+"/api/logs")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
