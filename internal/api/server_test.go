package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/vidcap/internal/api/models"
	"github.com/smazurov/vidcap/internal/capture"
	"github.com/smazurov/vidcap/internal/events"
	"github.com/smazurov/vidcap/internal/inventory"
	"github.com/smazurov/vidcap/internal/version"
	"github.com/smazurov/vidcap/pkg/vidcap"
)

// fakeInventory serves one backend with fixed sources.
type fakeInventory struct {
	mu       sync.Mutex
	sources  []vidcap.SourceInfo
	formats  []vidcap.Format
	started  []*vidcap.Format
	previews map[string]bool
	startErr error
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		sources: []vidcap.SourceInfo{
			{Identifier: "/dev/video0", Description: "Webcam"},
			{Identifier: "/dev/video2", Description: "Capture card"},
		},
		formats: []vidcap.Format{
			{Width: 640, Height: 480, Fourcc: vidcap.FourccI420, FPSNumerator: 30, FPSDenominator: 1},
			{Width: 320, Height: 240, Fourcc: vidcap.FourccRGB32, FPSNumerator: 15, FPSDenominator: 1},
		},
		previews: make(map[string]bool),
	}
}

func (f *fakeInventory) Backends() []inventory.BackendStatus {
	return []inventory.BackendStatus{{
		Info:     vidcap.BackendInfo{Identifier: "v4l2", Description: "Video4Linux2"},
		Sources:  len(f.sources),
		Watching: true,
	}}
}

func (f *fakeInventory) Sources(_ context.Context, backend string) ([]vidcap.SourceInfo, error) {
	if backend != "v4l2" {
		return nil, fmt.Errorf("%w: %s", inventory.ErrUnknownBackend, backend)
	}
	return f.sources, nil
}

func (f *fakeInventory) find(backend, source string) error {
	if backend != "v4l2" {
		return fmt.Errorf("%w: %s", inventory.ErrUnknownBackend, backend)
	}
	for _, s := range f.sources {
		if s.Identifier == source {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", inventory.ErrUnknownSource, source)
}

func (f *fakeInventory) Formats(_ context.Context, backend, source string) ([]vidcap.Format, error) {
	if err := f.find(backend, source); err != nil {
		return nil, err
	}
	return f.formats, nil
}

func (f *fakeInventory) Sessions() []vidcap.SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vidcap.SessionInfo
	for k := range f.previews {
		out = append(out, vidcap.SessionInfo{Backend: "v4l2", Source: vidcap.SourceInfo{Identifier: k}, State: "capturing"})
	}
	return out
}

func (f *fakeInventory) StartPreview(_ context.Context, backend, source string, fm *vidcap.Format) (vidcap.SessionInfo, error) {
	if err := f.find(backend, source); err != nil {
		return vidcap.SessionInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return vidcap.SessionInfo{}, f.startErr
	}
	if f.previews[source] {
		return vidcap.SessionInfo{}, capture.NewError(capture.CodeAlreadyAcquired, "source already acquired", nil)
	}
	f.previews[source] = true
	f.started = append(f.started, fm)
	return vidcap.SessionInfo{Backend: backend, Source: vidcap.SourceInfo{Identifier: source}, State: "capturing", Format: fm}, nil
}

func (f *fakeInventory) StopPreview(backend, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.previews[source] {
		return fmt.Errorf("%w: %s/%s", inventory.ErrNoSession, backend, source)
	}
	delete(f.previews, source)
	return nil
}

type testServer struct {
	*httptest.Server
	inv *fakeInventory
	bus *events.Bus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	inv := newFakeInventory()
	bus := events.New()
	server := NewServer(&Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		Inventory:    inv,
		EventBus:     bus,
		PrometheusHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
	ts := httptest.NewServer(server.GetMux())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, inv: inv, bus: bus}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthWithoutAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[models.HealthData](t, resp)
	assert.Equal(t, "ok", body.Status)
}

func TestSchemaNamesDoNotCollide(t *testing.T) {
	var server *Server
	require.NotPanics(t, func() {
		server = NewServer(&Options{Inventory: newFakeInventory(), EventBus: events.New()})
	})

	schemas := server.GetAPI().OpenAPI().Components.Schemas.Map()
	assert.Contains(t, schemas, "BuildInfo")
	assert.Contains(t, schemas, "Info")
	assert.Contains(t, schemas, "BackendStatus")
}

func TestVersion(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[version.BuildInfo](t, resp)
	assert.NotEmpty(t, body.Version)
	assert.NotEmpty(t, body.GoVersion)
}

func TestMetricsEndpointWithoutAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/backends")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/backends", nil)
	req.SetBasicAuth("admin", "wrong")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestAuthVariants(t *testing.T) {
	ts := newTestServer(t)
	good := base64.StdEncoding.EncodeToString([]byte("admin:secret"))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer scheme", "Bearer " + good, "", http.StatusUnauthorized},
		{"not base64", "Basic !!!", "", http.StatusUnauthorized},
		{"no colon", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin")), "", http.StatusUnauthorized},
		{"lower-case scheme", "basic " + good, "", http.StatusOK},
		{"query parameter", "", good, http.StatusOK},
		{"header wins over query", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:nope")), good, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := ts.URL + "/api/backends"
			if tt.query != "" {
				target += "?auth=" + url.QueryEscape(tt.query)
			}
			req, err := http.NewRequest(http.MethodGet, target, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestListBackendsAndSources(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/backends", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	backends := decode[models.BackendListData](t, resp)
	require.Equal(t, 1, backends.Count)
	assert.Equal(t, "v4l2", backends.Backends[0].Info.Identifier)
	assert.Equal(t, 2, backends.Backends[0].Sources)

	resp = ts.do(t, http.MethodGet, "/api/backends/v4l2/sources", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sources := decode[models.SourceListData](t, resp)
	assert.Equal(t, 2, sources.Count)
	assert.Equal(t, "/dev/video0", sources.Sources[0].Identifier)

	resp = ts.do(t, http.MethodGet, "/api/backends/dshow/sources", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListFormats(t *testing.T) {
	ts := newTestServer(t)

	q := url.Values{"backend": {"v4l2"}, "source": {"/dev/video0"}}
	resp := ts.do(t, http.MethodGet, "/api/formats?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	formats := decode[models.FormatListData](t, resp)
	require.Equal(t, 2, formats.Count)
	assert.Equal(t, models.FormatInfo{Width: 640, Height: 480, Fourcc: "i420", FPSNumerator: 30, FPSDenominator: 1}, formats.Formats[0])
	assert.Equal(t, "rgb32", formats.Formats[1].Fourcc)

	q.Set("source", "/dev/video9")
	resp = ts.do(t, http.MethodGet, "/api/formats?"+q.Encode(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPreviewLifecycle(t *testing.T) {
	ts := newTestServer(t)

	body := `{"backend":"v4l2","source":"/dev/video0","format":{"width":640,"height":480,"fourcc":"rgb32","fps_numerator":15,"fps_denominator":1}}`
	resp := ts.do(t, http.MethodPost, "/api/sessions", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	session := decode[vidcap.SessionInfo](t, resp)
	assert.Equal(t, "/dev/video0", session.Source.Identifier)

	ts.inv.mu.Lock()
	require.Len(t, ts.inv.started, 1)
	require.NotNil(t, ts.inv.started[0])
	assert.Equal(t, vidcap.FourccRGB32, ts.inv.started[0].Fourcc)
	ts.inv.mu.Unlock()

	resp = ts.do(t, http.MethodPost, "/api/sessions", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "second preview of the same source")

	resp = ts.do(t, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[models.SessionListData](t, resp).Count)

	q := url.Values{"backend": {"v4l2"}, "source": {"/dev/video0"}}
	resp = ts.do(t, http.MethodDelete, "/api/sessions?"+q.Encode(), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/sessions?"+q.Encode(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPreviewWithoutFormat(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/sessions", `{"backend":"v4l2","source":"/dev/video2"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ts.inv.mu.Lock()
	defer ts.inv.mu.Unlock()
	require.Len(t, ts.inv.started, 1)
	assert.Nil(t, ts.inv.started[0], "no format means the first advertised one")
}

func TestPreviewErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad fourcc", `{"backend":"v4l2","source":"/dev/video0","format":{"width":1,"height":1,"fourcc":"h264","fps_numerator":1,"fps_denominator":1}}`, nil, http.StatusBadRequest},
		{"unsupported", `{"backend":"v4l2","source":"/dev/video0"}`, capture.NewError(capture.CodeFormatUnsupported, "no compatible format", nil), http.StatusUnprocessableEntity},
		{"backend failure", `{"backend":"v4l2","source":"/dev/video0"}`, capture.NewError(capture.CodeBackendResourceFailure, "ioctl failed", nil), http.StatusInternalServerError},
		{"unknown backend", `{"backend":"dshow","source":"/dev/video0"}`, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.inv.startErr = tt.err
			resp := ts.do(t, http.MethodPost, "/api/sessions", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRecentLogs(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/logs?limit=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	logs := decode[models.LogListData](t, resp)
	assert.LessOrEqual(t, logs.Count, 5)
	assert.Len(t, logs.Entries, logs.Count)
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t)

	credentials := base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?auth="+credentials, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
	}()

	next := func() string {
		select {
		case line := <-lines:
			return line
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for SSE data")
			return ""
		}
	}

	// The current sources are replayed first.
	assert.Contains(t, next(), "/dev/video0")
	assert.Contains(t, next(), "/dev/video2")

	ts.bus.Publish(events.CaptureErrorEvent{
		Backend: "v4l2",
		Source:  "/dev/video0",
		Session: "s1",
		Status:  vidcap.StatusDeviceLost,
		Error:   "device unplugged",
	})
	line := next()
	assert.Contains(t, line, `"status":-2`)
	assert.Contains(t, line, "device unplugged")
}

func TestRedactQuery(t *testing.T) {
	assert.Equal(t, "", redactQuery(""))
	assert.Equal(t, "auth=REDACTED&limit=5", redactQuery("auth=YWRtaW46c2VjcmV0&limit=5"))
	assert.Equal(t, "backend=v4l2", redactQuery("backend=v4l2"))
}

func TestPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/sessions", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")
}
