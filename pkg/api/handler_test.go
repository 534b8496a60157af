// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/vastplayer/internal/testing/vastserver"
	"github.com/luxfi/vastplayer/pkg/metric"
	"github.com/luxfi/vastplayer/pkg/monitor"
	"github.com/luxfi/vastplayer/pkg/session"
	"github.com/luxfi/vastplayer/pkg/tracking"
	"github.com/luxfi/vastplayer/pkg/transport"
	"github.com/luxfi/vastplayer/pkg/vast"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	srv     *vastserver.Server
	router  *gin.Engine
	store   *session.Store
	hub     *monitor.Hub
	mu      sync.Mutex
	fired   []string
	metrics *metric.Metrics
}

func (e *testEnv) dispatched() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fired...)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{srv: vastserver.New()}
	t.Cleanup(env.srv.Close)

	m, err := metric.NewMetrics()
	require.NoError(t, err)
	env.metrics = m

	fetcher := transport.NewHTTPFetcher(time.Second)
	fetcher.Client = env.srv.Client()

	hub := monitor.NewHub(tracking.DispatcherFunc(func(u string) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.fired = append(env.fired, u)
	}), nil)
	t.Cleanup(hub.Close)
	env.hub = hub

	env.store = session.NewStore(hub, time.Minute, session.WithMetrics(m))
	env.router = NewHandler(Config{
		Fetcher:         fetcher,
		ResolverOptions: []vast.Option{vast.WithLoadTimeout(time.Second), vast.WithMetrics(m)},
		Capabilities:    vast.Capabilities{MIMETypes: []string{"video/mp4"}, DisplayWidth: 640, DisplayHeight: 360},
		Sessions:        env.store,
		Monitor:         hub,
		Metrics:         m,
	}).Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type resolveResult struct {
	SessionID string         `json:"session_id"`
	Media     vast.MediaFile `json:"media"`
	Model     vast.ModelData `json:"model"`
}

func (e *testEnv) resolve(t *testing.T, entry string) resolveResult {
	t.Helper()
	w := e.do(t, http.MethodGet, "/api/v1/vast/resolve?url="+url.QueryEscape(entry), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res resolveResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestHandler_ResolveQuery(t *testing.T) {
	env := newTestEnv(t)
	entry, err := env.srv.Chain("ad", 2)
	require.NoError(t, err)

	res := env.resolve(t, entry)
	_, err = uuid.Parse(res.SessionID)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/ad/360.mp4", res.Media.URL)
	require.Equal(t, 2, res.Model.WrapperDepth)
	require.Equal(t, []string{
		env.srv.PixelURL("ad-w0-imp"),
		env.srv.PixelURL("ad-w1-imp"),
		env.srv.PixelURL("ad-imp"),
	}, res.Model.Impressions)
	require.Equal(t, 1, env.store.Len())

	// Capabilities from the query string override the defaults.
	w := env.do(t, http.MethodGet, "/api/v1/vast/resolve?url="+url.QueryEscape(entry)+"&playersize=1280x720", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "ad/720.mp4")

	w = env.do(t, http.MethodGet, "/api/v1/vast/resolve?url="+url.QueryEscape(entry)+"&mime=application/x-mpegURL&delivery=streaming", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "master.m3u8")
}

func TestHandler_ResolveOpenRTBVideo(t *testing.T) {
	env := newTestEnv(t)
	entry, err := env.srv.Put("ad", env.srv.Inline("ad"))
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/v1/vast/resolve", map[string]any{
		"url":   entry,
		"video": map[string]any{"mimes": []string{"video/mp4"}, "w": 1280, "h": 720, "maxbitrate": 2000},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res resolveResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, "https://cdn.example.com/ad/720.mp4", res.Media.URL)
}

func TestHandler_ResolveErrors(t *testing.T) {
	env := newTestEnv(t)
	bad := env.srv.PutRaw("bad", []byte("not xml <"))
	deep, err := env.srv.Chain("deep", vast.DefaultMaxWrapperDepth+1)
	require.NoError(t, err)
	flv := env.srv.PutRaw("flv", []byte(`<VAST version="2.0"><Ad><InLine><Creatives><Creative><Linear>
		<MediaFiles><MediaFile type="video/x-flv">https://cdn.example.com/a.flv</MediaFile></MediaFiles>
	</Linear></Creative></Creatives></InLine></Ad></VAST>`))

	tests := []struct {
		name   string
		target string
		status int
		kind   vast.Kind
	}{
		{"missing url", "/api/v1/vast/resolve", http.StatusBadRequest, vast.KindNone},
		{"bad player size", "/api/v1/vast/resolve?url=x&playersize=big", http.StatusBadRequest, vast.KindNone},
		{"unreachable", "/api/v1/vast/resolve?url=" + url.QueryEscape(env.srv.DocumentURL("nope")), http.StatusBadGateway, vast.KindNoInternetConnection},
		{"malformed", "/api/v1/vast/resolve?url=" + url.QueryEscape(bad), http.StatusUnprocessableEntity, vast.KindXMLParse},
		{"too deep", "/api/v1/vast/resolve?url=" + url.QueryEscape(deep), http.StatusBadGateway, vast.KindTooManyWrappers},
		{"no media", "/api/v1/vast/resolve?url=" + url.QueryEscape(flv), http.StatusUnprocessableEntity, vast.KindNoCompatibleMediaFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.target, nil)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.kind == vast.KindNone {
				return
			}
			var res ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			require.Equal(t, tt.kind.String(), res.Kind)
			require.Equal(t, tt.kind.Code(), res.Code)
		})
	}
	require.Zero(t, env.store.Len())
}

func TestHandler_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	entry, err := env.srv.Put("ad", env.srv.Inline("ad"))
	require.NoError(t, err)
	res := env.resolve(t, entry)
	base := "/api/v1/sessions/" + res.SessionID

	post := func(body any) EventResponse {
		w := env.do(t, http.MethodPost, base+"/events", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out EventResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}

	require.Equal(t, []vast.Event{vast.EventStart}, post(map[string]any{"event": "start"}).Fired)
	require.Empty(t, post(map[string]any{"event": "START"}).Fired)
	require.Equal(t, []vast.Event{vast.EventFirstQuartile, vast.EventMidpoint},
		post(map[string]any{"position": 16.0, "duration": 30.0}).Fired)
	require.Equal(t, []vast.Event{vast.EventPause}, post(map[string]any{"event": "pause"}).Fired)
	require.Equal(t, []vast.Event{vast.EventPause}, post(map[string]any{"event": "pause"}).Fired)
	require.Equal(t, []vast.Event{vast.EventComplete}, post(map[string]any{"event": "complete"}).Fired)

	w := env.do(t, http.MethodPost, base+"/events", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, base+"/click", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "https://advertiser.example.com/ad")

	w = env.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodPost, base+"/events", map[string]any{"event": "resume"})
	require.Equal(t, http.StatusNotFound, w.Code)

	px := env.srv.PixelURL
	require.Equal(t, []string{
		px("ad-imp"), px("ad-start"),
		px("ad-firstQuartile"), px("ad-midpoint"),
		px("ad-pause"), px("ad-pause"),
		px("ad-thirdQuartile"), px("ad-complete"),
		px("ad-click"),
		px("ad-close"),
	}, env.dispatched())
}

func TestHandler_EventsBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	entry, err := env.srv.Put("ad", env.srv.Inline("ad"))
	require.NoError(t, err)
	res := env.resolve(t, entry)

	post := func(body any) EventResponse {
		w := env.do(t, http.MethodPost, "/api/v1/sessions/"+res.SessionID+"/events", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out EventResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}

	require.Empty(t, post(map[string]any{"event": "pause"}).Fired)
	require.Empty(t, post(map[string]any{"event": "resume"}).Fired)
	require.Empty(t, post(map[string]any{"position": 20.0, "duration": 30.0}).Fired)
	require.Empty(t, post(map[string]any{"event": "complete"}).Fired)
	for i := 0; i < 10; i++ {
		require.Empty(t, post(map[string]any{"event": "junk-" + strconv.Itoa(i)}).Fired)
	}
	require.Empty(t, env.dispatched())

	require.Equal(t, []vast.Event{vast.EventStart}, post(map[string]any{"event": "start"}).Fired)
	require.Equal(t, []string{env.srv.PixelURL("ad-imp"), env.srv.PixelURL("ad-start")}, env.dispatched())
}

func TestHandler_SessionErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/sessions/not-a-uuid/events", map[string]any{"event": "start"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/sessions/"+uuid.NewString()+"/click", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	entry, err := env.srv.Put("ad", env.srv.Inline("ad"))
	require.NoError(t, err)
	res := env.resolve(t, entry)
	w = env.do(t, http.MethodPost, "/api/v1/sessions/"+res.SessionID+"/events", map[string]any{"error_code": 405})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{env.srv.PixelURL("ad-error") + "?code=405"}, env.dispatched())
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"healthy","sessions":0}`, w.Body.String())

	entry, err := env.srv.Put("ad", env.srv.Inline("ad"))
	require.NoError(t, err)
	env.resolve(t, entry)

	w = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.True(t, strings.Contains(body, `vastplayer_vast_resolutions_total{result="ok"} 1`), body)
	require.Contains(t, body, "vastplayer_player_sessions_active 1")
}
