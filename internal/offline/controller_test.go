package offline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fitness-gateway-api/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// fakeUpstream simulates the remote fitness API, with a switch to take it
// offline mid-test.
type fakeUpstream struct {
	srv     *httptest.Server
	offline atomic.Bool
	hits    atomic.Int32

	mu     sync.Mutex
	routes map[string]string
}

func newFakeUpstream(t *testing.T, routes map[string]string) *fakeUpstream {
	t.Helper()
	u := &fakeUpstream{routes: routes}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u.offline.Load() {
			// simulate the connection being refused
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		u.hits.Add(1)
		u.mu.Lock()
		body, ok := u.routes[r.URL.Path]
		u.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/index.html" || r.URL.Path == "/" || r.URL.Path == "/offline.html" {
			w.Header().Set("Content-Type", "text/html")
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(u.srv.Close)
	return u
}

// setRoute swaps a route's body mid-test, simulating fresh upstream data.
func (u *fakeUpstream) setRoute(path, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.routes[path] = body
}

func defaultRoutes() map[string]string {
	return map[string]string{
		"/":                   "<html>shell</html>",
		"/index.html":         "<html>shell</html>",
		"/offline.html":       "<html>offline</html>",
		"/app.js":             "console.log('app')",
		"/app.css":            "body{}",
		"/icons/icon-192.png": "png-bytes",
		"/v1/equipment":       `{"equipment":["barbell"]}`,
		"/v1/workouts/today":  `{"workout":"push day"}`,
	}
}

func newTestController(t *testing.T, up *fakeUpstream, version string) *Controller {
	t.Helper()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	gens := NewGenerations(db)
	queue := NewQueue(db)
	return NewController(DefaultConfig(up.srv.URL, version), gens, queue, nil)
}

func serve(c *Controller, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	r := gin.New()
	r.NoRoute(c.Handle)
	r.ServeHTTP(w, req)
	return w
}

func TestInstall_PrecachesManifest(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")

	require.NoError(t, c.Install(context.Background()))
	require.Equal(t, StateInstalled, c.State())

	row, ok, err := c.gens.Match(GenerationName(TierStatic, "1"), "/app.js")
	require.NoError(t, err)
	require.True(t, ok, "manifest asset must be precached")
	require.Equal(t, "console.log('app')", string(row.Body))
}

func TestInstall_MissingAssetDoesNotAbortPrecache(t *testing.T) {
	routes := defaultRoutes()
	delete(routes, "/icons/icon-192.png") // 404 during local development
	up := newFakeUpstream(t, routes)
	c := newTestController(t, up, "1")

	require.NoError(t, c.Install(context.Background()))

	_, ok, err := c.gens.Match(GenerationName(TierStatic, "1"), "/app.js")
	require.NoError(t, err)
	require.True(t, ok, "assets after the missing one must still be cached")
	_, ok, err = c.gens.Match(GenerationName(TierStatic, "1"), "/icons/icon-192.png")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestActivate_PrunesOldGenerations(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	gens := NewGenerations(db)

	v1 := NewController(DefaultConfig(up.srv.URL, "1"), gens, nil, nil)
	require.NoError(t, v1.Run(context.Background()))

	v2 := NewController(DefaultConfig(up.srv.URL, "2"), gens, nil, nil)
	require.NoError(t, v2.Run(context.Background()))
	require.Equal(t, StateActive, v2.State())

	names, err := gens.Names()
	require.NoError(t, err)
	for _, name := range names {
		require.NotContains(t, name, "-v1", "v1 generations must be deleted on v2 activation")
	}
	_, ok, err := gens.Match(GenerationName(TierStatic, "2"), "/app.js")
	require.NoError(t, err)
	require.True(t, ok, "v2 entries must be unaffected")
}

func TestStatic_CacheFirstServesPrecachedWhileOffline(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")
	require.NoError(t, c.Run(context.Background()))

	up.offline.Store(true)
	req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
	w := serve(c, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "console.log('app')", w.Body.String())
	require.Equal(t, "HIT", w.Header().Get("X-Cache"))
}

func TestStatic_Synthetic503WhenOfflineAndUncached(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")
	require.NoError(t, c.Run(context.Background()))

	up.offline.Store(true)
	req := httptest.NewRequest(http.MethodGet, "/vendor.js", nil)
	w := serve(c, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "not available offline")
}

func TestAPI_StaleWhileRevalidateServesCachedWhileOffline(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")
	require.NoError(t, c.Run(context.Background()))

	// first request populates the api generation
	w := serve(c, httptest.NewRequest(http.MethodGet, "/v1/equipment", nil))
	require.Equal(t, http.StatusOK, w.Code)

	up.offline.Store(true)
	w = serve(c, httptest.NewRequest(http.MethodGet, "/v1/equipment", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"equipment":["barbell"]}`, w.Body.String(), "cached body must be returned unchanged")
}

func TestAPI_BackgroundRefreshUpdatesCache(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")
	require.NoError(t, c.Run(context.Background()))

	// first request populates the api generation
	w := serve(c, httptest.NewRequest(http.MethodGet, "/v1/equipment", nil))
	require.Equal(t, http.StatusOK, w.Code)

	up.setRoute("/v1/equipment", `{"equipment":["barbell","kettlebell"]}`)

	// the stale copy is served immediately; the refresh runs after
	w = serve(c, httptest.NewRequest(http.MethodGet, "/v1/equipment", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"equipment":["barbell"]}`, w.Body.String(), "cached copy is served before the refresh lands")

	require.Eventually(t, func() bool {
		row, ok, err := c.gens.Match(GenerationName(TierAPI, "1"), "/v1/equipment")
		return err == nil && ok && string(row.Body) == `{"equipment":["barbell","kettlebell"]}`
	}, time.Second, 5*time.Millisecond, "cached copy must be refreshed from upstream")
}

func TestAPI_FailedRefreshKeepsCachedEntry(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")
	require.NoError(t, c.Run(context.Background()))

	w := serve(c, httptest.NewRequest(http.MethodGet, "/v1/equipment", nil))
	require.Equal(t, http.StatusOK, w.Code)

	up.offline.Store(true)
	w = serve(c, httptest.NewRequest(http.MethodGet, "/v1/equipment", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// give the refresh attempt time to fail
	time.Sleep(50 * time.Millisecond)
	row, ok, err := c.gens.Match(GenerationName(TierAPI, "1"), "/v1/equipment")
	require.NoError(t, err)
	require.True(t, ok, "failed refresh must not evict the entry")
	require.Equal(t, `{"equipment":["barbell"]}`, string(row.Body))
}

func TestAPI_MissAwaitsNetwork(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")
	require.NoError(t, c.Run(context.Background()))

	w := serve(c, httptest.NewRequest(http.MethodGet, "/v1/workouts/today", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"workout":"push day"}`, w.Body.String())
}

func TestAPI_OfflineMissYieldsSynthetic503(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")
	require.NoError(t, c.Run(context.Background()))

	up.offline.Store(true)
	w := serve(c, httptest.NewRequest(http.MethodGet, "/v1/never-seen", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNavigation_FallsBackToAppShellNotOfflinePage(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")
	require.NoError(t, c.Run(context.Background()))

	up.offline.Store(true)
	req := httptest.NewRequest(http.MethodGet, "/workouts/history", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w := serve(c, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "<html>shell</html>", w.Body.String(),
		"cached shell must win over the offline page while it is present")
}

func TestNavigation_OfflinePageWhenShellMissing(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	gens := NewGenerations(db)

	cfg := DefaultConfig(up.srv.URL, "1")
	cfg.Precache = []string{"/offline.html"} // shell deliberately not cached
	c := NewController(cfg, gens, nil, nil)
	require.NoError(t, c.Run(context.Background()))

	up.offline.Store(true)
	req := httptest.NewRequest(http.MethodGet, "/workouts/history", nil)
	req.Header.Set("Accept", "text/html")
	w := serve(c, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "<html>offline</html>", w.Body.String())
}

func TestNavigation_NetworkFirstWhenOnline(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")
	require.NoError(t, c.Run(context.Background()))

	before := up.hits.Load()
	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Header.Set("Accept", "text/html")
	w := serve(c, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Greater(t, up.hits.Load(), before, "navigation must try the network first")
}

func TestMutation_QueuedWhenOffline(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	queue := NewQueue(db)
	c := NewController(DefaultConfig(up.srv.URL, "1"), NewGenerations(db), queue, nil)
	require.NoError(t, c.Run(context.Background()))

	up.offline.Store(true)
	req := httptest.NewRequest(http.MethodPost, "/v1/workouts/complete", nil)
	req.Header.Set("Authorization", "Bearer tok-abc")
	w := serve(c, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	items, err := queue.Pending()
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "/v1/workouts/complete", items[0].Endpoint)
	require.Equal(t, "tok-abc", items[0].Token)
}

func TestNonGET_PassesThroughWhenOnline(t *testing.T) {
	var sawPost atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sawPost.Store(true)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	cfg := DefaultConfig(srv.URL, "1")
	cfg.Precache = nil
	c := NewController(cfg, NewGenerations(db), NewQueue(db), nil)
	require.NoError(t, c.Run(context.Background()))

	w := serve(c, httptest.NewRequest(http.MethodPost, "/v1/workouts", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, sawPost.Load())
}

func TestHandle_PassesThroughBeforeActivation(t *testing.T) {
	up := newFakeUpstream(t, defaultRoutes())
	c := newTestController(t, up, "1")
	// not installed or activated: traffic flows straight through
	require.Equal(t, StateInstalling, c.State())

	w := serve(c, httptest.NewRequest(http.MethodGet, "/v1/equipment", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("X-Cache"))
}

func TestClassify(t *testing.T) {
	mk := func(path, accept string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		return req
	}
	require.Equal(t, classStatic, classify(mk("/app.js", ""), "/v1/"))
	require.Equal(t, classStatic, classify(mk("/fonts/inter.woff2", ""), "/v1/"))
	require.Equal(t, classAPI, classify(mk("/v1/equipment", ""), "/v1/"))
	require.Equal(t, classNavigation, classify(mk("/workouts", "text/html"), "/v1/"))
	require.Equal(t, classDynamic, classify(mk("/manifest-data", ""), "/v1/"))
}

func TestTierFor(t *testing.T) {
	require.Equal(t, TierStatic, tierFor(classStatic))
	require.Equal(t, TierAPI, tierFor(classAPI))
	require.Equal(t, TierDynamic, tierFor(classNavigation))
	require.Equal(t, TierDynamic, tierFor(classDynamic))
}
