package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"fitness-gateway-api/internal/models"

	"github.com/gin-gonic/gin"
)

// State tracks the controller's lifecycle. Transitions are strictly ordered:
// activation never begins before installation's work has completed.
type State int32

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActive
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "redundant"
	}
}

// EventSink receives lifecycle and replay notifications. Implementations
// must not block; a nil sink disables events.
type EventSink interface {
	Publish(kind, detail string)
}

// Config holds the controller's configuration surface: the precache
// manifest, the API prefix, the background-refresh allow-list and the
// version string that names cache generations.
type Config struct {
	Upstream string

	// Version qualifies generation names; bumping it on deploy invalidates
	// every previous generation at activation.
	Version string

	// Precache lists the shell routes and critical assets populated into
	// the static tier at install time.
	Precache []string

	// APIPrefix marks paths served with the stale-while-revalidate
	// strategy.
	APIPrefix string

	// RefreshPrefixes allow-lists the API paths eligible for background
	// refresh after a cached response is served.
	RefreshPrefixes []string

	// ShellPath is the cached single-page-app document served when a
	// navigation cannot be satisfied any other way.
	ShellPath string

	// OfflinePath is the dedicated offline page, the last fallback before
	// a synthetic error.
	OfflinePath string
}

// DefaultConfig returns the manifest and routing knobs for the fitness app.
func DefaultConfig(upstream, version string) Config {
	return Config{
		Upstream: upstream,
		Version:  version,
		Precache: []string{
			"/",
			"/index.html",
			"/offline.html",
			"/app.js",
			"/app.css",
			"/icons/icon-192.png",
		},
		APIPrefix: "/v1/",
		RefreshPrefixes: []string{
			"/v1/equipment",
			"/v1/exercises",
			"/v1/plans",
		},
		ShellPath:   "/index.html",
		OfflinePath: "/offline.html",
	}
}

// Controller intercepts gateway fetches and serves or populates versioned
// cache generations according to per-resource-class strategies. It is the
// server-side analogue of a browser worker: isolated from the application
// layer, talking to it only through request/response pairs.
type Controller struct {
	cfg    Config
	gens   *Generations
	queue  *Queue
	httpc  *http.Client
	events EventSink

	state atomic.Int32
}

// NewController wires the controller over injected stores. Call Install and
// Activate (or Run) before routing traffic through Handle.
func NewController(cfg Config, gens *Generations, queue *Queue, events EventSink) *Controller {
	cfg.Upstream = strings.TrimRight(cfg.Upstream, "/")
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/v1/"
	}
	c := &Controller{
		cfg:    cfg,
		gens:   gens,
		queue:  queue,
		httpc:  &http.Client{Timeout: 15 * time.Second},
		events: events,
	}
	c.state.Store(int32(StateInstalling))
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	c.publish("lifecycle", s.String())
}

func (c *Controller) publish(kind, detail string) {
	if c.events != nil {
		c.events.Publish(kind, detail)
	}
}

// generation returns the live bucket name for a tier.
func (c *Controller) generation(tier string) string {
	return GenerationName(tier, c.cfg.Version)
}

// Run performs install and activate back to back. The controller takes over
// traffic immediately after activation rather than waiting for a quiet
// window.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}

// Install pre-populates the static-tier generation from the precache
// manifest. The bulk attempt is retried per-asset on failure so one missing
// resource never aborts the whole precache; individual failures are
// collected and logged.
func (c *Controller) Install(ctx context.Context) error {
	c.setState(StateInstalling)

	if err := c.precacheAll(ctx); err != nil {
		log.Printf("offline: bulk precache failed (%v), retrying assets individually", err)
		failed := c.precacheEach(ctx)
		if len(failed) > 0 {
			log.Printf("offline: %d asset(s) skipped during precache: %v", len(failed), failed)
			c.publish("precache", fmt.Sprintf("skipped %d asset(s)", len(failed)))
		}
	}

	c.setState(StateInstalled)
	return nil
}

// precacheAll fetches every manifest entry, aborting on the first failure.
func (c *Controller) precacheAll(ctx context.Context) error {
	for _, path := range c.cfg.Precache {
		if err := c.precacheOne(ctx, path); err != nil {
			return fmt.Errorf("precache %s: %w", path, err)
		}
	}
	return nil
}

// precacheEach fetches entries one by one, continuing past failures and
// returning the paths that could not be cached.
func (c *Controller) precacheEach(ctx context.Context) []string {
	var failed []string
	for _, path := range c.cfg.Precache {
		if err := c.precacheOne(ctx, path); err != nil {
			failed = append(failed, path)
		}
	}
	return failed
}

func (c *Controller) precacheOne(ctx context.Context, path string) error {
	resp, body, err := c.fetchUpstream(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return c.gens.Put(c.generation(TierStatic), path, resp.StatusCode, resp.Header, body)
}

// Activate deletes every generation outside the current version set and
// starts serving traffic through the cache. There is never more than one
// live generation per tier afterwards.
func (c *Controller) Activate(ctx context.Context) error {
	c.setState(StateActivating)

	current := map[string]bool{
		c.generation(TierStatic):  true,
		c.generation(TierDynamic): true,
		c.generation(TierAPI):     true,
	}
	names, err := c.gens.Names()
	if err != nil {
		return fmt.Errorf("enumerate generations: %w", err)
	}
	for _, name := range names {
		if !current[name] {
			if err := c.gens.Delete(name); err != nil {
				return fmt.Errorf("delete generation %s: %w", name, err)
			}
			log.Printf("offline: deleted stale generation %s", name)
		}
	}

	c.setState(StateActive)
	return nil
}

// Retire marks the controller redundant; Handle falls back to plain
// pass-through afterwards.
func (c *Controller) Retire() {
	c.setState(StateRedundant)
}

// Handle is the gateway's catch-all route. Only GETs are intercepted; other
// methods pass through, with failed mutations diverted into the offline
// queue. Every path through here ends in a response, never a panic or an
// unhandled error.
func (c *Controller) Handle(g *gin.Context) {
	r := g.Request

	if r.Method != http.MethodGet {
		c.passThroughMutation(g)
		return
	}
	if c.State() != StateActive {
		c.passThrough(g)
		return
	}

	class := classify(r, c.cfg.APIPrefix)
	gen := c.generation(tierFor(class))
	switch class {
	case classStatic:
		c.cacheFirst(g, gen)
	case classAPI:
		c.staleWhileRevalidate(g, gen)
	case classNavigation:
		c.navigationNetworkFirst(g, gen)
	default:
		c.networkFirst(g, gen)
	}
}

// cacheFirst serves static assets from cache, falling back to the network
// and storing a copy. Offline with nothing cached yields a synthetic 503.
func (c *Controller) cacheFirst(g *gin.Context, gen string) {
	path := g.Request.URL.Path

	if row, ok, err := c.gens.Match(gen, path); err == nil && ok {
		writeCached(g, row)
		return
	}

	resp, body, err := c.fetchUpstream(g.Request.Context(), http.MethodGet, requestURI(g), nil, g.Request.Header)
	if err != nil {
		c.synthetic503(g)
		return
	}
	if resp.StatusCode == http.StatusOK {
		c.storeQuiet(gen, path, resp, body)
	}
	writeResponse(g, resp, body)
}

// staleWhileRevalidate serves the cached API response immediately when
// present, refreshing allow-listed endpoints in the background. Cache misses
// await the network; total failure yields a synthetic 503.
func (c *Controller) staleWhileRevalidate(g *gin.Context, gen string) {
	uri := requestURI(g)
	header := g.Request.Header.Clone()

	if row, ok, err := c.gens.Match(gen, uri); err == nil && ok {
		if c.refreshAllowed(g.Request.URL.Path) {
			go c.refresh(gen, uri, header)
		}
		writeCached(g, row)
		return
	}

	resp, body, err := c.fetchUpstream(g.Request.Context(), http.MethodGet, uri, nil, header)
	if err != nil {
		c.synthetic503(g)
		return
	}
	if resp.StatusCode == http.StatusOK {
		c.storeQuiet(gen, uri, resp, body)
	}
	writeResponse(g, resp, body)
}

// refresh re-fetches an allow-listed endpoint to update the cache. Any
// failure is swallowed; the caller already has a response.
func (c *Controller) refresh(gen, uri string, header http.Header) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	resp, body, err := c.fetchUpstream(ctx, http.MethodGet, uri, nil, header)
	if err != nil || resp.StatusCode != http.StatusOK {
		return
	}
	c.storeQuiet(gen, uri, resp, body)
}

func (c *Controller) refreshAllowed(path string) bool {
	for _, prefix := range c.cfg.RefreshPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// navigationNetworkFirst serves HTML navigations from the network, caching
// successes. On failure the fallback chain is: exact cached URL, then the
// cached app shell, then the offline page, then a synthetic 503.
func (c *Controller) navigationNetworkFirst(g *gin.Context, gen string) {
	path := g.Request.URL.Path

	resp, body, err := c.fetchUpstream(g.Request.Context(), http.MethodGet, requestURI(g), nil, g.Request.Header)
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			c.storeQuiet(gen, path, resp, body)
		}
		writeResponse(g, resp, body)
		return
	}

	if row, ok, err := c.gens.Match(gen, path); err == nil && ok {
		writeCached(g, row)
		return
	}
	staticGen := c.generation(TierStatic)
	if row, ok, err := c.gens.Match(staticGen, path); err == nil && ok {
		writeCached(g, row)
		return
	}
	if row, ok, err := c.gens.Match(staticGen, c.cfg.ShellPath); err == nil && ok {
		writeCached(g, row)
		return
	}
	if row, ok, err := c.gens.Match(staticGen, c.cfg.OfflinePath); err == nil && ok {
		writeCached(g, row)
		return
	}
	c.synthetic503(g)
}

// networkFirst is the conservative default for uncategorized resources:
// network, then cache, then a synthetic 503.
func (c *Controller) networkFirst(g *gin.Context, gen string) {
	path := g.Request.URL.Path

	resp, body, err := c.fetchUpstream(g.Request.Context(), http.MethodGet, requestURI(g), nil, g.Request.Header)
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			c.storeQuiet(gen, path, resp, body)
		}
		writeResponse(g, resp, body)
		return
	}

	if row, ok, err := c.gens.Match(gen, path); err == nil && ok {
		writeCached(g, row)
		return
	}
	c.synthetic503(g)
}

// passThrough proxies a request without touching any cache.
func (c *Controller) passThrough(g *gin.Context) {
	var payload []byte
	if g.Request.Body != nil {
		payload, _ = io.ReadAll(g.Request.Body)
	}
	resp, body, err := c.fetchUpstream(g.Request.Context(), g.Request.Method, requestURI(g), payload, g.Request.Header)
	if err != nil {
		c.synthetic503(g)
		return
	}
	writeResponse(g, resp, body)
}

// passThroughMutation proxies a write. When the network is unreachable the
// mutation is queued for background replay and the caller gets a 202 with
// the queue item's local id.
func (c *Controller) passThroughMutation(g *gin.Context) {
	var payload []byte
	if g.Request.Body != nil {
		payload, _ = io.ReadAll(g.Request.Body)
	}

	resp, body, err := c.fetchUpstream(g.Request.Context(), g.Request.Method, requestURI(g), payload, g.Request.Header)
	if err == nil {
		writeResponse(g, resp, body)
		return
	}

	if c.queue == nil {
		c.synthetic503(g)
		return
	}
	localID, qErr := c.queue.Enqueue(g.Request.Method, requestURI(g), payload, bearerToken(g.Request))
	if qErr != nil {
		log.Printf("offline: enqueue mutation failed: %v", qErr)
		c.synthetic503(g)
		return
	}
	c.publish("sync", "queued "+g.Request.Method+" "+g.Request.URL.Path)
	g.JSON(http.StatusAccepted, gin.H{
		"queued":  true,
		"localId": localID,
		"message": "You're offline. This change will sync automatically.",
	})
}

// fetchUpstream issues one upstream call and drains the body so the
// response can be both served and stored.
func (c *Controller) fetchUpstream(ctx context.Context, method, uri string, payload []byte, header http.Header) (*http.Response, []byte, error) {
	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Upstream+uri, reader)
	if err != nil {
		return nil, nil, err
	}
	for k, vs := range header {
		if k == "Host" || k == "Connection" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// storeQuiet caches a response, logging rather than propagating failures.
func (c *Controller) storeQuiet(gen, url string, resp *http.Response, body []byte) {
	if err := c.gens.Put(gen, url, resp.StatusCode, resp.Header, body); err != nil {
		log.Printf("offline: store %s in %s failed: %v", url, gen, err)
	}
}

// synthetic503 is the terminal fallback: a well-formed error response, never
// an unhandled failure reaching the caller.
func (c *Controller) synthetic503(g *gin.Context) {
	g.Header("Cache-Control", "no-store")
	g.JSON(http.StatusServiceUnavailable, gin.H{
		"error": "Resource not available offline",
	})
}

// requestURI returns the path plus query of the intercepted request.
func requestURI(g *gin.Context) string {
	uri := g.Request.URL.Path
	if g.Request.URL.RawQuery != "" {
		uri += "?" + g.Request.URL.RawQuery
	}
	return uri
}

// bearerToken extracts the opaque credential carried by the request, if any.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.Split(auth, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// writeCached serves a stored response.
func writeCached(g *gin.Context, row *models.CachedResource) {
	headers := decodeHeaders(row.Headers)
	for k, vs := range headers {
		if k == "Content-Type" || k == "Content-Length" {
			continue
		}
		for _, v := range vs {
			g.Writer.Header().Add(k, v)
		}
	}
	g.Writer.Header().Set("X-Cache", "HIT")
	g.Data(row.StatusCode, contentTypeOf(headers), row.Body)
}

// writeResponse relays an upstream response.
func writeResponse(g *gin.Context, resp *http.Response, body []byte) {
	for k, vs := range resp.Header {
		if k == "Content-Type" || k == "Content-Length" {
			continue
		}
		for _, v := range vs {
			g.Writer.Header().Add(k, v)
		}
	}
	g.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

func contentTypeOf(h http.Header) string {
	if ct := h.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
