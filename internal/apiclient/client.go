package apiclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"fitness-gateway-api/internal/cache"
)

// TokenProvider supplies the opaque bearer credential attached to every
// outbound request. How tokens are acquired or refreshed is not this
// package's concern.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// RequestOptions tunes a single CachedRequest call.
type RequestOptions struct {
	// Cache enables store lookup/write for this request. Only GETs are
	// ever stored; the flag is ignored for mutations.
	Cache bool

	// Store names which response store to use; empty means the generic
	// API store.
	Store string

	// TTL overrides the store's default TTL for this entry.
	TTL time.Duration

	// Timeout overrides the class-based default for this call.
	Timeout time.Duration

	// Dedup opts a non-cacheable request into the in-flight registry.
	// Cacheable requests always deduplicate.
	Dedup bool
}

// Client wraps outbound calls to the fitness API with response caching,
// request deduplication and error normalization.
type Client struct {
	baseURL string
	httpc   *http.Client
	stores  *cache.Manager
	flight  *cache.Flight
	tokens  TokenProvider

	defaultTimeout  time.Duration
	generateTimeout time.Duration
}

// Config holds the client's construction parameters.
type Config struct {
	BaseURL string
	Tokens  TokenProvider

	// DefaultTimeout applies to ordinary reads and writes.
	DefaultTimeout time.Duration

	// GenerateTimeout applies to AI-generation endpoints, which are
	// allowed to run much longer than ordinary reads.
	GenerateTimeout time.Duration
}

// New constructs a Client over explicitly injected stores and flight
// registry, so tests can run against isolated instances.
func New(cfg Config, stores *cache.Manager, flight *cache.Flight) *Client {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 60 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		httpc:           &http.Client{},
		stores:          stores,
		flight:          flight,
		tokens:          cfg.Tokens,
		defaultTimeout:  cfg.DefaultTimeout,
		generateTimeout: cfg.GenerateTimeout,
	}
}

// generationPath reports whether the endpoint belongs to the slow
// AI-generation class.
func generationPath(path string) bool {
	return strings.Contains(path, "/ai/") || strings.HasSuffix(path, "/generate")
}

// CachedRequest is the unifying entry point combining cache lookup,
// deduplication and network dispatch. The returned bytes are the raw
// response body; callers unmarshal into their own types.
func (c *Client) CachedRequest(ctx context.Context, method, path string, body []byte, opts RequestOptions) ([]byte, error) {
	key := cache.Key(method, path, body)
	cacheable := opts.Cache && strings.EqualFold(method, http.MethodGet)

	if cacheable {
		if data, ok := c.stores.Store(opts.Store).Get(key); ok {
			return data, nil
		}
		return c.flight.Do(key, func() ([]byte, error) {
			data, err := c.dispatch(ctx, method, path, body, opts)
			if err != nil {
				return nil, err
			}
			c.stores.Store(opts.Store).Set(key, data, opts.TTL)
			return data, nil
		})
	}

	if opts.Dedup {
		return c.flight.Do(key, func() ([]byte, error) {
			return c.dispatch(ctx, method, path, body, opts)
		})
	}
	return c.dispatch(ctx, method, path, body, opts)
}

// dispatch performs one network call with credential injection, class-based
// timeout and error translation.
func (c *Client) dispatch(ctx context.Context, method, path string, body []byte, opts RequestOptions) ([]byte, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		if generationPath(path) {
			timeout = c.generateTimeout
		} else {
			timeout = c.defaultTimeout
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			log.Printf("apiclient: token provider failed: %v", err)
			return nil, ErrUnauthorized
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		log.Printf("apiclient: %s %s failed: %v", method, path, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNetwork
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("apiclient: read body for %s %s failed: %v", method, path, err)
		return nil, ErrNetwork
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("apiclient: %s %s returned %d", method, path, resp.StatusCode)
		return nil, statusError(resp.StatusCode)
	}
	return data, nil
}

// InvalidateCache removes all cached entries, across every store, whose key
// contains the substring. Called after mutations so derived reads refetch.
func (c *Client) InvalidateCache(pattern string) int {
	return c.stores.InvalidatePattern(pattern)
}

// ClearAllCaches empties every response store and persisted snapshot.
func (c *Client) ClearAllCaches() {
	c.stores.ClearAll()
}

// Stats exposes the per-store diagnostics snapshot.
func (c *Client) Stats() map[string]cache.Stats {
	return c.stores.StatsAll()
}
