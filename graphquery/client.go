// Package graphquery is the HTTP client for the external route-graph
// service, with primary/backup endpoint failover.
package graphquery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "graphquery").Logger()
}

// FailoverConfig controls retry and failover behavior.
type FailoverConfig struct {
	// MaxRetries is the number of times to retry a failed request on the current endpoint
	MaxRetries int
	// RetryDelay is the initial delay between retries (doubles with each retry)
	RetryDelay time.Duration
	// HealthCheckInterval is how often to check if the primary endpoint is back up
	HealthCheckInterval time.Duration
	// Timeout is the HTTP request timeout
	Timeout time.Duration
}

// DefaultFailoverConfig returns sensible defaults for failover behavior.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:          2,
		RetryDelay:          500 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		Timeout:             10 * time.Second,
	}
}

// Client provides access to the route-graph API. It maintains a primary
// endpoint and automatically switches to backups when the primary is down,
// restoring the primary once a background health check sees it recover.
type Client struct {
	httpClient     *http.Client
	primaryURL     string
	backupURLs     []string
	currentURL     string
	mu             sync.RWMutex
	failoverConfig FailoverConfig
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewClient creates a route-graph client. backupURLs may be empty.
func NewClient(primaryURL string, backupURLs []string, cfg FailoverConfig) (*Client, error) {
	if _, err := url.Parse(primaryURL); err != nil {
		return nil, fmt.Errorf("failed to parse primary graph URL: %w", err)
	}
	validBackups := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if _, err := url.Parse(u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		validBackups = append(validBackups, u)
	}

	c := &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		primaryURL:     primaryURL,
		backupURLs:     validBackups,
		currentURL:     primaryURL,
		failoverConfig: cfg,
		stopCh:         make(chan struct{}),
	}
	if len(validBackups) > 0 {
		go c.healthLoop()
	}

	log.Info().Str("primary", primaryURL).Int("backups", len(validBackups)).Msg("Graph client initialized")
	return c, nil
}

// Close stops the background health checker.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// healthLoop restores the primary endpoint once it responds again.
func (c *Client) healthLoop() {
	ticker := time.NewTicker(c.failoverConfig.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.RLock()
			onPrimary := c.currentURL == c.primaryURL
			c.mu.RUnlock()
			if onPrimary {
				continue
			}
			if c.isEndpointHealthy(c.primaryURL) {
				c.mu.Lock()
				c.currentURL = c.primaryURL
				c.mu.Unlock()
				log.Info().Str("url", c.primaryURL).Msg("Restored primary endpoint")
			}
		}
	}
}

func (c *Client) isEndpointHealthy(endpoint string) bool {
	resp, err := c.httpClient.Get(endpoint + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) getCurrentURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// failover switches to the next healthy endpoint, if any.
func (c *Client) failover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	allURLs := append([]string{c.primaryURL}, c.backupURLs...)
	currentIdx := -1
	for i, u := range allURLs {
		if u == c.currentURL {
			currentIdx = i
			break
		}
	}
	for i := 1; i <= len(allURLs); i++ {
		nextURL := allURLs[(currentIdx+i)%len(allURLs)]
		if nextURL == c.currentURL {
			continue
		}
		if c.isEndpointHealthy(nextURL) {
			c.currentURL = nextURL
			log.Info().Str("url", nextURL).Msg("Failover to endpoint")
			return true
		}
	}
	log.Warn().Str("url", c.currentURL).Msg("All endpoints unhealthy, staying on current")
	return false
}

// doRequest performs a GET with retry on the current endpoint and a single
// post-failover attempt.
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	retryDelay := c.failoverConfig.RetryDelay

	for attempt := 0; attempt <= c.failoverConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		body, err := c.get(ctx, c.getCurrentURL()+path)
		if err != nil {
			lastErr = err
			continue
		}
		return body, nil
	}

	if len(c.backupURLs) > 0 && c.failover() {
		body, err := c.get(ctx, c.getCurrentURL()+path)
		if err != nil {
			return nil, fmt.Errorf("failover request failed: %w (original: %w)", err, lastErr)
		}
		return body, nil
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", c.failoverConfig.MaxRetries+1, lastErr)
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// GetRoutes queries candidate exchange paths between two tokens on one
// network. bannedExchangeIDs excludes exchanges; amountHint, when non-empty,
// lets the service bias split percentages toward the request size.
func (c *Client) GetRoutes(
	ctx context.Context,
	network, fromToken, toToken string,
	limit int,
	bannedExchangeIDs []int,
	amountHint string,
) (RoutesResponse, error) {
	banned := make([]string, 0, len(bannedExchangeIDs))
	for _, id := range bannedExchangeIDs {
		banned = append(banned, strconv.Itoa(id))
	}

	q := url.Values{}
	q.Set("from", fromToken)
	q.Set("to", toToken)
	q.Set("network", network)
	q.Set("limit", strconv.Itoa(limit))
	if len(banned) > 0 {
		q.Set("banned_dex_ids", strings.Join(banned, ","))
	}
	if amountHint != "" {
		q.Set("amount", amountHint)
	}

	body, err := c.doRequest(ctx, "/routes?"+q.Encode())
	if err != nil {
		return RoutesResponse{}, err
	}

	var routesResponse RoutesResponse
	if err := json.Unmarshal(body, &routesResponse); err != nil {
		return RoutesResponse{}, fmt.Errorf("failed to parse routes response: %w", err)
	}
	return routesResponse, nil
}
