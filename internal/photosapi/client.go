// Package photosapi is a thin client for the Google Photos Library
// API v1: paged listing of media items and albums, and album content
// search. Authentication is the caller's business; pass an http.Client
// whose transport injects OAuth tokens.
package photosapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BaseURL is the Library API endpoint. Overridable in tests.
const BaseURL = "https://photoslibrary.googleapis.com/v1"

// Transport defaults. The API is remote and rate limited; a small
// tuned pool is plenty for one user's crawl.
const (
	defaultDialTimeout           = 5 * time.Second
	defaultKeepAliveInterval     = 15 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultMaxIdleConnsPerHost   = 10
)

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("photos api returned status %d: %s", e.StatusCode, e.Body)
}

// NewTransport builds the tuned HTTP/2 transport the client and the
// downloader share.
func NewTransport() *http.Transport {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultKeepAliveInterval,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		IdleConnTimeout:       defaultIdleConnTimeout,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}
	// Registers the h2 upgrade path; harmless if negotiation fails.
	if err := http2.ConfigureTransport(transport); err != nil {
		// Fall back to HTTP/1.1 silently; the API works either way.
		transport.ForceAttemptHTTP2 = false
	}
	return transport
}

// Client calls the Library API. Safe for concurrent use.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	baseURL string
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different endpoint. Tests use
// this to talk to an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRateLimit throttles API calls to rps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// New returns a client issuing requests through httpClient, which must
// already carry OAuth credentials.
func New(httpClient *http.Client, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Inf, 1),
		baseURL: BaseURL,
		log:     logger.Named("photosapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListMediaItems fetches one page of the user's library.
func (c *Client) ListMediaItems(ctx context.Context, pageSize int, pageToken string) (*MediaItemsPage, error) {
	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(pageSize))
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	var page MediaItemsPage
	if err := c.get(ctx, "/mediaItems?"+query.Encode(), &page); err != nil {
		return nil, fmt.Errorf("failed to list media items: %w", err)
	}
	return &page, nil
}

// ListAlbums fetches one page of the user's albums.
func (c *Client) ListAlbums(ctx context.Context, pageSize int, pageToken string) (*AlbumsPage, error) {
	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(pageSize))
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	var page AlbumsPage
	if err := c.get(ctx, "/albums?"+query.Encode(), &page); err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	return &page, nil
}

// SearchAlbumItems fetches one page of an album's contents.
func (c *Client) SearchAlbumItems(ctx context.Context, albumID string, pageSize int, pageToken string) (*MediaItemsPage, error) {
	body, err := json.Marshal(searchRequest{AlbumID: albumID, PageSize: pageSize, PageToken: pageToken})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}
	var page MediaItemsPage
	if err := c.post(ctx, "/mediaItems:search", body, &page); err != nil {
		return nil, fmt.Errorf("failed to search album %s: %w", albumID, err)
	}
	return &page, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Keep the body short; the API wraps errors in JSON we only
		// need for the log line.
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.log.Warn("API request failed",
			zap.String("url", req.URL.Path),
			zap.Int("status", resp.StatusCode))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
