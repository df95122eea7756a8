// Package osuapi queries the upstream osu! v1 API for beatmap metadata.
package osuapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/lets/internal/domain/autorank"
	"github.com/okian/lets/pkg/logger"
	"github.com/okian/lets/pkg/metrics"
)

// ErrUnexpectedStatus is returned for any non-200 upstream reply.
var ErrUnexpectedStatus = errors.New("osu api: unexpected status")

// beatmapResponse is one element of the get_beatmaps array. Only the fields
// the ranking core reads are decoded.
type beatmapResponse struct {
	BeatmapID    string `json:"beatmap_id"`
	BeatmapSetID string `json:"beatmapset_id"`
	FileMD5      string `json:"file_md5"`
	LastUpdate   string `json:"last_update"`
}

// Client implements autorank.MetadataFetcher.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger
}

var _ autorank.MetadataFetcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a client against baseURL, e.g. "https://osu.ppy.sh/api".
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchUpstreamMetadata looks up a difficulty by file checksum. An empty
// result array means the file is unknown upstream.
func (c *Client) FetchUpstreamMetadata(ctx context.Context, md5 string) (autorank.Metadata, bool, error) {
	q := url.Values{}
	q.Set("k", c.apiKey)
	q.Set("h", md5)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get_beatmaps?"+q.Encode(), nil)
	if err != nil {
		return autorank.Metadata{}, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordMetadataFailure("transport")
		return autorank.Metadata{}, false, fmt.Errorf("get_beatmaps: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordMetadataFailure("status")
		c.logger.Warn(ctx, "osu api returned unexpected status",
			logger.Int("status", resp.StatusCode), logger.String("md5", md5))
		return autorank.Metadata{}, false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var result []beatmapResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.RecordMetadataFailure("decode")
		return autorank.Metadata{}, false, fmt.Errorf("decode get_beatmaps: %w", err)
	}
	if len(result) == 0 {
		return autorank.Metadata{}, false, nil
	}
	return autorank.Metadata{LastUpdate: result[0].LastUpdate}, true, nil
}
