package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	clierr "github.com/yieldline/yieldctl/internal/errors"
	"github.com/yieldline/yieldctl/internal/feedcache"
	"github.com/yieldline/yieldctl/internal/httpx"
)

const (
	defaultFeedBase = "https://yields.llama.fi"
	feedKey         = "pools"
	defaultFeedTTL  = 5 * time.Minute
)

// FeedClient fetches the raw pool list from the yield-aggregator feed, with a
// sqlite snapshot cache in front of it.
type FeedClient struct {
	http    *httpx.Client
	baseURL string
	cache   *feedcache.Store
	ttl     time.Duration
	log     zerolog.Logger
}

func NewFeedClient(httpClient *httpx.Client, baseURL string, cache *feedcache.Store, ttl time.Duration, log zerolog.Logger) *FeedClient {
	if baseURL == "" {
		baseURL = defaultFeedBase
	}
	if ttl <= 0 {
		ttl = defaultFeedTTL
	}
	return &FeedClient{http: httpClient, baseURL: baseURL, cache: cache, ttl: ttl, log: log}
}

type poolsEnvelope struct {
	Status string      `json:"status"`
	Data   []poolEntry `json:"data"`
}

type poolEntry struct {
	Pool       string   `json:"pool"`
	Chain      string   `json:"chain"`
	Project    string   `json:"project"`
	Symbol     string   `json:"symbol"`
	Underlying []string `json:"underlyingTokens"`
	APYBase    *float64 `json:"apyBase"`
	APYReward  *float64 `json:"apyReward"`
	APY        *float64 `json:"apy"`
	TVLUSD     *float64 `json:"tvlUsd"`
	Stablecoin bool     `json:"stablecoin"`
}

// Pools returns every pool the feed knows about. Fresh cache snapshots are
// served without a network call; on upstream failure a stale snapshot is
// served as a degraded fallback.
func (c *FeedClient) Pools(ctx context.Context) ([]poolEntry, error) {
	snap := c.cachedSnapshot()
	if snap.Hit && !snap.Stale {
		if entries, err := decodePools(snap.Body); err == nil {
			return entries, nil
		}
	}

	body, err := c.fetch(ctx)
	if err != nil {
		if snap.Hit {
			c.log.Warn().Err(err).Dur("age", snap.Age).Msg("yield feed unavailable, serving stale snapshot")
			if entries, decErr := decodePools(snap.Body); decErr == nil {
				return entries, nil
			}
		}
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(feedKey, body, c.ttl); err != nil {
			c.log.Warn().Err(err).Msg("feed cache write failed")
		}
	}
	return decodePools(body)
}

func (c *FeedClient) cachedSnapshot() feedcache.Snapshot {
	if c.cache == nil {
		return feedcache.Snapshot{}
	}
	snap, err := c.cache.Get(feedKey)
	if err != nil {
		c.log.Warn().Err(err).Msg("feed cache read failed")
		return feedcache.Snapshot{}
	}
	return snap
}

func (c *FeedClient) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pools", nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build yields request", err)
	}
	var raw json.RawMessage
	if _, err := c.http.DoJSON(ctx, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodePools(body []byte) ([]poolEntry, error) {
	var env poolsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode yields feed", err)
	}
	if len(env.Data) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "yield feed returned no pools")
	}
	return env.Data, nil
}
