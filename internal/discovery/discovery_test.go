package discovery

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yieldline/yieldctl/internal/chain"
	"github.com/yieldline/yieldctl/internal/feedcache"
	"github.com/yieldline/yieldctl/internal/httpx"
)

type staticFeed struct {
	pools []poolEntry
	err   error
}

func (f staticFeed) Pools(context.Context) ([]poolEntry, error) { return f.pools, f.err }

func fp(v float64) *float64 { return &v }

func testPools() []poolEntry {
	return []poolEntry{
		{Pool: "p1", Chain: "Ethereum", Project: "aave-v3", Symbol: "USDC", APY: fp(4.25), TVLUSD: fp(900_000_000)},
		{Pool: "p2", Chain: "Base", Project: "compound-v3", Symbol: "USDC", APY: fp(5.12), TVLUSD: fp(400_000_000)},
		{Pool: "p3", Chain: "Arbitrum", Project: "aave-v3", Symbol: "USDC", APY: fp(3.85), TVLUSD: fp(600_000_000)},
		{Pool: "p4", Chain: "Ethereum", Project: "aave-v3", Symbol: "WETH", APY: fp(2.10), TVLUSD: fp(2_000_000_000)},
		{Pool: "p5", Chain: "Base", Project: "morpho-blue", Symbol: "STEAKUSDC", APYBase: fp(6.0), APYReward: fp(1.5), TVLUSD: fp(50_000)},
	}
}

func newService(feed poolSource) *Service {
	return &Service{feed: feed, log: zerolog.Nop()}
}

func TestListOpportunitiesRanksByAPY(t *testing.T) {
	s := newService(staticFeed{pools: testPools()})
	got := s.ListOpportunities(context.Background(), "USDC", Filters{ProtocolIDs: []string{"aave-v3", "compound-v3"}})
	if len(got) != 3 {
		t.Fatalf("expected 3 opportunities, got %d", len(got))
	}
	wantAPY := []float64{5.12, 4.25, 3.85}
	for i, o := range got {
		if o.TotalAPY != wantAPY[i] {
			t.Fatalf("rank %d has APY %v, want %v", i, o.TotalAPY, wantAPY[i])
		}
	}
}

func TestListOpportunitiesFiltersChain(t *testing.T) {
	s := newService(staticFeed{pools: testPools()})
	got := s.ListOpportunities(context.Background(), "USDC", Filters{Chains: []string{"base"}, ProtocolIDs: []string{"compound-v3"}})
	if len(got) != 1 || got[0].Chain != "Base" {
		t.Fatalf("chain filter failed: %+v", got)
	}
}

func TestListOpportunitiesMatchesWrappedSymbols(t *testing.T) {
	s := newService(staticFeed{pools: testPools()})
	got := s.ListOpportunities(context.Background(), "USDC", Filters{ProtocolIDs: []string{"morpho-blue"}})
	if len(got) != 1 || got[0].Symbol != "STEAKUSDC" {
		t.Fatalf("substring match failed: %+v", got)
	}
	// reward APY folds into the total when the composite field is absent
	if got[0].TotalAPY != 7.5 {
		t.Fatalf("total APY %v, want 7.5", got[0].TotalAPY)
	}
}

func TestListOpportunitiesMinLiquidity(t *testing.T) {
	s := newService(staticFeed{pools: testPools()})
	got := s.ListOpportunities(context.Background(), "USDC", Filters{MinLiquidityUSD: 100_000})
	for _, o := range got {
		if o.LiquidityUSD < 100_000 {
			t.Fatalf("pool %s below liquidity floor", o.PoolID)
		}
	}
}

func TestListOpportunitiesDegradesToEmpty(t *testing.T) {
	s := newService(staticFeed{err: errors.New("feed down")})
	got := s.ListOpportunities(context.Background(), "USDC", Filters{})
	if got == nil || len(got) != 0 {
		t.Fatalf("upstream failure should yield empty slice, got %v", got)
	}
}

func TestListOpportunitiesTieBreaksDeterministically(t *testing.T) {
	pools := []poolEntry{
		{Pool: "b", Chain: "Base", Project: "aave-v3", Symbol: "USDC", APY: fp(4), TVLUSD: fp(100)},
		{Pool: "a", Chain: "Arbitrum", Project: "aave-v3", Symbol: "USDC", APY: fp(4), TVLUSD: fp(100)},
		{Pool: "c", Chain: "Ethereum", Project: "aave-v3", Symbol: "USDC", APY: fp(4), TVLUSD: fp(200)},
	}
	s := newService(staticFeed{pools: pools})
	got := s.ListOpportunities(context.Background(), "USDC", Filters{})
	if got[0].PoolID != "c" || got[1].PoolID != "a" || got[2].PoolID != "b" {
		t.Fatalf("tie break wrong: %v %v %v", got[0].PoolID, got[1].PoolID, got[2].PoolID)
	}
}

func TestFeedClientCachesSnapshot(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"status":"success","data":[{"pool":"p1","chain":"Base","project":"aave-v3","symbol":"USDC","apy":4.2,"tvlUsd":100000}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache, err := feedcache.Open(filepath.Join(dir, "feed.db"), filepath.Join(dir, "feed.lock"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	c := NewFeedClient(httpx.New(time.Second, 0), srv.URL, cache, time.Minute, zerolog.Nop())
	for i := 0; i < 3; i++ {
		pools, err := c.Pools(context.Background())
		if err != nil {
			t.Fatalf("Pools: %v", err)
		}
		if len(pools) != 1 || pools[0].Pool != "p1" {
			t.Fatalf("unexpected pools %+v", pools)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one upstream fetch, got %d", calls)
	}
}

func TestFeedClientServesStaleOnFailure(t *testing.T) {
	dir := t.TempDir()
	cache, err := feedcache.Open(filepath.Join(dir, "feed.db"), filepath.Join(dir, "feed.lock"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()
	body := []byte(`{"status":"success","data":[{"pool":"stale","chain":"Base","project":"aave-v3","symbol":"USDC","apy":1,"tvlUsd":1}]}`)
	if err := cache.Set("pools", body, time.Nanosecond); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewFeedClient(httpx.New(time.Second, 0), srv.URL, cache, time.Minute, zerolog.Nop())
	pools, err := c.Pools(context.Background())
	if err != nil {
		t.Fatalf("stale fallback should not error: %v", err)
	}
	if len(pools) != 1 || pools[0].Pool != "stale" {
		t.Fatalf("expected stale snapshot, got %+v", pools)
	}
}

func TestFanOutBalancesDegradesFailedBranch(t *testing.T) {
	chains := []chain.Chain{
		mustChain(t, "ethereum"),
		mustChain(t, "base"),
	}
	got := FanOutBalances(context.Background(), chains, func(_ context.Context, c chain.Chain) (*big.Int, error) {
		if c.Slug == "base" {
			return nil, errors.New("rpc down")
		}
		return big.NewInt(150), nil
	}, zerolog.Nop())
	if got["eip155:1"].Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("healthy branch lost: %v", got)
	}
	if got["eip155:8453"].Sign() != 0 {
		t.Fatalf("failed branch should degrade to zero: %v", got)
	}
}

func mustChain(t *testing.T, slug string) chain.Chain {
	t.Helper()
	c, err := chain.Parse(slug)
	if err != nil {
		t.Fatalf("parse chain %s: %v", slug, err)
	}
	return c
}
