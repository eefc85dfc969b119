// Package discovery queries the yield-aggregator feed and ranks lending
// opportunities locally. Discovery is advisory: upstream failures degrade to
// an empty result instead of blocking the caller.
package discovery

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yieldline/yieldctl/internal/chain"
)

// Opportunity is one ranked lending pool. Produced fresh per call, never
// stored or mutated.
type Opportunity struct {
	PoolID       string   `json:"pool_id"`
	Chain        string   `json:"chain"`
	ProtocolID   string   `json:"protocol_id"`
	Symbol       string   `json:"symbol"`
	BaseAPY      float64  `json:"base_apy"`
	RewardAPY    float64  `json:"reward_apy"`
	TotalAPY     float64  `json:"total_apy"`
	LiquidityUSD float64  `json:"liquidity_usd"`
	Stablecoin   bool     `json:"stablecoin"`
	Underlying   []string `json:"underlying_tokens,omitempty"`
}

type Filters struct {
	Chains          []string
	ProtocolIDs     []string
	MinLiquidityUSD float64
}

type poolSource interface {
	Pools(ctx context.Context) ([]poolEntry, error)
}

type Service struct {
	feed poolSource
	log  zerolog.Logger
}

func NewService(feed *FeedClient, log zerolog.Logger) *Service {
	return &Service{feed: feed, log: log}
}

// ListOpportunities filters and ranks the feed's pools for one asset. The
// asset matches by substring against the composite pool symbol, so USDC also
// matches wrapped receipt symbols. The result is sorted by total APY
// descending, liquidity descending, then chain name for determinism. Upstream
// failure yields an empty slice, never an error.
func (s *Service) ListOpportunities(ctx context.Context, assetSymbol string, f Filters) []Opportunity {
	pools, err := s.feed.Pools(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("yield discovery degraded to empty result")
		return []Opportunity{}
	}

	asset := strings.ToUpper(strings.TrimSpace(assetSymbol))
	chainAllow := lowerSet(f.Chains)
	protocolAllow := lowerSet(f.ProtocolIDs)

	out := make([]Opportunity, 0)
	for _, p := range pools {
		if len(chainAllow) > 0 {
			if _, ok := chainAllow[strings.ToLower(strings.TrimSpace(p.Chain))]; !ok {
				continue
			}
		}
		if len(protocolAllow) > 0 {
			if _, ok := protocolAllow[strings.ToLower(strings.TrimSpace(p.Project))]; !ok {
				continue
			}
		}
		if asset != "" && !strings.Contains(strings.ToUpper(p.Symbol), asset) {
			continue
		}
		liquidity := numOrZero(p.TVLUSD)
		if liquidity < f.MinLiquidityUSD {
			continue
		}
		base := numOrZero(p.APYBase)
		reward := numOrZero(p.APYReward)
		total := numOrZero(p.APY)
		if total == 0 {
			total = base + reward
		}
		out = append(out, Opportunity{
			PoolID:       p.Pool,
			Chain:        p.Chain,
			ProtocolID:   strings.ToLower(strings.TrimSpace(p.Project)),
			Symbol:       p.Symbol,
			BaseAPY:      base,
			RewardAPY:    reward,
			TotalAPY:     total,
			LiquidityUSD: liquidity,
			Stablecoin:   p.Stablecoin,
			Underlying:   p.Underlying,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalAPY != out[j].TotalAPY {
			return out[i].TotalAPY > out[j].TotalAPY
		}
		if out[i].LiquidityUSD != out[j].LiquidityUSD {
			return out[i].LiquidityUSD > out[j].LiquidityUSD
		}
		return out[i].Chain < out[j].Chain
	})
	return out
}

// Best returns the highest-ranked opportunity, or false when none match.
func (s *Service) Best(ctx context.Context, assetSymbol string, f Filters) (Opportunity, bool) {
	ranked := s.ListOpportunities(ctx, assetSymbol, f)
	if len(ranked) == 0 {
		return Opportunity{}, false
	}
	return ranked[0], true
}

// BalanceFn reads one wallet balance on one chain.
type BalanceFn func(ctx context.Context, c chain.Chain) (*big.Int, error)

// FanOutBalances issues per-chain balance lookups concurrently. A failed
// branch degrades to zero and is logged; the batch never fails as a whole.
func FanOutBalances(ctx context.Context, chains []chain.Chain, fn BalanceFn, log zerolog.Logger) map[string]*big.Int {
	out := make(map[string]*big.Int, len(chains))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range chains {
		wg.Add(1)
		go func(c chain.Chain) {
			defer wg.Done()
			bal, err := fn(ctx, c)
			if err != nil {
				log.Warn().Err(err).Str("chain", c.Slug).Msg("balance lookup degraded to zero")
				bal = big.NewInt(0)
			}
			if bal == nil {
				bal = big.NewInt(0)
			}
			mu.Lock()
			out[c.CAIP2] = bal
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return out
}

func lowerSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if clean := strings.ToLower(strings.TrimSpace(v)); clean != "" {
			out[clean] = struct{}{}
		}
	}
	return out
}

func numOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
