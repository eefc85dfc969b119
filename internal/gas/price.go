package gas

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/yieldline/yieldctl/internal/chain"
	clierr "github.com/yieldline/yieldctl/internal/errors"
	"github.com/yieldline/yieldctl/internal/httpx"
)

const defaultPriceBase = "https://coins.llama.fi"

// nativePriceKey maps a chain's gas token to the price feed's coin key.
var nativePriceKey = map[string]string{
	"ethereum":  "coingecko:ethereum",
	"base":      "coingecko:ethereum",
	"arbitrum":  "coingecko:ethereum",
	"optimism":  "coingecko:ethereum",
	"polygon":   "coingecko:matic-network",
	"avalanche": "coingecko:avalanche-2",
}

// PriceClient reads current USD prices from the aggregator price feed.
type PriceClient struct {
	http    *httpx.Client
	baseURL string
}

func NewPriceClient(httpClient *httpx.Client, baseURL string) *PriceClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultPriceBase
	}
	return &PriceClient{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type priceResponse struct {
	Coins map[string]struct {
		Price float64 `json:"price"`
	} `json:"coins"`
}

// TokenUSD returns the USD price of an ERC-20 token on a chain.
func (p *PriceClient) TokenUSD(ctx context.Context, c chain.Chain, address string) (float64, error) {
	return p.lookup(ctx, fmt.Sprintf("%s:%s", c.Slug, strings.ToLower(strings.TrimSpace(address))))
}

// NativeUSD returns the USD price of the chain's gas token.
func (p *PriceClient) NativeUSD(ctx context.Context, c chain.Chain) (float64, error) {
	key, ok := nativePriceKey[c.Slug]
	if !ok {
		key = "coingecko:ethereum"
	}
	return p.lookup(ctx, key)
}

func (p *PriceClient) lookup(ctx context.Context, key string) (float64, error) {
	url := fmt.Sprintf("%s/prices/current/%s", p.baseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeInternal, "build price request", err)
	}
	var resp priceResponse
	if _, err := p.http.DoJSON(ctx, req, &resp); err != nil {
		return 0, err
	}
	coin, ok := resp.Coins[key]
	if !ok || coin.Price <= 0 {
		return 0, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("no price for %s", key))
	}
	return coin.Price, nil
}
