// Package swap wraps the swap-aggregator quote endpoint. Quotes come back as
// ready-to-submit transaction payloads plus approval metadata; execution goes
// through custody.
package swap

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	clierr "github.com/yieldline/yieldctl/internal/errors"
	"github.com/yieldline/yieldctl/internal/httpx"
)

const defaultBaseURL = "https://li.quest/v1"

// NativeTokenAddress is the aggregator convention for the chain's gas token.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type QuoteRequest struct {
	ChainID     int64
	FromToken   string
	ToToken     string
	FromAmount  string // base units
	FromAddress string
}

// Quote is a single-use capability: submit the payload once, then re-quote.
type Quote struct {
	To              string
	Data            string
	Value           string
	ApprovalAddress string
	ToAmount        string
	ToAmountUSD     float64
}

type quoteResponse struct {
	Estimate struct {
		ToAmount        string `json:"toAmount"`
		ToAmountUSD     string `json:"toAmountUSD"`
		ApprovalAddress string `json:"approvalAddress"`
	} `json:"estimate"`
	TransactionRequest struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"transactionRequest"`
}

// NativeOutQuote asks for a same-chain swap into the native gas token.
func (c *Client) NativeOutQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	req.ToToken = NativeTokenAddress
	return c.Fetch(ctx, req)
}

func (c *Client) Fetch(ctx context.Context, req QuoteRequest) (Quote, error) {
	if strings.TrimSpace(req.FromToken) == "" || strings.TrimSpace(req.ToToken) == "" {
		return Quote{}, clierr.New(clierr.CodeUsage, "swap quote requires from and to tokens")
	}
	if strings.TrimSpace(req.FromAmount) == "" {
		return Quote{}, clierr.New(clierr.CodeUsage, "swap quote requires a base-units amount")
	}
	q := url.Values{}
	q.Set("fromChain", fmt.Sprintf("%d", req.ChainID))
	q.Set("toChain", fmt.Sprintf("%d", req.ChainID))
	q.Set("fromToken", req.FromToken)
	q.Set("toToken", req.ToToken)
	q.Set("fromAmount", req.FromAmount)
	q.Set("fromAddress", req.FromAddress)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeInternal, "build swap quote request", err)
	}
	var resp quoteResponse
	if _, err := c.http.DoJSON(ctx, httpReq, &resp); err != nil {
		return Quote{}, err
	}
	if strings.TrimSpace(resp.TransactionRequest.To) == "" {
		return Quote{}, clierr.New(clierr.CodeUnavailable, "swap aggregator returned no transaction payload")
	}
	return Quote{
		To:              resp.TransactionRequest.To,
		Data:            resp.TransactionRequest.Data,
		Value:           normalizeValue(resp.TransactionRequest.Value),
		ApprovalAddress: resp.Estimate.ApprovalAddress,
		ToAmount:        resp.Estimate.ToAmount,
		ToAmountUSD:     parseUSD(resp.Estimate.ToAmountUSD),
	}, nil
}

// normalizeValue converts an aggregator value (decimal or 0x hex) into a
// decimal base-units string for custody.
func normalizeValue(v string) string {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return "0"
	}
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		if n, ok := new(big.Int).SetString(clean[2:], 16); ok {
			return n.String()
		}
		return "0"
	}
	return clean
}

func parseUSD(v string) float64 {
	var out float64
	if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &out); err != nil {
		return 0
	}
	return out
}
