// Package bridge quotes cross-chain transfers and drives them through a
// resumable state machine.
package bridge

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

// TransferStatus is the polled settlement state reported by the aggregator.
type TransferStatus string

const (
	StatusPending  TransferStatus = "PENDING"
	StatusDone     TransferStatus = "DONE"
	StatusFailed   TransferStatus = "FAILED"
	StatusNotFound TransferStatus = "NOT_FOUND"
)

type Client struct {
	http    *httpx.Client
	baseURL string
}

func NewClient(httpClient *httpx.Client, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type QuoteRequest struct {
	FromChainID int64
	ToChainID   int64
	FromToken   string
	ToToken     string
	FromAmount  string // base units
	FromAddress string
	ToAddress   string
}

// Quote is a capability to execute exactly once: submit the payload a single
// time, then track settlement by source tx hash.
type Quote struct {
	Tool            string
	To              string
	Data            string
	Value           string
	ApprovalAddress string
	ToAmount        string
}

type quoteResponse struct {
	Tool     string `json:"tool"`
	Estimate struct {
		ToAmount        string `json:"toAmount"`
		ApprovalAddress string `json:"approvalAddress"`
	} `json:"estimate"`
	TransactionRequest struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Value string `json:"value"`
	} `json:"transactionRequest"`
}

func (c *Client) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if req.FromChainID == req.ToChainID {
		return Quote{}, clierr.New(clierr.CodeUsage, "bridge quote requires distinct chains")
	}
	if strings.TrimSpace(req.FromAmount) == "" {
		return Quote{}, clierr.New(clierr.CodeUsage, "bridge quote requires a base-units amount")
	}
	q := url.Values{}
	q.Set("fromChain", fmt.Sprintf("%d", req.FromChainID))
	q.Set("toChain", fmt.Sprintf("%d", req.ToChainID))
	q.Set("fromToken", req.FromToken)
	q.Set("toToken", req.ToToken)
	q.Set("fromAmount", req.FromAmount)
	q.Set("fromAddress", req.FromAddress)
	if strings.TrimSpace(req.ToAddress) != "" {
		q.Set("toAddress", req.ToAddress)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return Quote{}, clierr.Wrap(clierr.CodeInternal, "build bridge quote request", err)
	}
	var resp quoteResponse
	if _, err := c.http.DoJSON(ctx, httpReq, &resp); err != nil {
		return Quote{}, err
	}
	if strings.TrimSpace(resp.TransactionRequest.To) == "" {
		return Quote{}, clierr.New(clierr.CodeUnavailable, "bridge aggregator returned no transaction payload")
	}
	return Quote{
		Tool:            resp.Tool,
		To:              resp.TransactionRequest.To,
		Data:            resp.TransactionRequest.Data,
		Value:           normalizeValue(resp.TransactionRequest.Value),
		ApprovalAddress: resp.Estimate.ApprovalAddress,
		ToAmount:        resp.Estimate.ToAmount,
	}, nil
}

type statusResponse struct {
	Status string `json:"status"`
}

// Status polls settlement of a bridge transfer by its source tx hash.
// Transport failures map to PENDING so a flaky poll never aborts a transfer.
func (c *Client) Status(ctx context.Context, srcTxHash string, fromChainID, toChainID int64) (TransferStatus, error) {
	q := url.Values{}
	q.Set("txHash", srcTxHash)
	q.Set("fromChain", fmt.Sprintf("%d", fromChainID))
	q.Set("toChain", fmt.Sprintf("%d", toChainID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status?"+q.Encode(), nil)
	if err != nil {
		return StatusNotFound, clierr.Wrap(clierr.CodeInternal, "build bridge status request", err)
	}
	var resp statusResponse
	if _, err := c.http.DoJSON(ctx, httpReq, &resp); err != nil {
		if clierr.HasCode(err, clierr.CodeUnsupported) {
			return StatusNotFound, nil
		}
		return StatusPending, nil
	}
	switch strings.ToUpper(strings.TrimSpace(resp.Status)) {
	case string(StatusDone):
		return StatusDone, nil
	case string(StatusFailed):
		return StatusFailed, nil
	case string(StatusNotFound):
		return StatusNotFound, nil
	default:
		return StatusPending, nil
	}
}

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
