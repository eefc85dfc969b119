// Package custody talks to the external custody service that holds wallet
// keys. All signing and broadcasting happens there; this process never sees
// private keys.
package custody

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	clierr "github.com/yieldline/yieldctl/internal/errors"
	"github.com/yieldline/yieldctl/internal/httpx"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, baseURL, apiKey string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
	}
}

// SubmitRequest describes one transaction for the custody service to sign and
// broadcast on behalf of the wallet.
type SubmitRequest struct {
	WalletID string `json:"wallet_id"`
	ChainID  string `json:"chain_id"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

type walletResponse struct {
	WalletID string `json:"wallet_id"`
	Address  string `json:"address"`
}

// Submit asks custody to sign and broadcast a transaction, returning the
// transaction hash once accepted.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.WalletID) == "" {
		return "", clierr.New(clierr.CodeUsage, "missing wallet id")
	}
	if strings.TrimSpace(req.To) == "" {
		return "", clierr.New(clierr.CodeUsage, "missing transaction target")
	}
	if strings.TrimSpace(req.Value) == "" {
		req.Value = "0"
	}
	if _, ok := new(big.Int).SetString(req.Value, 10); !ok {
		return "", clierr.New(clierr.CodeUsage, "transaction value must be a base-units integer")
	}
	var resp submitResponse
	if _, err := c.http.PostJSON(ctx, c.baseURL+"/v1/transactions", req, c.headers(), &resp); err != nil {
		if clierr.HasCode(err, clierr.CodeAuth) || clierr.HasCode(err, clierr.CodeRateLimited) {
			return "", err
		}
		return "", clierr.Wrap(clierr.CodeCustody, "custody submit rejected", err)
	}
	if strings.TrimSpace(resp.TxHash) == "" {
		return "", clierr.New(clierr.CodeCustody, "custody accepted the transaction but returned no hash")
	}
	return resp.TxHash, nil
}

// WalletAddress resolves a custody wallet id to its on-chain address.
func (c *Client) WalletAddress(ctx context.Context, walletID string) (string, error) {
	if strings.TrimSpace(walletID) == "" {
		return "", clierr.New(clierr.CodeUsage, "missing wallet id")
	}
	url := fmt.Sprintf("%s/v1/wallets/%s", c.baseURL, strings.TrimSpace(walletID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "build wallet request", err)
	}
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}
	var resp walletResponse
	if _, err := c.http.DoJSON(ctx, req, &resp); err != nil {
		return "", err
	}
	addr := strings.TrimSpace(resp.Address)
	if addr == "" {
		return "", clierr.New(clierr.CodeCustody, "custody returned no address for wallet")
	}
	return strings.ToLower(addr), nil
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"X-Api-Key": c.apiKey}
}
