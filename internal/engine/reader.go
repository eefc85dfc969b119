package engine

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/yieldline/yieldctl/internal/adapter"
	"github.com/yieldline/yieldctl/internal/chain"
	"github.com/yieldline/yieldctl/internal/onchain"
)

// RPCReader serves every on-chain read over per-chain RPC connections, dialed
// lazily and reused for the process lifetime.
type RPCReader struct {
	mu        sync.Mutex
	clients   map[string]*onchain.Client
	overrides map[string]string // chain CAIP-2 or slug -> rpc url
}

func NewRPCReader(rpcOverrides map[string]string) *RPCReader {
	return &RPCReader{
		clients:   map[string]*onchain.Client{},
		overrides: rpcOverrides,
	}
}

func (r *RPCReader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		c.Close()
	}
	r.clients = map[string]*onchain.Client{}
}

func (r *RPCReader) client(ctx context.Context, c chain.Chain) (*onchain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.clients[c.CAIP2]; ok {
		return cached, nil
	}
	override := r.overrides[c.CAIP2]
	if override == "" {
		override = r.overrides[c.Slug]
	}
	url, err := onchain.ResolveRPCURL(override, c.EVMChainID)
	if err != nil {
		return nil, err
	}
	client, err := onchain.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	r.clients[c.CAIP2] = client
	return client, nil
}

func (r *RPCReader) Allowance(ctx context.Context, c chain.Chain, token, owner, spender string) (*big.Int, error) {
	client, err := r.client(ctx, c)
	if err != nil {
		return nil, err
	}
	return client.Allowance(ctx, token, owner, spender)
}

func (r *RPCReader) TokenBalance(ctx context.Context, c chain.Chain, token, owner string) (*big.Int, error) {
	client, err := r.client(ctx, c)
	if err != nil {
		return nil, err
	}
	return client.TokenBalance(ctx, token, owner)
}

func (r *RPCReader) NativeBalance(ctx context.Context, c chain.Chain, owner string) (*big.Int, error) {
	client, err := r.client(ctx, c)
	if err != nil {
		return nil, err
	}
	return client.NativeBalance(ctx, owner)
}

// ReceiptBalance reads the deposited position behind a pool. Vault positions
// report the asset-denominated maxWithdraw; pooled and isolated markets report
// the receipt-token balance, which accrues in place.
func (r *RPCReader) ReceiptBalance(ctx context.Context, c chain.Chain, pool adapter.Pool, owner string) (*big.Int, error) {
	client, err := r.client(ctx, c)
	if err != nil {
		return nil, err
	}
	if pool.Kind == adapter.KindVault {
		return client.VaultMaxWithdraw(ctx, pool.Target, owner)
	}
	return client.TokenBalance(ctx, pool.ReceiptToken, owner)
}

func (r *RPCReader) GasPrice(ctx context.Context, c chain.Chain) (*big.Int, error) {
	client, err := r.client(ctx, c)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasPrice(ctx)
}

func (r *RPCReader) Simulate(ctx context.Context, c chain.Chain, from, to, data string) error {
	client, err := r.client(ctx, c)
	if err != nil {
		return err
	}
	return client.Simulate(ctx, from, to, data, nil)
}

func (r *RPCReader) WaitReceipt(ctx context.Context, c chain.Chain, txHash string, pollInterval, timeout time.Duration) error {
	client, err := r.client(ctx, c)
	if err != nil {
		return err
	}
	return client.WaitReceipt(ctx, txHash, pollInterval, timeout)
}
