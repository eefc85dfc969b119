// Package onchain provides read-side EVM access: balances, allowances,
// gas pricing, call simulation, and receipt polling.
package onchain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/yieldline/yieldctl/internal/amount"
	clierr "github.com/yieldline/yieldctl/internal/errors"
)

// ERC-20 and ERC-4626 read selectors.
const (
	selAllowance   = "dd62ed3e" // allowance(address,address)
	selBalanceOf   = "70a08231" // balanceOf(address)
	selDecimals    = "313ce567" // decimals()
	selMaxWithdraw = "ce96cb77" // maxWithdraw(address)
)

var defaultRPCByChainID = map[int64]string{
	1:     "https://eth.llamarpc.com",
	10:    "https://mainnet.optimism.io",
	137:   "https://polygon-rpc.com",
	8453:  "https://mainnet.base.org",
	42161: "https://arb1.arbitrum.io/rpc",
	43114: "https://api.avax.network/ext/bc/C/rpc",
}

// ResolveRPCURL prefers an explicit override, then the built-in default for
// the chain.
func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if v, ok := defaultRPCByChainID[chainID]; ok {
		return v, nil
	}
	return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("no default rpc configured for chain id %d", chainID))
}

type Client struct {
	eth *ethclient.Client
}

func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	return &Client{eth: eth}, nil
}

func (c *Client) Close() { c.eth.Close() }

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	return id, nil
}

// Allowance reads the ERC-20 allowance granted by owner to spender.
func (c *Client) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	return c.callUint(ctx, token, selAllowance, amount.AddressWord(owner), amount.AddressWord(spender))
}

// TokenBalance reads the ERC-20 balance of owner.
func (c *Client) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	return c.callUint(ctx, token, selBalanceOf, amount.AddressWord(owner))
}

// VaultMaxWithdraw reads the asset-denominated withdrawable balance of an
// ERC-4626 vault position.
func (c *Client) VaultMaxWithdraw(ctx context.Context, vault, owner string) (*big.Int, error) {
	return c.callUint(ctx, vault, selMaxWithdraw, amount.AddressWord(owner))
}

// NativeBalance reads the gas-token balance of an address.
func (c *Client) NativeBalance(ctx context.Context, addr string) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
	}
	return bal, nil
}

// TokenDecimals reads decimals() from the token contract. Decimals are never
// guessed; callers must surface the error when the contract does not answer.
func (c *Client) TokenDecimals(ctx context.Context, token string) (int, error) {
	v, err := c.callUint(ctx, token, selDecimals)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() || v.Int64() > 77 {
		return 0, clierr.New(clierr.CodeUnsupported, "token reports implausible decimals")
	}
	return int(v.Int64()), nil
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch gas price", err)
	}
	return price, nil
}

// EstimateGas estimates gas for an encoded call from the given sender.
func (c *Client) EstimateGas(ctx context.Context, from, to, data string, value *big.Int) (uint64, error) {
	msg, err := callMsg(from, to, data, value)
	if err != nil {
		return 0, err
	}
	gas, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return 0, wrapEVMError(clierr.CodeBlocked, "estimate gas", err)
	}
	return gas, nil
}

// Simulate runs the call through eth_call without broadcasting. A revert
// surfaces as CodeBlocked with the decoded reason when the node returns one.
func (c *Client) Simulate(ctx context.Context, from, to, data string, value *big.Int) error {
	msg, err := callMsg(from, to, data, value)
	if err != nil {
		return err
	}
	if _, err := c.eth.CallContract(ctx, msg, nil); err != nil {
		return wrapEVMError(clierr.CodeBlocked, "simulate call (eth_call)", err)
	}
	return nil
}

// WaitReceipt polls for the transaction receipt until confirmation or the
// timeout elapses. Transient polling failures are ignored until the deadline.
func (c *Client) WaitReceipt(ctx context.Context, txHash string, pollInterval, timeout time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	hash := common.HexToHash(txHash)
	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return clierr.New(clierr.CodeBlocked, "transaction reverted on-chain")
		}
		// Not-found before inclusion and transient RPC failures both fall
		// through to the next poll.
		select {
		case <-waitCtx.Done():
			return clierr.Wrap(clierr.CodeTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) callUint(ctx context.Context, to, selector string, words ...string) (*big.Int, error) {
	var b strings.Builder
	b.WriteString("0x")
	b.WriteString(selector)
	for _, w := range words {
		b.WriteString(w)
	}
	msg, err := callMsg("", to, b.String(), nil)
	if err != nil {
		return nil, err
	}
	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, wrapEVMError(clierr.CodeUnavailable, "contract read (eth_call)", err)
	}
	if len(out) < amount.WordBytes {
		return nil, clierr.New(clierr.CodeUnavailable, "contract read returned short data")
	}
	return new(big.Int).SetBytes(out[:amount.WordBytes]), nil
}

func callMsg(from, to, data string, value *big.Int) (ethereum.CallMsg, error) {
	if !common.IsHexAddress(strings.TrimSpace(to)) {
		return ethereum.CallMsg{}, clierr.New(clierr.CodeUsage, "invalid target address")
	}
	target := common.HexToAddress(strings.TrimSpace(to))
	payload, err := decodeHex(data)
	if err != nil {
		return ethereum.CallMsg{}, clierr.Wrap(clierr.CodeUsage, "decode calldata", err)
	}
	msg := ethereum.CallMsg{To: &target, Value: value, Data: payload}
	if strings.TrimSpace(from) != "" {
		msg.From = common.HexToAddress(strings.TrimSpace(from))
	}
	return msg, nil
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}

// wrapEVMError decodes an Error(string) revert payload carried by the RPC
// error, so the user sees the contract's reason instead of an opaque blob.
func wrapEVMError(code clierr.Code, msg string, err error) error {
	if reason := revertReason(err); reason != "" {
		return clierr.Wrap(code, fmt.Sprintf("%s: reverted: %s", msg, reason), err)
	}
	return clierr.Wrap(code, msg, err)
}

func revertReason(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok {
		return ""
	}
	return decodeRevertData(common.FromHex(raw))
}

// decodeRevertData extracts the string from an ABI-encoded Error(string)
// payload: 4-byte selector 0x08c379a0, offset word, length word, utf-8 bytes.
func decodeRevertData(data []byte) string {
	const errorSelector = "08c379a0"
	if len(data) < 4+2*amount.WordBytes {
		return ""
	}
	if hex.EncodeToString(data[:4]) != errorSelector {
		return ""
	}
	body := data[4:]
	offset := new(big.Int).SetBytes(body[:amount.WordBytes])
	if !offset.IsInt64() || offset.Int64() != int64(amount.WordBytes) {
		return ""
	}
	length := new(big.Int).SetBytes(body[amount.WordBytes : 2*amount.WordBytes])
	if !length.IsInt64() {
		return ""
	}
	start := 2 * amount.WordBytes
	end := start + int(length.Int64())
	if end > len(body) {
		return ""
	}
	return string(body[start:end])
}
