package engine

import (
	"context"

	"github.com/yieldline/yieldctl/internal/custody"
)

// CustodySubmitter adapts the custody client's request-struct API to the flat
// submit signature shared by the gas, bridge, and engine layers.
type CustodySubmitter struct {
	Client *custody.Client
}

func (s CustodySubmitter) Submit(ctx context.Context, walletID, chainID, to, data, value string) (string, error) {
	return s.Client.Submit(ctx, custody.SubmitRequest{
		WalletID: walletID,
		ChainID:  chainID,
		To:       to,
		Data:     data,
		Value:    value,
	})
}
