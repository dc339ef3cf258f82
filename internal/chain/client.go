package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// SPL token account layout: mint(32) owner(32) amount(8) ...
	tokenAccountSize  = 165
	tokenAmountOffset = 64
)

// ClientConfig holds RPC connection settings.
type ClientConfig struct {
	RPCURL       string
	MaxRetries   int
	RetryBackoff time.Duration
}

// Client wraps the solana-go RPC client and provides helper methods.
type Client struct {
	rpc          *rpc.Client
	commitment   rpc.CommitmentType
	maxRetries   int
	retryBackoff time.Duration
}

// NewClient creates a chain client for the RPC URL.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	return &Client{
		rpc:          rpc.New(cfg.RPCURL),
		commitment:   rpc.CommitmentConfirmed,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
	}, nil
}

// HolderCount returns the number of SPL token accounts holding a non-zero
// balance of the mint.
func (c *Client) HolderCount(ctx context.Context, address string) (uint64, error) {
	mint, err := ValidateAddress(address)
	if err != nil {
		return 0, err
	}

	offset := uint64(tokenAmountOffset)
	length := uint64(8)
	opts := &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
		DataSlice:  &rpc.DataSlice{Offset: &offset, Length: &length},
		Filters: []rpc.RPCFilter{
			{DataSize: tokenAccountSize},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(mint.Bytes())}},
		},
	}

	var accounts rpc.GetProgramAccountsResult
	err = withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
		var err error
		accounts, err = c.rpc.GetProgramAccountsWithOpts(ctx, solana.TokenProgramID, opts)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get token accounts: %w", err)
	}

	var holders uint64
	for _, acc := range accounts {
		if acc == nil || acc.Account == nil || acc.Account.Data == nil {
			continue
		}
		if tokenAmount(acc.Account.Data.GetBinary()) > 0 {
			holders++
		}
	}
	return holders, nil
}

// TokenSupply returns the mint's circulating supply in UI units.
func (c *Client) TokenSupply(ctx context.Context, address string) (float64, error) {
	mint, err := ValidateAddress(address)
	if err != nil {
		return 0, err
	}

	var out *rpc.GetTokenSupplyResult
	err = withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
		var err error
		out, err = c.rpc.GetTokenSupply(ctx, mint, c.commitment)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get token supply: %w", err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("token supply unavailable for %s", address)
	}
	return uiAmount(out.Value.Amount, out.Value.Decimals)
}

// tokenAmount decodes the little-endian amount from a sliced account.
func tokenAmount(data []byte) uint64 {
	if len(data) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(data[:8])
}

func uiAmount(raw string, decimals uint8) (float64, error) {
	amount, ok := new(big.Float).SetString(raw)
	if !ok {
		return 0, fmt.Errorf("invalid token amount: %q", raw)
	}
	denom := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value, _ := new(big.Float).Quo(amount, denom).Float64()
	return value, nil
}
