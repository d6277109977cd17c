package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20 balanceOf ABI. ERC-3643 tokens expose the same read.
const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

// TokenReader performs read-only token calls
type TokenReader struct {
	client ChainClient
	abi    abi.ABI
}

// NewTokenReader creates a token reader over client
func NewTokenReader(client ChainClient) (*TokenReader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}
	return &TokenReader{client: client, abi: parsed}, nil
}

// HasCode reports whether bytecode is deployed at address
func (r *TokenReader) HasCode(ctx context.Context, address common.Address) (bool, error) {
	code, err := r.client.CodeAt(ctx, address, nil)
	if err != nil {
		return false, fmt.Errorf("eth_getCode %s: %w", address.Hex(), err)
	}
	return len(code) > 0, nil
}

// BalanceOf returns holder's balance of token in base units
func (r *TokenReader) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := r.abi.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}

	results, err := r.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("balanceOf %s: empty result", token.Hex())
	}

	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf %s: unexpected result type %T", token.Hex(), results[0])
	}
	return balance, nil
}
