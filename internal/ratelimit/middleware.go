package ratelimit

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/reserve-snapshot/internal/adapter"
)

var _ adapter.ChainClient = (*RateLimitedClient)(nil)

// RateLimitedClient wraps a chain client with a token bucket.
// Every call waits for its method cost before reaching the provider.
type RateLimitedClient struct {
	underlying   adapter.ChainClient
	limiter      *rate.Limiter
	costRegistry *CostRegistry
}

// RateLimitedClientConfig holds configuration for the rate-limited client.
type RateLimitedClientConfig struct {
	// Client is the underlying chain client to wrap. Required.
	Client adapter.ChainClient

	// CostRegistry prices each method. Nil uses the defaults.
	CostRegistry *CostRegistry

	// Rate is the sustained cost budget per second. Zero or less disables limiting.
	Rate float64

	// Burst is the bucket size. It is raised to the largest method cost if smaller.
	Burst int
}

// NewRateLimitedClient creates a rate-limited chain client
func NewRateLimitedClient(cfg RateLimitedClientConfig) (*RateLimitedClient, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("client is required")
	}

	registry := cfg.CostRegistry
	if registry == nil {
		registry = NewCostRegistry(nil)
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}

	burst := cfg.Burst
	if highest := registry.MaxCost(); burst < highest {
		burst = highest
	}

	return &RateLimitedClient{
		underlying:   cfg.Client,
		limiter:      rate.NewLimiter(limit, burst),
		costRegistry: registry,
	}, nil
}

func (c *RateLimitedClient) wait(ctx context.Context, method string) error {
	if err := c.limiter.WaitN(ctx, c.costRegistry.GetCost(method)); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", method, err)
	}
	return nil
}

// CodeAt implements adapter.ChainClient
func (c *RateLimitedClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if err := c.wait(ctx, MethodEthGetCode); err != nil {
		return nil, err
	}
	return c.underlying.CodeAt(ctx, account, blockNumber)
}

// CallContract implements adapter.ChainClient
func (c *RateLimitedClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.wait(ctx, MethodEthCall); err != nil {
		return nil, err
	}
	return c.underlying.CallContract(ctx, call, blockNumber)
}

// ChainID implements adapter.ChainClient
func (c *RateLimitedClient) ChainID(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx, MethodEthChainID); err != nil {
		return nil, err
	}
	return c.underlying.ChainID(ctx)
}

// Close closes the underlying client
func (c *RateLimitedClient) Close() {
	c.underlying.Close()
}
