// Package adapter connects the pipeline to the Ethereum JSON-RPC provider.
package adapter

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/reserve-snapshot/internal/circuitbreaker"
	"github.com/reserve-snapshot/internal/errors"
	"github.com/reserve-snapshot/internal/logging"
	"github.com/reserve-snapshot/internal/retry"
)

// ChainClient is the subset of the JSON-RPC surface used for verification.
// *ethclient.Client satisfies it.
type ChainClient interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// DialFunc opens a client for one endpoint
type DialFunc func(ctx context.Context, rawURL string) (ChainClient, error)

// DialEthereum dials an endpoint with ethclient
func DialEthereum(ctx context.Context, rawURL string) (ChainClient, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Connection is an RPC client that answered the startup probe
type Connection struct {
	Client  ChainClient
	URL     string
	ChainID *big.Int
}

// Close releases the client
func (c *Connection) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// Connect dials the provider's endpoints in failover order and returns the
// first one that answers eth_chainId. Each endpoint is probed under cfg.
func Connect(ctx context.Context, provider *RPCProvider, dial DialFunc, cfg *retry.RetryConfig) (*Connection, error) {
	logger := logging.FromContext(ctx)

	var lastErr error
	for i := range provider.URLs() {
		if i > 0 {
			if err := provider.Failover(); err != nil {
				break
			}
		}

		var conn *Connection
		err := retry.WithRetry(ctx, cfg, func(ctx context.Context, attempt int) error {
			return provider.Probe(ctx, func(ctx context.Context, rawURL string) error {
				client, err := dial(ctx, rawURL)
				if err != nil {
					return err
				}
				chainID, err := client.ChainID(ctx)
				if err != nil {
					client.Close()
					return err
				}
				conn = &Connection{Client: client, URL: rawURL, ChainID: chainID}
				return nil
			})
		})
		if err == nil {
			logger.WithFields(map[string]interface{}{
				"endpoint": RedactURL(conn.URL),
				"chainId":  conn.ChainID.String(),
			}).Info("Blockchain connection established")
			return conn, nil
		}

		lastErr = err
		logger.WithError(err).WithField("endpoint", RedactURL(provider.GetCurrentURL())).Warn("RPC endpoint unreachable")
	}

	health := provider.GetHealth()
	logger.WithFields(map[string]interface{}{
		"requests":         health.TotalRequests,
		"failed":           health.FailedReqs,
		"consecutiveFails": health.ConsecutiveFails,
	}).Error("No RPC endpoint answered")

	return nil, errors.NewRPCError(RedactURL(provider.GetCurrentURL()), lastErr)
}

// NewEndpointBreaker returns the breaker guarding verification calls. It only
// opens on endpoint failures, so a token whose call fails or times out never
// changes the outcome of another token.
func NewEndpointBreaker(threshold int) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:                   "rpc",
		MaxConsecutiveFailures: threshold,
		Cooldown:               30 * time.Second,
		IsFailure:              IsEndpointFailure,
	})
}

// IsEndpointFailure reports whether err means the endpoint itself could not
// be reached. Timeouts and error replies for a single call are not endpoint
// failures.
func IsEndpointFailure(err error) bool {
	if err == nil || stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return false
	}

	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EHOSTUNREACH, syscall.ENETUNREACH} {
		if stderrors.Is(err, errno) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return !dnsErr.IsTimeout
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return opErr.Op == "dial" && !opErr.Timeout()
	}
	return false
}

// RedactURL strips credentials and path segments that commonly carry API keys
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "<invalid-url>"
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}
