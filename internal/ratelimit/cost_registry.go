// Package ratelimit keeps verification fan-out within the RPC provider's budget.
package ratelimit

import (
	"sync"
)

// Default costs, in limiter tokens, for the RPC methods the pipeline issues.
const (
	DefaultCost = 1

	CostEthGetCode = 1
	CostEthCall    = 2
	CostEthChainID = 1
)

// RPC method names
const (
	MethodEthGetCode = "eth_getCode"
	MethodEthCall    = "eth_call"
	MethodEthChainID = "eth_chainId"
)

// CostRegistry maps RPC methods to their limiter cost.
// It is safe for concurrent use.
type CostRegistry struct {
	mu          sync.RWMutex
	costs       map[string]int
	defaultCost int
}

// CostRegistryConfig holds configuration for the registry.
type CostRegistryConfig struct {
	// DefaultCost applies to unknown methods. Zero uses DefaultCost.
	DefaultCost int

	// Overrides replaces built-in costs for specific methods.
	Overrides map[string]int
}

// NewCostRegistry creates a registry with the default costs.
// If cfg is nil, default configuration is used.
func NewCostRegistry(cfg *CostRegistryConfig) *CostRegistry {
	costs := map[string]int{
		MethodEthGetCode: CostEthGetCode,
		MethodEthCall:    CostEthCall,
		MethodEthChainID: CostEthChainID,
	}

	defaultCost := DefaultCost

	if cfg != nil {
		if cfg.DefaultCost > 0 {
			defaultCost = cfg.DefaultCost
		}
		for method, cost := range cfg.Overrides {
			if cost > 0 {
				costs[method] = cost
			}
		}
	}

	return &CostRegistry{
		costs:       costs,
		defaultCost: defaultCost,
	}
}

// GetCost returns the cost for an RPC method.
// If the method is not known, returns the configured default cost.
func (r *CostRegistry) GetCost(method string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cost, ok := r.costs[method]; ok {
		return cost
	}
	return r.defaultCost
}

// SetCost updates the cost of a method. Non-positive costs are ignored.
func (r *CostRegistry) SetCost(method string, cost int) {
	if cost <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.costs[method] = cost
}

// MaxCost returns the largest cost any method can be charged
func (r *CostRegistry) MaxCost() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	highest := r.defaultCost
	for _, cost := range r.costs {
		if cost > highest {
			highest = cost
		}
	}
	return highest
}
