package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema
// Design principles:
// 1. Prefix-based for range scans (all accounts, all live orders)
// 2. Zero-padded numeric components for lexicographic ordering
// 3. Single-key singletons for config and the retained counter

// Key prefixes
const (
	prefixAccount = "acc:"   // account balances
	prefixOrder   = "ord:"   // live orders
	prefixTrade   = "trade:" // trade history
	keyConfig     = "cfg"    // protocol config singleton
	keyRetained   = "ret"    // retained stable-asset counter
)

// accountKey returns the key for an account
// Format: "acc:{address}"
func accountKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, addr.Hex()))
}

// orderKey returns the key for an order
// Format: "ord:{id}" with the id zero-padded so iteration yields id order
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// orderPrefix returns the prefix covering every live order
func orderPrefix() []byte {
	return []byte(prefixOrder)
}

// tradeKey returns the key for a trade
// Format: "trade:{timestamp}:{tradeID}", timestamp zero-padded (20 digits)
func tradeKey(timestamp int64, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixTrade, timestamp, tradeID))
}

// tradePrefix returns the prefix covering every trade
func tradePrefix() []byte {
	return []byte(prefixTrade)
}

// accountPrefix returns the prefix covering every account
func accountPrefix() []byte {
	return []byte(prefixAccount)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
