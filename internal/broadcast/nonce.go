package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceManager hands out sequential nonces per signer address. The first
// request for an address asks the node for the pending nonce; later
// requests increment locally, so concurrent deployments from one signer
// never collide. A nonce is only consumed once the transaction is actually
// submitted; callers that fail before submission return it.
type NonceManager struct {
	client Client

	mu    sync.Mutex
	next  map[common.Address]uint64
	known map[common.Address]bool
}

// NewNonceManager creates a nonce manager backed by the given client
func NewNonceManager(client Client) *NonceManager {
	return &NonceManager{
		client: client,
		next:   make(map[common.Address]uint64),
		known:  make(map[common.Address]bool),
	}
}

// Reserve returns the next nonce for the address and marks it consumed.
func (m *NonceManager) Reserve(ctx context.Context, addr common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.known[addr] {
		pending, err := m.client.PendingNonceAt(ctx, addr)
		if err != nil {
			return 0, fmt.Errorf("fetching pending nonce for %s: %w", addr.Hex(), err)
		}
		m.next[addr] = pending
		m.known[addr] = true
	}

	nonce := m.next[addr]
	m.next[addr]++
	return nonce, nil
}

// Return gives back a reserved nonce that was never submitted. Only the
// most recently reserved nonce can be returned; anything else would create
// a gap.
func (m *NonceManager) Return(addr common.Address, nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.known[addr] && m.next[addr] == nonce+1 {
		m.next[addr] = nonce
	}
}

// Reset forgets the cached nonce for an address, forcing a refetch. Used
// after a send failure that leaves local state out of sync with the node.
func (m *NonceManager) Reset(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.next, addr)
	delete(m.known, addr)
}
