package recovery

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// walletLocks serializes operations per wallet. Entries are reference counted and
// removed once the last holder releases, so the map only holds wallets in use.
type walletLocks struct {
	mu    sync.Mutex
	locks map[common.Address]*walletLock
}

type walletLock struct {
	sync.Mutex
	refs int
}

func newWalletLocks() *walletLocks {
	return &walletLocks{locks: make(map[common.Address]*walletLock)}
}

// lock acquires the wallet's mutex and returns the matching unlock function.
func (l *walletLocks) lock(wallet common.Address) func() {
	l.mu.Lock()
	wl, ok := l.locks[wallet]
	if !ok {
		wl = &walletLock{}
		l.locks[wallet] = wl
	}
	wl.refs++
	l.mu.Unlock()

	wl.Lock()
	return func() {
		wl.Unlock()

		l.mu.Lock()
		wl.refs--
		if wl.refs == 0 {
			delete(l.locks, wallet)
		}
		l.mu.Unlock()
	}
}

func (l *walletLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
