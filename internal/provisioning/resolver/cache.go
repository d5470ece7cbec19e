package resolver

import (
	"sync"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// CacheEntry is a resolved device reference.
type CacheEntry struct {
	LogicalID string
	Address   uint16
}

type kindCache struct {
	byAddress   map[string]CacheEntry
	byLogicalID map[string]CacheEntry
}

// AddressCache memoizes resolutions for one synchronization run. It is
// created by the run and dropped with it.
type AddressCache struct {
	mu    sync.Mutex
	kinds map[types.DeviceKind]*kindCache
}

func NewAddressCache() *AddressCache {
	return &AddressCache{kinds: make(map[types.DeviceKind]*kindCache)}
}

func (c *AddressCache) kind(k types.DeviceKind) *kindCache {
	kc, ok := c.kinds[k]
	if !ok {
		kc = &kindCache{
			byAddress:   make(map[string]CacheEntry),
			byLogicalID: make(map[string]CacheEntry),
		}
		c.kinds[k] = kc
	}
	return kc
}

// Lookup finds a previous resolution by logical id, then by address.
func (c *AddressCache) Lookup(kind types.DeviceKind, logicalID, address string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kc := c.kind(kind)
	if logicalID != "" {
		if e, ok := kc.byLogicalID[logicalID]; ok {
			return e, true
		}
	}
	if address != "" {
		if e, ok := kc.byAddress[address]; ok {
			return e, true
		}
	}
	return CacheEntry{}, false
}

func (c *AddressCache) Store(kind types.DeviceKind, address string, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kc := c.kind(kind)
	kc.byAddress[address] = entry
	if entry.LogicalID != "" {
		kc.byLogicalID[entry.LogicalID] = entry
	}
}

// Len is the number of cached addresses over all kinds.
func (c *AddressCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, kc := range c.kinds {
		n += len(kc.byAddress)
	}
	return n
}
