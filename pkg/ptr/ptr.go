package ptr

import (
	"net"
	"strings"
	"sync"
	"time"
)

// PtrManager handles PTR lookups with simple caching
type PtrManager struct {
	mu         sync.RWMutex
	cache      map[string]string
	lookupFunc func(ip string) ([]string, error)
	retries    int
	retryDelay time.Duration
}

// NewPtrManager creates a new PtrManager
func NewPtrManager() *PtrManager {
	return &PtrManager{
		cache:      make(map[string]string),
		lookupFunc: net.LookupAddr,
		retries:    3,
		retryDelay: 100 * time.Millisecond,
	}
}

// RequestPTR looks up the PTR for ip unless it is cached or already in
// progress. It blocks for the duration of the lookup.
func (pm *PtrManager) RequestPTR(ip string) {
	pm.mu.Lock()
	if _, exists := pm.cache[ip]; exists {
		pm.mu.Unlock()
		return
	}
	pm.cache[ip] = "" // Mark as "in progress" to avoid duplicate lookups
	pm.mu.Unlock()

	for attempt := range pm.retries {
		names, err := pm.lookupFunc(ip)
		if err == nil && len(names) > 0 {
			pm.mu.Lock()
			pm.cache[ip] = normalizePTR(names[0])
			pm.mu.Unlock()
			return
		}
		if attempt < pm.retries-1 {
			time.Sleep(pm.retryDelay)
		}
	}
}

// GetPTR retrieves the cached PTR result for the given IP address
// Returns the PTR and a boolean indicating if it was found
func (pm *PtrManager) GetPTR(ip string) (string, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	ptr, exists := pm.cache[ip]
	if ptr == "" {
		return ptr, false
	}
	return ptr, exists
}

// normalizePTR strips the trailing root dot
func normalizePTR(name string) string {
	return strings.TrimSuffix(name, ".")
}
