// Package cache is the namespaced cache (C8): a two-level, in-memory,
// concurrency-safe cache of zones, records, lines, and min-TTL results,
// keyed by (providerKind, credentialKey, scope, fingerprint) with scoped
// invalidation and single-flighted reads. See spec §4.8.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// Scope selects which slice of a namespace an invalidation touches.
type Scope string

const (
	ScopeZones   Scope = "zones"
	ScopeRecords Scope = "records"
	ScopeAll     Scope = "all"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is safe for concurrent use. One Cache instance is shared across
// every ServiceContext the facade serves; namespaces keep tenants apart.
type Cache struct {
	mu    sync.RWMutex
	store map[string]entry
	// index maps a namespace to the set of live keys under it, so a
	// scoped flush is O(k) instead of a full table scan.
	index map[string]map[string]struct{}
	group singleflight.Group
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		store: map[string]entry{},
		index: map[string]map[string]struct{}{},
	}
}

// Namespace derives the stable namespace id for a provider kind plus the
// credential identity (the CredentialKey when the context carries one,
// else the facade's hash of the secrets together with the AccountID).
func Namespace(kind types.ProviderKind, credentialKey string) string {
	return string(kind) + ":" + credentialKey
}

// Fingerprint returns a stable 10-character hash of q's normalized JSON
// form, used to key record-list cache entries.
func Fingerprint(q types.RecordQuery) string {
	raw, _ := json.Marshal(q)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:10]
}

func globalKey(namespace, kind string) string { return namespace + "|global|" + kind }
func zoneKey(namespace, zoneID, kind string) string {
	return namespace + "|zone:" + zoneID + "|" + kind
}
func recordsKey(namespace, zoneID, fingerprint string) string {
	return namespace + "|zone:" + zoneID + "|records:" + fingerprint
}

func (c *Cache) remember(namespace, key string, value any, ttlSeconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = entry{value: value, expiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second)}
	if c.index[namespace] == nil {
		c.index[namespace] = map[string]struct{}{}
	}
	c.index[namespace][key] = struct{}{}
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// GetOrLoad reads key from the cache, or single-flights load() when
// absent/expired: concurrent callers for the same key block on the first
// caller's in-flight load instead of each issuing their own.
func (c *Cache) GetOrLoad(namespace, key string, ttlSeconds int, load func() (any, error)) (any, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.remember(namespace, key, v, ttlSeconds)
		return v, nil
	})
	return v, err
}

// ZonesKey/RecordsKey/LinesKey/MinTTLKey are the canonical cache keys for
// each read operation the facade consults.
func ZonesKey(namespace string) string { return globalKey(namespace, "zones") }
func RecordsKey(namespace, zoneID string, q types.RecordQuery) string {
	return recordsKey(namespace, zoneID, Fingerprint(q))
}
func LinesKey(namespace, zoneID string) string { return zoneKey(namespace, zoneID, "lines") }
func MinTTLKey(namespace, zoneID string) string { return zoneKey(namespace, zoneID, "minttl") }

// Invalidate clears the given scope within namespace: ScopeAll removes
// every entry, ScopeZones removes only the zone list, and ScopeRecords
// removes only record-list entries. Zone-scoped lines/min-ttl entries are
// cleared only by ScopeAll (spec §4.8).
func (c *Cache) Invalidate(namespace string, scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, ok := c.index[namespace]
	if !ok {
		return
	}
	var toDelete []string
	for key := range keys {
		switch scope {
		case ScopeAll:
			toDelete = append(toDelete, key)
		case ScopeZones:
			if containsSegment(key, "|global|zones") {
				toDelete = append(toDelete, key)
			}
		case ScopeRecords:
			if containsSegment(key, "|records:") {
				toDelete = append(toDelete, key)
			}
		}
	}
	for _, k := range toDelete {
		delete(c.store, k)
		delete(keys, k)
	}
}

func containsSegment(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// Keys returns the live keys under namespace, sorted, for diagnostics.
func (c *Cache) Keys(namespace string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys, ok := c.index[namespace]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
