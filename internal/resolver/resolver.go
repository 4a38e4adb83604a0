// Package resolver is the zone resolver (C7): it converts a submitted
// zone-name into a vendor's opaque zone-ID for adapters that require one,
// via a paginated scan, and caches the mapping per adapter instance.
// See spec §4.7.
package resolver

import (
	"context"
	"strings"
	"sync"

	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const (
	scanPageSize = 100
	maxPages     = 200
)

// Resolver caches the id<->name mapping for one adapter instance. It is
// not shared across adapter instances — a fresh Resolver is created
// whenever the facade builds an adapter for a ServiceContext, and is
// reused together with that adapter.
type Resolver struct {
	mu       sync.RWMutex
	idByName map[string]string
	nameByID map[string]string
}

// New returns an empty Resolver.
func New() *Resolver {
	return &Resolver{
		idByName: map[string]string{},
		nameByID: map[string]string{},
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Resolve returns the vendor zone-ID for input. Inputs that are purely
// numeric, or whose adapter does not require a domain ID, pass through
// unchanged. A caller re-submitting an already-resolved, non-numeric zone
// ID (Cloudflare, Huawei, JDCloud, DNSLA all hand back opaque non-numeric
// IDs) is also passed through once that ID has been seen before, rather
// than falling through to a page scan a name-keyed cache can't satisfy.
func (r *Resolver) Resolve(ctx context.Context, adapter providers.Provider, input string) (string, error) {
	if !adapter.Capabilities().RequiresDomainID || isAllDigits(input) {
		return input, nil
	}

	lowered := strings.ToLower(input)

	r.mu.RLock()
	if id, ok := r.idByName[lowered]; ok {
		r.mu.RUnlock()
		return id, nil
	}
	if _, ok := r.nameByID[input]; ok {
		r.mu.RUnlock()
		return input, nil
	}
	r.mu.RUnlock()

	for page := 1; page <= maxPages; page++ {
		list, err := adapter.GetZones(ctx, page, scanPageSize, "")
		if err != nil {
			return "", err
		}
		for _, z := range list.Items {
			r.remember(z.ID, z.Name)
			if strings.ToLower(z.Name) == lowered {
				return z.ID, nil
			}
		}
		if len(list.Items) < scanPageSize {
			break
		}
	}
	return "", &types.Error{Kind: types.ZoneNotFound, Message: "zone not found: " + input}
}

func (r *Resolver) remember(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idByName[strings.ToLower(name)] = id
	r.nameByID[id] = name
}

// NameFor returns the cached zone name for id, when known.
func (r *Resolver) NameFor(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.nameByID[id]
	return name, ok
}
