// Package facade is the unified DNS facade (C9): the single entry point
// upper layers call. It owns the process-wide adapter-instance map, the
// namespaced cache, and a resolver per adapter instance; every operation
// normalizes its error through galerr and every read consults the cache
// before touching the network. See spec §4.9.
package facade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/clouddns-gateway/dns-gateway/internal/cache"
	"github.com/clouddns-gateway/dns-gateway/internal/galerr"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/registry"
	"github.com/clouddns-gateway/dns-gateway/internal/resolver"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// Facade is process-wide: one instance should be constructed at startup
// and shared across every request.
type Facade struct {
	cache *cache.Cache

	mu        sync.RWMutex
	adapters  map[string]providers.Provider
	resolvers map[string]*resolver.Resolver

	build singleflight.Group
}

// New returns a Facade with an empty cache and adapter map.
func New() *Facade {
	return &Facade{
		cache:     cache.New(),
		adapters:  map[string]providers.Provider{},
		resolvers: map[string]*resolver.Resolver{},
	}
}

func credentialKey(sc types.ServiceContext) string {
	if sc.CredentialKey != "" {
		return sc.CredentialKey
	}
	secrets := sc.Secrets
	if secrets == nil {
		secrets = map[string]string{}
	}
	// (secrets, accountId) together identify a credential: two tenants can
	// share the same raw secrets (a shared service account) while still
	// needing distinct adapter instances and cache namespaces per account.
	raw, _ := json.Marshal(struct {
		Secrets   map[string]string `json:"secrets"`
		AccountID string            `json:"accountId"`
	}{Secrets: secrets, AccountID: sc.AccountID}) // encoding/json sorts map keys, so this is stable
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}

func instanceKey(sc types.ServiceContext) string {
	return string(sc.Kind) + ":" + credentialKey(sc)
}

func (f *Facade) namespace(sc types.ServiceContext) string {
	return cache.Namespace(sc.Kind, credentialKey(sc))
}

// adapter returns the Provider for sc, constructing (and single-flighting
// the construction of) a fresh one when this is the first call for this
// ServiceContext's credential identity.
func (f *Facade) adapter(sc types.ServiceContext) (providers.Provider, *resolver.Resolver, error) {
	key := instanceKey(sc)

	f.mu.RLock()
	if a, ok := f.adapters[key]; ok {
		r := f.resolvers[key]
		f.mu.RUnlock()
		return a, r, nil
	}
	f.mu.RUnlock()

	v, err, _ := f.build.Do(key, func() (any, error) {
		f.mu.RLock()
		if a, ok := f.adapters[key]; ok {
			f.mu.RUnlock()
			return a, nil
		}
		f.mu.RUnlock()

		a, err := registry.Construct(sc.Kind, sc.Secrets)
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{
			"provider":   sc.Kind,
			"credential": credentialKey(sc),
		}).Debug("constructed provider adapter")
		r := resolver.New()
		f.mu.Lock()
		f.adapters[key] = a
		f.resolvers[key] = r
		f.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return v.(providers.Provider), f.resolvers[key], nil
}

func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	te := galerr.Normalize(err)
	log.WithFields(log.Fields{
		"kind":       te.Kind,
		"vendorCode": te.VendorCode,
		"httpStatus": te.HTTPStatus,
		"retriable":  te.Retriable,
	}).Debug(te.Message)
	return te
}

// invalidateRecords drops the record-scoped cache slice for sc after a
// committed write, so the next read refetches upstream (spec §5).
func (f *Facade) invalidateRecords(sc types.ServiceContext) {
	f.cache.Invalidate(f.namespace(sc), cache.ScopeRecords)
	log.WithFields(log.Fields{
		"provider":   sc.Kind,
		"credential": credentialKey(sc),
	}).Debug("invalidated record cache after write")
}

// CheckAuth never raises; any error (including one from adapter
// construction) is reported as false.
func (f *Facade) CheckAuth(ctx context.Context, sc types.ServiceContext) bool {
	a, _, err := f.adapter(sc)
	if err != nil {
		return false
	}
	return a.CheckAuth(ctx)
}

func (f *Facade) GetZones(ctx context.Context, sc types.ServiceContext, page, pageSize int, keyword string) (types.ZoneList, error) {
	a, _, err := f.adapter(sc)
	if err != nil {
		return types.ZoneList{}, normalizeError(err)
	}
	namespace := f.namespace(sc)
	if keyword == "" {
		v, err := f.cache.GetOrLoad(namespace, cache.ZonesKey(namespace), a.Capabilities().DomainCacheTTL, func() (any, error) {
			return a.GetZones(ctx, page, pageSize, keyword)
		})
		if err != nil {
			return types.ZoneList{}, normalizeError(err)
		}
		return v.(types.ZoneList), nil
	}
	out, err := a.GetZones(ctx, page, pageSize, keyword)
	if err != nil {
		return types.ZoneList{}, normalizeError(err)
	}
	return out, nil
}

func (f *Facade) GetZone(ctx context.Context, sc types.ServiceContext, zoneIDOrName string) (types.Zone, error) {
	a, r, err := f.adapter(sc)
	if err != nil {
		return types.Zone{}, normalizeError(err)
	}
	zoneID, err := r.Resolve(ctx, a, zoneIDOrName)
	if err != nil {
		return types.Zone{}, normalizeError(err)
	}
	z, err := a.GetZone(ctx, zoneID)
	if err != nil {
		return types.Zone{}, normalizeError(err)
	}
	return z, nil
}

func (f *Facade) AddZone(ctx context.Context, sc types.ServiceContext, name string) (types.Zone, error) {
	a, _, err := f.adapter(sc)
	if err != nil {
		return types.Zone{}, normalizeError(err)
	}
	z, err := a.AddZone(ctx, name)
	if err != nil {
		return types.Zone{}, normalizeError(err)
	}
	f.cache.Invalidate(f.namespace(sc), cache.ScopeZones)
	return z, nil
}

func (f *Facade) GetRecords(ctx context.Context, sc types.ServiceContext, zoneIDOrName string, q types.RecordQuery) (types.RecordList, error) {
	a, r, err := f.adapter(sc)
	if err != nil {
		return types.RecordList{}, normalizeError(err)
	}
	zoneID, err := r.Resolve(ctx, a, zoneIDOrName)
	if err != nil {
		return types.RecordList{}, normalizeError(err)
	}
	namespace := f.namespace(sc)
	v, err := f.cache.GetOrLoad(namespace, cache.RecordsKey(namespace, zoneID, q), a.Capabilities().RecordCacheTTL, func() (any, error) {
		return a.GetRecords(ctx, zoneID, q)
	})
	if err != nil {
		return types.RecordList{}, normalizeError(err)
	}
	return v.(types.RecordList), nil
}

func (f *Facade) GetRecord(ctx context.Context, sc types.ServiceContext, zoneIDOrName, recordID string) (types.DnsRecord, error) {
	a, r, err := f.adapter(sc)
	if err != nil {
		return types.DnsRecord{}, normalizeError(err)
	}
	zoneID, err := r.Resolve(ctx, a, zoneIDOrName)
	if err != nil {
		return types.DnsRecord{}, normalizeError(err)
	}
	rec, err := a.GetRecord(ctx, zoneID, recordID)
	if err != nil {
		return types.DnsRecord{}, normalizeError(err)
	}
	return rec, nil
}

func (f *Facade) CreateRecord(ctx context.Context, sc types.ServiceContext, zoneIDOrName string, params types.RecordParams) (types.DnsRecord, error) {
	a, r, err := f.adapter(sc)
	if err != nil {
		return types.DnsRecord{}, normalizeError(err)
	}
	if params.Remark != nil && !a.Capabilities().SupportsRemark {
		return types.DnsRecord{}, normalizeError(&types.Error{Kind: types.Unsupported, Message: "provider does not support record remarks"})
	}
	zoneID, err := r.Resolve(ctx, a, zoneIDOrName)
	if err != nil {
		return types.DnsRecord{}, normalizeError(err)
	}
	rec, err := a.CreateRecord(ctx, zoneID, params)
	if err != nil {
		return types.DnsRecord{}, normalizeError(err)
	}
	f.invalidateRecords(sc)
	return rec, nil
}

func (f *Facade) UpdateRecord(ctx context.Context, sc types.ServiceContext, zoneIDOrName, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	a, r, err := f.adapter(sc)
	if err != nil {
		return types.DnsRecord{}, normalizeError(err)
	}
	if params.Remark != nil && !a.Capabilities().SupportsRemark {
		return types.DnsRecord{}, normalizeError(&types.Error{Kind: types.Unsupported, Message: "provider does not support record remarks"})
	}
	zoneID, err := r.Resolve(ctx, a, zoneIDOrName)
	if err != nil {
		return types.DnsRecord{}, normalizeError(err)
	}
	rec, err := a.UpdateRecord(ctx, zoneID, recordID, params)
	if err != nil {
		return types.DnsRecord{}, normalizeError(err)
	}
	f.invalidateRecords(sc)
	return rec, nil
}

func (f *Facade) DeleteRecord(ctx context.Context, sc types.ServiceContext, zoneIDOrName, recordID string) (bool, error) {
	a, r, err := f.adapter(sc)
	if err != nil {
		return false, normalizeError(err)
	}
	zoneID, err := r.Resolve(ctx, a, zoneIDOrName)
	if err != nil {
		return false, normalizeError(err)
	}
	ok, err := a.DeleteRecord(ctx, zoneID, recordID)
	if err != nil {
		return false, normalizeError(err)
	}
	f.invalidateRecords(sc)
	return ok, nil
}

// SetRecordStatus is gated on Capabilities().SupportsStatus without any
// upstream call, per spec §8 scenario 6.
func (f *Facade) SetRecordStatus(ctx context.Context, sc types.ServiceContext, zoneIDOrName, recordID string, enabled bool) (bool, error) {
	a, r, err := f.adapter(sc)
	if err != nil {
		return false, normalizeError(err)
	}
	if !a.Capabilities().SupportsStatus {
		return false, normalizeError(&types.Error{Kind: types.Unsupported, Message: "provider does not support enabling/disabling records"})
	}
	zoneID, err := r.Resolve(ctx, a, zoneIDOrName)
	if err != nil {
		return false, normalizeError(err)
	}
	ok, err := a.SetRecordStatus(ctx, zoneID, recordID, enabled)
	if err != nil {
		return false, normalizeError(err)
	}
	f.invalidateRecords(sc)
	return ok, nil
}

func (f *Facade) GetLines(ctx context.Context, sc types.ServiceContext, zoneIDOrName string) (types.LineList, error) {
	a, r, err := f.adapter(sc)
	if err != nil {
		return types.LineList{}, normalizeError(err)
	}
	zoneID, err := r.Resolve(ctx, a, zoneIDOrName)
	if err != nil {
		return types.LineList{}, normalizeError(err)
	}
	namespace := f.namespace(sc)
	v, err := f.cache.GetOrLoad(namespace, cache.LinesKey(namespace, zoneID), a.Capabilities().DomainCacheTTL, func() (any, error) {
		return a.GetLines(ctx, zoneID)
	})
	if err != nil {
		return types.LineList{}, normalizeError(err)
	}
	return v.(types.LineList), nil
}

// GetMinTTL never raises; any failure (construction, resolution, or
// adapter) falls back to 600, the common vendor default.
func (f *Facade) GetMinTTL(ctx context.Context, sc types.ServiceContext, zoneIDOrName string) int {
	a, r, err := f.adapter(sc)
	if err != nil {
		return 600
	}
	zoneID, err := r.Resolve(ctx, a, zoneIDOrName)
	if err != nil {
		return 600
	}
	namespace := f.namespace(sc)
	v, err := f.cache.GetOrLoad(namespace, cache.MinTTLKey(namespace, zoneID), a.Capabilities().DomainCacheTTL, func() (any, error) {
		return a.GetMinTTL(ctx, zoneID), nil
	})
	if err != nil {
		return 600
	}
	return v.(int)
}

// ClearCache invalidates scope within sc's namespace. zoneID is currently
// unused by the coarse-grained cache.Invalidate but accepted for a
// future per-zone-scoped flush.
func (f *Facade) ClearCache(ctx context.Context, sc types.ServiceContext, scope cache.Scope, zoneID string) {
	f.cache.Invalidate(f.namespace(sc), scope)
}

// ClearAllCache drops every namespace's entries by invalidating each one
// individually — the cache has no single global wipe primitive since
// namespaces are opaque hashes, not an enumerable small set ahead of time.
func (f *Facade) ClearAllCache() {
	f.mu.RLock()
	namespaces := make([]string, 0, len(f.adapters))
	for key := range f.adapters {
		// instanceKey and cache.Namespace both format as "<kind>:<credKey>".
		namespaces = append(namespaces, key)
	}
	f.mu.RUnlock()
	sort.Strings(namespaces)
	for _, n := range namespaces {
		f.cache.Invalidate(n, cache.ScopeAll)
	}
}

// Capabilities exposes the registry's published catalog (spec §6) so
// upper layers need only import the facade package.
func Capabilities() []types.Capabilities { return registry.AllCapabilities() }
