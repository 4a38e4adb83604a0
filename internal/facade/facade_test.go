package facade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clouddns-gateway/dns-gateway/internal/cache"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// newPowerDNSContext stands up an httptest PowerDNS fixture and returns a
// ServiceContext pointed at it. PowerDNS never requires a vendor domain ID
// (Capabilities().RequiresDomainID is false), so the resolver passes the
// zone name straight through and these tests can exercise the facade's
// cache/construction behavior without a zone-listing round trip.
func newPowerDNSContext(t *testing.T, zoneHandler http.HandlerFunc, credentialKey string) (types.ServiceContext, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		zoneHandler(w, r)
	}))
	t.Cleanup(server.Close)
	return types.ServiceContext{
		Kind:          types.PowerDNS,
		CredentialKey: credentialKey,
		Secrets:       map[string]string{"apiUrl": server.URL, "apiKey": "secret"},
	}, &hits
}

func writeZoneJSON(w http.ResponseWriter, name string, rrsets []map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"id": name + ".", "name": name + ".", "kind": "Native", "rrsets": rrsets})
}

// TestGetRecords_CachesAcrossCalls is scenario S5: a second GetRecords call
// with the same query is served from cache instead of hitting the network.
func TestGetRecords_CachesAcrossCalls(t *testing.T) {
	sc, hits := newPowerDNSContext(t, func(w http.ResponseWriter, r *http.Request) {
		writeZoneJSON(w, "example.com", []map[string]any{
			{"name": "www.example.com.", "type": "A", "ttl": 300, "records": []map[string]any{{"content": "1.1.1.1"}}},
		})
	}, "cred-1")

	f := New()
	ctx := context.Background()

	first, err := f.GetRecords(ctx, sc, "example.com", types.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, first.Items, 1)

	second, err := f.GetRecords(ctx, sc, "example.com", types.RecordQuery{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, int32(1), atomic.LoadInt32(hits), "second read should be served from cache, not the network")
}

// TestCreateRecord_InvalidatesRecordCache is the write half of scenario S5:
// a write invalidates the records scope so the next read goes back to the
// network and observes the new record.
func TestCreateRecord_InvalidatesRecordCache(t *testing.T) {
	zone := []map[string]any{
		{"name": "www.example.com.", "type": "A", "ttl": 300, "records": []map[string]any{{"content": "1.1.1.1"}}},
	}
	sc, hits := newPowerDNSContext(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeZoneJSON(w, "example.com", zone)
		case http.MethodPatch:
			zone = append(zone, map[string]any{"name": "api.example.com.", "type": "A", "ttl": 300, "records": []map[string]any{{"content": "2.2.2.2"}}})
			w.WriteHeader(http.StatusNoContent)
		}
	}, "cred-2")

	f := New()
	ctx := context.Background()

	first, err := f.GetRecords(ctx, sc, "example.com", types.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, first.Items, 1)

	_, err = f.CreateRecord(ctx, sc, "example.com", types.RecordParams{Name: "api.example.com", Type: "A", Value: "2.2.2.2", TTL: 300})
	require.NoError(t, err)

	second, err := f.GetRecords(ctx, sc, "example.com", types.RecordQuery{})
	require.NoError(t, err)
	assert.Len(t, second.Items, 2)

	assert.GreaterOrEqual(t, atomic.LoadInt32(hits), int32(3), "invalidation must force a fresh fetch after the write")
}

// TestSetRecordStatus_GatedOnCapability confirms a capability the provider
// DOES support (PowerDNS's SupportsStatus) reaches the network rather than
// being rejected client-side, the inverse of the Unsupported-gating path.
func TestSetRecordStatus_GatedOnCapability(t *testing.T) {
	var patched bool
	sc, _ := newPowerDNSContext(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeZoneJSON(w, "example.com", []map[string]any{
				{"name": "www.example.com.", "type": "A", "ttl": 300, "records": []map[string]any{{"content": "1.1.1.1"}}},
			})
		case http.MethodPatch:
			patched = true
			w.WriteHeader(http.StatusNoContent)
		}
	}, "cred-3")

	f := New()
	ok, err := f.SetRecordStatus(context.Background(), sc, "example.com", "www.example.com.|A|0", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, patched, "PowerDNS supports SetRecordStatus and the call should reach the network")
}

// TestCreateRecord_RejectsRemarkWhenUnsupported is the Unsupported half of
// scenario 6: a provider that does not support remarks (West.cn publishes
// RemarkUnsupported) rejects a RecordParams.Remark before any adapter call,
// purely off Capabilities — no network round trip happens at all.
func TestCreateRecord_RejectsRemarkWhenUnsupported(t *testing.T) {
	sc := types.ServiceContext{
		Kind:          types.WestCN,
		CredentialKey: "cred-westcn",
		Secrets:       map[string]string{"username": "user", "apiPassword": "pw"},
	}
	remark := "ignored"
	_, err := New().CreateRecord(context.Background(), sc, "example.com", types.RecordParams{Name: "www", Type: "A", Value: "1.1.1.1", Remark: &remark})
	require.Error(t, err)
	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.Unsupported, te.Kind)
}

// TestCheckAuth_NeverRaises confirms CheckAuth swallows every failure mode
// (including adapter-construction failure) into a plain bool.
func TestCheckAuth_NeverRaises(t *testing.T) {
	f := New()
	ok := f.CheckAuth(context.Background(), types.ServiceContext{Kind: types.PowerDNS, CredentialKey: "missing-creds", Secrets: map[string]string{}})
	assert.False(t, ok)
}

// TestGetMinTTL_FallsBackOnFailure confirms GetMinTTL never returns an
// error and falls back to 600 when adapter construction fails.
func TestGetMinTTL_FallsBackOnFailure(t *testing.T) {
	f := New()
	ttl := f.GetMinTTL(context.Background(), types.ServiceContext{Kind: types.PowerDNS, CredentialKey: "missing-creds", Secrets: map[string]string{}}, "example.com")
	assert.Equal(t, 600, ttl)
}

// TestAdapter_ConstructsOncePerCredential confirms that concurrent calls
// for ServiceContexts sharing a CredentialKey construct and reuse a single
// adapter/resolver pair.
func TestAdapter_ConstructsOncePerCredential(t *testing.T) {
	var constructions int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeZoneJSON(w, "example.com", nil)
	}))
	t.Cleanup(server.Close)

	f := New()
	sc := types.ServiceContext{Kind: types.PowerDNS, CredentialKey: "shared", Secrets: map[string]string{"apiUrl": server.URL, "apiKey": "secret"}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, _, err := f.adapter(sc)
			require.NoError(t, err)
			_ = a
			atomic.AddInt32(&constructions, 1)
		}()
	}
	wg.Wait()

	f.mu.RLock()
	adapterCount := len(f.adapters)
	f.mu.RUnlock()
	assert.Equal(t, 1, adapterCount, "one ServiceContext identity should build exactly one adapter instance")
}

// TestClearAllCache_ClearsEveryNamespace covers the coarse-grained flush
// path: after populating two distinct credential namespaces, ClearAllCache
// drops both, forcing a network round trip on the next read in each.
func TestClearAllCache_ClearsEveryNamespace(t *testing.T) {
	scA, hitsA := newPowerDNSContext(t, func(w http.ResponseWriter, r *http.Request) {
		writeZoneJSON(w, "example.com", nil)
	}, "tenant-a")
	scB, hitsB := newPowerDNSContext(t, func(w http.ResponseWriter, r *http.Request) {
		writeZoneJSON(w, "example.com", nil)
	}, "tenant-b")

	f := New()
	ctx := context.Background()

	_, err := f.GetRecords(ctx, scA, "example.com", types.RecordQuery{})
	require.NoError(t, err)
	_, err = f.GetRecords(ctx, scB, "example.com", types.RecordQuery{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hitsA))
	assert.Equal(t, int32(1), atomic.LoadInt32(hitsB))

	f.ClearAllCache()

	_, err = f.GetRecords(ctx, scA, "example.com", types.RecordQuery{})
	require.NoError(t, err)
	_, err = f.GetRecords(ctx, scB, "example.com", types.RecordQuery{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hitsA))
	assert.Equal(t, int32(2), atomic.LoadInt32(hitsB))
}

// TestCredentialKey_FoldsInAccountID confirms two ServiceContexts with
// identical Secrets but distinct AccountIDs (e.g. a shared service account
// used by two different tenant accounts) derive distinct fallback
// credential keys, per spec §3's (kind, secrets, accountId) fallback.
func TestCredentialKey_FoldsInAccountID(t *testing.T) {
	secrets := map[string]string{"apiUrl": "http://example.invalid", "apiKey": "shared-secret"}
	scA := types.ServiceContext{Kind: types.PowerDNS, Secrets: secrets, AccountID: "tenant-a"}
	scB := types.ServiceContext{Kind: types.PowerDNS, Secrets: secrets, AccountID: "tenant-b"}
	assert.NotEqual(t, credentialKey(scA), credentialKey(scB))

	scRepeat := types.ServiceContext{Kind: types.PowerDNS, Secrets: secrets, AccountID: "tenant-a"}
	assert.Equal(t, credentialKey(scA), credentialKey(scRepeat))
}

// TestClearCache_ScopedToNamespace confirms ClearCache(scope) only touches
// the calling ServiceContext's own namespace, not a different tenant's.
func TestClearCache_ScopedToNamespace(t *testing.T) {
	scA, hitsA := newPowerDNSContext(t, func(w http.ResponseWriter, r *http.Request) {
		writeZoneJSON(w, "example.com", nil)
	}, "tenant-c")
	scB, hitsB := newPowerDNSContext(t, func(w http.ResponseWriter, r *http.Request) {
		writeZoneJSON(w, "example.com", nil)
	}, "tenant-d")

	f := New()
	ctx := context.Background()

	_, err := f.GetRecords(ctx, scA, "example.com", types.RecordQuery{})
	require.NoError(t, err)
	_, err = f.GetRecords(ctx, scB, "example.com", types.RecordQuery{})
	require.NoError(t, err)

	f.ClearCache(ctx, scA, cache.ScopeRecords, "")

	_, err = f.GetRecords(ctx, scA, "example.com", types.RecordQuery{})
	require.NoError(t, err)
	_, err = f.GetRecords(ctx, scB, "example.com", types.RecordQuery{})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(hitsA), "tenant A's cache was cleared, so its second read hits the network")
	assert.Equal(t, int32(1), atomic.LoadInt32(hitsB), "tenant B's cache must be untouched by tenant A's ClearCache call")
}
