package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

func TestNamespace(t *testing.T) {
	assert.Equal(t, "cloudflare:abc123", Namespace(types.Cloudflare, "abc123"))
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	q1 := types.RecordQuery{Type: "A", Page: 1}
	q2 := types.RecordQuery{Type: "A", Page: 1}
	q3 := types.RecordQuery{Type: "AAAA", Page: 1}
	assert.Equal(t, Fingerprint(q1), Fingerprint(q2))
	assert.NotEqual(t, Fingerprint(q1), Fingerprint(q3))
	assert.Len(t, Fingerprint(q1), 10)
}

func TestGetOrLoad_CachesResult(t *testing.T) {
	c := New()
	var calls int32
	load := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	v1, err := c.GetOrLoad("ns", "k1", 60, load)
	require.NoError(t, err)
	assert.Equal(t, "value", v1)

	v2, err := c.GetOrLoad("ns", "k1", 60, load)
	require.NoError(t, err)
	assert.Equal(t, "value", v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrLoad_SingleFlightsConcurrentCallers(t *testing.T) {
	c := New()
	var calls int32
	start := make(chan struct{})
	load := func() (any, error) {
		<-start
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad("ns", "shared-key", 60, load)
			assert.NoError(t, err)
			assert.Equal(t, "value", v)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrLoad_PropagatesLoadError(t *testing.T) {
	c := New()
	_, err := c.GetOrLoad("ns", "k", 60, func() (any, error) {
		return nil, assert.AnError
	})
	assert.Error(t, err)
	assert.Empty(t, c.Keys("ns"))
}

func TestInvalidate_ScopedFlush(t *testing.T) {
	c := New()
	ns := "ns1"
	_, _ = c.GetOrLoad(ns, ZonesKey(ns), 60, func() (any, error) { return "zones", nil })
	_, _ = c.GetOrLoad(ns, RecordsKey(ns, "zone1", types.RecordQuery{}), 60, func() (any, error) { return "records", nil })
	_, _ = c.GetOrLoad(ns, LinesKey(ns, "zone1"), 60, func() (any, error) { return "lines", nil })

	assert.Len(t, c.Keys(ns), 3)

	c.Invalidate(ns, ScopeZones)
	keys := c.Keys(ns)
	assert.Len(t, keys, 2)
	for _, k := range keys {
		assert.NotContains(t, k, "|global|zones")
	}

	c.Invalidate(ns, ScopeRecords)
	keys = c.Keys(ns)
	assert.Len(t, keys, 1)

	c.Invalidate(ns, ScopeAll)
	assert.Empty(t, c.Keys(ns))
}

func TestInvalidate_DoesNotAffectOtherNamespaces(t *testing.T) {
	c := New()
	_, _ = c.GetOrLoad("ns1", ZonesKey("ns1"), 60, func() (any, error) { return "a", nil })
	_, _ = c.GetOrLoad("ns2", ZonesKey("ns2"), 60, func() (any, error) { return "b", nil })

	c.Invalidate("ns1", ScopeAll)

	assert.Empty(t, c.Keys("ns1"))
	assert.Len(t, c.Keys("ns2"), 1)
}

func TestInvalidate_UnknownNamespaceIsNoop(t *testing.T) {
	c := New()
	assert.NotPanics(t, func() { c.Invalidate("missing", ScopeAll) })
}
