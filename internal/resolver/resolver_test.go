package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// fakeProvider is a minimal providers.Provider stub for resolver tests; only
// GetZones and Capabilities are ever exercised by Resolve.
type fakeProvider struct {
	providers.Provider
	caps      types.Capabilities
	zones     []types.Zone
	pageSize  int
	pageCalls []int
}

func (f *fakeProvider) Capabilities() types.Capabilities { return f.caps }

func (f *fakeProvider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	f.pageCalls = append(f.pageCalls, page)
	start := (page - 1) * pageSize
	if start >= len(f.zones) {
		return types.ZoneList{Items: nil, Total: len(f.zones)}, nil
	}
	end := start + pageSize
	if end > len(f.zones) {
		end = len(f.zones)
	}
	return types.ZoneList{Items: f.zones[start:end], Total: len(f.zones)}, nil
}

func TestResolve_PassthroughWhenNotRequiringDomainID(t *testing.T) {
	r := New()
	p := &fakeProvider{caps: types.Capabilities{RequiresDomainID: false}}
	id, err := r.Resolve(context.Background(), p, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", id)
	assert.Empty(t, p.pageCalls)
}

func TestResolve_PassthroughWhenNumeric(t *testing.T) {
	r := New()
	p := &fakeProvider{caps: types.Capabilities{RequiresDomainID: true}}
	id, err := r.Resolve(context.Background(), p, "123456")
	require.NoError(t, err)
	assert.Equal(t, "123456", id)
	assert.Empty(t, p.pageCalls)
}

func TestResolve_ScansAndFindsByName(t *testing.T) {
	r := New()
	p := &fakeProvider{
		caps: types.Capabilities{RequiresDomainID: true},
		zones: []types.Zone{
			{ID: "z1", Name: "one.com"},
			{ID: "z2", Name: "Example.COM"},
		},
	}
	id, err := r.Resolve(context.Background(), p, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "z2", id)

	name, ok := r.NameFor("z2")
	assert.True(t, ok)
	assert.Equal(t, "Example.COM", name)
}

func TestResolve_CachesAcrossCalls(t *testing.T) {
	r := New()
	p := &fakeProvider{
		caps:  types.Capabilities{RequiresDomainID: true},
		zones: []types.Zone{{ID: "z1", Name: "example.com"}},
	}
	_, err := r.Resolve(context.Background(), p, "example.com")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), p, "EXAMPLE.COM")
	require.NoError(t, err)
	assert.Len(t, p.pageCalls, 1)
}

// TestResolve_IdempotentOnNonNumericID is testable property 8: feeding an
// already-resolved, non-numeric opaque zone ID (as Cloudflare, Huawei,
// JDCloud, and DNSLA all hand back) straight back into Resolve must return
// it unchanged instead of mistaking it for a zone name and scanning for it.
func TestResolve_IdempotentOnNonNumericID(t *testing.T) {
	r := New()
	p := &fakeProvider{
		caps:  types.Capabilities{RequiresDomainID: true},
		zones: []types.Zone{{ID: "023e9f1c-opaque-id", Name: "example.com"}},
	}
	id, err := r.Resolve(context.Background(), p, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "023e9f1c-opaque-id", id)
	assert.Len(t, p.pageCalls, 1)

	again, err := r.Resolve(context.Background(), p, "023e9f1c-opaque-id")
	require.NoError(t, err)
	assert.Equal(t, "023e9f1c-opaque-id", again)
	assert.Len(t, p.pageCalls, 1, "re-resolving a known zone ID must not trigger another page scan")
}

func TestResolve_NotFoundReturnsZoneNotFound(t *testing.T) {
	r := New()
	p := &fakeProvider{
		caps:  types.Capabilities{RequiresDomainID: true},
		zones: []types.Zone{{ID: "z1", Name: "other.com"}},
	}
	_, err := r.Resolve(context.Background(), p, "missing.com")
	require.Error(t, err)
	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ZoneNotFound, te.Kind)
}

func TestResolve_PaginatesUntilShortPage(t *testing.T) {
	r := New()
	zones := make([]types.Zone, scanPageSize+5)
	for i := range zones {
		zones[i] = types.Zone{ID: fmt.Sprintf("z%d", i), Name: fmt.Sprintf("zone%d.com", i)}
	}
	zones[scanPageSize+2].Name = "target.com"
	p := &fakeProvider{caps: types.Capabilities{RequiresDomainID: true}, zones: zones}

	id, err := r.Resolve(context.Background(), p, "target.com")
	require.NoError(t, err)
	assert.Equal(t, zones[scanPageSize+2].ID, id)
	assert.Equal(t, []int{1, 2}, p.pageCalls)
}
