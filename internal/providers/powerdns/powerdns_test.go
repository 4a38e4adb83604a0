package powerdns

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// fixtureZone mimics a PowerDNS zone with one www/A RRSet holding two
// members, the shape UpdateRecord's identity-change path must handle.
func fixtureZone() pdnsZone {
	return pdnsZone{
		ID:   "example.com.",
		Name: "example.com.",
		Kind: "Native",
		RRSets: []pdnsRRSet{
			{
				Name: "www.example.com.", Type: "A", TTL: 600,
				Records: []pdnsRecord{{Content: "1.1.1.1"}, {Content: "2.2.2.2"}},
			},
		},
	}
}

func newTestProvider(t *testing.T, mux *http.ServeMux) providers.Provider {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	p, err := New(map[string]string{"apiUrl": server.URL, "apiKey": "secret"})
	require.NoError(t, err)
	return p
}

// TestUpdateRecord_IdentityChange is scenario S3: changing a record's
// name/type sends a DELETE-or-reduced-REPLACE for the old RRset plus a
// REPLACE appending to (or creating) the new one, in a single PATCH.
func TestUpdateRecord_IdentityChange(t *testing.T) {
	zone := fixtureZone()
	var patchBody struct {
		RRSets []pdnsRRSet `json:"rrsets"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/zones/example.com.", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeZone(w, zone)
		case http.MethodPatch:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patchBody))
			applyPatch(&zone, patchBody.RRSets)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	})

	p := newTestProvider(t, mux)

	oldID := composeID("www.example.com.", "A", 0)
	rec, err := p.UpdateRecord(context.Background(), "example.com", oldID, types.RecordParams{
		Name: "api.example.com", Type: "CNAME", Value: "target.example.com", TTL: 300,
	})
	require.NoError(t, err)

	require.Len(t, patchBody.RRSets, 2)
	assert.Equal(t, "www.example.com.", patchBody.RRSets[0].Name)
	assert.Equal(t, "A", patchBody.RRSets[0].Type)
	assert.Equal(t, "REPLACE", patchBody.RRSets[0].ChangeType)
	assert.Len(t, patchBody.RRSets[0].Records, 1)
	assert.Equal(t, "2.2.2.2", patchBody.RRSets[0].Records[0].Content)

	assert.Equal(t, "api.example.com.", patchBody.RRSets[1].Name)
	assert.Equal(t, "CNAME", patchBody.RRSets[1].Type)
	assert.Equal(t, "REPLACE", patchBody.RRSets[1].ChangeType)

	assert.Equal(t, "api.example.com", rec.Name)
	assert.Equal(t, "target.example.com", rec.Value)
}

// TestUpdateRecord_IdentityChange_DeletesRRSetWhenLastMember covers the
// DELETE branch of scenario S3: removing the only member of the old RRset
// issues changetype DELETE instead of a reduced REPLACE.
func TestUpdateRecord_IdentityChange_DeletesRRSetWhenLastMember(t *testing.T) {
	zone := pdnsZone{
		ID: "example.com.", Name: "example.com.",
		RRSets: []pdnsRRSet{
			{Name: "solo.example.com.", Type: "A", TTL: 600, Records: []pdnsRecord{{Content: "9.9.9.9"}}},
		},
	}
	var patchBody struct {
		RRSets []pdnsRRSet `json:"rrsets"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/zones/example.com.", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeZone(w, zone)
		case http.MethodPatch:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patchBody))
			applyPatch(&zone, patchBody.RRSets)
			w.WriteHeader(http.StatusNoContent)
		}
	})

	p := newTestProvider(t, mux)
	oldID := composeID("solo.example.com.", "A", 0)
	_, err := p.UpdateRecord(context.Background(), "example.com", oldID, types.RecordParams{
		Name: "other.example.com", Type: "A", Value: "8.8.8.8", TTL: 300,
	})
	require.NoError(t, err)

	require.Len(t, patchBody.RRSets, 2)
	assert.Equal(t, "DELETE", patchBody.RRSets[0].ChangeType)
	assert.Empty(t, patchBody.RRSets[0].Records)
}

func TestGetRecords_ExpandsTXTAndMX(t *testing.T) {
	zone := pdnsZone{
		ID: "example.com.", Name: "example.com.",
		RRSets: []pdnsRRSet{
			{Name: "example.com.", Type: "TXT", TTL: 300, Records: []pdnsRecord{{Content: `"v=spf1 -all"`}}},
			{Name: "example.com.", Type: "MX", TTL: 300, Records: []pdnsRecord{{Content: "10 mail.example.com."}}},
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/zones/example.com.", func(w http.ResponseWriter, r *http.Request) {
		writeZone(w, zone)
	})
	p := newTestProvider(t, mux)

	list, err := p.GetRecords(context.Background(), "example.com", types.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)

	txt := list.Items[0]
	assert.Equal(t, "v=spf1 -all", txt.Value)

	mx := list.Items[1]
	assert.Equal(t, "mail.example.com", mx.Value)
	require.NotNil(t, mx.Priority)
	assert.Equal(t, 10, *mx.Priority)
}

func writeZone(w http.ResponseWriter, z pdnsZone) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(z)
}

// applyPatch is a tiny in-memory stand-in for PowerDNS's PATCH semantics,
// enough to let UpdateRecord's re-fetch-via-GetRecord complete against the
// fixture server.
func applyPatch(zone *pdnsZone, rrsets []pdnsRRSet) {
	for _, patch := range rrsets {
		idx := -1
		for i, existing := range zone.RRSets {
			if existing.Name == patch.Name && existing.Type == patch.Type {
				idx = i
				break
			}
		}
		if patch.ChangeType == "DELETE" {
			if idx >= 0 {
				zone.RRSets = append(zone.RRSets[:idx], zone.RRSets[idx+1:]...)
			}
			continue
		}
		replacement := pdnsRRSet{Name: patch.Name, Type: patch.Type, TTL: patch.TTL, Records: patch.Records, Comments: patch.Comments}
		if idx >= 0 {
			zone.RRSets[idx] = replacement
		} else {
			zone.RRSets = append(zone.RRSets, replacement)
		}
	}
}
