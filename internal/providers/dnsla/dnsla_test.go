package dnsla

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

type redirectingTransport struct {
	target *url.URL
}

func (t redirectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	req.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	target, err := url.Parse(server.URL)
	require.NoError(t, err)

	return &Provider{
		base:      baseprovider.New(Capabilities()),
		exec:      transport.NewExecutor(&http.Client{Transport: redirectingTransport{target: target}}),
		signer:    signing.BasicSigner{APIID: "id", APISecret: "secret"},
		zoneNames: map[string]string{"z1": "example.com"},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// TestGetRecords_NumericTypeAndDominantSpellings covers rule 2's numeric
// type IDs plus the dominant/domaint aliasing: both spellings mark an
// explicit redirect, and URL-forward records resolve their canonical
// type from that flag rather than the type table.
func TestGetRecords_NumericTypeAndDominantSpellings(t *testing.T) {
	var auth string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, map[string]any{
			"code": 0,
			"data": map[string]any{
				"records": []map[string]any{
					{"id": "r1", "host": "www", "type": 1, "value": "1.2.3.4", "ttl": 600, "state": 1},
					{"id": "r2", "host": "go", "type": 256, "value": "https://example.org", "ttl": 600, "state": 1, "dominant": true},
					{"id": "r3", "host": "frame", "type": 256, "value": "https://example.org", "ttl": 600, "state": 1, "domaint": false},
				},
				"total": 3,
			},
		})
	})

	list, err := p.GetRecords(context.Background(), "z1", types.RecordQuery{})
	require.NoError(t, err)
	assert.Equal(t, "Basic aWQ6c2VjcmV0", auth)
	require.Len(t, list.Items, 3)
	assert.Equal(t, "A", list.Items[0].Type)
	assert.Equal(t, "www.example.com", list.Items[0].Name)
	assert.Equal(t, "REDIRECT_URL", list.Items[1].Type)
	assert.Equal(t, "FORWARD_URL", list.Items[2].Type)
}

func TestCreateRecord_RedirectSendsDominantFlag(t *testing.T) {
	var createBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/record":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createBody))
			writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"id": "r9"}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/record":
			writeJSON(w, map[string]any{"code": 0, "data": map[string]any{
				"id": "r9", "host": "go", "type": 256, "value": "https://example.org", "ttl": 600, "state": 1, "dominant": true,
			}})
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	rec, err := p.CreateRecord(context.Background(), "z1", types.RecordParams{
		Name: "go.example.com", Type: "REDIRECT_URL", Value: "https://example.org", TTL: 600,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(256), createBody["type"])
	assert.Equal(t, true, createBody["dominant"])
	assert.Equal(t, "REDIRECT_URL", rec.Type)
	assert.Equal(t, "go.example.com", rec.Name)
}

func TestCall_AuthFailureMapsKind(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"code": 40100, "message": "invalid credentials"})
	})
	_, err := p.GetZones(context.Background(), 1, 10, "")
	require.Error(t, err)
	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.AuthFailed, te.Kind)
	assert.Equal(t, "40100", te.VendorCode)
}
