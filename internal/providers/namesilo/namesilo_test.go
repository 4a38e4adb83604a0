package namesilo

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
		base:   baseprovider.New(Capabilities()),
		exec:   transport.NewExecutor(&http.Client{Transport: redirectingTransport{target: target}}),
		signer: signing.APIKeySigner{Scheme: signing.SchemeQueryParam, Token: "sekrit"},
	}
}

func writeReply(w http.ResponseWriter, reply map[string]any) {
	if _, ok := reply["code"]; !ok {
		reply["code"] = 300
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"reply": reply})
}

// TestGetRecords_KeyQueryParamAndMXDistance covers the key= query-param
// auth scheme and the MX distance -> priority mapping.
func TestGetRecords_KeyQueryParamAndMXDistance(t *testing.T) {
	var gotKey string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		writeReply(w, map[string]any{
			"resource_record": []map[string]any{
				{"record_id": "a1", "type": "MX", "host": "example.com", "value": "mail.example.com", "ttl": "3600", "distance": "10"},
			},
		})
	})

	list, err := p.GetRecords(context.Background(), "example.com", types.RecordQuery{})
	require.NoError(t, err)
	assert.Equal(t, "sekrit", gotKey)
	require.Len(t, list.Items, 1)
	rec := list.Items[0]
	assert.Equal(t, "example.com", rec.Name)
	assert.Equal(t, 3600, rec.TTL)
	require.NotNil(t, rec.Priority)
	assert.Equal(t, 10, *rec.Priority)
}

func TestCall_VendorErrorCodes(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeReply(w, map[string]any{"code": 110, "detail": "invalid api key"})
	})
	_, err := p.GetZones(context.Background(), 1, 10, "")
	require.Error(t, err)
	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.AuthFailed, te.Kind)
	assert.Equal(t, "110", te.VendorCode)
}

func TestAddZone_Unsupported(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("addZone must not reach the network")
	})
	_, err := p.AddZone(context.Background(), "example.org")
	require.Error(t, err)
	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.Unsupported, te.Kind)
}
