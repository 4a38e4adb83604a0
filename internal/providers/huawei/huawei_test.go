package huawei

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

// redirectingTransport rewrites every outbound request's scheme/host to an
// httptest server, since apiHost is hardcoded to dns.myhuaweicloud.com.
type redirectingTransport struct{ target *url.URL }

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
		base: baseprovider.New(Capabilities()),
		exec: transport.NewExecutor(&http.Client{Transport: redirectingTransport{target: target}}),
		signer: signing.HuaweiSigner{
			AccessKeyID:     "AK",
			SecretAccessKey: "SK",
			Clock:           signing.RealClock{},
		},
		zoneNames: map[string]string{},
	}
}

// TestGetRecords_TXTQuotingRoundTrip is scenario S4: a TXT value containing
// spaces round-trips through the quoted wire format unchanged. The zone is
// addressed by Huawei's opaque UUID, so the test also pins that ZoneName
// resolves to the domain name rather than echoing the UUID.
func TestGetRecords_TXTQuotingRoundTrip(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/zones/zone1/recordsets":
			writeJSON(w, map[string]any{
				"recordsets": []map[string]any{
					{
						"id": "rs1", "name": "example.com.", "type": "TXT", "ttl": 300,
						"records": []string{`"v=spf1 include:_spf.example.com -all"`},
						"status":  "ACTIVE",
					},
				},
				"metadata": map[string]any{"total_count": 1},
			})
		case "/v2/zones/zone1":
			writeJSON(w, map[string]any{"id": "zone1", "name": "example.com.", "status": "ACTIVE"})
		default:
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
	})

	list, err := p.GetRecords(context.Background(), "zone1", types.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "v=spf1 include:_spf.example.com -all", list.Items[0].Value)
	assert.Equal(t, "rs1|0", list.Items[0].ID)
	assert.Equal(t, "example.com", list.Items[0].ZoneName, "ZoneName must resolve to the domain name, not the opaque zone UUID")
}

func TestGetRecords_FiltersOutPTRAndSOA(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"recordsets": []map[string]any{
				{"id": "rs1", "name": "example.com.", "type": "SOA", "ttl": 300, "records": []string{"ns1.example.com. admin.example.com. 1 7200 900 1209600 300"}, "status": "ACTIVE"},
				{"id": "rs2", "name": "1.0.0.127.in-addr.arpa.", "type": "PTR", "ttl": 300, "records": []string{"host.example.com."}, "status": "ACTIVE"},
				{"id": "rs3", "name": "www.example.com.", "type": "A", "ttl": 300, "records": []string{"1.2.3.4"}, "status": "ACTIVE"},
			},
			"metadata": map[string]any{"total_count": 3},
		})
	})

	list, err := p.GetRecords(context.Background(), "zone1", types.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "A", list.Items[0].Type)
}

func TestCreateRecord_MXEncodesPriorityAndTrailingDot(t *testing.T) {
	var createBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createBody))
			writeJSON(w, map[string]any{"id": "rs9", "name": "example.com.", "type": "MX", "ttl": 600, "records": createBody["records"], "status": "ACTIVE"})
		case r.Method == http.MethodGet:
			writeJSON(w, map[string]any{"id": "rs9", "name": "example.com.", "type": "MX", "ttl": 600, "records": []string{"10 mail.example.com."}, "status": "ACTIVE"})
		}
	})

	priority := 10
	rec, err := p.CreateRecord(context.Background(), "zone1", types.RecordParams{
		Name: "example.com", Type: "MX", Value: "mail.example.com", TTL: 600, Priority: &priority,
	})
	require.NoError(t, err)

	records := createBody["records"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, "10 mail.example.com.", records[0])
	require.NotNil(t, rec.Priority)
	assert.Equal(t, 10, *rec.Priority)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
