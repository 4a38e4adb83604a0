package volcengine

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
		base: baseprovider.New(Capabilities()),
		exec: transport.NewExecutor(&http.Client{Transport: redirectingTransport{target: target}}),
		signer: signing.TC3Signer{
			SecretID:  "AK",
			SecretKey: "SK",
			Service:   apiService,
			Region:    apiRegion,
			Host:      apiHost,
			Clock:     signing.RealClock{},
		},
		zoneNames: map[string]string{},
	}
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ResponseMetadata": map[string]any{},
		"Result":           result,
	})
}

// TestCreateRecord_MXValueJoinAndSplit covers rule 3: the canonical
// value+priority pair is packed into "<priority> <target>" on write and
// split back apart on read.
func TestCreateRecord_MXValueJoinAndSplit(t *testing.T) {
	var createBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("Action") {
		case "DescribeZone":
			writeResult(w, map[string]any{"ZID": 101, "ZoneName": "example.com", "TradeCode": "free_inner"})
		case "CreateRecord":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createBody))
			writeResult(w, map[string]any{"RecordID": "rec1"})
		case "DescribeRecord":
			writeResult(w, map[string]any{
				"RecordID": "rec1", "Host": "@", "Type": "MX",
				"Value": "10 mail.example.com", "TTL": 600, "Line": "default", "Enable": true,
			})
		default:
			t.Fatalf("unexpected action %q", r.URL.Query().Get("Action"))
		}
	})

	priority := 10
	rec, err := p.CreateRecord(context.Background(), "101", types.RecordParams{
		Name: "example.com", Type: "MX", Value: "mail.example.com", TTL: 600, Priority: &priority,
	})
	require.NoError(t, err)
	assert.Equal(t, "10 mail.example.com", createBody["Value"])
	assert.Equal(t, "mail.example.com", rec.Value)
	require.NotNil(t, rec.Priority)
	assert.Equal(t, 10, *rec.Priority)
	assert.Equal(t, "example.com", rec.Name)
	assert.Equal(t, "1", rec.Status)
}

// TestGetMinTTL_DerivesFromTradeCode covers the tier table in spec §4.9.
func TestGetMinTTL_DerivesFromTradeCode(t *testing.T) {
	cases := []struct {
		trade string
		want  int
	}{
		{"free_inner", 600},
		{"professional_inner", 300},
		{"enterprise_inner", 60},
		{"ultimate_inner", 1},
		{"something_else", 600},
	}
	for _, tc := range cases {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			writeResult(w, map[string]any{"ZID": 1, "ZoneName": "example.com", "TradeCode": tc.trade})
		})
		assert.Equal(t, tc.want, p.GetMinTTL(context.Background(), "1"), "trade=%s", tc.trade)
	}
}

func TestCall_ThrottlingMapsToRateLimited(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ResponseMetadata": map[string]any{
				"Error": map[string]any{"Code": "ThrottlingLimitExceeded", "Message": "slow down"},
			},
		})
	})
	_, err := p.GetZone(context.Background(), "1")
	require.Error(t, err)
	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.RateLimited, te.Kind)
	assert.Equal(t, "ThrottlingLimitExceeded", te.VendorCode)
}
