package dnspod

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

// redirectingTransport rewrites every outbound request's scheme/host to
// point at an httptest server, so the hardcoded tencentcloudapi.com host
// in tc3_provider.go can still be exercised against a local fixture.
type redirectingTransport struct {
	target *url.URL
}

func (t redirectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	req.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestTC3Provider(t *testing.T, handler http.HandlerFunc) *tc3Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	target, err := url.Parse(server.URL)
	require.NoError(t, err)

	return &tc3Provider{
		base: baseprovider.New(Capabilities()),
		exec: transport.NewExecutor(&http.Client{Transport: redirectingTransport{target: target}}),
		signer: signing.TC3Signer{
			SecretID:  "AKID",
			SecretKey: "SECRET",
			Service:   tc3Service,
			Clock:     signing.RealClock{},
		},
	}
}

// TestCreateRecord_MXAtApex is scenario S2: creating an MX record at the
// zone apex sends SubDomain="@" and the priority in the MX field.
func TestCreateRecord_MXAtApex(t *testing.T) {
	var createBody map[string]any
	var describeCalls int

	p := newTestTC3Provider(t, func(w http.ResponseWriter, r *http.Request) {
		action := r.Header.Get("X-TC-Action")
		switch action {
		case "CreateRecord":
			body, err := readJSONBody(r)
			require.NoError(t, err)
			createBody = body
			writeJSON(w, map[string]any{"Response": map[string]any{"RecordId": 555}})
		case "DescribeRecord":
			describeCalls++
			writeJSON(w, map[string]any{"Response": map[string]any{
				"RecordInfo": map[string]any{
					"RecordId": 555, "Name": "@", "Type": "MX", "Value": "mail.example.com.",
					"TTL": 600, "LineId": "0", "MX": 10, "Status": "ENABLE",
				},
			}})
		default:
			t.Fatalf("unexpected action %q", action)
		}
	})

	priority := 10
	params := types.RecordParams{
		Name:     "example.com",
		Type:     "MX",
		Value:    "mail.example.com.",
		TTL:      600,
		Priority: &priority,
	}
	rec, err := p.CreateRecord(context.Background(), "example.com", params)
	require.NoError(t, err)

	assert.Equal(t, "@", createBody["SubDomain"])
	assert.Equal(t, "MX", createBody["RecordType"])
	assert.Equal(t, float64(10), createBody["MX"])

	assert.Equal(t, "555", rec.ID)
	assert.Equal(t, "example.com", rec.Name)
	assert.Equal(t, "MX", rec.Type)
	require.NotNil(t, rec.Priority)
	assert.Equal(t, 10, *rec.Priority)
	assert.Equal(t, 1, describeCalls)
}

func TestCreateRecord_RejectsUnsupportedType(t *testing.T) {
	p := newTestTC3Provider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach the network for an unsupported record type")
	})
	_, err := p.CreateRecord(context.Background(), "example.com", types.RecordParams{Name: "www.example.com", Type: "NOTREAL", Value: "x"})
	require.Error(t, err)
	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.InvalidType, te.Kind)
}

func TestGetRecords_TreatsNoDataAsEmptyList(t *testing.T) {
	p := newTestTC3Provider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]any{"Response": map[string]any{
			"Error": map[string]any{"Code": "ResourceNotFound.NoDataOfRecord", "Message": "no data"},
		}})
	})
	list, err := p.GetRecords(context.Background(), "example.com", types.RecordQuery{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func readJSONBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	err := json.NewDecoder(r.Body).Decode(&body)
	return body, err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
