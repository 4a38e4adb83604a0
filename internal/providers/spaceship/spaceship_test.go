package spaceship

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
		signer: signing.APIKeySigner{Scheme: signing.SchemeDualHeader, Token: "key", Secret: "secret"},
	}
}

func TestComposeSplitID_RoundTrip(t *testing.T) {
	mx := 10
	id := composeID("MX", "@", "mail.example.com", &mx)
	assert.Equal(t, "MX|@|mail.example.com|10", id)

	ri, err := splitID(id)
	require.NoError(t, err)
	assert.Equal(t, "MX", ri.Type)
	assert.Equal(t, "@", ri.Name)
	assert.Equal(t, "mail.example.com", ri.Address)
	require.NotNil(t, ri.MX)
	assert.Equal(t, 10, *ri.MX)

	_, err = splitID("not-a-composite")
	require.Error(t, err)
}

// TestGetRecords_ComposesStableIDs covers rule 10: the synthesized ID is
// deterministic and survives a refetch (property 2).
func TestGetRecords_ComposesStableIDs(t *testing.T) {
	var gotKey, gotSecret string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotSecret = r.Header.Get("X-API-Secret")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"type": "A", "name": "www", "address": "1.2.3.4", "ttl": 300},
			},
		})
	})

	list, err := p.GetRecords(context.Background(), "example.com", types.RecordQuery{})
	require.NoError(t, err)
	assert.Equal(t, "key", gotKey)
	assert.Equal(t, "secret", gotSecret)
	require.Len(t, list.Items, 1)
	rec := list.Items[0]
	assert.Equal(t, "A|www|1.2.3.4|", rec.ID)
	assert.Equal(t, "www.example.com", rec.Name)

	got, err := p.GetRecord(context.Background(), "example.com", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

// TestUpdateRecord_DeletesThenRecreates: with no server-side identity the
// update is a delete of the old tuple plus a create of the new one.
func TestUpdateRecord_DeletesThenRecreates(t *testing.T) {
	var methods []string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"type": "A", "name": "www", "address": "5.6.7.8", "ttl": 60},
				},
			})
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	rec, err := p.UpdateRecord(context.Background(), "example.com", "A|www|1.2.3.4|", types.RecordParams{
		Name: "www.example.com", Type: "A", Value: "5.6.7.8", TTL: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{http.MethodDelete, http.MethodPut, http.MethodGet}, methods)
	assert.Equal(t, "A|www|5.6.7.8|", rec.ID)
	assert.Equal(t, "5.6.7.8", rec.Value)
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
