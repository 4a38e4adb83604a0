package baidu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
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
		signer: signing.BCESigner{
			AccessKeyID:     "AK",
			SecretAccessKey: "SK",
			Clock:           signing.RealClock{},
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// TestGetRecords_BCEAuthAndLineTranslation checks the bce-auth-v1 header
// shape plus the dianxin/liantong line-code translation.
func TestGetRecords_BCEAuthAndLineTranslation(t *testing.T) {
	var auth string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, map[string]any{
			"records": []map[string]any{
				{"recordId": "1", "rr": "www", "type": "A", "value": "1.2.3.4", "ttl": 300, "line": "dianxin", "status": "enable"},
				{"recordId": "2", "rr": "@", "type": "A", "value": "5.6.7.8", "ttl": 300, "line": "default", "status": "disable"},
			},
		})
	})

	list, err := p.GetRecords(context.Background(), "example.com", types.RecordQuery{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(auth, "bce-auth-v1/AK/"), "unexpected authorization %q", auth)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "telecom", list.Items[0].Line)
	assert.Equal(t, "1", list.Items[0].Status)
	assert.Equal(t, "example.com", list.Items[1].Name)
	assert.Equal(t, "0", list.Items[1].Status)
}

func TestCreateRecord_TranslatesLineOnWrite(t *testing.T) {
	var createBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&createBody))
			writeJSON(w, map[string]any{"recordId": "9"})
		default:
			writeJSON(w, map[string]any{
				"recordId": "9", "rr": "www", "type": "A", "value": "1.2.3.4", "ttl": 300, "line": "liantong", "status": "enable",
			})
		}
	})

	rec, err := p.CreateRecord(context.Background(), "example.com", types.RecordParams{
		Name: "www.example.com", Type: "A", Value: "1.2.3.4", TTL: 300, Line: "unicom",
	})
	require.NoError(t, err)
	assert.Equal(t, "liantong", createBody["line"])
	assert.Equal(t, "www", createBody["rr"])
	assert.Equal(t, "unicom", rec.Line)
}

func TestCall_HTTPStatusMapsKind(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "AccessDenied", "message": "bad signature"})
	})
	_, err := p.GetZones(context.Background(), 1, 10, "")
	require.Error(t, err)
	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.AuthFailed, te.Kind)
	assert.Equal(t, "AccessDenied", te.VendorCode)
	assert.Equal(t, http.StatusForbidden, te.HTTPStatus)
}
