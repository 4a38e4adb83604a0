package westcn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

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
		signer: signing.MD5TokenSigner{
			Username:    "user",
			APIPassword: "pass",
			Clock:       signing.RealClock{},
		},
	}
}

// writeGBK encodes a UTF-8 JSON document to GBK before writing it, the
// way the real api.west.cn endpoint answers.
func writeGBK(t *testing.T, w http.ResponseWriter, utf8JSON string) {
	t.Helper()
	encoded, err := simplifiedchinese.GBK.NewEncoder().String(utf8JSON)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json;charset=gbk")
	_, _ = w.Write([]byte(encoded))
}

// TestGetRecords_DecodesGBKAndFiltersClientSide covers the transport's
// GBK transcode plus the client-side filter/paginate path every query
// takes on this vendor.
func TestGetRecords_DecodesGBKAndFiltersClientSide(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "user", r.Form.Get("username"))
		assert.NotEmpty(t, r.Form.Get("time"))
		assert.NotEmpty(t, r.Form.Get("token"))
		writeGBK(t, w, `{"code":200,"msg":"成功","list":[
			{"id":"1","host":"www","type":"A","value":"1.2.3.4","ttl":"600","line":"LTEL","status":"1"},
			{"id":"2","host":"mail","type":"A","value":"5.6.7.8","ttl":"600","line":"","status":"0"}
		]}`)
	})

	list, err := p.GetRecords(context.Background(), "example.com", types.RecordQuery{SubDomain: "www"})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	rec := list.Items[0]
	assert.Equal(t, "www.example.com", rec.Name)
	assert.Equal(t, "telecom", rec.Line)
	assert.Equal(t, 600, rec.TTL)
	assert.Equal(t, "1", rec.Status)
}

func TestCreateRecord_TranslatesLineAndApex(t *testing.T) {
	var form url.Values
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.Form.Get("act") {
		case "adddnsrecord":
			form = r.Form
			writeGBK(t, w, `{"code":200,"id":"77"}`)
		case "getdnsrecord":
			writeGBK(t, w, `{"code":200,"list":[{"id":"77","host":"@","type":"A","value":"1.2.3.4","ttl":"600","line":"LTEL","status":"1"}]}`)
		default:
			t.Fatalf("unexpected act %q", r.Form.Get("act"))
		}
	})

	rec, err := p.CreateRecord(context.Background(), "example.com", types.RecordParams{
		Name: "example.com", Type: "A", Value: "1.2.3.4", TTL: 600, Line: "telecom",
	})
	require.NoError(t, err)
	assert.Equal(t, "@", form.Get("host"))
	assert.Equal(t, "LTEL", form.Get("line"))
	assert.Equal(t, "example.com", rec.Name)
	assert.Equal(t, "telecom", rec.Line)
}

func TestCall_VendorErrorMapsAuthFailed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeGBK(t, w, `{"code":-1,"msg":"用户验证失败"}`)
	})
	_, err := p.GetZones(context.Background(), 1, 10, "")
	require.Error(t, err)
	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.AuthFailed, te.Kind)
	assert.Equal(t, "-1", te.VendorCode)
	assert.Equal(t, "用户验证失败", te.Message)
}
