// Package dnspod adapts Tencent DNSPod to the canonical Provider
// interface. DNSPod exposes two distinct APIs: the modern TC3-signed
// Tencent Cloud API and a legacy MD5-token form API. Per spec §9, New
// picks between two distinct adapter types based on which secrets are
// present, both satisfying providers.Provider.
package dnspod

import "github.com/clouddns-gateway/dns-gateway/internal/types"

// lineNameToCode/codeToLineName: DNSPod's numeric line IDs (spec §4.5
// rule 4). Unknown codes pass through unchanged.
var lineNameToCode = map[string]string{
	types.DefaultLineCode: "0",
	"telecom":             "1",
	"unicom":               "2",
	"mobile":               "3",
	"edu":                  "99",
	"oversea":              "100",
	"search":               "80",
}

var lineCodeToName = reverseMap(lineNameToCode)

func reverseMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// Capabilities describes DNSPod's static feature set (spec §3), shared by
// both the TC3 and legacy-token variants.
func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.DNSPod,
		SupportsWeight:   true,
		SupportsLine:     true,
		SupportsStatus:   true,
		SupportsRemark:   true,
		SupportsURLForward: true,
		RequiresDomainID: false,
		RemarkMode:       types.RemarkSeparate,
		Paging:           types.PagingServer,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "SRV", "CAA", "NS", "REDIRECT_URL", "FORWARD_URL"},
		AuthFields: []types.AuthField{
			{Name: "secretId", Label: "SecretId", Kind: types.AuthFieldText, Required: false, HelpText: "Modern API; leave blank to use the legacy token login"},
			{Name: "secretKey", Label: "SecretKey", Kind: types.AuthFieldPassword, Required: false},
			{Name: "username", Label: "Username (legacy)", Kind: types.AuthFieldText, Required: false},
			{Name: "apiPassword", Label: "API Password (legacy)", Kind: types.AuthFieldPassword, Required: false},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{"RequestLimitExceeded", "InternalError"},
		MaxRetries:      3,
	}
}
