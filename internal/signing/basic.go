package signing

import "encoding/base64"

// BasicSigner implements the DNSLA Basic-auth scheme (spec §4.2):
// Authorization: Basic base64(apiId:apiSecret).
type BasicSigner struct {
	APIID     string
	APISecret string
}

// Header returns the Authorization header value.
func (s BasicSigner) Header() string {
	raw := s.APIID + ":" + s.APISecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}
