package signing

// APIKeyScheme picks the header/query shape a header-based-API-key vendor
// expects (spec §4.2): Cloudflare uses a bearer token, Spaceship an
// X-API-Key plus X-API-Secret header pair, PowerDNS a single X-API-Key
// header, and NameSilo signs via a plain "key=" query parameter.
type APIKeyScheme string

const (
	SchemeBearer      APIKeyScheme = "bearer"       // Authorization: Bearer ...
	SchemeDualHeader  APIKeyScheme = "dual-header"  // X-API-Key + X-API-Secret
	SchemeSingleHeader APIKeyScheme = "single-header" // X-API-Key
	SchemeQueryParam  APIKeyScheme = "query-param"  // ?key=...
)

// APIKeySigner produces the headers/query for the header-based-API-key
// family of vendors.
type APIKeySigner struct {
	Scheme APIKeyScheme
	Token  string // bearer token, or the single API key
	Secret string // only used by SchemeDualHeader
}

// Sign returns the SignedRequest to merge into the outgoing call.
func (s APIKeySigner) Sign() SignedRequest {
	switch s.Scheme {
	case SchemeBearer:
		return SignedRequest{Headers: map[string]string{"Authorization": "Bearer " + s.Token}}
	case SchemeDualHeader:
		return SignedRequest{Headers: map[string]string{"X-API-Key": s.Token, "X-API-Secret": s.Secret}}
	case SchemeSingleHeader:
		return SignedRequest{Headers: map[string]string{"X-API-Key": s.Token}}
	case SchemeQueryParam:
		return SignedRequest{Query: map[string]string{"key": s.Token}}
	default:
		return SignedRequest{}
	}
}
