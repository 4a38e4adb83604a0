package signing

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// BCESigner implements Baidu Cloud's "bce-auth-v1" scheme (spec §4.2):
//
//	authorization: bce-auth-v1/<AK>/<timestamp>/<expire>/<signedHeaders>/<sig>
//
// signingKey = HMAC-SHA256(secretKey, authStringPrefix)
// signature  = HMAC-SHA256(signingKey, canonicalRequest)
type BCESigner struct {
	AccessKeyID     string
	SecretAccessKey string
	Clock           Clock
	ExpireSeconds   int // defaults to 1800 when zero
}

// Sign returns the Authorization header value for the given request.
func (s BCESigner) Sign(method, uri string, query, headers map[string]string) string {
	expire := s.ExpireSeconds
	if expire == 0 {
		expire = 1800
	}
	timestamp := s.Clock.Now().UTC().Format("2006-01-02T15:04:05Z")

	authStringPrefix := fmt.Sprintf("bce-auth-v1/%s/%s/%d", s.AccessKeyID, timestamp, expire)
	signingKey := hex.EncodeToString(hmacSHA256([]byte(s.SecretAccessKey), authStringPrefix))

	canonicalURI := canonicalURIPath(uri)
	canonicalQuery := canonicalizedQuery(query)
	signedHeaderNames, canonicalHeaders := canonicalizeHeaders(headers)

	canonicalRequest := strings.Join([]string{
		method,
		canonicalURI,
		canonicalQuery,
		canonicalHeaders,
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256([]byte(signingKey), canonicalRequest))

	return fmt.Sprintf("%s/%s/%s", authStringPrefix, signedHeaderNames, signature)
}

func canonicalURIPath(uri string) string {
	if uri == "" {
		return "/"
	}
	return uri
}

func canonicalizeHeaders(headers map[string]string) (signedHeaderNames, canonical string) {
	keys := make([]string, 0, len(headers))
	lower := make(map[string]string, len(headers))
	for k, v := range headers {
		lk := strings.ToLower(k)
		keys = append(keys, lk)
		lower[lk] = v
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, percentEncode(k)+":"+percentEncode(strings.TrimSpace(lower[k])))
	}
	return strings.Join(keys, ";"), strings.Join(parts, "\n")
}
