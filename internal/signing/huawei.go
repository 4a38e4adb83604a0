package signing

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HuaweiSigner implements Huawei Cloud's AWS-v4-like "SDK-HMAC-SHA256"
// scheme (spec §4.2), dated as YYYYMMDDThhmmssZ.
type HuaweiSigner struct {
	AccessKeyID     string
	SecretAccessKey string
	Clock           Clock
}

// Sign computes the Authorization header and the X-Sdk-Date header for a
// request against the given host/path/query/body.
func (s HuaweiSigner) Sign(method, host, path string, query map[string]string, headers map[string]string, body []byte) map[string]string {
	now := s.Clock.Now().UTC()
	date := now.Format("20060102T150405Z")

	allHeaders := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		allHeaders[k] = v
	}
	allHeaders["host"] = host
	allHeaders["x-sdk-date"] = date

	signedHeaderNames, canonicalHeaders := canonicalizeHeaders(allHeaders)
	canonicalRequest := strings.Join([]string{
		method,
		canonicalURIPath(path),
		canonicalizedQuery(query),
		canonicalHeaders + "\n",
		signedHeaderNames,
		sha256Hex(body),
	}, "\n")

	stringToSign := strings.Join([]string{
		"SDK-HMAC-SHA256",
		date,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256([]byte(s.SecretAccessKey), stringToSign))

	return map[string]string{
		"X-Sdk-Date":    date,
		"Authorization": fmt.Sprintf("SDK-HMAC-SHA256 Access=%s, SignedHeaders=%s, Signature=%s", s.AccessKeyID, signedHeaderNames, signature),
	}
}
