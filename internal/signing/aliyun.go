package signing

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// AliyunSigner implements Aliyun's HMAC-SHA1 query-string signing
// (spec §4.2): a canonicalized query string with fixed common params,
// signed as Base64(HMAC-SHA1(accessKeySecret+"&", "GET&%2F&"+urlEncode(canonicalQuery))).
type AliyunSigner struct {
	AccessKeyID     string
	AccessKeySecret string
	Clock           Clock
	Nonces          NonceSource
}

// Sign returns the full set of query parameters to send, including the
// caller-supplied params, the common Aliyun params, and the signature.
func (s AliyunSigner) Sign(method string, params map[string]string) map[string]string {
	all := make(map[string]string, len(params)+8)
	for k, v := range params {
		all[k] = v
	}
	all["AccessKeyId"] = s.AccessKeyID
	all["Format"] = "JSON"
	all["SignatureMethod"] = "HMAC-SHA1"
	all["SignatureNonce"] = s.Nonces.Nonce()
	all["Timestamp"] = s.Clock.Now().UTC().Format("2006-01-02T15:04:05Z")
	all["SignatureVersion"] = "1.0"

	canonical := canonicalizedQuery(all)
	stringToSign := method + "&%2F&" + percentEncode(canonical)

	mac := hmac.New(sha1.New, []byte(s.AccessKeySecret+"&"))
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	all["Signature"] = signature
	return all
}

// canonicalizedQuery builds the `key=value&key=value...` string, entries
// sorted by key, both keys and values percent-encoded per Aliyun's
// RFC3986-flavored escaping.
func canonicalizedQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(percentEncode(k))
		b.WriteByte('=')
		b.WriteString(percentEncode(params[k]))
	}
	return b.String()
}

// percentEncode applies Aliyun's RFC3986 escaping: url.QueryEscape then
// fix up the handful of characters it over-escapes relative to RFC3986.
func percentEncode(s string) string {
	encoded := url.QueryEscape(s)
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	encoded = strings.ReplaceAll(encoded, "*", "%2A")
	encoded = strings.ReplaceAll(encoded, "%7E", "~")
	return encoded
}
