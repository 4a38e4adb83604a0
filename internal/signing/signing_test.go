package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedClock = FixedClock{At: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}

func TestTC3Signer_Deterministic(t *testing.T) {
	s := TC3Signer{SecretID: "AKID", SecretKey: "SECRET", Service: "dnspod", Clock: fixedClock}
	headers1 := s.Sign("DescribeRecordList", "2021-03-23", []byte(`{"Domain":"example.com"}`))
	headers2 := s.Sign("DescribeRecordList", "2021-03-23", []byte(`{"Domain":"example.com"}`))
	assert.Equal(t, headers1, headers2)
	assert.Equal(t, "dnspod.tencentcloudapi.com", headers1["Host"])
	assert.Contains(t, headers1["Authorization"], "TC3-HMAC-SHA256 Credential=AKID/")
	assert.Contains(t, headers1["Authorization"], "SignedHeaders=content-type;host")
	assert.Equal(t, "DescribeRecordList", headers1["X-TC-Action"])
	assert.NotContains(t, headers1, "X-TC-Region")
}

func TestTC3Signer_RegionHeaderOnlyWhenSet(t *testing.T) {
	s := TC3Signer{SecretID: "AKID", SecretKey: "SECRET", Service: "volc", Region: "cn-north-1", Clock: fixedClock}
	headers := s.Sign("CreateRecord", "2021-01-01", nil)
	assert.Equal(t, "cn-north-1", headers["X-TC-Region"])
}

func TestTC3Signer_BodyChangesSignature(t *testing.T) {
	s := TC3Signer{SecretID: "AKID", SecretKey: "SECRET", Service: "dnspod", Clock: fixedClock}
	a := s.Sign("Action", "v1", []byte(`{"a":1}`))
	b := s.Sign("Action", "v1", []byte(`{"a":2}`))
	assert.NotEqual(t, a["Authorization"], b["Authorization"])
}

func TestMD5TokenSigner(t *testing.T) {
	s := MD5TokenSigner{Username: "user", APIPassword: "pass", Clock: fixedClock}
	fields := s.Sign()
	assert.Equal(t, "1705320000", fields["time"])
	assert.Len(t, fields["token"], 32)

	s2 := MD5TokenSigner{Username: "user", APIPassword: "pass", Clock: fixedClock}
	assert.Equal(t, fields, s2.Sign())

	s3 := MD5TokenSigner{Username: "user", APIPassword: "other", Clock: fixedClock}
	assert.NotEqual(t, fields["token"], s3.Sign()["token"])
}

func TestBasicSigner(t *testing.T) {
	s := BasicSigner{APIID: "id", APISecret: "secret"}
	assert.Equal(t, "Basic aWQ6c2VjcmV0", s.Header())
}

func TestAPIKeySigner_Bearer(t *testing.T) {
	s := APIKeySigner{Scheme: SchemeBearer, Token: "tok"}
	signed := s.Sign()
	assert.Equal(t, "Bearer tok", signed.Headers["Authorization"])
	assert.Nil(t, signed.Query)
}

func TestAPIKeySigner_DualHeader(t *testing.T) {
	s := APIKeySigner{Scheme: SchemeDualHeader, Token: "key", Secret: "sec"}
	signed := s.Sign()
	assert.Equal(t, "key", signed.Headers["X-API-Key"])
	assert.Equal(t, "sec", signed.Headers["X-API-Secret"])
}

func TestAPIKeySigner_SingleHeader(t *testing.T) {
	s := APIKeySigner{Scheme: SchemeSingleHeader, Token: "key"}
	signed := s.Sign()
	assert.Equal(t, "key", signed.Headers["X-API-Key"])
	assert.Len(t, signed.Headers, 1)
}

func TestAPIKeySigner_QueryParam(t *testing.T) {
	s := APIKeySigner{Scheme: SchemeQueryParam, Token: "key"}
	signed := s.Sign()
	assert.Equal(t, "key", signed.Query["key"])
	assert.Nil(t, signed.Headers)
}

func TestAliyunSigner_Deterministic(t *testing.T) {
	s := AliyunSigner{
		AccessKeyID: "AK", AccessKeySecret: "SK",
		Clock: fixedClock, Nonces: FixedNonceSource{Value: "nonce-1"},
	}
	params := s.Sign("GET", map[string]string{"Action": "DescribeDomainRecords", "DomainName": "example.com"})
	assert.Equal(t, "AK", params["AccessKeyId"])
	assert.Equal(t, "nonce-1", params["SignatureNonce"])
	assert.NotEmpty(t, params["Signature"])

	s2 := AliyunSigner{
		AccessKeyID: "AK", AccessKeySecret: "SK",
		Clock: fixedClock, Nonces: FixedNonceSource{Value: "nonce-1"},
	}
	params2 := s2.Sign("GET", map[string]string{"Action": "DescribeDomainRecords", "DomainName": "example.com"})
	assert.Equal(t, params["Signature"], params2["Signature"])
}

func TestAliyunSigner_DifferentSecretDifferentSignature(t *testing.T) {
	p := map[string]string{"Action": "A"}
	a := AliyunSigner{AccessKeyID: "AK", AccessKeySecret: "SK1", Clock: fixedClock, Nonces: FixedNonceSource{Value: "n"}}.Sign("GET", p)
	b := AliyunSigner{AccessKeyID: "AK", AccessKeySecret: "SK2", Clock: fixedClock, Nonces: FixedNonceSource{Value: "n"}}.Sign("GET", p)
	assert.NotEqual(t, a["Signature"], b["Signature"])
}

func TestHuaweiSigner_Deterministic(t *testing.T) {
	s := HuaweiSigner{AccessKeyID: "AK", SecretAccessKey: "SK", Clock: fixedClock}
	headers := s.Sign("GET", "dns.myhuaweicloud.com", "/v2/zones", nil, nil, nil)
	assert.Equal(t, "20240115T120000Z", headers["X-Sdk-Date"])
	assert.Contains(t, headers["Authorization"], "SDK-HMAC-SHA256 Access=AK, SignedHeaders=")

	headers2 := s.Sign("GET", "dns.myhuaweicloud.com", "/v2/zones", nil, nil, nil)
	assert.Equal(t, headers["Authorization"], headers2["Authorization"])
}

func TestBCESigner_Deterministic(t *testing.T) {
	s := BCESigner{AccessKeyID: "AK", SecretAccessKey: "SK", Clock: fixedClock}
	auth := s.Sign("GET", "/v1/zone", map[string]string{"marker": "0"}, map[string]string{"Host": "dns.bj.baidubce.com"})
	assert.Contains(t, auth, "bce-auth-v1/AK/")
	assert.Contains(t, auth, "/1800/")

	auth2 := s.Sign("GET", "/v1/zone", map[string]string{"marker": "0"}, map[string]string{"Host": "dns.bj.baidubce.com"})
	assert.Equal(t, auth, auth2)
}

func TestBCESigner_CustomExpire(t *testing.T) {
	s := BCESigner{AccessKeyID: "AK", SecretAccessKey: "SK", Clock: fixedClock, ExpireSeconds: 60}
	auth := s.Sign("GET", "/v1/zone", nil, nil)
	assert.Contains(t, auth, "/60/")
}
