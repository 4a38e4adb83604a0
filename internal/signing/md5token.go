package signing

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// MD5TokenSigner implements the West.cn / DNSPod-legacy form-field scheme
// (spec §4.2): the request body carries a plaintext time= field plus
// token = md5(username + apiPassword + time).
type MD5TokenSigner struct {
	Username   string
	APIPassword string
	Clock      Clock
}

// Sign returns the {time, token} form fields to merge into the request body.
func (s MD5TokenSigner) Sign() map[string]string {
	timestamp := fmt.Sprintf("%d", s.Clock.Now().Unix())
	sum := md5.Sum([]byte(s.Username + s.APIPassword + timestamp))
	return map[string]string{
		"time":  timestamp,
		"token": hex.EncodeToString(sum[:]),
	}
}
