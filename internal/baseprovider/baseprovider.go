// Package baseprovider implements the behaviour every vendor adapter
// inherits (C4, spec §4.4): typed error construction, retry
// classification, exponential-backoff-with-jitter, shape-normalization
// helpers, and client-side filter/paginate utilities. Adapters hold a
// value of Base rather than embedding a class, per spec §9's
// "polymorphism without inheritance" note.
package baseprovider

import (
	"math/rand"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/clouddns-gateway/dns-gateway/internal/galerr"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// Sleeper abstracts time.Sleep so withRetry is deterministic under test.
type Sleeper func(time.Duration)

// Base is the shared helper surface adapters compose by holding a value
// of this type (never by embedding a class hierarchy).
type Base struct {
	Capabilities types.Capabilities
	Sleep        Sleeper
	Rand         *rand.Rand

	baseDelay time.Duration
	maxDelay  time.Duration
}

// New returns a Base wired to cap's retry policy, using real sleep and a
// process-seeded random source.
func New(cap types.Capabilities) Base {
	return Base{
		Capabilities: cap,
		Sleep:        time.Sleep,
		Rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		baseDelay:    250 * time.Millisecond,
		maxDelay:     10 * time.Second,
	}
}

// NewError constructs a *types.Error, deriving Retriable from IsRetriable.
func (b Base) NewError(kind types.ErrorKind, vendorCode, message string, httpStatus int, meta map[string]any) *types.Error {
	e := &types.Error{
		Kind:       kind,
		VendorCode: vendorCode,
		Message:    message,
		HTTPStatus: httpStatus,
		Meta:       meta,
	}
	e.Retriable = b.IsRetriable(e)
	return e
}

// IsRetriable implements spec §4.4's rule: vendorCode is in the allow-list,
// OR httpStatus is 408/429/>=500, OR the message matches a network-error
// keyword.
func (b Base) IsRetriable(e *types.Error) bool {
	if e.VendorCode != "" && b.Capabilities.IsRetryableVendorCode(e.VendorCode) {
		return true
	}
	if e.HTTPStatus == 408 || e.HTTPStatus == 429 || e.HTTPStatus >= 500 {
		return true
	}
	return galerr.LooksLikeNetworkError(e.Message)
}

// Op is the operation withRetry wraps: a single upstream attempt.
type Op func(attempt int) (any, error)

// WithRetry invokes op, retrying on retriable *types.Error failures with
// exponential backoff and jitter until Capabilities.MaxRetries is
// exhausted. On exhaustion it raises RetryExhausted wrapping the last
// error in meta.cause (spec §4.4/§7).
func (b Base) WithRetry(op Op) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= b.Capabilities.MaxRetries; attempt++ {
		result, err := op(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		te, ok := types.AsError(err)
		if !ok || !te.Retriable {
			return nil, err
		}
		if attempt == b.Capabilities.MaxRetries {
			break
		}

		delay := b.backoffDelay(attempt)
		log.WithFields(log.Fields{
			"provider":   b.Capabilities.Kind,
			"attempt":    attempt + 1,
			"vendorCode": te.VendorCode,
			"delay":      delay,
		}).Warn("retrying after retriable upstream error")
		b.Sleep(delay)
	}
	return nil, &types.Error{
		Kind:      types.RetryExhausted,
		Message:   "retry budget exhausted",
		Retriable: false,
		Meta:      map[string]any{"cause": lastErr},
	}
}

// backoffDelay computes min(maxDelay, base*2^attempt*U[0.5,1.5)).
func (b Base) backoffDelay(attempt int) time.Duration {
	base := b.baseDelay
	if base == 0 {
		base = 250 * time.Millisecond
	}
	maxDelay := b.maxDelay
	if maxDelay == 0 {
		maxDelay = 10 * time.Second
	}
	exp := base << uint(attempt)
	if exp <= 0 || exp > maxDelay { // overflow guard, or already past ceiling
		exp = maxDelay
	}
	jitter := 0.5 + b.Rand.Float64()
	delay := time.Duration(float64(exp) * jitter)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// NormalizeZone strips a trailing dot and lowercases name, matching the
// canonical Zone.Name invariant.
func NormalizeZone(z types.Zone) types.Zone {
	z.Name = NormalizeName(z.Name)
	return z
}

// NormalizeName lowercases a DNS name and strips any trailing dot.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// NormalizeRecord strips trailing dots from Name, ZoneName and (for types
// that carry a hostname value) Value, lowercases Name and ZoneName, and
// defaults an empty Line to DefaultLineCode. TTL is left untouched --
// adapters do vendor-native numeric coercion themselves since only they
// know which fields are stringly typed.
func NormalizeRecord(r types.DnsRecord) types.DnsRecord {
	r.Name = NormalizeName(r.Name)
	r.ZoneName = NormalizeName(r.ZoneName)
	switch r.Type {
	case "CNAME", "MX", "NS", "PTR", "SRV":
		r.Value = strings.TrimSuffix(r.Value, ".")
	}
	if r.Line == "" {
		r.Line = types.DefaultLineCode
	}
	return r
}

// PaginateClient slices items into the requested page. page is 1-based;
// values <1 default to page 1, pageSize <1 defaults to the full slice.
func PaginateClient(items []types.DnsRecord, page, pageSize int) []types.DnsRecord {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []types.DnsRecord{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// FilterRecordsClient is the authoritative client-side filter semantics
// used by every paging=client adapter (spec §4.4): keyword matches a
// substring over name/type/value/remark; subDomain matches a substring
// over name; type and line match exactly (case-insensitive for type);
// value matches a substring (case-insensitive); status matches exactly.
func FilterRecordsClient(items []types.DnsRecord, q types.RecordQuery) []types.DnsRecord {
	out := make([]types.DnsRecord, 0, len(items))
	for _, r := range items {
		if q.Keyword != "" && !recordContainsKeyword(r, q.Keyword) {
			continue
		}
		if q.SubDomain != "" && !containsFold(r.Name, q.SubDomain) {
			continue
		}
		if q.Type != "" && !strings.EqualFold(r.Type, q.Type) {
			continue
		}
		if q.Value != "" && !containsFold(r.Value, q.Value) {
			continue
		}
		if q.Line != "" && r.Line != q.Line {
			continue
		}
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		out = append(out, r)
	}
	return out
}

func recordContainsKeyword(r types.DnsRecord, keyword string) bool {
	fields := []string{r.Name, r.Type, r.Value, r.Remark}
	for _, f := range fields {
		if containsFold(f, keyword) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
