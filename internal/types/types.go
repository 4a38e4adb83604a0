// Package types holds the provider-independent DNS data model (C1):
// Zone, DnsRecord, DnsLine, Capabilities, RecordQuery and the ServiceContext
// passed into every facade call. None of it performs I/O.
package types

// ProviderKind is the closed set of upstream vendors the gateway speaks to.
type ProviderKind string

const (
	Cloudflare ProviderKind = "cloudflare"
	Aliyun     ProviderKind = "aliyun"
	DNSPod     ProviderKind = "dnspod"
	Huawei     ProviderKind = "huawei"
	Baidu      ProviderKind = "baidu"
	WestCN     ProviderKind = "westcn"
	Volcengine ProviderKind = "volcengine"
	JDCloud    ProviderKind = "jdcloud"
	DNSLA      ProviderKind = "dnsla"
	NameSilo   ProviderKind = "namesilo"
	PowerDNS   ProviderKind = "powerdns"
	Spaceship  ProviderKind = "spaceship"
)

// AllProviderKinds lists every kind the registry is expected to know about.
var AllProviderKinds = []ProviderKind{
	Cloudflare, Aliyun, DNSPod, Huawei, Baidu, WestCN,
	Volcengine, JDCloud, DNSLA, NameSilo, PowerDNS, Spaceship,
}

// RemarkMode describes how a vendor accepts a record's free-text remark.
type RemarkMode string

const (
	RemarkUnsupported RemarkMode = "unsupported"
	RemarkInline       RemarkMode = "inline"
	RemarkSeparate     RemarkMode = "separate"
)

// Paging describes whether a vendor paginates server-side or the adapter
// must fetch everything and paginate in-process.
type Paging string

const (
	PagingServer Paging = "server"
	PagingClient Paging = "client"
)

// AuthFieldKind is the input widget a credential field should render as.
type AuthFieldKind string

const (
	AuthFieldText     AuthFieldKind = "text"
	AuthFieldPassword AuthFieldKind = "password"
	AuthFieldURL      AuthFieldKind = "url"
)

// AuthField describes one entry of a provider's credential form.
type AuthField struct {
	Name        string        `json:"name"`
	Label       string        `json:"label"`
	Kind        AuthFieldKind `json:"kind"`
	Required    bool          `json:"required"`
	Placeholder string        `json:"placeholder,omitempty"`
	HelpText    string        `json:"helpText,omitempty"`
}

// Capabilities is the immutable, per-kind descriptor published by the
// registry and consulted by the facade for feature gating.
type Capabilities struct {
	Kind               ProviderKind  `json:"kind"`
	SupportsWeight     bool          `json:"supportsWeight"`
	SupportsLine       bool          `json:"supportsLine"`
	SupportsStatus     bool          `json:"supportsStatus"`
	SupportsRemark     bool          `json:"supportsRemark"`
	SupportsURLForward bool          `json:"supportsUrlForward"`
	SupportsLogs       bool          `json:"supportsLogs"`
	RequiresDomainID   bool          `json:"requiresDomainId"`
	RemarkMode         RemarkMode    `json:"remarkMode"`
	Paging             Paging        `json:"paging"`
	RecordTypes        []string      `json:"recordTypes"`
	AuthFields         []AuthField   `json:"authFields"`
	DomainCacheTTL     int           `json:"domainCacheTtl"`
	RecordCacheTTL     int           `json:"recordCacheTtl"`
	RetryableErrors    []string      `json:"retryableErrors"`
	MaxRetries         int           `json:"maxRetries"`
}

// HasRecordType reports whether t is among the vendor's supported types.
func (c Capabilities) HasRecordType(t string) bool {
	for _, rt := range c.RecordTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// IsRetryableVendorCode reports whether code is in the vendor's configured
// retry allow-list.
func (c Capabilities) IsRetryableVendorCode(code string) bool {
	for _, c := range c.RetryableErrors {
		if c == code {
			return true
		}
	}
	return false
}

// Zone is a provider-independent view of an authoritative DNS zone.
type Zone struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      string         `json:"status,omitempty"`
	RecordCount *int           `json:"recordCount,omitempty"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// DnsRecord is a provider-independent view of a single DNS record.
type DnsRecord struct {
	ID        string         `json:"id"`
	ZoneID    string         `json:"zoneId"`
	ZoneName  string         `json:"zoneName"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Value     string         `json:"value"`
	TTL       int            `json:"ttl"`
	Line      string         `json:"line,omitempty"`
	Weight    *int           `json:"weight,omitempty"`
	Priority  *int           `json:"priority,omitempty"`
	Status    string         `json:"status,omitempty"`
	Remark    string         `json:"remark,omitempty"`
	Proxied   *bool          `json:"proxied,omitempty"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// DnsLine is a provider-independent resolution-audience selector.
type DnsLine struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	ParentCode string `json:"parentCode,omitempty"`
}

// DefaultLineCode is always present and reserved across every vendor.
const DefaultLineCode = "default"

// RecordQuery narrows a getRecords call; every field is optional.
type RecordQuery struct {
	Page      int
	PageSize  int
	Keyword   string
	SubDomain string
	Type      string
	Value     string
	Line      string
	Status    string
}

// ServiceContext carries per-call identity: which vendor, which secrets,
// and the stable key the cache and adapter map use to namespace state.
type ServiceContext struct {
	Kind          ProviderKind
	Secrets       map[string]string
	AccountID     string
	CredentialKey string
}

// ZoneList is a page of zones plus the vendor-reported total, when known.
type ZoneList struct {
	Items []Zone
	Total int
}

// RecordList is a page of records plus the vendor-reported total, when known.
type RecordList struct {
	Items []DnsRecord
	Total int
}

// LineList is the set of resolution lines a zone (or the vendor account as
// a whole) exposes.
type LineList struct {
	Items []DnsLine
}

// RecordParams is the write payload for createRecord/updateRecord.
type RecordParams struct {
	Name     string
	Type     string
	Value    string
	TTL      int
	Line     string
	Weight   *int
	Priority *int
	Status   string
	Remark   *string
}
