// Package aliyun adapts Alibaba Cloud DNS (alidns) to the canonical
// Provider interface. Requests are signed with Aliyun's HMAC-SHA1 query
// scheme (spec §4.2) and sent as GET calls against a single Action-style
// endpoint, grounded on the teacher's provider/alibabacloud adapter.
package aliyun

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const (
	endpoint   = "https://alidns.aliyuncs.com/"
	apiVersion = "2015-01-09"
	nullHost   = "@"
)

// lineToVendor/vendorToLine: Aliyun uses its own string codes for most
// lines and passes the canonical code through for anything it doesn't
// have a distinct mapping for (spec §4.5 rule 4).
var lineToVendor = map[string]string{
	types.DefaultLineCode: "default",
	"telecom":             "telecom",
	"unicom":               "unicom",
	"mobile":               "mobile",
	"oversea":              "oversea",
	"edu":                  "edu",
}

var vendorToLine = reverse(lineToVendor)

func reverse(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// Capabilities describes Aliyun's static feature set (spec §3).
func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.Aliyun,
		SupportsWeight:   false,
		SupportsLine:     true,
		SupportsStatus:   true,
		SupportsRemark:   true,
		SupportsURLForward: true,
		RequiresDomainID: false,
		RemarkMode:       types.RemarkSeparate,
		Paging:           types.PagingServer,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "SRV", "CAA", "NS", "REDIRECT_URL", "FORWARD_URL"},
		AuthFields: []types.AuthField{
			{Name: "accessKeyId", Label: "AccessKey ID", Kind: types.AuthFieldText, Required: true},
			{Name: "accessKeySecret", Label: "AccessKey Secret", Kind: types.AuthFieldPassword, Required: true},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{"Throttling", "ServiceUnavailable"},
		MaxRetries:      3,
	}
}

// Provider implements providers.Provider for Aliyun DNS.
type Provider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.AliyunSigner
}

// New builds an Aliyun adapter from decrypted secrets. Required fields:
// accessKeyId, accessKeySecret.
func New(secrets map[string]string) (providers.Provider, error) {
	ak, sk := secrets["accessKeyId"], secrets["accessKeySecret"]
	if ak == "" || sk == "" {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: "accessKeyId and accessKeySecret are required"}
	}
	return &Provider{
		base: baseprovider.New(Capabilities()),
		exec: transport.NewExecutor(nil),
		signer: signing.AliyunSigner{
			AccessKeyID:     ak,
			AccessKeySecret: sk,
			Clock:           signing.RealClock{},
			Nonces:          signing.RealNonceSource{},
		},
	}, nil
}

func (p *Provider) Capabilities() types.Capabilities { return Capabilities() }

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, map[string]string{"Action": "DescribeDomains", "PageSize": "1"})
	return err == nil
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	params := map[string]string{
		"Action":     "DescribeDomains",
		"PageNumber": strconv.Itoa(page),
		"PageSize":   strconv.Itoa(pageSize),
	}
	if keyword != "" {
		params["KeyWord"] = keyword
	}
	result, err := p.call(ctx, params)
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		TotalCount int `json:"TotalCount"`
		Domains    struct {
			Domain []struct {
				DomainName string `json:"DomainName"`
				DomainID   string `json:"DomainId"`
				RecordCount int   `json:"RecordCount"`
			} `json:"Domain"`
		} `json:"Domains"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zones := make([]types.Zone, 0, len(parsed.Domains.Domain))
	for _, d := range parsed.Domains.Domain {
		rc := d.RecordCount
		zones = append(zones, baseprovider.NormalizeZone(types.Zone{ID: d.DomainName, Name: d.DomainName, RecordCount: &rc}))
	}
	return types.ZoneList{Items: zones, Total: parsed.TotalCount}, nil
}

func (p *Provider) GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error) {
	result, err := p.call(ctx, map[string]string{"Action": "DescribeDomainInfo", "DomainName": zoneIDOrName})
	if err != nil {
		return types.Zone{}, err
	}
	var parsed struct {
		DomainName string `json:"DomainName"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeZone(types.Zone{ID: parsed.DomainName, Name: parsed.DomainName}), nil
}

func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	_, err := p.call(ctx, map[string]string{"Action": "AddDomain", "DomainName": name})
	if err != nil {
		return types.Zone{}, err
	}
	return types.Zone{ID: name, Name: name}, nil
}

func (p *Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	page, pageSize := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	params := map[string]string{
		"Action":     "DescribeDomainRecords",
		"DomainName": zoneID,
		"PageNumber": strconv.Itoa(page),
		"PageSize":   strconv.Itoa(pageSize),
	}
	if q.Keyword != "" {
		params["RRKeyWord"] = q.Keyword
	}
	if q.Type != "" {
		params["Type"] = q.Type
	}
	result, err := p.call(ctx, params)
	if err != nil {
		return types.RecordList{}, err
	}
	var parsed struct {
		TotalCount int `json:"TotalCount"`
		DomainRecords struct {
			Record []aliyunRecord `json:"Record"`
		} `json:"DomainRecords"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := make([]types.DnsRecord, 0, len(parsed.DomainRecords.Record))
	for _, r := range parsed.DomainRecords.Record {
		out = append(out, baseprovider.NormalizeRecord(r.toRecord(zoneID)))
	}
	if q.Value != "" || q.Line != "" || q.Status != "" || q.SubDomain != "" {
		out = baseprovider.FilterRecordsClient(out, q)
	}
	return types.RecordList{Items: out, Total: parsed.TotalCount}, nil
}

func (p *Provider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	result, err := p.call(ctx, map[string]string{"Action": "DescribeDomainRecordInfo", "RecordId": recordID})
	if err != nil {
		return types.DnsRecord{}, err
	}
	var r aliyunRecord
	if err := json.Unmarshal(result, &r); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeRecord(r.toRecord(zoneID)), nil
}

func (p *Provider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	rr := toRR(zoneID, params.Name)
	call := map[string]string{
		"Action":     "AddDomainRecord",
		"DomainName": zoneID,
		"RR":         rr,
		"Type":       params.Type,
		"Value":      params.Value,
		"TTL":        strconv.Itoa(params.TTL),
	}
	if params.Line != "" {
		call["Line"] = toVendorLine(params.Line)
	}
	if params.Priority != nil {
		call["Priority"] = strconv.Itoa(*params.Priority)
	}
	result, err := p.call(ctx, call)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var created struct {
		RecordID string `json:"RecordId"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}

	if params.Remark != nil && *params.Remark != "" {
		if _, err := p.call(ctx, map[string]string{"Action": "UpdateDomainRecordRemark", "RecordId": created.RecordID, "Remark": *params.Remark}); err != nil {
			// Best-effort compensating read: the record exists even though
			// the remark follow-up failed (spec §4.5 rule 7 / §7).
			rec, readErr := p.GetRecord(ctx, zoneID, created.RecordID)
			if readErr == nil {
				return rec, err.(*types.Error).WithMeta("partialSuccess", true)
			}
			return types.DnsRecord{}, err
		}
	}
	return p.GetRecord(ctx, zoneID, created.RecordID)
}

func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	rr := toRR(zoneID, params.Name)
	call := map[string]string{
		"Action":   "UpdateDomainRecord",
		"RecordId": recordID,
		"RR":       rr,
		"Type":     params.Type,
		"Value":    params.Value,
		"TTL":      strconv.Itoa(params.TTL),
	}
	if params.Line != "" {
		call["Line"] = toVendorLine(params.Line)
	}
	if params.Priority != nil {
		call["Priority"] = strconv.Itoa(*params.Priority)
	}
	if _, err := p.call(ctx, call); err != nil {
		return types.DnsRecord{}, err
	}
	if params.Remark != nil {
		if _, err := p.call(ctx, map[string]string{"Action": "UpdateDomainRecordRemark", "RecordId": recordID, "Remark": *params.Remark}); err != nil {
			rec, readErr := p.GetRecord(ctx, zoneID, recordID)
			if readErr == nil {
				return rec, err.(*types.Error).WithMeta("partialSuccess", true)
			}
			return types.DnsRecord{}, err
		}
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	if _, err := p.call(ctx, map[string]string{"Action": "DeleteDomainRecord", "RecordId": recordID}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	status := "Disable"
	if enabled {
		status = "Enable"
	}
	if _, err := p.call(ctx, map[string]string{"Action": "SetDomainRecordStatus", "RecordId": recordID, "Status": status}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	result, err := p.call(ctx, map[string]string{"Action": "DescribeSupportLines", "DomainName": zoneID})
	if err != nil {
		return types.LineList{}, err
	}
	var parsed struct {
		Lines struct {
			Line []struct {
				LineCode string `json:"LineCode"`
				LineName string `json:"LineName"`
			} `json:"Line"`
		} `json:"Lines"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.LineList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := []types.DnsLine{{Code: types.DefaultLineCode, Name: "default"}}
	for _, l := range parsed.Lines.Line {
		code := l.LineCode
		if canonical, ok := vendorToLine[code]; ok {
			code = canonical
		}
		if code == types.DefaultLineCode {
			continue
		}
		out = append(out, types.DnsLine{Code: code, Name: l.LineName})
	}
	return types.LineList{Items: out}, nil
}

func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int { return 600 }

func toVendorLine(canonical string) string {
	if v, ok := lineToVendor[canonical]; ok {
		return v
	}
	return canonical
}

// toRR converts a canonical FQDN into Aliyun's host-relative RR: the zone
// apex becomes "@", everything else strips the zone suffix (spec §4.5
// rule 1).
func toRR(zone, fqdn string) string {
	name := baseprovider.NormalizeName(fqdn)
	zone = baseprovider.NormalizeName(zone)
	if name == zone {
		return nullHost
	}
	return strings.TrimSuffix(name, "."+zone)
}

// fromRR converts Aliyun's host-relative RR back into a canonical FQDN.
func fromRR(zone, rr string) string {
	if rr == nullHost {
		return zone
	}
	return rr + "." + zone
}

type aliyunRecord struct {
	RecordID string `json:"RecordId"`
	RR       string `json:"RR"`
	Type     string `json:"Type"`
	Value    string `json:"Value"`
	TTL      int    `json:"TTL"`
	Line     string `json:"Line"`
	Priority *int   `json:"Priority,omitempty"`
	Status   string `json:"Status"`
	Remark   string `json:"Remark"`
}

func (r aliyunRecord) toRecord(zoneID string) types.DnsRecord {
	status := ""
	switch strings.ToUpper(r.Status) {
	case "ENABLE":
		status = "1"
	case "DISABLE":
		status = "0"
	}
	line := r.Line
	if canonical, ok := vendorToLine[line]; ok {
		line = canonical
	}
	return types.DnsRecord{
		ID:       r.RecordID,
		ZoneID:   zoneID,
		ZoneName: zoneID,
		Name:     fromRR(zoneID, r.RR),
		Type:     r.Type,
		Value:    r.Value,
		TTL:      r.TTL,
		Line:     line,
		Priority: r.Priority,
		Status:   status,
		Remark:   r.Remark,
	}
}

func (p *Provider) call(ctx context.Context, params map[string]string) (json.RawMessage, error) {
	params["Version"] = apiVersion
	signed := p.signer.Sign(http.MethodGet, params)

	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:    http.MethodGet,
			URL:       endpoint,
			Query:     signed,
			ParseJSON: true,
		})
		if err != nil {
			return nil, err
		}
		if code, ok := resp.JSON["Code"].(string); ok && code != "" {
			message, _ := resp.JSON["Message"].(string)
			kind := types.VendorError
			switch {
			case strings.Contains(code, "Forbidden") || strings.Contains(code, "InvalidAccessKeyId"):
				kind = types.AuthFailed
			case strings.Contains(code, "DomainNotExists") || strings.Contains(code, "DomainRecordNotBelongToUser"):
				kind = types.ZoneNotFound
			case strings.Contains(code, "Throttling"):
				kind = types.RateLimited
			}
			return nil, p.base.NewError(kind, code, message, resp.Status, nil)
		}
		raw, _ := json.Marshal(resp.JSON)
		return json.RawMessage(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
