// Package jdcloud adapts JD Cloud DNS to the canonical Provider
// interface, signed with the TC3-HMAC-SHA256 family (spec §4.2). JDCloud
// caps pageSize at 99 (spec §4.5 rule 9) and uses its own URL-forward
// type synonyms (rule 2).
package jdcloud

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const (
	apiHost    = "domainservice.jdcloud-api.com"
	apiVersion = "2018-08-31"
	apiService = "domainservice"
	apiRegion  = "cn-north-1"
	maxPageSize = 99
)

var lineNameToCode = map[string]string{
	types.DefaultLineCode: "0",
	"telecom":             "1",
	"unicom":               "2",
	"mobile":               "3",
	"oversea":              "4",
}
var lineCodeToName = reverseMap(lineNameToCode)

func reverseMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// vendorType/canonicalType map JDCloud's URL-forward synonyms onto the
// canonical REDIRECT_URL/FORWARD_URL tokens (spec §4.5 rule 2).
func vendorType(canonical string) string {
	switch canonical {
	case "REDIRECT_URL":
		return "EXPLICIT_URL"
	case "FORWARD_URL":
		return "IMPLICIT_URL"
	default:
		return canonical
	}
}

func canonicalType(vendor string) string {
	switch vendor {
	case "EXPLICIT_URL":
		return "REDIRECT_URL"
	case "IMPLICIT_URL":
		return "FORWARD_URL"
	default:
		return vendor
	}
}

func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.JDCloud,
		SupportsWeight:   true,
		SupportsLine:     true,
		SupportsStatus:   true,
		SupportsRemark:   false,
		SupportsURLForward: true,
		RequiresDomainID: true,
		RemarkMode:       types.RemarkUnsupported,
		Paging:           types.PagingServer,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "SRV", "NS", "REDIRECT_URL", "FORWARD_URL"},
		AuthFields: []types.AuthField{
			{Name: "accessKeyId", Label: "Access Key ID", Kind: types.AuthFieldText, Required: true},
			{Name: "secretAccessKey", Label: "Secret Access Key", Kind: types.AuthFieldPassword, Required: true},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{"Throttling", "InternalError"},
		MaxRetries:      3,
	}
}

type Provider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.TC3Signer

	mu        sync.Mutex
	zoneNames map[string]string
}

func New(secrets map[string]string) (providers.Provider, error) {
	if secrets["accessKeyId"] == "" || secrets["secretAccessKey"] == "" {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: "accessKeyId and secretAccessKey are required"}
	}
	return &Provider{
		base: baseprovider.New(Capabilities()),
		exec: transport.NewExecutor(nil),
		signer: signing.TC3Signer{
			SecretID:  secrets["accessKeyId"],
			SecretKey: secrets["secretAccessKey"],
			Service:   apiService,
			Region:    apiRegion,
			Host:      apiHost,
			Clock:     signing.RealClock{},
		},
		zoneNames: map[string]string{},
	}, nil
}

// zoneName maps a domain ID back to its domain name for FQDN assembly;
// record responses only carry the host-relative name. Primed by
// GetZones/GetZone, falls back to a lookup (and to the raw ID when even
// that fails, rather than failing the whole read).
func (p *Provider) zoneName(ctx context.Context, zoneID string) string {
	p.mu.Lock()
	if n, ok := p.zoneNames[zoneID]; ok {
		p.mu.Unlock()
		return n
	}
	p.mu.Unlock()
	z, err := p.GetZone(ctx, zoneID)
	if err != nil || z.Name == "" {
		return zoneID
	}
	return z.Name
}

func (p *Provider) rememberZone(id, name string) {
	if id == "" || name == "" {
		return
	}
	p.mu.Lock()
	p.zoneNames[id] = name
	p.mu.Unlock()
}

func (p *Provider) Capabilities() types.Capabilities { return Capabilities() }

func clampPageSize(pageSize int) int {
	if pageSize <= 0 || pageSize > maxPageSize {
		return maxPageSize
	}
	return pageSize
}

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, "DescribeDomains", map[string]any{"pageSize": 1})
	return err == nil
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	if page <= 0 {
		page = 1
	}
	body := map[string]any{"pageNumber": page, "pageSize": clampPageSize(pageSize)}
	if keyword != "" {
		body["domainName"] = keyword
	}
	result, err := p.call(ctx, "DescribeDomains", body)
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		Domains []struct {
			ID         string `json:"id"`
			DomainName string `json:"domainName"`
			Status     string `json:"status"`
			PackID     string `json:"packId"`
		} `json:"domains"`
		TotalCount int `json:"totalCount"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zones := make([]types.Zone, 0, len(parsed.Domains))
	for _, d := range parsed.Domains {
		zone := baseprovider.NormalizeZone(types.Zone{
			ID: d.ID, Name: d.DomainName, Status: d.Status,
			Meta: map[string]any{"packId": d.PackID},
		})
		p.rememberZone(zone.ID, zone.Name)
		zones = append(zones, zone)
	}
	return types.ZoneList{Items: zones, Total: parsed.TotalCount}, nil
}

func (p *Provider) GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error) {
	result, err := p.call(ctx, "DescribeDomain", map[string]any{"id": zoneIDOrName})
	if err != nil {
		return types.Zone{}, err
	}
	var d struct {
		ID         string `json:"id"`
		DomainName string `json:"domainName"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(result, &d); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zone := baseprovider.NormalizeZone(types.Zone{ID: d.ID, Name: d.DomainName, Status: d.Status})
	p.rememberZone(zone.ID, zone.Name)
	return zone, nil
}

func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	result, err := p.call(ctx, "AddDomain", map[string]any{"domainName": name})
	if err != nil {
		return types.Zone{}, err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return types.Zone{ID: created.ID, Name: name}, nil
}

type jdRecord struct {
	ID       string `json:"id"`
	HostRecord string `json:"hostRecord"`
	HostValue  string `json:"hostValue"`
	ViewValue  string `json:"viewValue"`
	Type       string `json:"type"`
	TTL        int    `json:"ttl"`
	Priority   int    `json:"mxPriority"`
	State      string `json:"state"`
}

func (r jdRecord) toRecord(zoneID, zoneName string) types.DnsRecord {
	status := ""
	switch r.State {
	case "1":
		status = "1"
	case "0":
		status = "0"
	}
	recordType := canonicalType(r.Type)
	var priority *int
	if recordType == "MX" {
		p := r.Priority
		priority = &p
	}
	line := r.ViewValue
	if canonical, ok := lineCodeToName[line]; ok {
		line = canonical
	} else if line == "" {
		line = types.DefaultLineCode
	}
	return types.DnsRecord{
		ID:       r.ID,
		ZoneID:   zoneID,
		ZoneName: zoneName,
		Name:     fromHostRecord(zoneName, r.HostRecord),
		Type:     recordType,
		Value:    r.HostValue,
		TTL:      r.TTL,
		Line:     line,
		Priority: priority,
		Status:   status,
	}
}

func toHostRecord(zone, fqdn string) string {
	name := baseprovider.NormalizeName(fqdn)
	zone = baseprovider.NormalizeName(zone)
	if name == zone {
		return "@"
	}
	return strings.TrimSuffix(name, "."+zone)
}

func fromHostRecord(zone, host string) string {
	if host == "@" || host == "" {
		return zone
	}
	return host + "." + zone
}

func (p *Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	page, pageSize := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	body := map[string]any{"domainId": zoneID, "pageNumber": page, "pageSize": clampPageSize(pageSize)}
	if q.Keyword != "" {
		body["hostRecord"] = q.Keyword
	}
	result, err := p.call(ctx, "DescribeResourceRecords", body)
	if err != nil {
		return types.RecordList{}, err
	}
	var parsed struct {
		ResourceRecords []jdRecord `json:"resourceRecords"`
		TotalCount      int        `json:"totalCount"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zoneName := p.zoneName(ctx, zoneID)
	out := make([]types.DnsRecord, 0, len(parsed.ResourceRecords))
	for _, r := range parsed.ResourceRecords {
		out = append(out, baseprovider.NormalizeRecord(r.toRecord(zoneID, zoneName)))
	}
	if q.Type != "" || q.Value != "" || q.Line != "" || q.Status != "" || q.SubDomain != "" {
		out = baseprovider.FilterRecordsClient(out, q)
	}
	return types.RecordList{Items: out, Total: parsed.TotalCount}, nil
}

func (p *Provider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	result, err := p.call(ctx, "DescribeResourceRecord", map[string]any{"domainId": zoneID, "resourceRecordId": recordID})
	if err != nil {
		return types.DnsRecord{}, err
	}
	var r jdRecord
	if err := json.Unmarshal(result, &r); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeRecord(r.toRecord(zoneID, p.zoneName(ctx, zoneID))), nil
}

func (p *Provider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	body := map[string]any{
		"domainId":   zoneID,
		"hostRecord": toHostRecord(p.zoneName(ctx, zoneID), params.Name),
		"hostValue":  params.Value,
		"type":       vendorType(params.Type),
		"ttl":        params.TTL,
	}
	if params.Line != "" {
		if code, ok := lineNameToCode[params.Line]; ok {
			body["viewValue"] = code
		} else {
			body["viewValue"] = params.Line
		}
	}
	if params.Priority != nil && params.Type == "MX" {
		body["mxPriority"] = *params.Priority
	}
	result, err := p.call(ctx, "AddResourceRecord", body)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return p.GetRecord(ctx, zoneID, created.ID)
}

func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	body := map[string]any{
		"domainId":         zoneID,
		"resourceRecordId": recordID,
		"hostRecord":       toHostRecord(p.zoneName(ctx, zoneID), params.Name),
		"hostValue":        params.Value,
		"type":             vendorType(params.Type),
		"ttl":              params.TTL,
	}
	if params.Line != "" {
		if code, ok := lineNameToCode[params.Line]; ok {
			body["viewValue"] = code
		} else {
			body["viewValue"] = params.Line
		}
	}
	if params.Priority != nil && params.Type == "MX" {
		body["mxPriority"] = *params.Priority
	}
	if _, err := p.call(ctx, "UpdateResourceRecord", body); err != nil {
		return types.DnsRecord{}, err
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	if _, err := p.call(ctx, "DeleteResourceRecord", map[string]any{"domainId": zoneID, "resourceRecordId": recordID}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	state := "0"
	if enabled {
		state = "1"
	}
	if _, err := p.call(ctx, "UpdateResourceRecordStatus", map[string]any{"domainId": zoneID, "resourceRecordId": recordID, "state": state}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	return types.LineList{Items: []types.DnsLine{
		{Code: types.DefaultLineCode, Name: "默认"},
		{Code: "telecom", Name: "电信"},
		{Code: "unicom", Name: "联通"},
		{Code: "mobile", Name: "移动"},
		{Code: "oversea", Name: "境外"},
	}}, nil
}

func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int { return 600 }

func (p *Provider) call(ctx context.Context, action string, body map[string]any) (json.RawMessage, error) {
	raw, _ := json.Marshal(body)
	headers := p.signer.Sign(action, apiVersion, raw)

	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:    http.MethodPost,
			URL:       "https://" + apiHost + "/?Action=" + action + "&Version=" + apiVersion,
			Headers:   headers,
			Body:      raw,
			ParseJSON: true,
		})
		if err != nil {
			return nil, err
		}
		var env struct {
			Error *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
			Result json.RawMessage `json:"result"`
		}
		responseRaw, _ := json.Marshal(resp.JSON)
		if err := json.Unmarshal(responseRaw, &env); err != nil {
			return nil, &types.Error{Kind: types.InvalidResponse, Message: err.Error(), HTTPStatus: resp.Status}
		}
		if env.Error != nil {
			kind := types.VendorError
			switch {
			case strings.Contains(env.Error.Code, "Auth"):
				kind = types.AuthFailed
			case strings.Contains(env.Error.Code, "NotFound"):
				kind = types.ZoneNotFound
			case strings.Contains(env.Error.Code, "Throttling"):
				kind = types.RateLimited
			}
			return nil, p.base.NewError(kind, env.Error.Code, env.Error.Message, resp.Status, nil)
		}
		return env.Result, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
