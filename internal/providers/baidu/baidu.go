// Package baidu adapts Baidu Cloud DNS to the canonical Provider
// interface, signing every request with the bce-auth-v1 scheme (spec
// §4.2).
package baidu

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const apiHost = "dns.baidubce.com"

func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.Baidu,
		SupportsWeight:   false,
		SupportsLine:     true,
		SupportsStatus:   true,
		SupportsRemark:   false,
		RequiresDomainID: false,
		RemarkMode:       types.RemarkUnsupported,
		Paging:           types.PagingClient,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "SRV", "NS"},
		AuthFields: []types.AuthField{
			{Name: "accessKeyId", Label: "Access Key ID", Kind: types.AuthFieldText, Required: true},
			{Name: "secretAccessKey", Label: "Secret Access Key", Kind: types.AuthFieldPassword, Required: true},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{"RequestLimitExceeded", "InternalError"},
		MaxRetries:      3,
	}
}

var lineNameToCode = map[string]string{
	types.DefaultLineCode: "default",
	"telecom":             "dianxin",
	"unicom":              "liantong",
	"mobile":              "yidong",
	"oversea":             "hw",
}
var lineCodeToName = reverseMap(lineNameToCode)

func reverseMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

type Provider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.BCESigner
}

func New(secrets map[string]string) (providers.Provider, error) {
	if secrets["accessKeyId"] == "" || secrets["secretAccessKey"] == "" {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: "accessKeyId and secretAccessKey are required"}
	}
	return &Provider{
		base: baseprovider.New(Capabilities()),
		exec: transport.NewExecutor(nil),
		signer: signing.BCESigner{
			AccessKeyID:     secrets["accessKeyId"],
			SecretAccessKey: secrets["secretAccessKey"],
			Clock:           signing.RealClock{},
		},
	}, nil
}

func (p *Provider) Capabilities() types.Capabilities { return Capabilities() }

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, http.MethodGet, "/v1/zones", nil, nil)
	return err == nil
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	result, err := p.call(ctx, http.MethodGet, "/v1/zones", nil, nil)
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		Zones []struct {
			Name        string `json:"name"`
			Status      string `json:"status"`
			RecordCount int    `json:"recordCount"`
		} `json:"zones"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	var zones []types.Zone
	for _, z := range parsed.Zones {
		if keyword != "" && !strings.Contains(strings.ToLower(z.Name), strings.ToLower(keyword)) {
			continue
		}
		rc := z.RecordCount
		zones = append(zones, baseprovider.NormalizeZone(types.Zone{ID: z.Name, Name: z.Name, Status: z.Status, RecordCount: &rc}))
	}
	total := len(zones)
	return types.ZoneList{Items: paginateZones(zones, page, pageSize), Total: total}, nil
}

func paginateZones(items []types.Zone, page, pageSize int) []types.Zone {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []types.Zone{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (p *Provider) GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error) {
	result, err := p.call(ctx, http.MethodGet, "/v1/zones/"+zoneIDOrName, nil, nil)
	if err != nil {
		return types.Zone{}, err
	}
	var z struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(result, &z); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeZone(types.Zone{ID: z.Name, Name: z.Name, Status: z.Status}), nil
}

func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	body, _ := json.Marshal(map[string]any{"name": name})
	if _, err := p.call(ctx, http.MethodPost, "/v1/zones", nil, body); err != nil {
		return types.Zone{}, err
	}
	return types.Zone{ID: name, Name: name}, nil
}

type baiduRecord struct {
	RecordId string `json:"recordId"`
	Rr       string `json:"rr"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Ttl      int    `json:"ttl"`
	Line     string `json:"line"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`
}

func (r baiduRecord) toRecord(zoneID string) types.DnsRecord {
	status := ""
	switch r.Status {
	case "enable":
		status = "1"
	case "disable":
		status = "0"
	}
	var priority *int
	if r.Type == "MX" {
		p := r.Priority
		priority = &p
	}
	line := r.Line
	if canonical, ok := lineCodeToName[line]; ok {
		line = canonical
	}
	return types.DnsRecord{
		ID:       r.RecordId,
		ZoneID:   zoneID,
		ZoneName: zoneID,
		Name:     fromRR(zoneID, r.Rr),
		Type:     r.Type,
		Value:    r.Value,
		TTL:      r.Ttl,
		Line:     line,
		Priority: priority,
		Status:   status,
	}
}

func toRR(zone, fqdn string) string {
	name := baseprovider.NormalizeName(fqdn)
	zone = baseprovider.NormalizeName(zone)
	if name == zone {
		return "@"
	}
	return strings.TrimSuffix(name, "."+zone)
}

func fromRR(zone, rr string) string {
	if rr == "@" {
		return zone
	}
	return rr + "." + zone
}

// Baidu paginates client-side: it reports no server total and offers no
// filter params beyond rr/type, so every call fetches the full list and
// delegates to FilterRecordsClient/PaginateClient (spec §4.5 rule 8).
func (p *Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	result, err := p.call(ctx, http.MethodGet, "/v1/zones/"+zoneID+"/records", nil, nil)
	if err != nil {
		return types.RecordList{}, err
	}
	var parsed struct {
		Records []baiduRecord `json:"records"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := make([]types.DnsRecord, 0, len(parsed.Records))
	for _, r := range parsed.Records {
		out = append(out, baseprovider.NormalizeRecord(r.toRecord(zoneID)))
	}
	out = baseprovider.FilterRecordsClient(out, q)
	total := len(out)
	out = baseprovider.PaginateClient(out, q.Page, q.PageSize)
	return types.RecordList{Items: out, Total: total}, nil
}

func (p *Provider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	result, err := p.call(ctx, http.MethodGet, "/v1/zones/"+zoneID+"/records/"+recordID, nil, nil)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var r baiduRecord
	if err := json.Unmarshal(result, &r); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeRecord(r.toRecord(zoneID)), nil
}

func (p *Provider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	body := map[string]any{
		"rr":    toRR(zoneID, params.Name),
		"type":  params.Type,
		"value": params.Value,
		"ttl":   params.TTL,
		"line":  "default",
	}
	if params.Line != "" {
		if code, ok := lineNameToCode[params.Line]; ok {
			body["line"] = code
		} else {
			body["line"] = params.Line
		}
	}
	if params.Priority != nil && params.Type == "MX" {
		body["priority"] = *params.Priority
	}
	raw, _ := json.Marshal(body)
	result, err := p.call(ctx, http.MethodPost, "/v1/zones/"+zoneID+"/records", nil, raw)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var created struct {
		RecordId string `json:"recordId"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return p.GetRecord(ctx, zoneID, created.RecordId)
}

func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	body := map[string]any{
		"rr":    toRR(zoneID, params.Name),
		"type":  params.Type,
		"value": params.Value,
		"ttl":   params.TTL,
		"line":  "default",
	}
	if params.Line != "" {
		if code, ok := lineNameToCode[params.Line]; ok {
			body["line"] = code
		} else {
			body["line"] = params.Line
		}
	}
	if params.Priority != nil && params.Type == "MX" {
		body["priority"] = *params.Priority
	}
	raw, _ := json.Marshal(body)
	if _, err := p.call(ctx, http.MethodPut, "/v1/zones/"+zoneID+"/records/"+recordID, nil, raw); err != nil {
		return types.DnsRecord{}, err
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	if _, err := p.call(ctx, http.MethodDelete, "/v1/zones/"+zoneID+"/records/"+recordID, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	status := "disable"
	if enabled {
		status = "enable"
	}
	body, _ := json.Marshal(map[string]any{"status": status})
	if _, err := p.call(ctx, http.MethodPut, "/v1/zones/"+zoneID+"/records/"+recordID+"/status", nil, body); err != nil {
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
		{Code: "oversea", Name: "海外"},
	}}, nil
}

func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int { return 600 }

func (p *Provider) call(ctx context.Context, method, path string, query map[string]string, body []byte) (json.RawMessage, error) {
	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		headers := map[string]string{"Content-Type": "application/json"}
		if body != nil {
			headers["Content-Type"] = "application/json"
		}
		authHeader := p.signer.Sign(method, path, query, headers)
		headers["Authorization"] = authHeader
		headers["Host"] = apiHost
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:    method,
			URL:       "https://" + apiHost + path,
			Query:     query,
			Headers:   headers,
			Body:      body,
			ParseJSON: true,
		})
		if err != nil {
			return nil, err
		}
		if resp.Status >= 400 {
			var ve struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			raw, _ := json.Marshal(resp.JSON)
			_ = json.Unmarshal(raw, &ve)
			kind := types.VendorError
			switch {
			case resp.Status == 401 || resp.Status == 403:
				kind = types.AuthFailed
			case resp.Status == 404:
				kind = types.ZoneNotFound
			case resp.Status == 429:
				kind = types.RateLimited
			}
			return nil, p.base.NewError(kind, ve.Code, ve.Message, resp.Status, nil)
		}
		raw, _ := json.Marshal(resp.JSON)
		return json.RawMessage(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
