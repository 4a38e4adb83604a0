// Package huawei adapts Huawei Cloud DNS to the canonical Provider
// interface, signing every request with SDK-HMAC-SHA256 (spec §4.2).
// Huawei groups same-name-same-type records into a recordset; the
// canonical DnsRecord.id encodes both the recordset id and the member
// index (spec §4.5 rule 10).
package huawei

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const apiHost = "dns.myhuaweicloud.com"

// filteredTypes are omitted from record listings, matching the upstream
// source's behaviour (spec §9 open question).
var filteredTypes = map[string]bool{"PTR": true, "SOA": true}

func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.Huawei,
		SupportsWeight:   true,
		SupportsLine:     true,
		SupportsStatus:   true,
		SupportsRemark:   true,
		RequiresDomainID: true,
		RemarkMode:       types.RemarkInline,
		Paging:           types.PagingServer,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "SRV", "CAA", "NS"},
		AuthFields: []types.AuthField{
			{Name: "accessKeyId", Label: "Access Key ID", Kind: types.AuthFieldText, Required: true},
			{Name: "secretAccessKey", Label: "Secret Access Key", Kind: types.AuthFieldPassword, Required: true},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{"DNS.0105", "throttling"},
		MaxRetries:      3,
	}
}

type Provider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.HuaweiSigner

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
		signer: signing.HuaweiSigner{
			AccessKeyID:     secrets["accessKeyId"],
			SecretAccessKey: secrets["secretAccessKey"],
			Clock:           signing.RealClock{},
		},
		zoneNames: map[string]string{},
	}, nil
}

// zoneName maps Huawei's opaque zone UUID back to the zone's domain name
// so DnsRecord.ZoneName carries the name, not the handle. Primed by
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

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, http.MethodGet, "/v2/zones", map[string]string{"limit": "1"}, nil)
	return err == nil
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 100
	}
	if page <= 0 {
		page = 1
	}
	query := map[string]string{"limit": strconv.Itoa(pageSize), "offset": strconv.Itoa((page - 1) * pageSize)}
	if keyword != "" {
		query["name"] = keyword
	}
	result, err := p.call(ctx, http.MethodGet, "/v2/zones", query, nil)
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		Zones []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			Status     string `json:"status"`
			RecordNum  int    `json:"record_num"`
		} `json:"zones"`
		Metadata struct {
			TotalCount int `json:"total_count"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zones := make([]types.Zone, 0, len(parsed.Zones))
	for _, z := range parsed.Zones {
		rc := z.RecordNum
		zone := baseprovider.NormalizeZone(types.Zone{ID: z.ID, Name: z.Name, Status: z.Status, RecordCount: &rc})
		p.rememberZone(zone.ID, zone.Name)
		zones = append(zones, zone)
	}
	return types.ZoneList{Items: zones, Total: parsed.Metadata.TotalCount}, nil
}

func (p *Provider) GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error) {
	result, err := p.call(ctx, http.MethodGet, "/v2/zones/"+zoneIDOrName, nil, nil)
	if err != nil {
		return types.Zone{}, err
	}
	var z struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(result, &z); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zone := baseprovider.NormalizeZone(types.Zone{ID: z.ID, Name: z.Name, Status: z.Status})
	p.rememberZone(zone.ID, zone.Name)
	return zone, nil
}

func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	body, _ := json.Marshal(map[string]any{"name": name + ".", "zone_type": "public"})
	result, err := p.call(ctx, http.MethodPost, "/v2/zones", nil, body)
	if err != nil {
		return types.Zone{}, err
	}
	var z struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(result, &z); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zone := types.Zone{ID: z.ID, Name: baseprovider.NormalizeName(z.Name)}
	p.rememberZone(zone.ID, zone.Name)
	return zone, nil
}

type recordset struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	TTL     int      `json:"ttl"`
	Records []string `json:"records"`
	Line    string   `json:"line"`
	Status  string   `json:"status"`
	Description string `json:"description"`
	Weight  *int     `json:"weight,omitempty"`
}

func (p *Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	page, pageSize := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 100
	}
	query := map[string]string{"limit": strconv.Itoa(pageSize), "offset": strconv.Itoa((page - 1) * pageSize)}
	if q.Keyword != "" {
		query["name"] = q.Keyword
	}
	if q.Type != "" {
		query["type"] = q.Type
	}
	result, err := p.call(ctx, http.MethodGet, "/v2/zones/"+zoneID+"/recordsets", query, nil)
	if err != nil {
		return types.RecordList{}, err
	}
	var parsed struct {
		Recordsets []recordset `json:"recordsets"`
		Metadata   struct {
			TotalCount int `json:"total_count"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zoneName := p.zoneName(ctx, zoneID)
	var out []types.DnsRecord
	for _, rs := range parsed.Recordsets {
		if filteredTypes[rs.Type] {
			continue
		}
		out = append(out, expandRecordset(zoneID, zoneName, rs)...)
	}
	if q.Value != "" || q.Line != "" || q.Status != "" || q.SubDomain != "" {
		out = baseprovider.FilterRecordsClient(out, q)
	}
	return types.RecordList{Items: out, Total: parsed.Metadata.TotalCount}, nil
}

func expandRecordset(zoneID, zoneName string, rs recordset) []types.DnsRecord {
	out := make([]types.DnsRecord, 0, len(rs.Records))
	status := ""
	switch strings.ToUpper(rs.Status) {
	case "ACTIVE":
		status = "1"
	case "DISABLE":
		status = "0"
	}
	for idx, wire := range rs.Records {
		value, priority := decodeValue(rs.Type, wire)
		out = append(out, baseprovider.NormalizeRecord(types.DnsRecord{
			ID:       composeID(rs.ID, idx),
			ZoneID:   zoneID,
			ZoneName: zoneName,
			Name:     rs.Name,
			Type:     rs.Type,
			Value:    value,
			TTL:      rs.TTL,
			Line:     lineCodeFor(rs.Line),
			Priority: priority,
			Weight:   rs.Weight,
			Status:   status,
			Remark:   rs.Description,
		}))
	}
	return out
}

func composeID(recordsetID string, idx int) string {
	return fmt.Sprintf("%s|%d", recordsetID, idx)
}

func splitID(id string) (recordsetID string, idx int, err error) {
	parts := strings.SplitN(id, "|", 2)
	if len(parts) != 2 {
		return "", 0, &types.Error{Kind: types.InvalidValue, Message: "malformed huawei record id: " + id}
	}
	idx, convErr := strconv.Atoi(parts[1])
	if convErr != nil {
		return "", 0, &types.Error{Kind: types.InvalidValue, Message: "malformed huawei record id: " + id}
	}
	return parts[0], idx, nil
}

// encodeValue applies the wire-format transforms for the record type: TXT
// values are wrapped in quotes, CNAME/MX/NS values gain a trailing dot, MX
// priority is prefixed onto the value (spec §4.5 rules 3/5/6 and S4).
func encodeValue(recordType, value string, priority *int) string {
	switch recordType {
	case "TXT":
		return `"` + value + `"`
	case "MX":
		p := 10
		if priority != nil {
			p = *priority
		}
		return fmt.Sprintf("%d %s.", p, strings.TrimSuffix(value, "."))
	case "CNAME", "NS":
		return strings.TrimSuffix(value, ".") + "."
	default:
		return value
	}
}

func decodeValue(recordType, wire string) (value string, priority *int) {
	switch recordType {
	case "TXT":
		return strings.Trim(wire, `"`), nil
	case "MX":
		parts := strings.SplitN(wire, " ", 2)
		if len(parts) == 2 {
			if p, err := strconv.Atoi(parts[0]); err == nil {
				target := strings.TrimSuffix(parts[1], ".")
				return target, &p
			}
		}
		return strings.TrimSuffix(wire, "."), nil
	case "CNAME", "NS":
		return strings.TrimSuffix(wire, "."), nil
	default:
		return wire, nil
	}
}

func (p *Provider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	recordsetID, idx, err := splitID(recordID)
	if err != nil {
		return types.DnsRecord{}, err
	}
	result, err := p.call(ctx, http.MethodGet, "/v2/zones/"+zoneID+"/recordsets/"+recordsetID, nil, nil)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var rs recordset
	if err := json.Unmarshal(result, &rs); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	records := expandRecordset(zoneID, p.zoneName(ctx, zoneID), rs)
	if idx < 0 || idx >= len(records) {
		return types.DnsRecord{}, &types.Error{Kind: types.RecordNotFound, Message: "record index out of range: " + recordID}
	}
	return records[idx], nil
}

func (p *Provider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	body := map[string]any{
		"name":    ensureFQDN(params.Name),
		"type":    params.Type,
		"ttl":     params.TTL,
		"records": []string{encodeValue(params.Type, params.Value, params.Priority)},
	}
	if params.Line != "" {
		body["line"] = vendorLineFor(params.Line)
	}
	if params.Weight != nil {
		body["weight"] = *params.Weight
	}
	if params.Remark != nil {
		body["description"] = *params.Remark
	}
	raw, _ := json.Marshal(body)
	result, err := p.call(ctx, http.MethodPost, "/v2/zones/"+zoneID+"/recordsets", nil, raw)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var rs recordset
	if err := json.Unmarshal(result, &rs); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return p.GetRecord(ctx, zoneID, composeID(rs.ID, 0))
}

func ensureFQDN(name string) string {
	return strings.TrimSuffix(name, ".") + "."
}

func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	recordsetID, idx, err := splitID(recordID)
	if err != nil {
		return types.DnsRecord{}, err
	}
	result, err := p.call(ctx, http.MethodGet, "/v2/zones/"+zoneID+"/recordsets/"+recordsetID, nil, nil)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var rs recordset
	if err := json.Unmarshal(result, &rs); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	if idx < 0 || idx >= len(rs.Records) {
		return types.DnsRecord{}, &types.Error{Kind: types.RecordNotFound, Message: "record index out of range: " + recordID}
	}
	rs.Records[idx] = encodeValue(params.Type, params.Value, params.Priority)
	body := map[string]any{
		"name":    ensureFQDN(params.Name),
		"ttl":     params.TTL,
		"records": rs.Records,
	}
	if params.Line != "" {
		body["line"] = vendorLineFor(params.Line)
	}
	if params.Remark != nil {
		body["description"] = *params.Remark
	}
	raw, _ := json.Marshal(body)
	if _, err := p.call(ctx, http.MethodPut, "/v2/zones/"+zoneID+"/recordsets/"+recordsetID, nil, raw); err != nil {
		return types.DnsRecord{}, err
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	recordsetID, idx, err := splitID(recordID)
	if err != nil {
		return false, err
	}
	result, err := p.call(ctx, http.MethodGet, "/v2/zones/"+zoneID+"/recordsets/"+recordsetID, nil, nil)
	if err != nil {
		return false, err
	}
	var rs recordset
	if err := json.Unmarshal(result, &rs); err != nil {
		return false, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	if len(rs.Records) <= 1 {
		if _, err := p.call(ctx, http.MethodDelete, "/v2/zones/"+zoneID+"/recordsets/"+recordsetID, nil, nil); err != nil {
			return false, err
		}
		return true, nil
	}
	if idx < 0 || idx >= len(rs.Records) {
		return false, &types.Error{Kind: types.RecordNotFound, Message: "record index out of range: " + recordID}
	}
	rs.Records = append(rs.Records[:idx], rs.Records[idx+1:]...)
	body, _ := json.Marshal(map[string]any{"records": rs.Records})
	if _, err := p.call(ctx, http.MethodPut, "/v2/zones/"+zoneID+"/recordsets/"+recordsetID, nil, body); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	recordsetID, _, err := splitID(recordID)
	if err != nil {
		return false, err
	}
	status := "DISABLE"
	if enabled {
		status = "ACTIVE"
	}
	body, _ := json.Marshal(map[string]any{"status": status})
	if _, err := p.call(ctx, http.MethodPut, "/v2/zones/"+zoneID+"/recordsets/"+recordsetID+"/statuses/set", nil, body); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	return types.LineList{Items: loadLines()}, nil
}

func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int { return 300 }

func (p *Provider) call(ctx context.Context, method, path string, query map[string]string, body []byte) (json.RawMessage, error) {
	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		headers := p.signer.Sign(method, apiHost, path, query, map[string]string{"Content-Type": "application/json"}, body)
		headers["Content-Type"] = "application/json"
		url := "https://" + apiHost + path
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:    method,
			URL:       url,
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
				ErrorMsg struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			raw, _ := json.Marshal(resp.JSON)
			_ = json.Unmarshal(raw, &ve)
			code := ve.Code
			msg := ve.Message
			if code == "" {
				code = ve.ErrorMsg.Code
				msg = ve.ErrorMsg.Message
			}
			kind := types.VendorError
			switch {
			case resp.Status == 401 || resp.Status == 403:
				kind = types.AuthFailed
			case resp.Status == 404:
				kind = types.ZoneNotFound
			case resp.Status == 429:
				kind = types.RateLimited
			}
			return nil, p.base.NewError(kind, code, msg, resp.Status, nil)
		}
		raw, _ := json.Marshal(resp.JSON)
		return json.RawMessage(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
