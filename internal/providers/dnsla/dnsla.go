// Package dnsla adapts DNS.LA to the canonical Provider interface,
// authenticated with HTTP Basic (spec §4.2). DNS.LA represents record
// types as numeric IDs and exposes an "explicit redirect" flag under two
// inconsistently-spelled field names (spec §9 open question).
package dnsla

import (
	"context"
	"encoding/json"
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

const apiHost = "https://api.dns.la"

// typeToID/idToType: DNS.LA represents record types as small integers
// (spec §4.5 rule 2). URL forwarding shares one vendor type (urlForwardTypeID);
// the dominant flag distinguishes explicit redirects from framed forwards.
var typeToID = map[string]int{
	"A": 1, "CNAME": 2, "MX": 3, "TXT": 4, "NS": 5, "AAAA": 6, "SRV": 7, "CAA": 8,
	"REDIRECT_URL": urlForwardTypeID, "FORWARD_URL": urlForwardTypeID,
}
var idToType = reverseTypeMap(typeToID)

const urlForwardTypeID = 256

func reverseTypeMap(m map[string]int) map[int]string {
	out := make(map[int]string, len(m))
	for k, v := range m {
		if v == urlForwardTypeID {
			continue // resolved via the dominant flag, not the table
		}
		out[v] = k
	}
	return out
}

func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.DNSLA,
		SupportsWeight:   true,
		SupportsLine:     true,
		SupportsStatus:   true,
		SupportsRemark:   true,
		SupportsURLForward: true,
		RequiresDomainID: true,
		RemarkMode:       types.RemarkInline,
		Paging:           types.PagingServer,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS", "SRV", "CAA", "REDIRECT_URL", "FORWARD_URL"},
		AuthFields: []types.AuthField{
			{Name: "apiId", Label: "API ID", Kind: types.AuthFieldText, Required: true},
			{Name: "apiSecret", Label: "API Secret", Kind: types.AuthFieldPassword, Required: true},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{"50000"},
		MaxRetries:      3,
	}
}

type Provider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.BasicSigner

	mu        sync.Mutex
	zoneNames map[string]string
}

func New(secrets map[string]string) (providers.Provider, error) {
	if secrets["apiId"] == "" || secrets["apiSecret"] == "" {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: "apiId and apiSecret are required"}
	}
	return &Provider{
		base:      baseprovider.New(Capabilities()),
		exec:      transport.NewExecutor(nil),
		signer:    signing.BasicSigner{APIID: secrets["apiId"], APISecret: secrets["apiSecret"]},
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

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, http.MethodGet, "/api/domainList", map[string]string{"pageSize": "1"}, nil)
	return err == nil
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	query := map[string]string{"pageIndex": strconv.Itoa(page), "pageSize": strconv.Itoa(pageSize)}
	if keyword != "" {
		query["keyword"] = keyword
	}
	result, err := p.call(ctx, http.MethodGet, "/api/domainList", query, nil)
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		Data struct {
			Records []struct {
				ID         string `json:"id"`
				DomainName string `json:"domain"`
				State      int    `json:"state"`
			} `json:"records"`
			Total int `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zones := make([]types.Zone, 0, len(parsed.Data.Records))
	for _, d := range parsed.Data.Records {
		status := "0"
		if d.State == 1 {
			status = "1"
		}
		zone := baseprovider.NormalizeZone(types.Zone{ID: d.ID, Name: d.DomainName, Status: status})
		p.rememberZone(zone.ID, zone.Name)
		zones = append(zones, zone)
	}
	return types.ZoneList{Items: zones, Total: parsed.Data.Total}, nil
}

func (p *Provider) GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error) {
	result, err := p.call(ctx, http.MethodGet, "/api/domain", map[string]string{"domainId": zoneIDOrName}, nil)
	if err != nil {
		return types.Zone{}, err
	}
	var parsed struct {
		Data struct {
			ID     string `json:"id"`
			Domain string `json:"domain"`
			State  int    `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	status := "0"
	if parsed.Data.State == 1 {
		status = "1"
	}
	zone := baseprovider.NormalizeZone(types.Zone{ID: parsed.Data.ID, Name: parsed.Data.Domain, Status: status})
	p.rememberZone(zone.ID, zone.Name)
	return zone, nil
}

func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	body, _ := json.Marshal(map[string]any{"domain": name})
	result, err := p.call(ctx, http.MethodPost, "/api/domain", nil, body)
	if err != nil {
		return types.Zone{}, err
	}
	var parsed struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return types.Zone{ID: parsed.Data.ID, Name: name}, nil
}

type dnslaRecord struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Type     int    `json:"type"`
	Value    string `json:"value"`
	TTL      int    `json:"ttl"`
	Line     string `json:"line"`
	Weight   *int   `json:"weight,omitempty"`
	State    int    `json:"state"`
	Remark   string `json:"remark"`
	// Dominant/DomainT: the explicit-redirect flag appears under either
	// spelling depending on API version (spec §9 open question); both are
	// treated as the same boolean.
	Dominant *bool `json:"dominant,omitempty"`
	DomainT  *bool `json:"domaint,omitempty"`
}

func (r dnslaRecord) explicitRedirect() bool {
	if r.Dominant != nil {
		return *r.Dominant
	}
	if r.DomainT != nil {
		return *r.DomainT
	}
	return false
}

func (r dnslaRecord) toRecord(zoneID, zoneName string) types.DnsRecord {
	status := "0"
	if r.State == 1 {
		status = "1"
	}
	recordType := idToType[r.Type]
	if r.Type == urlForwardTypeID {
		if r.explicitRedirect() {
			recordType = "REDIRECT_URL"
		} else {
			recordType = "FORWARD_URL"
		}
	}
	meta := map[string]any{"explicitRedirect": r.explicitRedirect()}
	return types.DnsRecord{
		ID:       r.ID,
		ZoneID:   zoneID,
		ZoneName: zoneName,
		Name:     fromHost(zoneName, r.Host),
		Type:     recordType,
		Value:    r.Value,
		TTL:      r.TTL,
		Line:     r.Line,
		Weight:   r.Weight,
		Status:   status,
		Remark:   r.Remark,
		Meta:     meta,
	}
}

func toHost(zone, fqdn string) string {
	name := baseprovider.NormalizeName(fqdn)
	zone = baseprovider.NormalizeName(zone)
	if name == zone {
		return "@"
	}
	return strings.TrimSuffix(name, "."+zone)
}

func fromHost(zone, host string) string {
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
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	query := map[string]string{"domainId": zoneID, "pageIndex": strconv.Itoa(page), "pageSize": strconv.Itoa(pageSize)}
	if q.Keyword != "" {
		query["keyword"] = q.Keyword
	}
	if t, ok := typeToID[q.Type]; ok {
		query["type"] = strconv.Itoa(t)
	}
	result, err := p.call(ctx, http.MethodGet, "/api/recordList", query, nil)
	if err != nil {
		return types.RecordList{}, err
	}
	var parsed struct {
		Data struct {
			Records []dnslaRecord `json:"records"`
			Total   int           `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zoneName := p.zoneName(ctx, zoneID)
	out := make([]types.DnsRecord, 0, len(parsed.Data.Records))
	for _, r := range parsed.Data.Records {
		out = append(out, baseprovider.NormalizeRecord(r.toRecord(zoneID, zoneName)))
	}
	if q.Value != "" || q.Line != "" || q.Status != "" || q.SubDomain != "" {
		out = baseprovider.FilterRecordsClient(out, q)
	}
	return types.RecordList{Items: out, Total: parsed.Data.Total}, nil
}

func (p *Provider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	result, err := p.call(ctx, http.MethodGet, "/api/record", map[string]string{"domainId": zoneID, "recordId": recordID}, nil)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var parsed struct {
		Data dnslaRecord `json:"data"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeRecord(parsed.Data.toRecord(zoneID, p.zoneName(ctx, zoneID))), nil
}

func (p *Provider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	body := map[string]any{
		"domainId": zoneID,
		"host":     toHost(p.zoneName(ctx, zoneID), params.Name),
		"type":     typeToID[params.Type],
		"value":    params.Value,
		"ttl":      params.TTL,
	}
	if params.Type == "REDIRECT_URL" || params.Type == "FORWARD_URL" {
		body["dominant"] = params.Type == "REDIRECT_URL"
	}
	if params.Line != "" {
		body["line"] = params.Line
	}
	if params.Weight != nil {
		body["weight"] = *params.Weight
	}
	if params.Remark != nil {
		body["remark"] = *params.Remark
	}
	raw, _ := json.Marshal(body)
	result, err := p.call(ctx, http.MethodPost, "/api/record", nil, raw)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var parsed struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return p.GetRecord(ctx, zoneID, parsed.Data.ID)
}

func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	body := map[string]any{
		"domainId": zoneID,
		"recordId": recordID,
		"host":     toHost(p.zoneName(ctx, zoneID), params.Name),
		"type":     typeToID[params.Type],
		"value":    params.Value,
		"ttl":      params.TTL,
	}
	if params.Type == "REDIRECT_URL" || params.Type == "FORWARD_URL" {
		body["dominant"] = params.Type == "REDIRECT_URL"
	}
	if params.Line != "" {
		body["line"] = params.Line
	}
	if params.Remark != nil {
		body["remark"] = *params.Remark
	}
	raw, _ := json.Marshal(body)
	if _, err := p.call(ctx, http.MethodPut, "/api/record", nil, raw); err != nil {
		return types.DnsRecord{}, err
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	if _, err := p.call(ctx, http.MethodDelete, "/api/record", map[string]string{"domainId": zoneID, "recordId": recordID}, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	state := "0"
	if enabled {
		state = "1"
	}
	body, _ := json.Marshal(map[string]any{"domainId": zoneID, "recordId": recordID, "state": state})
	if _, err := p.call(ctx, http.MethodPut, "/api/record/state", nil, body); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	result, err := p.call(ctx, http.MethodGet, "/api/lineList", map[string]string{"domainId": zoneID}, nil)
	if err != nil {
		return types.LineList{}, err
	}
	var parsed struct {
		Data []struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.LineList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := []types.DnsLine{{Code: types.DefaultLineCode, Name: "default"}}
	for _, l := range parsed.Data {
		if l.Code == types.DefaultLineCode {
			continue
		}
		out = append(out, types.DnsLine{Code: l.Code, Name: l.Name})
	}
	return types.LineList{Items: out}, nil
}

func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int { return 600 }

func (p *Provider) call(ctx context.Context, method, path string, query map[string]string, body []byte) (json.RawMessage, error) {
	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		headers := map[string]string{"Authorization": p.signer.Header()}
		if body != nil {
			headers["Content-Type"] = "application/json"
		}
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:    method,
			URL:       apiHost + path,
			Query:     query,
			Headers:   headers,
			Body:      body,
			ParseJSON: true,
		})
		if err != nil {
			return nil, err
		}
		var env struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		raw, _ := json.Marshal(resp.JSON)
		_ = json.Unmarshal(raw, &env)
		if env.Code != 0 && env.Code != 200 {
			kind := types.VendorError
			switch env.Code {
			case 40100, 40101:
				kind = types.AuthFailed
			case 40400:
				kind = types.ZoneNotFound
			case 42900:
				kind = types.RateLimited
			}
			return nil, p.base.NewError(kind, strconv.Itoa(env.Code), env.Message, resp.Status, nil)
		}
		return json.RawMessage(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
