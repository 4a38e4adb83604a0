// Package cloudflare adapts Cloudflare's DNS API to the canonical
// Provider interface. Cloudflare authenticates with a bearer API token
// (spec §4.2 header-API-key family) and uses opaque zone/record IDs, so
// Capabilities.RequiresDomainID is true.
package cloudflare

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const apiBase = "https://api.cloudflare.com/client/v4"

// Capabilities describes Cloudflare's static feature set (spec §3).
func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.Cloudflare,
		SupportsWeight:   false,
		SupportsLine:     false,
		SupportsStatus:   false,
		SupportsRemark:   true,
		RequiresDomainID: true,
		RemarkMode:       types.RemarkInline,
		Paging:           types.PagingServer,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "SRV", "CAA", "NS", "HTTPS", "TLSA"},
		AuthFields: []types.AuthField{
			{Name: "apiToken", Label: "API Token", Kind: types.AuthFieldPassword, Required: true},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{"1015"},
		MaxRetries:      3,
	}
}

// Provider implements providers.Provider for Cloudflare.
type Provider struct {
	base     baseprovider.Base
	exec     *transport.Executor
	apiToken string

	mu        sync.Mutex
	zoneNames map[string]string
}

// New builds a Cloudflare adapter from decrypted secrets. Required field:
// apiToken.
func New(secrets map[string]string) (providers.Provider, error) {
	token := secrets["apiToken"]
	if token == "" {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: "apiToken is required"}
	}
	return &Provider{
		base:      baseprovider.New(Capabilities()),
		exec:      transport.NewExecutor(nil),
		apiToken:  token,
		zoneNames: map[string]string{},
	}, nil
}

// zoneName maps Cloudflare's opaque zone ID back to the zone's domain
// name so DnsRecord.ZoneName carries the name, not the handle. Primed by
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

func (p *Provider) signedHeaders() map[string]string {
	sr := signing.APIKeySigner{Scheme: signing.SchemeBearer, Token: p.apiToken}.Sign()
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range sr.Headers {
		headers[k] = v
	}
	return headers
}

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.do(ctx, http.MethodGet, "/user/tokens/verify", nil, nil)
	return err == nil
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	if pageSize <= 0 || pageSize > 50 {
		pageSize = 50
	}
	if page <= 0 {
		page = 1
	}
	query := map[string]string{"page": strconv.Itoa(page), "per_page": strconv.Itoa(pageSize)}
	if keyword != "" {
		query["name.contains"] = keyword
	}
	body, err := p.doQuery(ctx, http.MethodGet, "/zones", query)
	if err != nil {
		return types.ZoneList{}, err
	}
	var zones []cfZone
	if err := json.Unmarshal(body.resultRaw, &zones); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := make([]types.Zone, 0, len(zones))
	for _, z := range zones {
		zone := baseprovider.NormalizeZone(z.toZone())
		p.rememberZone(zone.ID, zone.Name)
		out = append(out, zone)
	}
	return types.ZoneList{Items: out, Total: body.resultInfo.TotalCount}, nil
}

func (p *Provider) GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error) {
	body, err := p.doQuery(ctx, http.MethodGet, "/zones/"+zoneIDOrName, nil)
	if err != nil {
		return types.Zone{}, err
	}
	var z cfZone
	if err := json.Unmarshal(body.resultRaw, &z); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zone := baseprovider.NormalizeZone(z.toZone())
	p.rememberZone(zone.ID, zone.Name)
	return zone, nil
}

func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	payload, _ := json.Marshal(map[string]string{"name": name})
	body, err := p.do(ctx, http.MethodPost, "/zones", nil, payload)
	if err != nil {
		return types.Zone{}, err
	}
	var z cfZone
	if err := json.Unmarshal(body.resultRaw, &z); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zone := baseprovider.NormalizeZone(z.toZone())
	p.rememberZone(zone.ID, zone.Name)
	return zone, nil
}

func (p *Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	page, pageSize := q.Page, q.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	if page <= 0 {
		page = 1
	}
	query := map[string]string{"page": strconv.Itoa(page), "per_page": strconv.Itoa(pageSize)}
	if q.Type != "" {
		query["type"] = q.Type
	}
	body, err := p.doQuery(ctx, http.MethodGet, "/zones/"+zoneID+"/dns_records", query)
	if err != nil {
		return types.RecordList{}, err
	}
	var records []cfRecord
	if err := json.Unmarshal(body.resultRaw, &records); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zoneName := p.zoneName(ctx, zoneID)
	out := make([]types.DnsRecord, 0, len(records))
	for _, r := range records {
		out = append(out, baseprovider.NormalizeRecord(r.toRecord(zoneID, zoneName)))
	}
	// Cloudflare cannot server-side filter by keyword/subDomain/value; fall
	// back to client filtering transparently for those (spec §4.5 rule 8).
	if q.Keyword != "" || q.SubDomain != "" || q.Value != "" || q.Line != "" || q.Status != "" {
		out = baseprovider.FilterRecordsClient(out, q)
	}
	return types.RecordList{Items: out, Total: body.resultInfo.TotalCount}, nil
}

func (p *Provider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	body, err := p.doQuery(ctx, http.MethodGet, "/zones/"+zoneID+"/dns_records/"+recordID, nil)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var r cfRecord
	if err := json.Unmarshal(body.resultRaw, &r); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeRecord(r.toRecord(zoneID, p.zoneName(ctx, zoneID))), nil
}

func (p *Provider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	payload := fromParams(params)
	raw, _ := json.Marshal(payload)
	body, err := p.do(ctx, http.MethodPost, "/zones/"+zoneID+"/dns_records", nil, raw)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var r cfRecord
	if err := json.Unmarshal(body.resultRaw, &r); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeRecord(r.toRecord(zoneID, p.zoneName(ctx, zoneID))), nil
}

func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	payload := fromParams(params)
	raw, _ := json.Marshal(payload)
	body, err := p.do(ctx, http.MethodPatch, "/zones/"+zoneID+"/dns_records/"+recordID, nil, raw)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var r cfRecord
	if err := json.Unmarshal(body.resultRaw, &r); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeRecord(r.toRecord(zoneID, p.zoneName(ctx, zoneID))), nil
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	_, err := p.do(ctx, http.MethodDelete, "/zones/"+zoneID+"/dns_records/"+recordID, nil, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetRecordStatus is Unsupported: Cloudflare has no enable/disable toggle
// for a DNS record distinct from deleting it.
func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	return false, &types.Error{Kind: types.Unsupported, Message: "cloudflare does not support record status toggling"}
}

func (p *Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	return types.LineList{Items: []types.DnsLine{{Code: types.DefaultLineCode, Name: "Default"}}}, nil
}

func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int { return 60 }

type cfResult struct {
	resultRaw  json.RawMessage
	resultInfo struct {
		TotalCount int
	}
}

type cfEnvelope struct {
	Success bool              `json:"success"`
	Errors  []cfAPIError      `json:"errors"`
	Result  json.RawMessage   `json:"result"`
	Info    *cfResultInfoJSON `json:"result_info"`
}

type cfResultInfoJSON struct {
	TotalCount int `json:"total_count"`
}

type cfAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *Provider) doQuery(ctx context.Context, method, path string, query map[string]string) (cfResult, error) {
	return p.request(ctx, method, path, query, nil)
}

func (p *Provider) do(ctx context.Context, method, path string, query map[string]string, body []byte) (cfResult, error) {
	return p.request(ctx, method, path, query, body)
}

func (p *Provider) request(ctx context.Context, method, path string, query map[string]string, body []byte) (cfResult, error) {
	res, err := p.base.WithRetry(func(attempt int) (any, error) {
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:    method,
			URL:       apiBase + path,
			Query:     query,
			Headers:   p.signedHeaders(),
			Body:      body,
			ParseJSON: true,
		})
		if err != nil {
			return nil, err
		}
		var env cfEnvelope
		rawBody, _ := json.Marshal(resp.JSON)
		if err := json.Unmarshal(rawBody, &env); err != nil {
			return nil, &types.Error{Kind: types.InvalidResponse, Message: err.Error(), HTTPStatus: resp.Status}
		}
		if !env.Success {
			return nil, p.vendorError(env, resp.Status)
		}
		out := cfResult{resultRaw: env.Result}
		if env.Info != nil {
			out.resultInfo.TotalCount = env.Info.TotalCount
		}
		return out, nil
	})
	if err != nil {
		return cfResult{}, err
	}
	return res.(cfResult), nil
}

func (p *Provider) vendorError(env cfEnvelope, httpStatus int) *types.Error {
	code, message := "", "cloudflare request failed"
	if len(env.Errors) > 0 {
		code = strconv.Itoa(env.Errors[0].Code)
		message = env.Errors[0].Message
	}
	kind := types.VendorError
	switch {
	case httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden:
		kind = types.AuthFailed
	case httpStatus == http.StatusNotFound:
		kind = types.ZoneNotFound
	case httpStatus == http.StatusTooManyRequests:
		kind = types.RateLimited
	}
	return p.base.NewError(kind, code, message, httpStatus, nil)
}

type cfZone struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (z cfZone) toZone() types.Zone {
	return types.Zone{ID: z.ID, Name: z.Name, Status: z.Status}
}

type cfRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Priority *int   `json:"priority,omitempty"`
	Comment  string `json:"comment,omitempty"`
	Proxied  *bool  `json:"proxied,omitempty"`
}

func (r cfRecord) toRecord(zoneID, zoneName string) types.DnsRecord {
	return types.DnsRecord{
		ID:       r.ID,
		ZoneID:   zoneID,
		ZoneName: zoneName,
		Name:     r.Name,
		Type:     r.Type,
		Value:    r.Content,
		TTL:      r.TTL,
		Priority: r.Priority,
		Remark:   r.Comment,
		Proxied:  r.Proxied,
	}
}

func fromParams(params types.RecordParams) map[string]any {
	out := map[string]any{
		"type":    params.Type,
		"name":    params.Name,
		"content": params.Value,
		"ttl":     params.TTL,
	}
	if params.Priority != nil {
		out["priority"] = *params.Priority
	}
	if params.Remark != nil {
		out["comment"] = *params.Remark
	}
	return out
}
